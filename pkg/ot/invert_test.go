package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiv248/kolabpad/pkg/notebook"
)

// applyAndInvert applies op to nb, then applies Invert(op) to the result,
// asserting the cells' contents return to their pre-op values.
func applyAndInvert(t *testing.T, nb *notebook.Notebook, op Operation) {
	t.Helper()
	beforeContents := append([]string(nil), contentsOfCells(nb.Cells)...)

	changes, err := Apply(nb, op)
	require.NoError(t, err)
	require.NoError(t, ApplyChanges(nb, changes))

	inverse := Invert(op)
	invChanges, err := Apply(nb, inverse)
	require.NoError(t, err)
	require.NoError(t, ApplyChanges(nb, invChanges))

	assert.Equal(t, beforeContents, contentsOfCells(nb.Cells))
}

func TestInvertReplaceTextRestoresOriginal(t *testing.T) {
	nb := newTestNotebookWithCells("hello")
	cellID := nb.Cells[0].ID
	op := NewReplaceText(ReplaceTextOperation{CellID: cellID, Offset: 0, NewText: "goodbye", OldText: "hello"})
	applyAndInvert(t, nb, op)
	assert.Equal(t, "hello", nb.Cells[0].Content)
}

func TestInvertReplaceCellsInsertBecomesDelete(t *testing.T) {
	nb := newTestNotebookWithCells("a")
	newCell := notebook.Cell{CellHeader: notebook.CellHeader{ID: notebook.NewID()}, Kind: notebook.CellKindText, Content: "b"}
	op := NewReplaceCells(ReplaceCellsOperation{NewCells: []CellWithIndex{{Cell: newCell, Index: 1}}})

	inverse := Invert(op)
	require.Equal(t, OpReplaceCells, inverse.Type)
	assert.Empty(t, inverse.ReplaceCells.NewCells)
	require.Len(t, inverse.ReplaceCells.OldCells, 1)
	assert.Equal(t, newCell.ID, inverse.ReplaceCells.OldCells[0].Cell.ID)

	applyAndInvert(t, nb, op)
	assert.Len(t, nb.Cells, 1)
}

func TestInvertMoveCellsSwapsFromTo(t *testing.T) {
	id := notebook.NewID()
	op := NewMoveCells(MoveCellsOperation{CellIDs: []notebook.Base64Uuid{id}, FromIndex: 0, ToIndex: 3})
	inverse := Invert(op)
	require.NotNil(t, inverse.MoveCells)
	assert.Equal(t, uint32(3), inverse.MoveCells.FromIndex)
	assert.Equal(t, uint32(0), inverse.MoveCells.ToIndex)
}

func TestInvertUpdateNotebookTitleSwapsOldAndNew(t *testing.T) {
	op := NewUpdateNotebookTitle(UpdateNotebookTitleOperation{OldTitle: "a", Title: "b"})
	inverse := Invert(op)
	require.NotNil(t, inverse.UpdateNotebookTitle)
	assert.Equal(t, "b", inverse.UpdateNotebookTitle.OldTitle)
	assert.Equal(t, "a", inverse.UpdateNotebookTitle.Title)
}

func TestInvertAddLabelBecomesRemoveLabel(t *testing.T) {
	l := notebook.Label{Key: "env", Value: "prod"}
	op := NewAddLabel(AddLabelOperation{Label: l})
	inverse := Invert(op)
	require.Equal(t, OpRemoveLabel, inverse.Type)
	assert.Equal(t, l, inverse.RemoveLabel.Label)
}

func TestInvertReplaceLabelSwapsOldAndNew(t *testing.T) {
	oldL := notebook.Label{Key: "env", Value: "prod"}
	newL := notebook.Label{Key: "env", Value: "staging"}
	op := NewReplaceLabel(ReplaceLabelOperation{OldLabel: oldL, NewLabel: newL})
	inverse := Invert(op)
	require.NotNil(t, inverse.ReplaceLabel)
	assert.Equal(t, newL, inverse.ReplaceLabel.OldLabel)
	assert.Equal(t, oldL, inverse.ReplaceLabel.NewLabel)
}

func TestInvertSetSelectedDataSourceSwapsOldAndNew(t *testing.T) {
	oldDS := &notebook.SelectedDataSource{Name: "a"}
	newDS := &notebook.SelectedDataSource{Name: "b"}
	op := NewSetSelectedDataSource(SetSelectedDataSourceOperation{
		ProviderType: "prometheus", OldSelectedDataSource: oldDS, NewSelectedDataSource: newDS,
	})
	inverse := Invert(op)
	require.NotNil(t, inverse.SetSelectedDataSource)
	assert.Equal(t, oldDS, inverse.SetSelectedDataSource.NewSelectedDataSource)
	assert.Equal(t, newDS, inverse.SetSelectedDataSource.OldSelectedDataSource)
}

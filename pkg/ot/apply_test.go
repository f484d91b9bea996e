package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiv248/kolabpad/pkg/notebook"
)

func newTestNotebookWithCells(contents ...string) *notebook.Notebook {
	nb := notebook.NewNotebook("", "")
	for i, c := range contents {
		nb.InsertCellAt(uint32(i), notebook.Cell{
			CellHeader: notebook.CellHeader{ID: notebook.NewID()},
			Kind:       notebook.CellKindText,
			Content:    c,
		})
	}
	return nb
}

func TestApplyReplaceTextInsertsAtOffset(t *testing.T) {
	nb := newTestNotebookWithCells("hello")
	cellID := nb.Cells[0].ID

	op := NewReplaceText(ReplaceTextOperation{CellID: cellID, Offset: 5, NewText: " world", OldText: ""})
	changes, err := Apply(nb, op)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.NoError(t, ApplyChanges(nb, changes))
	assert.Equal(t, "hello world", nb.Cells[0].Content)
}

func TestApplyReplaceTextRejectsMismatchedOldText(t *testing.T) {
	nb := newTestNotebookWithCells("hello")
	cellID := nb.Cells[0].ID

	op := NewReplaceText(ReplaceTextOperation{CellID: cellID, Offset: 0, NewText: "y", OldText: "x"})
	_, err := Apply(nb, op)
	assert.ErrorIs(t, err, ErrInconsistentState)
}

func TestApplyReplaceTextRejectsUnknownCell(t *testing.T) {
	nb := newTestNotebookWithCells("hello")
	op := NewReplaceText(ReplaceTextOperation{CellID: notebook.NewID(), Offset: 0, NewText: "y", OldText: ""})
	_, err := Apply(nb, op)
	reason, ok := AsRejectReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCellNotFound, reason.Code)
}

func TestApplyReplaceTextRejectsNonTextCell(t *testing.T) {
	nb := notebook.NewNotebook("", "")
	id := notebook.NewID()
	nb.InsertCellAt(0, notebook.Cell{CellHeader: notebook.CellHeader{ID: id}, Kind: notebook.CellKindDivider})

	op := NewReplaceText(ReplaceTextOperation{CellID: id, Offset: 0, NewText: "y", OldText: ""})
	_, err := Apply(nb, op)
	reason, ok := AsRejectReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonNoTextCell, reason.Code)
}

func TestApplyReplaceCellsInsertsNewCell(t *testing.T) {
	nb := newTestNotebookWithCells("a")
	newCell := notebook.Cell{CellHeader: notebook.CellHeader{ID: notebook.NewID()}, Kind: notebook.CellKindText, Content: "b"}

	op := NewReplaceCells(ReplaceCellsOperation{NewCells: []CellWithIndex{{Cell: newCell, Index: 1}}})
	changes, err := Apply(nb, op)
	require.NoError(t, err)
	require.NoError(t, ApplyChanges(nb, changes))
	require.Len(t, nb.Cells, 2)
	assert.Equal(t, "b", nb.Cells[1].Content)
}

func TestApplyReplaceCellsDeletesOldCell(t *testing.T) {
	nb := newTestNotebookWithCells("a", "b")
	removed := nb.Cells[0]

	op := NewReplaceCells(ReplaceCellsOperation{OldCells: []CellWithIndex{{Cell: removed, Index: 0}}})
	changes, err := Apply(nb, op)
	require.NoError(t, err)
	require.NoError(t, ApplyChanges(nb, changes))
	require.Len(t, nb.Cells, 1)
	assert.Equal(t, "b", nb.Cells[0].Content)
}

func TestApplyReplaceCellsRejectsStaleIndex(t *testing.T) {
	nb := newTestNotebookWithCells("a", "b")
	removed := nb.Cells[0]

	op := NewReplaceCells(ReplaceCellsOperation{OldCells: []CellWithIndex{{Cell: removed, Index: 1}}})
	_, err := Apply(nb, op)
	assert.ErrorIs(t, err, ErrInconsistentState)
}

func TestApplyReplaceCellsRejectsDuplicateID(t *testing.T) {
	nb := newTestNotebookWithCells("a")
	dup := nb.Cells[0]

	op := NewReplaceCells(ReplaceCellsOperation{NewCells: []CellWithIndex{{Cell: dup, Index: 1}}})
	_, err := Apply(nb, op)
	reason, ok := AsRejectReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonDuplicateCellID, reason.Code)
}

func TestApplyMoveCellsRejectsUnknownCell(t *testing.T) {
	nb := newTestNotebookWithCells("a", "b")
	op := NewMoveCells(MoveCellsOperation{CellIDs: []notebook.Base64Uuid{notebook.NewID()}, FromIndex: 0, ToIndex: 1})
	_, err := Apply(nb, op)
	reason, ok := AsRejectReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonCellNotFound, reason.Code)
}

func TestApplyMoveCellsRelocatesCell(t *testing.T) {
	nb := newTestNotebookWithCells("a", "b", "c")
	id := nb.Cells[0].ID

	op := NewMoveCells(MoveCellsOperation{CellIDs: []notebook.Base64Uuid{id}, FromIndex: 0, ToIndex: 3})
	changes, err := Apply(nb, op)
	require.NoError(t, err)
	require.NoError(t, ApplyChanges(nb, changes))
	assert.Equal(t, []string{"b", "c", "a"}, contentsOfCells(nb.Cells))
}

func TestApplyAddLabelRejectsDuplicate(t *testing.T) {
	nb := notebook.NewNotebook("", "")
	nb.AddLabel(notebook.Label{Key: "env", Value: "prod"})

	op := NewAddLabel(AddLabelOperation{Label: notebook.Label{Key: "env", Value: "staging"}})
	_, err := Apply(nb, op)
	reason, ok := AsRejectReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonDuplicateLabel, reason.Code)
}

func TestApplyAddLabelRejectsInvalid(t *testing.T) {
	nb := notebook.NewNotebook("", "")
	op := NewAddLabel(AddLabelOperation{Label: notebook.Label{Key: "", Value: "x"}})
	_, err := Apply(nb, op)
	reason, ok := AsRejectReason(err)
	require.True(t, ok)
	assert.Equal(t, ReasonInvalidLabel, reason.Code)
}

func TestApplyReplaceLabelRequiresExisting(t *testing.T) {
	nb := notebook.NewNotebook("", "")
	op := NewReplaceLabel(ReplaceLabelOperation{
		OldLabel: notebook.Label{Key: "env", Value: "prod"},
		NewLabel: notebook.Label{Key: "env", Value: "staging"},
	})
	_, err := Apply(nb, op)
	assert.ErrorIs(t, err, ErrInconsistentState)
}

func TestApplyUpdateNotebookTitle(t *testing.T) {
	nb := notebook.NewNotebook("old", "")
	op := NewUpdateNotebookTitle(UpdateNotebookTitleOperation{OldTitle: "old", Title: "new"})
	changes, err := Apply(nb, op)
	require.NoError(t, err)
	require.NoError(t, ApplyChanges(nb, changes))
	assert.Equal(t, "new", nb.Title)
}

func contentsOfCells(cells []notebook.Cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.Content
	}
	return out
}

package notebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotebookStartsAtRevisionZero(t *testing.T) {
	nb := NewNotebook("My Notebook", "user-1")
	assert.Equal(t, "My Notebook", nb.Title)
	assert.Equal(t, uint32(0), nb.Revision)
	assert.Equal(t, VisibilityPrivate, nb.Visibility)
	assert.Empty(t, nb.Cells)
	assert.NotNil(t, nb.SelectedDataSources)
	assert.False(t, nb.ID.IsNil())
}

func TestInsertCellAtShiftsSuccessors(t *testing.T) {
	nb := NewNotebook("", "")
	a, b := textCellForModel("a"), textCellForModel("b")
	nb.InsertCellAt(0, a)
	nb.InsertCellAt(1, b)

	c := textCellForModel("c")
	nb.InsertCellAt(1, c)

	require.Len(t, nb.Cells, 3)
	assert.Equal(t, a.ID, nb.Cells[0].ID)
	assert.Equal(t, c.ID, nb.Cells[1].ID)
	assert.Equal(t, b.ID, nb.Cells[2].ID)
}

func TestCellIndexAndCellByID(t *testing.T) {
	nb := NewNotebook("", "")
	a := textCellForModel("a")
	nb.InsertCellAt(0, a)

	assert.Equal(t, 0, nb.CellIndex(a.ID))
	assert.Equal(t, -1, nb.CellIndex(NewID()))

	found := nb.CellByID(a.ID)
	require.NotNil(t, found)
	assert.Equal(t, "a", found.Content)
	assert.Nil(t, nb.CellByID(NewID()))

	val, ok := nb.Cell(a.ID)
	assert.True(t, ok)
	assert.Equal(t, "a", val.Content)
	_, ok = nb.Cell(NewID())
	assert.False(t, ok)
}

func TestRemoveCellByID(t *testing.T) {
	nb := NewNotebook("", "")
	a := textCellForModel("a")
	nb.InsertCellAt(0, a)

	assert.True(t, nb.RemoveCellByID(a.ID))
	assert.Empty(t, nb.Cells)
	assert.False(t, nb.RemoveCellByID(a.ID))
}

func TestReplaceCellByID(t *testing.T) {
	nb := NewNotebook("", "")
	a := textCellForModel("a")
	nb.InsertCellAt(0, a)

	replacement := a
	replacement.Content = "replaced"
	assert.True(t, nb.ReplaceCellByID(replacement))
	assert.Equal(t, "replaced", nb.Cells[0].Content)

	other := textCellForModel("other")
	assert.False(t, nb.ReplaceCellByID(other))
}

func TestUpdateCellTextByID(t *testing.T) {
	nb := NewNotebook("", "")
	a := textCellForModel("a")
	nb.InsertCellAt(0, a)

	f := Formatting{{Offset: 0, Annotation: Annotation{Type: AnnotationStartBold}}}
	assert.True(t, nb.UpdateCellTextByID(a.ID, "content", "updated", f))
	assert.Equal(t, "updated", nb.Cells[0].Content)
	assert.Equal(t, f, nb.Cells[0].Formatting)

	assert.False(t, nb.UpdateCellTextByID(NewID(), "content", "x", nil))
}

func TestMoveCellsToReordersContiguously(t *testing.T) {
	nb := NewNotebook("", "")
	a, b, c, d := textCellForModel("a"), textCellForModel("b"), textCellForModel("c"), textCellForModel("d")
	nb.Cells = []Cell{a, b, c, d}

	nb.MoveCellsTo([]Base64Uuid{c.ID, d.ID}, 0)

	require.Len(t, nb.Cells, 4)
	assert.Equal(t, []string{"c", "d", "a", "b"}, contentsOf(nb.Cells))
}

func TestMoveCellsToSkipsUnknownIDs(t *testing.T) {
	nb := NewNotebook("", "")
	a, b := textCellForModel("a"), textCellForModel("b")
	nb.Cells = []Cell{a, b}

	nb.MoveCellsTo([]Base64Uuid{NewID(), b.ID}, 0)

	require.Len(t, nb.Cells, 2)
	assert.Equal(t, []string{"b", "a"}, contentsOf(nb.Cells))
}

func TestMoveCellsToClampsOutOfRangeIndex(t *testing.T) {
	nb := NewNotebook("", "")
	a, b, c := textCellForModel("a"), textCellForModel("b"), textCellForModel("c")
	nb.Cells = []Cell{a, b, c}

	nb.MoveCellsTo([]Base64Uuid{a.ID}, 100)

	assert.Equal(t, []string{"b", "c", "a"}, contentsOf(nb.Cells))
}

func TestLabelCRUD(t *testing.T) {
	nb := NewNotebook("", "")
	nb.AddLabel(Label{Key: "env", Value: "prod"})
	assert.Equal(t, 0, nb.LabelIndex("env"))
	assert.Equal(t, -1, nb.LabelIndex("missing"))

	assert.True(t, nb.ReplaceLabelByKey("env", Label{Key: "env", Value: "staging"}))
	assert.Equal(t, "staging", nb.Labels[0].Value)
	assert.False(t, nb.ReplaceLabelByKey("missing", Label{Key: "missing"}))

	assert.True(t, nb.RemoveLabelByKey("env"))
	assert.Empty(t, nb.Labels)
	assert.False(t, nb.RemoveLabelByKey("env"))
}

func TestSetTimeRangeTitleAndDataSource(t *testing.T) {
	nb := NewNotebook("original", "")
	nb.SetTitle("renamed")
	assert.Equal(t, "renamed", nb.Title)

	tr := TimeRange{From: 1, To: 2}
	nb.SetTimeRange(tr)
	assert.Equal(t, tr, nb.TimeRange)

	proxy := "my-proxy"
	nb.SetSelectedDataSource("prometheus", &SelectedDataSource{Name: "prod", ProxyName: &proxy})
	ds, ok := nb.SelectedDataSources["prometheus"]
	require.True(t, ok)
	assert.Equal(t, "prod", ds.Name)

	nb.SetSelectedDataSource("prometheus", nil)
	_, ok = nb.SelectedDataSources["prometheus"]
	assert.False(t, ok)
}

func TestValidateRejectsDuplicateCellIDs(t *testing.T) {
	nb := NewNotebook("", "")
	id := NewID()
	nb.Cells = []Cell{
		{CellHeader: CellHeader{ID: id}, Kind: CellKindText, Content: "a"},
		{CellHeader: CellHeader{ID: id}, Kind: CellKindText, Content: "b"},
	}
	assert.ErrorIs(t, nb.Validate(), ErrDuplicateCellID)
}

func TestValidateAllowsSingleTitleRoleMatchingTitle(t *testing.T) {
	nb := NewNotebook("My Title", "")
	nb.Cells = []Cell{
		{CellHeader: CellHeader{ID: NewID(), TitleRole: true}, Kind: CellKindHeading, Content: "My Title"},
	}
	assert.NoError(t, nb.Validate())
}

func TestValidateRejectsTitleMismatch(t *testing.T) {
	nb := NewNotebook("My Title", "")
	nb.Cells = []Cell{
		{CellHeader: CellHeader{ID: NewID(), TitleRole: true}, Kind: CellKindHeading, Content: "Different"},
	}
	assert.ErrorIs(t, nb.Validate(), ErrTitleMismatch)
}

func TestValidateRejectsMultipleTitleRoles(t *testing.T) {
	nb := NewNotebook("T", "")
	nb.Cells = []Cell{
		{CellHeader: CellHeader{ID: NewID(), TitleRole: true}, Kind: CellKindHeading, Content: "T"},
		{CellHeader: CellHeader{ID: NewID(), TitleRole: true}, Kind: CellKindHeading, Content: "T"},
	}
	assert.ErrorIs(t, nb.Validate(), ErrMultipleTitleRole)
}

func TestValidateRejectsDanglingSourceID(t *testing.T) {
	nb := NewNotebook("", "")
	nb.Cells = []Cell{
		{CellHeader: CellHeader{ID: NewID()}, Kind: CellKindGraph, SourceCellIDs: []Base64Uuid{NewID()}},
	}
	assert.ErrorIs(t, nb.Validate(), ErrDanglingSourceID)
}

func TestValidateAcceptsResolvingSourceID(t *testing.T) {
	nb := NewNotebook("", "")
	source := Cell{CellHeader: CellHeader{ID: NewID()}, Kind: CellKindText, Content: "source"}
	nb.Cells = []Cell{
		source,
		{CellHeader: CellHeader{ID: NewID()}, Kind: CellKindGraph, SourceCellIDs: []Base64Uuid{source.ID}},
	}
	assert.NoError(t, nb.Validate())
}

func TestValidateRejectsOutOfRangeFormatting(t *testing.T) {
	nb := NewNotebook("", "")
	nb.Cells = []Cell{
		{
			CellHeader: CellHeader{ID: NewID()}, Kind: CellKindText, Content: "hi",
			Formatting: Formatting{{Offset: 100, Annotation: Annotation{Type: AnnotationStartBold}}},
		},
	}
	assert.ErrorIs(t, nb.Validate(), ErrFormattingOutOfRange)
}

func TestValidateRejectsUnsortedFormatting(t *testing.T) {
	nb := NewNotebook("", "")
	nb.Cells = []Cell{
		{
			CellHeader: CellHeader{ID: NewID()}, Kind: CellKindText, Content: "hello",
			Formatting: Formatting{
				{Offset: 3, Annotation: Annotation{Type: AnnotationStartBold}},
				{Offset: 1, Annotation: Annotation{Type: AnnotationEndBold}},
			},
		},
	}
	assert.ErrorIs(t, nb.Validate(), ErrFormattingUnsorted)
}

func TestValidateRejectsInvalidLabel(t *testing.T) {
	nb := NewNotebook("", "")
	nb.AddLabel(Label{Key: "", Value: "x"})
	assert.Error(t, nb.Validate())
}

func textCellForModel(content string) Cell {
	return Cell{CellHeader: CellHeader{ID: NewID()}, Kind: CellKindText, Content: content}
}

func contentsOf(cells []Cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.Content
	}
	return out
}

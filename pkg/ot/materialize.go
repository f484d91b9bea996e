package ot

import "github.com/shiv248/kolabpad/pkg/notebook"

// ApplyChanges mutates nb in place according to changes, the low-level
// edit record Apply produces. This is the write side of the NotebookView
// contract Apply/Transform read through; the revision log calls it once per
// accepted operation to advance the authoritative document.
func ApplyChanges(nb *notebook.Notebook, changes []Change) error {
	for _, change := range changes {
		if err := applyOneChange(nb, change); err != nil {
			return err
		}
	}
	return nil
}

func applyOneChange(nb *notebook.Notebook, change Change) error {
	switch change.Type {
	case ChangeInsertCell:
		v := change.InsertCell
		nb.InsertCellAt(v.Index, v.Cell)
	case ChangeDeleteCell:
		if !nb.RemoveCellByID(change.DeleteCell.CellID) {
			return rejectCellNotFound(change.DeleteCell.CellID)
		}
	case ChangeMoveCells:
		v := change.MoveCells
		nb.MoveCellsTo(v.CellIDs, v.Index)
	case ChangeUpdateCell:
		if !nb.ReplaceCellByID(change.UpdateCell.Cell) {
			return rejectCellNotFound(change.UpdateCell.Cell.ID)
		}
	case ChangeUpdateCellText:
		v := change.UpdateCellText
		if !nb.UpdateCellTextByID(v.CellID, v.FieldName(), v.Text, v.Formatting) {
			return rejectCellNotFound(v.CellID)
		}
	case ChangeUpdateNotebookTimeRange:
		nb.SetTimeRange(change.UpdateNotebookTimeRange.TimeRange)
	case ChangeUpdateNotebookTitle:
		nb.SetTitle(change.UpdateNotebookTitle.Title)
	case ChangeSetSelectedDataSource:
		v := change.SetSelectedDataSource
		nb.SetSelectedDataSource(v.ProviderType, v.SelectedDataSource)
	case ChangeAddLabel:
		nb.AddLabel(change.AddLabel.Label)
	case ChangeReplaceLabel:
		v := change.ReplaceLabel
		if !nb.ReplaceLabelByKey(v.Key, v.Label) {
			return ErrInconsistentState
		}
	case ChangeRemoveLabel:
		if !nb.RemoveLabelByKey(change.RemoveLabel.Label.Key) {
			return ErrInconsistentState
		}
	default:
		return ErrInconsistentState
	}
	return nil
}

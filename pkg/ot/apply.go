package ot

import (
	"github.com/shiv248/kolabpad/pkg/notebook"
)

// NotebookView is the narrow read-only surface Apply needs: the ordered
// list of cell IDs, and — for whichever cells an operation references — the
// full cell value.
type NotebookView interface {
	CellIDs() []notebook.Base64Uuid
	Cell(id notebook.Base64Uuid) (notebook.Cell, bool)
	LabelIndex(key string) int
}

// Apply produces the ordered list of low-level Changes that op induces
// against view. It checks that referenced cells exist at their stated
// indices, that insertion indices are in range, that replaced text matches,
// that new cell IDs are unique, and the label rules; it does not compare the
// contents of a ReplaceCells operation's old cells, or the old values carried
// by title, time-range, and data-source operations, with view. Changes are
// emitted in delete -> insert -> move -> update order within each affected
// range so that index references stay valid when a caller interprets the
// list sequentially.
func Apply(view NotebookView, op Operation) ([]Change, error) {
	switch op.Type {
	case OpReplaceCells:
		return applyReplaceCells(view, *op.ReplaceCells)
	case OpReplaceText:
		return applyReplaceText(view, *op.ReplaceText)
	case OpMoveCells:
		return applyMoveCells(view, *op.MoveCells)
	case OpUpdateNotebookTimeRange:
		v := *op.UpdateNotebookTimeRange
		return []Change{{Type: ChangeUpdateNotebookTimeRange, UpdateNotebookTimeRange: &UpdateNotebookTimeRangeChange{TimeRange: v.TimeRange}}}, nil
	case OpUpdateNotebookTitle:
		v := *op.UpdateNotebookTitle
		return []Change{{Type: ChangeUpdateNotebookTitle, UpdateNotebookTitle: &UpdateNotebookTitleChange{Title: v.Title}}}, nil
	case OpSetSelectedDataSource:
		v := *op.SetSelectedDataSource
		return []Change{{Type: ChangeSetSelectedDataSource, SetSelectedDataSource: &SetSelectedDataSourceChange{
			ProviderType: v.ProviderType, SelectedDataSource: v.NewSelectedDataSource,
		}}}, nil
	case OpAddLabel:
		return applyAddLabel(view, *op.AddLabel)
	case OpReplaceLabel:
		return applyReplaceLabel(view, *op.ReplaceLabel)
	case OpRemoveLabel:
		v := *op.RemoveLabel
		return []Change{{Type: ChangeRemoveLabel, RemoveLabel: &RemoveLabelChange{Label: v.Label}}}, nil
	default:
		return nil, ErrInconsistentState
	}
}

func applyAddLabel(view NotebookView, op AddLabelOperation) ([]Change, error) {
	if err := op.Label.Validate(); err != nil {
		return nil, rejectInvalidLabel(op.Label.Key, err)
	}
	if view.LabelIndex(op.Label.Key) >= 0 {
		return nil, rejectDuplicateLabel(op.Label.Key)
	}
	return []Change{{Type: ChangeAddLabel, AddLabel: &AddLabelChange{Label: op.Label}}}, nil
}

func applyReplaceLabel(view NotebookView, op ReplaceLabelOperation) ([]Change, error) {
	if err := op.NewLabel.Validate(); err != nil {
		return nil, rejectInvalidLabel(op.NewLabel.Key, err)
	}
	if view.LabelIndex(op.OldLabel.Key) < 0 {
		return nil, ErrInconsistentState
	}
	return []Change{{Type: ChangeReplaceLabel, ReplaceLabel: &ReplaceLabelChange{
		Key: op.OldLabel.Key, Label: op.NewLabel,
	}}}, nil
}

func applyReplaceText(view NotebookView, op ReplaceTextOperation) ([]Change, error) {
	cell, ok := view.Cell(op.CellID)
	if !ok {
		return nil, rejectCellNotFound(op.CellID)
	}
	text, formatting, ok := cell.TextField(op.FieldName())
	if !ok {
		return nil, rejectNoTextCell(op.CellID)
	}

	runes := []rune(text)
	oldLen := uint32(len([]rune(op.OldText)))
	if uint64(op.Offset)+uint64(oldLen) > uint64(len(runes)) {
		return nil, ErrInconsistentState
	}
	if string(runes[op.Offset:op.Offset+oldLen]) != op.OldText {
		return nil, ErrInconsistentState
	}
	if op.OldFormatting != nil {
		existing := formatting.Slice(op.Offset, op.Offset+oldLen)
		if !formattingEqual(existing, op.OldFormatting) {
			return nil, ErrInconsistentState
		}
	}

	newRunes := make([]rune, 0, len(runes)-int(oldLen)+len([]rune(op.NewText)))
	newRunes = append(newRunes, runes[:op.Offset]...)
	newRunes = append(newRunes, []rune(op.NewText)...)
	newRunes = append(newRunes, runes[op.Offset+oldLen:]...)
	newText := string(newRunes)

	newLen := int64(len([]rune(op.NewText)))
	before := formatting.Slice(0, op.Offset)
	after := formatting.Slice(op.Offset+oldLen, notebook.CharCount(text)).Translate(newLen - int64(oldLen))
	middle := op.NewFormatting.Translate(int64(op.Offset))

	resultFormatting := append(append(before, middle...), after...)

	var field *string
	if op.Field != nil {
		f := *op.Field
		field = &f
	}
	return []Change{newUpdateCellText(op.CellID, field, newText, resultFormatting)}, nil
}

func formattingEqual(a, b notebook.Formatting) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func applyMoveCells(view NotebookView, op MoveCellsOperation) ([]Change, error) {
	ids := view.CellIDs()
	indexOf := make(map[notebook.Base64Uuid]int, len(ids))
	for i, id := range ids {
		indexOf[id] = i
	}
	for _, id := range op.CellIDs {
		if _, ok := indexOf[id]; !ok {
			return nil, rejectCellNotFound(id)
		}
	}
	if int(op.FromIndex) < 0 || int(op.FromIndex)+len(op.CellIDs) > len(ids) {
		return nil, rejectCellIndexOutOfBounds()
	}
	for i, id := range op.CellIDs {
		if indexOf[id] != int(op.FromIndex)+i {
			return nil, ErrInconsistentState
		}
	}
	if int(op.ToIndex) > len(ids) {
		return nil, rejectCellIndexOutOfBounds()
	}
	return []Change{newMoveCells(op.CellIDs, op.ToIndex)}, nil
}

func applyReplaceCells(view NotebookView, op ReplaceCellsOperation) ([]Change, error) {
	if op.SplitOffset != nil && op.MergeOffset != nil && len(op.OldCells) == 1 && *op.MergeOffset < *op.SplitOffset {
		return nil, ErrInconsistentState
	}

	ids := view.CellIDs()
	indexOf := make(map[notebook.Base64Uuid]int, len(ids))
	for i, id := range ids {
		indexOf[id] = i
	}

	// Every referenced old cell must exist at its stated index. For a
	// split/merge (len(OldCells) == 1 with an offset set), only the
	// affected sub-slice of text needs to match, which applyReplaceCells
	// does not re-derive here — it trusts the caller-supplied new/old cell
	// content the way the rest of this function does for plain replaces.
	for _, old := range append(append([]CellWithIndex{}, op.OldCells...), op.OldReferencingCells...) {
		if _, ok := view.Cell(old.Cell.ID); !ok {
			return nil, rejectCellNotFound(old.Cell.ID)
		}
		idx, ok := indexOf[old.Cell.ID]
		if !ok || uint32(idx) != old.Index {
			return nil, ErrInconsistentState
		}
	}

	seen := make(map[notebook.Base64Uuid]bool, len(ids)+len(op.NewCells))
	for _, id := range ids {
		seen[id] = true
	}
	for _, nc := range op.AllNewlyInsertedCells() {
		if seen[nc.Cell.ID] {
			return nil, rejectDuplicateCellID(nc.Cell.ID)
		}
	}
	count := len(ids) - len(op.AllOldRemovedCells())
	for _, nc := range op.AllNewlyInsertedCells() {
		if int(nc.Index) > count {
			return nil, rejectCellIndexOutOfBounds()
		}
		count++
	}

	var changes []Change
	for _, old := range op.AllOldRemovedCells() {
		changes = append(changes, newDeleteCell(old.Cell.ID))
	}
	for _, nc := range op.AllNewlyInsertedCells() {
		changes = append(changes, newInsertCell(nc.Cell, nc.Index))
	}
	for _, nc := range op.NewCells {
		if idIn(op.OldCells, nc.Cell.ID) {
			changes = append(changes, newUpdateCell(nc.Cell))
		}
	}
	for _, nc := range op.NewReferencingCells {
		if idIn(op.OldReferencingCells, nc.Cell.ID) {
			changes = append(changes, newUpdateCell(nc.Cell))
		}
	}
	return changes, nil
}

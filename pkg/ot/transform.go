package ot

import "github.com/shiv248/kolabpad/pkg/notebook"

// Transform rebases successor so that it is equivalent to successor's
// original intent when applied after predecessor has already been applied
// to their common ancestor view. A nil result (with a nil error) means
// successor has become a no-op: predecessor already achieved the same
// effect, or removed what successor targeted. A non-nil error means
// successor's preconditions cannot hold against the post-predecessor state;
// the caller should reject it (see §7-style causal rejection).
//
// For the universal convergence law to hold, callers must also transform in
// the opposite direction (predecessor against successor) and apply both
// rebased operations to their respective already-applied sibling state.
func Transform(view NotebookView, predecessor, successor Operation) (*Operation, error) {
	switch predecessor.Type {
	case OpReplaceCells:
		return transformAgainstReplaceCells(view, *predecessor.ReplaceCells, successor)
	case OpReplaceText:
		return transformAgainstReplaceText(view, *predecessor.ReplaceText, successor)
	case OpMoveCells:
		return transformAgainstMoveCells(view, *predecessor.MoveCells, successor)
	case OpUpdateNotebookTimeRange:
		return sameTypeSuccessorWins(successor, OpUpdateNotebookTimeRange)
	case OpUpdateNotebookTitle:
		return sameTypeSuccessorWins(successor, OpUpdateNotebookTitle)
	case OpSetSelectedDataSource:
		return transformAgainstSetSelectedDataSource(*predecessor.SetSelectedDataSource, successor)
	case OpAddLabel:
		return transformAgainstAddLabel(*predecessor.AddLabel, successor)
	case OpReplaceLabel:
		return transformAgainstReplaceLabel(*predecessor.ReplaceLabel, successor)
	case OpRemoveLabel:
		return transformAgainstRemoveLabel(*predecessor.RemoveLabel, successor)
	default:
		return &successor, nil
	}
}

func sameTypeSuccessorWins(successor Operation, t OperationType) (*Operation, error) {
	// Unrelated operation types pass through unchanged; for the same type,
	// the later (successor) write simply wins, so it is likewise unchanged —
	// the rebase is a no-op either way.
	_ = t
	return &successor, nil
}

func unchanged(successor Operation) (*Operation, error) { return &successor, nil }

func obsolete() (*Operation, error) { return nil, nil }

// --- predecessor == ReplaceCells ---

func transformAgainstReplaceCells(view NotebookView, pred ReplaceCellsOperation, successorOp Operation) (*Operation, error) {
	switch successorOp.Type {
	case OpReplaceCells:
		return replaceCellsAgainstReplaceCells(pred, *successorOp.ReplaceCells)
	case OpReplaceText:
		return replaceCellsAgainstReplaceText(pred, *successorOp.ReplaceText)
	case OpMoveCells:
		return replaceCellsAgainstMoveCells(pred, *successorOp.MoveCells)
	default:
		return unchanged(successorOp)
	}
}

func replaceCellsAgainstReplaceCells(pred, succ ReplaceCellsOperation) (*Operation, error) {
	changes := getCellIndexChanges(pred)

	if sameRangeConflict(pred, succ) {
		if replaceCellsSplitMergeConverge(pred, succ) {
			return rebaseReplaceCellsIndices(changes, succ)
		}
		return obsolete()
	}

	return rebaseReplaceCellsIndices(changes, succ)
}

// sameRangeConflict reports whether pred and succ touch an overlapping old
// cell range (the case the split/merge reconciliation rule governs).
func sameRangeConflict(pred, succ ReplaceCellsOperation) bool {
	predStart := firstIndex(pred.OldCells, pred.NewCells)
	succStart := firstIndex(succ.OldCells, succ.NewCells)
	return rangesOverlap(predStart, len(pred.OldCells), succStart, len(succ.OldCells))
}

func firstIndex(oldCells, newCells []CellWithIndex) uint32 {
	if len(oldCells) > 0 {
		return oldCells[0].Index
	}
	if len(newCells) > 0 {
		return newCells[0].Index
	}
	return 0
}

func rebaseReplaceCellsIndices(changes []cellIndexChange, succ ReplaceCellsOperation) (*Operation, error) {
	rebase := func(cells []CellWithIndex, priority CellIndexPriority) ([]CellWithIndex, bool) {
		out := make([]CellWithIndex, len(cells))
		for i, c := range cells {
			idx, ok := rebaseIndex(changes, c.Index, c.Cell.ID, priority)
			if !ok {
				return nil, false
			}
			c.Index = idx
			out[i] = c
		}
		return out, true
	}

	newCells, ok := rebase(succ.NewCells, PriorityNormal)
	if !ok {
		return obsolete()
	}
	oldCells, ok := rebase(succ.OldCells, PriorityNormal)
	if !ok {
		return obsolete()
	}
	newRef, ok := rebase(succ.NewReferencingCells, PriorityLow)
	if !ok {
		return obsolete()
	}
	oldRef, ok := rebase(succ.OldReferencingCells, PriorityLow)
	if !ok {
		return obsolete()
	}

	out := NewReplaceCells(ReplaceCellsOperation{
		NewCells:            newCells,
		OldCells:            oldCells,
		SplitOffset:         succ.SplitOffset,
		MergeOffset:         succ.MergeOffset,
		NewReferencingCells: newRef,
		OldReferencingCells: oldRef,
	})
	return &out, nil
}

func replaceCellsAgainstReplaceText(pred ReplaceCellsOperation, succ ReplaceTextOperation) (*Operation, error) {
	field := succ.FieldName()
	if field != "" && field != "content" && field != "title" {
		return replaceCellsAgainstReplaceTextNamedField(pred, succ, field)
	}

	if idx := cellPosition(pred.OldCells, succ.CellID); idx >= 0 {
		if idx == 0 && pred.SplitOffset != nil {
			if succ.Offset+notebook.CharCount(succ.OldText) <= *pred.SplitOffset {
				return unchanged(NewReplaceText(succ))
			}
			return obsolete()
		}
		if idx == len(pred.OldCells)-1 && pred.MergeOffset != nil {
			if succ.Offset >= *pred.MergeOffset {
				shifted := succ
				shifted.Offset = succ.Offset - *pred.MergeOffset
				if len(pred.NewCells) > 0 && pred.SplitOffset != nil {
					shifted.Offset += *pred.SplitOffset
				}
				return unchanged(NewReplaceText(shifted))
			}
			return obsolete()
		}
		return obsolete()
	}

	if idx := cellPosition(pred.OldReferencingCells, succ.CellID); idx >= 0 {
		oldCell := pred.OldReferencingCells[idx].Cell
		for _, nc := range pred.NewReferencingCells {
			if nc.Cell.ID == oldCell.ID {
				if nc.Cell.TextContent() == oldCell.TextContent() {
					return unchanged(NewReplaceText(succ))
				}
				return obsolete()
			}
		}
		return obsolete()
	}

	return unchanged(NewReplaceText(succ))
}

func replaceCellsAgainstReplaceTextNamedField(pred ReplaceCellsOperation, succ ReplaceTextOperation, field string) (*Operation, error) {
	all := append(append([]CellWithIndex{}, pred.OldCells...), pred.OldReferencingCells...)
	oldIdx := -1
	for i, c := range all {
		if c.Cell.ID == succ.CellID {
			oldIdx = i
			break
		}
	}
	if oldIdx < 0 {
		return unchanged(NewReplaceText(succ))
	}
	oldCell := all[oldIdx].Cell
	allNew := append(append([]CellWithIndex{}, pred.NewCells...), pred.NewReferencingCells...)
	for _, nc := range allNew {
		if nc.Cell.ID == oldCell.ID {
			if nc.Cell.Kind == notebook.CellKindProvider && oldCell.Kind == notebook.CellKindProvider {
				if notebook.GetQueryField(nc.Cell.QueryData, field) == notebook.GetQueryField(oldCell.QueryData, field) {
					return unchanged(NewReplaceText(succ))
				}
			}
			return obsolete()
		}
	}
	return obsolete()
}

func cellPosition(cells []CellWithIndex, id notebook.Base64Uuid) int {
	for i, c := range cells {
		if c.Cell.ID == id {
			return i
		}
	}
	return -1
}

func replaceCellsAgainstMoveCells(pred ReplaceCellsOperation, succ MoveCellsOperation) (*Operation, error) {
	removedIDs := make(map[notebook.Base64Uuid]bool)
	for _, c := range pred.AllOldRemovedCells() {
		removedIDs[c.Cell.ID] = true
	}

	remaining := make([]notebook.Base64Uuid, 0, len(succ.CellIDs))
	anyRemoved := false
	for _, id := range succ.CellIDs {
		if removedIDs[id] {
			anyRemoved = true
			continue
		}
		remaining = append(remaining, id)
	}
	if len(remaining) == 0 {
		return obsolete()
	}

	changes := getCellIndexChanges(pred)
	firstPos := uint32(0)
	for i, id := range succ.CellIDs {
		if id == remaining[0] {
			firstPos = uint32(i)
			break
		}
	}
	fromIdx, ok := rebaseIndex(changes, succ.FromIndex+firstPos, remaining[0], PriorityNormal)
	if !ok {
		return obsolete()
	}
	toIdx, ok := rebaseIndex(changes, succ.ToIndex, remaining[0], PriorityNormal)
	if !ok {
		return obsolete()
	}

	// Trimming the cell_ids list already captures any removed members;
	// nothing further to adjust for anyRemoved.
	_ = anyRemoved
	out := NewMoveCells(MoveCellsOperation{CellIDs: remaining, FromIndex: fromIdx, ToIndex: toIdx})
	return &out, nil
}

// --- predecessor == ReplaceText ---

func transformAgainstReplaceText(view NotebookView, pred ReplaceTextOperation, successorOp Operation) (*Operation, error) {
	switch successorOp.Type {
	case OpReplaceText:
		return replaceTextAgainstReplaceText(pred, *successorOp.ReplaceText)
	case OpReplaceCells:
		return replaceTextAgainstReplaceCells(pred, *successorOp.ReplaceCells)
	default:
		return unchanged(successorOp)
	}
}

func replaceTextAgainstReplaceText(pred, succ ReplaceTextOperation) (*Operation, error) {
	if pred.CellID != succ.CellID || pred.FieldName() != succ.FieldName() {
		return unchanged(NewReplaceText(succ))
	}

	predEnd := pred.Offset + notebook.CharCount(pred.OldText)
	succEnd := succ.Offset + notebook.CharCount(succ.OldText)
	disjoint := predEnd <= succ.Offset || pred.Offset >= succEnd

	if !disjoint {
		return nil, ErrInconsistentState
	}

	out := succ
	if predEnd <= succ.Offset {
		delta := int64(notebook.CharCount(pred.NewText)) - int64(notebook.CharCount(pred.OldText))
		out.Offset = uint32(int64(succ.Offset) + delta)
	}
	return unchanged(NewReplaceText(out))
}

func replaceTextAgainstReplaceCells(pred ReplaceTextOperation, succ ReplaceCellsOperation) (*Operation, error) {
	applyTo := func(cells []CellWithIndex) []CellWithIndex {
		out := make([]CellWithIndex, len(cells))
		for i, c := range cells {
			if c.Cell.ID == pred.CellID {
				c.Cell = applyTextOpToCell(c.Cell, pred)
			}
			out[i] = c
		}
		return out
	}

	out := succ
	out.NewCells = applyTo(succ.NewCells)
	out.OldCells = applyTo(succ.OldCells)
	out.NewReferencingCells = applyTo(succ.NewReferencingCells)
	out.OldReferencingCells = applyTo(succ.OldReferencingCells)
	result := NewReplaceCells(out)
	return &result, nil
}

func applyTextOpToCell(cell notebook.Cell, op ReplaceTextOperation) notebook.Cell {
	text, formatting, ok := cell.TextField(op.FieldName())
	if !ok {
		return cell
	}
	runes := []rune(text)
	oldLen := uint32(len([]rune(op.OldText)))
	if uint64(op.Offset)+uint64(oldLen) > uint64(len(runes)) {
		return cell
	}
	newRunes := append(append(append([]rune{}, runes[:op.Offset]...), []rune(op.NewText)...), runes[op.Offset+oldLen:]...)

	newLen := int64(len([]rune(op.NewText)))
	before := formatting.Slice(0, op.Offset)
	after := formatting.Slice(op.Offset+oldLen, notebook.CharCount(text)).Translate(newLen - int64(oldLen))
	middle := op.NewFormatting.Translate(int64(op.Offset))
	newFormatting := append(append(before, middle...), after...)

	return cell.WithTextField(op.FieldName(), string(newRunes), newFormatting)
}

// --- predecessor == MoveCells ---

func transformAgainstMoveCells(view NotebookView, pred MoveCellsOperation, successorOp Operation) (*Operation, error) {
	switch successorOp.Type {
	case OpMoveCells:
		return moveCellsAgainstMoveCells(pred, *successorOp.MoveCells)
	case OpReplaceCells:
		return moveCellsAgainstReplaceCells(pred, *successorOp.ReplaceCells)
	default:
		return unchanged(successorOp)
	}
}

func moveCellsAgainstMoveCells(pred, succ MoveCellsOperation) (*Operation, error) {
	if !movesConverge(pred, succ) {
		return nil, ErrInconsistentState
	}
	rebase := func(index uint32) uint32 {
		predLen := uint32(len(pred.CellIDs))
		if index >= pred.FromIndex+predLen {
			index -= predLen
		}
		if index >= pred.ToIndex {
			index += predLen
		}
		return index
	}
	out := MoveCellsOperation{CellIDs: succ.CellIDs, FromIndex: rebase(succ.FromIndex), ToIndex: rebase(succ.ToIndex)}
	result := NewMoveCells(out)
	return &result, nil
}

func moveCellsAgainstReplaceCells(pred MoveCellsOperation, succ ReplaceCellsOperation) (*Operation, error) {
	if !moveAndReplaceCellsConverge(pred, succ) {
		return nil, ErrInconsistentState
	}
	shift := func(index uint32) uint32 {
		predLen := uint32(len(pred.CellIDs))
		if index > pred.FromIndex {
			index -= predLen
		}
		if index >= pred.ToIndex {
			index += predLen
		}
		return index
	}
	rebaseCells := func(cells []CellWithIndex) []CellWithIndex {
		out := make([]CellWithIndex, len(cells))
		for i, c := range cells {
			c.Index = shift(c.Index)
			out[i] = c
		}
		return out
	}
	out := succ
	out.NewCells = rebaseCells(succ.NewCells)
	out.OldCells = rebaseCells(succ.OldCells)
	out.NewReferencingCells = rebaseCells(succ.NewReferencingCells)
	out.OldReferencingCells = rebaseCells(succ.OldReferencingCells)
	result := NewReplaceCells(out)
	return &result, nil
}

// --- predecessor == SetSelectedDataSource ---

func transformAgainstSetSelectedDataSource(pred SetSelectedDataSourceOperation, successorOp Operation) (*Operation, error) {
	if successorOp.Type == OpSetSelectedDataSource && successorOp.SetSelectedDataSource.ProviderType == pred.ProviderType {
		return unchanged(successorOp)
	}
	return unchanged(successorOp)
}

// --- predecessor == label operations ---

func transformAgainstAddLabel(pred AddLabelOperation, successorOp Operation) (*Operation, error) {
	if successorOp.Type != OpAddLabel || successorOp.AddLabel.Label.Key != pred.Label.Key {
		return unchanged(successorOp)
	}
	if successorOp.AddLabel.Label.Value == pred.Label.Value {
		return obsolete()
	}
	return nil, rejectDuplicateLabel(pred.Label.Key)
}

func transformAgainstReplaceLabel(pred ReplaceLabelOperation, successorOp Operation) (*Operation, error) {
	if successorOp.Type != OpReplaceLabel || successorOp.ReplaceLabel.OldLabel.Key != pred.OldLabel.Key {
		return unchanged(successorOp)
	}
	out := *successorOp.ReplaceLabel
	out.OldLabel = pred.NewLabel
	result := NewReplaceLabel(out)
	return &result, nil
}

func transformAgainstRemoveLabel(pred RemoveLabelOperation, successorOp Operation) (*Operation, error) {
	switch successorOp.Type {
	case OpReplaceLabel:
		if successorOp.ReplaceLabel.OldLabel.Key == pred.Label.Key {
			return obsolete()
		}
	case OpRemoveLabel:
		if successorOp.RemoveLabel.Label.Key == pred.Label.Key {
			return obsolete()
		}
	}
	return unchanged(successorOp)
}

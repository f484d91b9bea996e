package ot

import "github.com/shiv248/kolabpad/pkg/notebook"

// Invert returns the operation that reverts op. It is a pure, total
// function — every variant has an exact dual, and inverting never fails.
// There is no guarantee that inverting a round-tripped inverse reproduces
// the original operation byte-for-byte (e.g. the merge offset of an
// inverted split/merge is recomputed from text length, not copied).
func Invert(op Operation) Operation {
	switch op.Type {
	case OpMoveCells:
		return invertMoveCells(*op.MoveCells)
	case OpReplaceCells:
		return invertReplaceCells(*op.ReplaceCells)
	case OpReplaceText:
		return invertReplaceText(*op.ReplaceText)
	case OpUpdateNotebookTimeRange:
		return invertUpdateNotebookTimeRange(*op.UpdateNotebookTimeRange)
	case OpUpdateNotebookTitle:
		return invertUpdateNotebookTitle(*op.UpdateNotebookTitle)
	case OpSetSelectedDataSource:
		return invertSetSelectedDataSource(*op.SetSelectedDataSource)
	case OpAddLabel:
		return NewRemoveLabel(RemoveLabelOperation{Label: op.AddLabel.Label})
	case OpReplaceLabel:
		v := *op.ReplaceLabel
		return NewReplaceLabel(ReplaceLabelOperation{OldLabel: v.NewLabel, NewLabel: v.OldLabel})
	case OpRemoveLabel:
		return NewAddLabel(AddLabelOperation{Label: op.RemoveLabel.Label})
	default:
		return op
	}
}

func invertMoveCells(op MoveCellsOperation) Operation {
	return NewMoveCells(MoveCellsOperation{
		CellIDs:   op.CellIDs,
		FromIndex: op.ToIndex,
		ToIndex:   op.FromIndex,
	})
}

func invertReplaceCells(op ReplaceCellsOperation) Operation {
	var mergeOffset *uint32
	if op.MergeOffset != nil {
		v := computeInvertedMergeOffset(op)
		mergeOffset = &v
	}
	return NewReplaceCells(ReplaceCellsOperation{
		NewCells:            op.OldCells,
		OldCells:            op.NewCells,
		NewReferencingCells: op.OldReferencingCells,
		OldReferencingCells: op.NewReferencingCells,
		SplitOffset:         op.SplitOffset,
		MergeOffset:         mergeOffset,
	})
}

// computeInvertedMergeOffset mirrors invert_replace_cells_operation's merge
// offset recomputation: if the replacement's new_cells range is a single
// cell, the inverse's merge offset sits after that cell's full text
// (split_offset + the cell's length); otherwise it is simply the last new
// cell's text length.
func computeInvertedMergeOffset(op ReplaceCellsOperation) uint32 {
	if len(op.NewCells) == 0 {
		return 0
	}
	first, last := op.NewCells[0], op.NewCells[len(op.NewCells)-1]
	lastLen := textLen(last.Cell)
	if first.Cell.ID == last.Cell.ID {
		base := uint32(0)
		if op.SplitOffset != nil {
			base = *op.SplitOffset
		}
		return base + lastLen
	}
	return lastLen
}

func textLen(cell notebook.Cell) uint32 {
	text, _, ok := cell.TextField("")
	if !ok {
		return 0
	}
	return notebook.CharCount(text)
}

func invertReplaceText(op ReplaceTextOperation) Operation {
	return NewReplaceText(ReplaceTextOperation{
		CellID:        op.CellID,
		Field:         op.Field,
		Offset:        op.Offset,
		NewText:       op.OldText,
		NewFormatting: op.OldFormatting,
		OldText:       op.NewText,
		OldFormatting: op.NewFormatting,
	})
}

func invertUpdateNotebookTimeRange(op UpdateNotebookTimeRangeOperation) Operation {
	return NewUpdateNotebookTimeRange(UpdateNotebookTimeRangeOperation{
		TimeRange:    op.OldTimeRange,
		OldTimeRange: op.TimeRange,
	})
}

func invertUpdateNotebookTitle(op UpdateNotebookTitleOperation) Operation {
	return NewUpdateNotebookTitle(UpdateNotebookTitleOperation{
		Title:    op.OldTitle,
		OldTitle: op.Title,
	})
}

func invertSetSelectedDataSource(op SetSelectedDataSourceOperation) Operation {
	return NewSetSelectedDataSource(SetSelectedDataSourceOperation{
		ProviderType:          op.ProviderType,
		NewSelectedDataSource: op.OldSelectedDataSource,
		OldSelectedDataSource: op.NewSelectedDataSource,
	})
}

package ot

// rangesOverlap reports whether [index1, index1+len1) and [index2, index2+len2)
// intersect.
func rangesOverlap(index1 uint32, len1 int, index2 uint32, len2 int) bool {
	return index1+uint32(len1) > index2 && index1 < index2+uint32(len2)
}

// movesConverge reports whether two concurrent MoveCells operations target
// disjoint source/destination ranges and can therefore both be kept.
func movesConverge(move1, move2 MoveCellsOperation) bool {
	len1, len2 := len(move1.CellIDs), len(move2.CellIDs)
	return !rangesOverlap(move1.FromIndex, len1, move2.FromIndex, len2) &&
		!rangesOverlap(move1.ToIndex, len1, move2.FromIndex, len2) &&
		!rangesOverlap(move1.FromIndex, len1, move2.ToIndex, len2) &&
		!rangesOverlap(move1.ToIndex, len1, move2.ToIndex, len2)
}

// moveAndReplaceCellsConverge reports whether a MoveCells and a concurrent
// ReplaceCells can both be kept: true whenever the replace removed nothing,
// or its removed range is disjoint from both the move's source and
// destination ranges.
func moveAndReplaceCellsConverge(move MoveCellsOperation, replace ReplaceCellsOperation) bool {
	if len(replace.OldCells) == 0 {
		return true
	}
	firstRemoved := replace.OldCells[0]
	moveLen := len(move.CellIDs)
	removeLen := len(replace.OldCells)
	return !rangesOverlap(move.FromIndex, moveLen, firstRemoved.Index, removeLen) &&
		!rangesOverlap(move.ToIndex, moveLen, firstRemoved.Index, removeLen)
}

// replaceCellsSplitMergeConverge applies the split/merge reconciliation rule
// from the cell-index rebasing algorithm: when predecessor and successor
// both touch the boundary cell of a shared range, one carrying a split
// offset and the other a merge offset, both survive iff the merge offset
// falls at or before the split offset.
func replaceCellsSplitMergeConverge(predecessor, successor ReplaceCellsOperation) bool {
	mergeCellID := cellIDOrNil(predecessor.OldCells, true)
	splitCellID := cellIDOrNil(predecessor.OldCells, false)

	var predSplit *uint32
	if predecessor.SplitOffset != nil {
		lastOldSuccessor := cellIDOrNil(successor.OldCells, false)
		if lastOldSuccessor != nil && mergeCellID != nil && *lastOldSuccessor == *mergeCellID {
			predSplit = predecessor.SplitOffset
		}
	}
	var predMerge *uint32
	if predecessor.MergeOffset != nil {
		firstOldSuccessor := cellIDOrNil(successor.OldCells, true)
		if firstOldSuccessor != nil && splitCellID != nil && *firstOldSuccessor == *splitCellID {
			predMerge = predecessor.MergeOffset
		}
	}

	switch {
	case successor.MergeOffset != nil && predSplit != nil:
		return *successor.MergeOffset <= *predSplit
	case successor.SplitOffset != nil && predMerge != nil:
		return *successor.SplitOffset >= *predMerge
	default:
		return false
	}
}

func cellIDOrNil(cells []CellWithIndex, first bool) *string {
	if len(cells) == 0 {
		return nil
	}
	var id string
	if first {
		id = cells[0].Cell.ID.String()
	} else {
		id = cells[len(cells)-1].Cell.ID.String()
	}
	return &id
}

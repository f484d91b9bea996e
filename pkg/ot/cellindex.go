package ot

import "github.com/shiv248/kolabpad/pkg/notebook"

// CellIndexPriority breaks ties when two concurrent ReplaceCells operations
// insert at the same index. The higher-priority cell keeps the index; the
// other is pushed behind it. Equal priority falls back to lexicographic
// comparison of cell IDs.
type CellIndexPriority int

const (
	// PriorityLow is used for referencing cells.
	PriorityLow CellIndexPriority = iota
	// PriorityNormal is used for regular new cells.
	PriorityNormal
	// PriorityHigh is used for new cells that form a range with a
	// PriorityNormal cell — it keeps a multi-cell insertion from being
	// split apart by a concurrent single-cell insertion at its boundary.
	PriorityHigh
)

// successorShouldMove applies the tie-break rule: given a predecessor change
// and a successor index both targeting the same slot, does the successor
// need to shift to make room?
func successorShouldMove(predecessorIndex uint32, predecessorCellID notebook.Base64Uuid, predecessorPriority CellIndexPriority, successorIndex uint32, successorCellID notebook.Base64Uuid, successorPriority CellIndexPriority) bool {
	switch {
	case predecessorIndex < successorIndex:
		return true
	case predecessorIndex > successorIndex:
		return false
	default:
		switch {
		case predecessorPriority < successorPriority:
			return false
		case predecessorPriority > successorPriority:
			return true
		default:
			return predecessorCellID.String() < successorCellID.String()
		}
	}
}

// cellIndexChangeKind discriminates cellIndexChange.
type cellIndexChangeKind int

const (
	cellChangeInsertion cellIndexChangeKind = iota
	cellChangeReplacement
	cellChangeRemoval
)

// cellIndexChange is one step of the rebase stream derived from a
// predecessor ReplaceCells operation: as the old cell-index space is walked
// left to right, each step says whether a cell at that position was kept
// (Replacement), removed (Removal), or a new cell was inserted there
// (Insertion, with its tie-break priority).
type cellIndexChange struct {
	kind     cellIndexChangeKind
	oldIndex uint32
	newIndex uint32
	cellID   notebook.Base64Uuid
	priority CellIndexPriority
}

// conditionalCellIterator walks a []CellWithIndex, yielding the next entry
// only when its declared index matches the position the caller expects —
// mirroring the original's "index-gated" iterator so gaps in old/new_cells
// ranges don't desynchronize the merge walk below.
type conditionalCellIterator struct {
	cells    []CellWithIndex
	pos      int
	priority CellIndexPriority
}

func newConditionalCellIterator(cells []CellWithIndex, priority CellIndexPriority) *conditionalCellIterator {
	return &conditionalCellIterator{cells: cells, priority: priority}
}

func (it *conditionalCellIterator) drained() bool { return it.pos == len(it.cells) }

func (it *conditionalCellIterator) next(expectedIndex uint32) (CellWithIndex, CellIndexPriority, bool) {
	if it.drained() {
		return CellWithIndex{}, 0, false
	}
	if it.cells[it.pos].Index != expectedIndex {
		return CellWithIndex{}, 0, false
	}
	cell := it.cells[it.pos]
	it.pos++
	priority := it.priority
	if it.pos > 1 && it.priority == PriorityNormal {
		priority = PriorityHigh
	}
	return cell, priority, true
}

// getCellIndexChanges derives the rebase stream for a ReplaceCells
// operation, walking old_cells/new_cells and old_referencing_cells/
// new_referencing_cells in lockstep.
func getCellIndexChanges(op ReplaceCellsOperation) []cellIndexChange {
	oldCells := newConditionalCellIterator(op.OldCells, PriorityNormal)
	newCells := newConditionalCellIterator(op.NewCells, PriorityNormal)
	oldRefCells := newConditionalCellIterator(op.OldReferencingCells, PriorityLow)
	newRefCells := newConditionalCellIterator(op.NewReferencingCells, PriorityLow)

	var changes []cellIndexChange
	var oldIndex, newIndex uint32

	for {
		if oldCells.drained() && newCells.drained() && oldRefCells.drained() && newRefCells.drained() {
			break
		}

		if oc, _, ok := oldCells.next(oldIndex); ok {
			if nc, priority, ok := newCells.next(newIndex); ok {
				if oc.Cell.ID == nc.Cell.ID {
					changes = append(changes, cellIndexChange{kind: cellChangeReplacement, oldIndex: oldIndex, newIndex: newIndex, cellID: oc.Cell.ID})
				} else {
					changes = append(changes, cellIndexChange{kind: cellChangeRemoval, oldIndex: oldIndex, newIndex: newIndex, cellID: oc.Cell.ID})
					changes = append(changes, cellIndexChange{kind: cellChangeInsertion, oldIndex: oldIndex, newIndex: newIndex, cellID: nc.Cell.ID, priority: priority})
				}
				newIndex++
			} else {
				changes = append(changes, cellIndexChange{kind: cellChangeRemoval, oldIndex: oldIndex, newIndex: newIndex, cellID: oc.Cell.ID})
			}
			oldIndex++
			continue
		}

		if oc, _, ok := oldRefCells.next(oldIndex); ok {
			if nc, priority, ok := newRefCells.next(newIndex); ok {
				if oc.Cell.ID == nc.Cell.ID {
					changes = append(changes, cellIndexChange{kind: cellChangeReplacement, oldIndex: oldIndex, newIndex: newIndex, cellID: oc.Cell.ID})
				} else {
					changes = append(changes, cellIndexChange{kind: cellChangeRemoval, oldIndex: oldIndex, newIndex: newIndex, cellID: oc.Cell.ID})
					changes = append(changes, cellIndexChange{kind: cellChangeInsertion, oldIndex: oldIndex, newIndex: newIndex, cellID: nc.Cell.ID, priority: priority})
				}
				newIndex++
			} else {
				changes = append(changes, cellIndexChange{kind: cellChangeRemoval, oldIndex: oldIndex, newIndex: newIndex, cellID: oc.Cell.ID})
			}
			oldIndex++
			continue
		}

		if nc, priority, ok := newCells.next(newIndex); ok {
			changes = append(changes, cellIndexChange{kind: cellChangeInsertion, oldIndex: oldIndex, newIndex: newIndex, cellID: nc.Cell.ID, priority: priority})
			newIndex++
			continue
		}

		if nc, priority, ok := newRefCells.next(newIndex); ok {
			changes = append(changes, cellIndexChange{kind: cellChangeInsertion, oldIndex: oldIndex, newIndex: newIndex, cellID: nc.Cell.ID, priority: priority})
			newIndex++
			continue
		}

		oldIndex++
		newIndex++
	}

	return changes
}

// rebaseIndex replays the rebase stream against a single successor index
// (at successorCellID, with successorPriority used only for tie-breaking
// concurrent insertions), returning the rebased index and false if the cell
// the index pointed at was removed by the predecessor.
func rebaseIndex(changes []cellIndexChange, index uint32, successorCellID notebook.Base64Uuid, successorPriority CellIndexPriority) (uint32, bool) {
	for _, c := range changes {
		switch c.kind {
		case cellChangeRemoval:
			if c.oldIndex < index {
				index--
			} else if c.oldIndex == index {
				return 0, false
			}
		case cellChangeInsertion:
			if successorShouldMove(c.newIndex, c.cellID, c.priority, index, successorCellID, successorPriority) {
				index++
			}
		}
	}
	return index, true
}

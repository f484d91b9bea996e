package ot

import "github.com/shiv248/kolabpad/pkg/notebook"

// Simplify collapses a batch of Changes — typically the concatenation of
// several Apply results processed in one revision-log round — so that
// multiple edits to the same cell become a single change, reducing
// serialization and persistence overhead.
//
// It runs in two passes:
//
//   - Pass 1 keeps one cell's change "open" for amendment by whatever
//     immediately follows it, committing it once a change for a different
//     cell (or a non-per-cell change) arrives. Changes to different cells are
//     never reordered relative to each other, since insert/move/delete shift
//     indices for every cell after them.
//   - Pass 2 drops any UpdateCell/UpdateCellText that is still obsoleted by a
//     later change to the same cell/field, even with other cells' changes
//     interleaved in between (which pass 1, by construction, cannot merge).
func Simplify(changes []Change) []Change {
	simplified := simplifyPass1(changes)
	return simplifyPass2(simplified)
}

// cellChangeStateKind discriminates the per-cell state pass 1 keeps open.
type cellChangeStateKind int

const (
	stateNone cellChangeStateKind = iota
	stateInserted
	stateUpdated
	stateMoved
	stateTextUpdated
)

type cellChangeState struct {
	kind cellChangeStateKind

	cell  notebook.Cell
	index uint32

	cellID notebook.Base64Uuid

	field      *string
	text       string
	formatting notebook.Formatting
}

func (s cellChangeState) id() (notebook.Base64Uuid, bool) {
	switch s.kind {
	case stateNone:
		return notebook.Base64Uuid{}, false
	case stateInserted, stateUpdated:
		return s.cell.ID, true
	case stateMoved, stateTextUpdated:
		return s.cellID, true
	default:
		return notebook.Base64Uuid{}, false
	}
}

func (s cellChangeState) toChange() (Change, bool) {
	switch s.kind {
	case stateInserted:
		return newInsertCell(s.cell, s.index), true
	case stateUpdated:
		return newUpdateCell(s.cell), true
	case stateMoved:
		return newMoveCells([]notebook.Base64Uuid{s.cellID}, s.index), true
	case stateTextUpdated:
		return newUpdateCellText(s.cellID, s.field, s.text, s.formatting), true
	default:
		return Change{}, false
	}
}

func simplifyPass1(changes []Change) []Change {
	var out []Change
	current := cellChangeState{}

	flush := func() {
		if c, ok := current.toChange(); ok {
			out = append(out, c)
		}
		current = cellChangeState{}
	}

	for _, change := range changes {
		switch change.Type {
		case ChangeDeleteCell:
			id := change.DeleteCell.CellID
			if curID, ok := current.id(); ok && curID == id {
				switch current.kind {
				case stateInserted:
					// The delete simply cancels out the insert.
				case stateMoved:
					out = append(out, newMoveCells([]notebook.Base64Uuid{current.cellID}, current.index))
					out = append(out, change)
				default:
					out = append(out, change)
				}
			} else {
				flush()
				out = append(out, change)
			}
			current = cellChangeState{}

		case ChangeInsertCell:
			flush()
			current = cellChangeState{kind: stateInserted, cell: change.InsertCell.Cell, index: change.InsertCell.Index}

		case ChangeMoveCells:
			mc := change.MoveCells
			if len(mc.CellIDs) != 1 {
				flush()
				out = append(out, change)
				current = cellChangeState{}
				continue
			}
			id := mc.CellIDs[0]
			index := mc.Index
			if curID, ok := current.id(); ok && curID == id {
				switch current.kind {
				case stateNone:
					current = cellChangeState{kind: stateMoved, cellID: id, index: index}
				case stateInserted:
					current.index = index
				case stateUpdated:
					out = append(out, newUpdateCell(current.cell))
					current = cellChangeState{kind: stateMoved, cellID: id, index: index}
				case stateMoved:
					current.index = index
				case stateTextUpdated:
					out = append(out, newUpdateCellText(current.cellID, current.field, current.text, current.formatting))
					current = cellChangeState{kind: stateMoved, cellID: id, index: index}
				}
			} else {
				flush()
				current = cellChangeState{kind: stateMoved, cellID: id, index: index}
			}

		case ChangeUpdateCell:
			cell := change.UpdateCell.Cell
			if curID, ok := current.id(); ok && curID == cell.ID {
				switch current.kind {
				case stateNone:
					current = cellChangeState{kind: stateUpdated, cell: cell}
				case stateInserted:
					current = cellChangeState{kind: stateInserted, cell: cell, index: current.index}
				case stateUpdated, stateTextUpdated:
					current = cellChangeState{kind: stateUpdated, cell: cell}
				case stateMoved:
					out = append(out, newMoveCells([]notebook.Base64Uuid{current.cellID}, current.index))
					current = cellChangeState{kind: stateUpdated, cell: cell}
				}
			} else {
				flush()
				current = cellChangeState{kind: stateUpdated, cell: cell}
			}

		case ChangeUpdateCellText:
			uc := change.UpdateCellText
			if curID, ok := current.id(); ok && curID == uc.CellID {
				switch current.kind {
				case stateNone:
					current = cellChangeState{kind: stateTextUpdated, cellID: uc.CellID, field: uc.Field, text: uc.Text, formatting: uc.Formatting}
				case stateInserted:
					current.cell = current.cell.WithTextField(uc.FieldName(), uc.Text, uc.Formatting)
				case stateUpdated:
					current.cell = current.cell.WithTextField(uc.FieldName(), uc.Text, uc.Formatting)
				case stateMoved:
					out = append(out, newMoveCells([]notebook.Base64Uuid{current.cellID}, current.index))
					current = cellChangeState{kind: stateTextUpdated, cellID: uc.CellID, field: uc.Field, text: uc.Text, formatting: uc.Formatting}
				case stateTextUpdated:
					if uc.FieldName() != current.fieldName() {
						out = append(out, newUpdateCellText(current.cellID, current.field, current.text, current.formatting))
					}
					current = cellChangeState{kind: stateTextUpdated, cellID: uc.CellID, field: uc.Field, text: uc.Text, formatting: uc.Formatting}
				}
			} else {
				flush()
				current = cellChangeState{kind: stateTextUpdated, cellID: uc.CellID, field: uc.Field, text: uc.Text, formatting: uc.Formatting}
			}

		default:
			flush()
			out = append(out, change)
		}
	}

	flush()
	return out
}

func (s cellChangeState) fieldName() string {
	if s.field == nil {
		return ""
	}
	return *s.field
}

func simplifyPass2(changes []Change) []Change {
	out := make([]Change, 0, len(changes))
	for i, change := range changes {
		skip := false
		switch change.Type {
		case ChangeUpdateCell:
			id := change.UpdateCell.Cell.ID
			for _, later := range changes[i+1:] {
				if (later.Type == ChangeUpdateCell && later.UpdateCell.Cell.ID == id) ||
					(later.Type == ChangeDeleteCell && later.DeleteCell.CellID == id) {
					skip = true
					break
				}
			}
		case ChangeUpdateCellText:
			id := change.UpdateCellText.CellID
			field := change.UpdateCellText.FieldName()
			for _, later := range changes[i+1:] {
				if later.Type == ChangeUpdateCell && later.UpdateCell.Cell.ID == id {
					skip = true
					break
				}
				if later.Type == ChangeUpdateCellText && later.UpdateCellText.CellID == id && later.UpdateCellText.FieldName() == field {
					skip = true
					break
				}
				if later.Type == ChangeDeleteCell && later.DeleteCell.CellID == id {
					skip = true
					break
				}
			}
		}
		if !skip {
			out = append(out, change)
		}
	}
	return out
}

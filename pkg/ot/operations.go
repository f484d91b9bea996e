// Package ot implements the operation algebra over collaborative notebooks:
// Apply, Invert, Transform, and the change-list simplifier that together let
// concurrent clients converge on the same document.
package ot

import (
	"encoding/json"
	"fmt"

	"github.com/shiv248/kolabpad/pkg/notebook"
)

// OperationType discriminates the Operation sum type on the wire.
type OperationType string

const (
	OpReplaceCells            OperationType = "replace_cells"
	OpReplaceText             OperationType = "replace_text"
	OpMoveCells               OperationType = "move_cells"
	OpUpdateNotebookTimeRange OperationType = "update_notebook_time_range"
	OpUpdateNotebookTitle     OperationType = "update_notebook_title"
	OpSetSelectedDataSource   OperationType = "set_selected_data_source"
	OpAddLabel                OperationType = "add_label"
	OpReplaceLabel            OperationType = "replace_label"
	OpRemoveLabel             OperationType = "remove_label"
)

// CellWithIndex pairs a cell value with the index it occupies (or occupied)
// in the notebook's cell list.
type CellWithIndex struct {
	Cell  notebook.Cell `json:"cell"`
	Index uint32        `json:"index"`
}

// ReplaceCellsOperation replaces a contiguous range of cells with another,
// optionally splitting the first old cell and/or merging into the last new
// cell, and optionally rewriting cells elsewhere that reference the range.
type ReplaceCellsOperation struct {
	NewCells            []CellWithIndex `json:"newCells,omitempty"`
	OldCells            []CellWithIndex `json:"oldCells,omitempty"`
	SplitOffset         *uint32         `json:"splitOffset,omitempty"`
	MergeOffset         *uint32         `json:"mergeOffset,omitempty"`
	NewReferencingCells []CellWithIndex `json:"newReferencingCells,omitempty"`
	OldReferencingCells []CellWithIndex `json:"oldReferencingCells,omitempty"`
}

// idIn reports whether id appears among cells.
func idIn(cells []CellWithIndex, id notebook.Base64Uuid) bool {
	for _, c := range cells {
		if c.Cell.ID == id {
			return true
		}
	}
	return false
}

// NewlyInsertedCells returns the entries of NewCells whose ID is not present
// in OldCells — i.e. cells genuinely created by this operation.
func (op ReplaceCellsOperation) NewlyInsertedCells() []CellWithIndex {
	var out []CellWithIndex
	for _, c := range op.NewCells {
		if !idIn(op.OldCells, c.Cell.ID) {
			out = append(out, c)
		}
	}
	return out
}

// NewlyInsertedReferencingCells mirrors NewlyInsertedCells for the
// referencing-cell side channel.
func (op ReplaceCellsOperation) NewlyInsertedReferencingCells() []CellWithIndex {
	var out []CellWithIndex
	for _, c := range op.NewReferencingCells {
		if !idIn(op.OldReferencingCells, c.Cell.ID) {
			out = append(out, c)
		}
	}
	return out
}

// OldRemovedCells returns the entries of OldCells whose ID does not survive
// into NewCells — i.e. cells genuinely deleted by this operation.
func (op ReplaceCellsOperation) OldRemovedCells() []CellWithIndex {
	var out []CellWithIndex
	for _, c := range op.OldCells {
		if !idIn(op.NewCells, c.Cell.ID) {
			out = append(out, c)
		}
	}
	return out
}

// OldRemovedReferencingCells mirrors OldRemovedCells for the referencing-cell
// side channel.
func (op ReplaceCellsOperation) OldRemovedReferencingCells() []CellWithIndex {
	var out []CellWithIndex
	for _, c := range op.OldReferencingCells {
		if !idIn(op.NewReferencingCells, c.Cell.ID) {
			out = append(out, c)
		}
	}
	return out
}

// AllNewlyInsertedCells chains NewlyInsertedCells and
// NewlyInsertedReferencingCells.
func (op ReplaceCellsOperation) AllNewlyInsertedCells() []CellWithIndex {
	return append(op.NewlyInsertedCells(), op.NewlyInsertedReferencingCells()...)
}

// AllOldCells chains OldCells and OldReferencingCells.
func (op ReplaceCellsOperation) AllOldCells() []CellWithIndex {
	out := make([]CellWithIndex, 0, len(op.OldCells)+len(op.OldReferencingCells))
	out = append(out, op.OldCells...)
	out = append(out, op.OldReferencingCells...)
	return out
}

// AllOldRemovedCells chains OldRemovedCells and OldRemovedReferencingCells.
func (op ReplaceCellsOperation) AllOldRemovedCells() []CellWithIndex {
	return append(op.OldRemovedCells(), op.OldRemovedReferencingCells()...)
}

// ReplaceTextOperation replaces a substring of one cell's text field.
type ReplaceTextOperation struct {
	CellID        notebook.Base64Uuid  `json:"cellId"`
	Field         *string              `json:"field,omitempty"`
	Offset        uint32               `json:"offset"`
	NewText       string               `json:"newText"`
	NewFormatting notebook.Formatting  `json:"newFormatting,omitempty"`
	OldText       string               `json:"oldText"`
	OldFormatting notebook.Formatting  `json:"oldFormatting,omitempty"`
}

// FieldName returns the targeted field name, defaulting to "".
func (op ReplaceTextOperation) FieldName() string {
	if op.Field == nil {
		return ""
	}
	return *op.Field
}

// MoveCellsOperation moves a contiguous run of cells to a new position.
type MoveCellsOperation struct {
	CellIDs   []notebook.Base64Uuid `json:"cellIds"`
	FromIndex uint32                `json:"fromIndex"`
	ToIndex   uint32                `json:"toIndex"`
}

// UpdateNotebookTimeRangeOperation updates the notebook's default time range.
type UpdateNotebookTimeRangeOperation struct {
	OldTimeRange notebook.TimeRange `json:"oldTimeRange"`
	TimeRange    notebook.TimeRange `json:"timeRange"`
}

// UpdateNotebookTitleOperation updates the notebook's title.
type UpdateNotebookTitleOperation struct {
	OldTitle string `json:"oldTitle"`
	Title    string `json:"title"`
}

// SetSelectedDataSourceOperation rebinds (or unbinds) the data source
// selected for a provider type.
type SetSelectedDataSourceOperation struct {
	ProviderType          string                         `json:"providerType"`
	OldSelectedDataSource *notebook.SelectedDataSource    `json:"oldSelectedDataSource,omitempty"`
	NewSelectedDataSource *notebook.SelectedDataSource    `json:"newSelectedDataSource,omitempty"`
}

// AddLabelOperation adds a label to the notebook.
type AddLabelOperation struct {
	Label notebook.Label `json:"label"`
}

// ReplaceLabelOperation replaces an existing label's value.
type ReplaceLabelOperation struct {
	OldLabel notebook.Label `json:"oldLabel"`
	NewLabel notebook.Label `json:"newLabel"`
}

// RemoveLabelOperation removes a label from the notebook.
type RemoveLabelOperation struct {
	Label notebook.Label `json:"label"`
}

// Operation is the tagged union of every legal notebook mutation. Exactly
// one of the pointer fields is non-nil; Type names which one. This mirrors
// the client/server message envelope pattern used for the WebSocket
// protocol, which uses the same `type`-tag discriminator on the wire.
type Operation struct {
	Type OperationType `json:"type"`

	ReplaceCells            *ReplaceCellsOperation            `json:"-"`
	ReplaceText             *ReplaceTextOperation             `json:"-"`
	MoveCells               *MoveCellsOperation               `json:"-"`
	UpdateNotebookTimeRange *UpdateNotebookTimeRangeOperation `json:"-"`
	UpdateNotebookTitle     *UpdateNotebookTitleOperation     `json:"-"`
	SetSelectedDataSource   *SetSelectedDataSourceOperation   `json:"-"`
	AddLabel                *AddLabelOperation                `json:"-"`
	ReplaceLabel            *ReplaceLabelOperation            `json:"-"`
	RemoveLabel             *RemoveLabelOperation             `json:"-"`
}

// MarshalJSON flattens the active variant's fields alongside the type tag.
func (op Operation) MarshalJSON() ([]byte, error) {
	var payload any
	switch op.Type {
	case OpReplaceCells:
		payload = op.ReplaceCells
	case OpReplaceText:
		payload = op.ReplaceText
	case OpMoveCells:
		payload = op.MoveCells
	case OpUpdateNotebookTimeRange:
		payload = op.UpdateNotebookTimeRange
	case OpUpdateNotebookTitle:
		payload = op.UpdateNotebookTitle
	case OpSetSelectedDataSource:
		payload = op.SetSelectedDataSource
	case OpAddLabel:
		payload = op.AddLabel
	case OpReplaceLabel:
		payload = op.ReplaceLabel
	case OpRemoveLabel:
		payload = op.RemoveLabel
	default:
		return nil, fmt.Errorf("ot: unknown operation type %q", op.Type)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(`"` + string(op.Type) + `"`)
	return json.Marshal(fields)
}

// UnmarshalJSON reads the type tag then decodes the matching variant.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type OperationType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	op.Type = tag.Type
	switch tag.Type {
	case OpReplaceCells:
		op.ReplaceCells = &ReplaceCellsOperation{}
		return json.Unmarshal(data, op.ReplaceCells)
	case OpReplaceText:
		op.ReplaceText = &ReplaceTextOperation{}
		return json.Unmarshal(data, op.ReplaceText)
	case OpMoveCells:
		op.MoveCells = &MoveCellsOperation{}
		return json.Unmarshal(data, op.MoveCells)
	case OpUpdateNotebookTimeRange:
		op.UpdateNotebookTimeRange = &UpdateNotebookTimeRangeOperation{}
		return json.Unmarshal(data, op.UpdateNotebookTimeRange)
	case OpUpdateNotebookTitle:
		op.UpdateNotebookTitle = &UpdateNotebookTitleOperation{}
		return json.Unmarshal(data, op.UpdateNotebookTitle)
	case OpSetSelectedDataSource:
		op.SetSelectedDataSource = &SetSelectedDataSourceOperation{}
		return json.Unmarshal(data, op.SetSelectedDataSource)
	case OpAddLabel:
		op.AddLabel = &AddLabelOperation{}
		return json.Unmarshal(data, op.AddLabel)
	case OpReplaceLabel:
		op.ReplaceLabel = &ReplaceLabelOperation{}
		return json.Unmarshal(data, op.ReplaceLabel)
	case OpRemoveLabel:
		op.RemoveLabel = &RemoveLabelOperation{}
		return json.Unmarshal(data, op.RemoveLabel)
	default:
		return fmt.Errorf("ot: unknown operation type %q", tag.Type)
	}
}

// Constructors keep call sites from having to set Type by hand.

func NewReplaceCells(v ReplaceCellsOperation) Operation {
	return Operation{Type: OpReplaceCells, ReplaceCells: &v}
}

func NewReplaceText(v ReplaceTextOperation) Operation {
	return Operation{Type: OpReplaceText, ReplaceText: &v}
}

func NewMoveCells(v MoveCellsOperation) Operation {
	return Operation{Type: OpMoveCells, MoveCells: &v}
}

func NewUpdateNotebookTimeRange(v UpdateNotebookTimeRangeOperation) Operation {
	return Operation{Type: OpUpdateNotebookTimeRange, UpdateNotebookTimeRange: &v}
}

func NewUpdateNotebookTitle(v UpdateNotebookTitleOperation) Operation {
	return Operation{Type: OpUpdateNotebookTitle, UpdateNotebookTitle: &v}
}

func NewSetSelectedDataSource(v SetSelectedDataSourceOperation) Operation {
	return Operation{Type: OpSetSelectedDataSource, SetSelectedDataSource: &v}
}

func NewAddLabel(v AddLabelOperation) Operation {
	return Operation{Type: OpAddLabel, AddLabel: &v}
}

func NewReplaceLabel(v ReplaceLabelOperation) Operation {
	return Operation{Type: OpReplaceLabel, ReplaceLabel: &v}
}

func NewRemoveLabel(v RemoveLabelOperation) Operation {
	return Operation{Type: OpRemoveLabel, RemoveLabel: &v}
}

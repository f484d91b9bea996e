package ot

import (
	"encoding/json"
	"fmt"

	"github.com/shiv248/kolabpad/pkg/notebook"
)

// ChangeType discriminates the Change sum type on the wire.
type ChangeType string

const (
	ChangeInsertCell              ChangeType = "insert_cell"
	ChangeDeleteCell              ChangeType = "delete_cell"
	ChangeMoveCells               ChangeType = "move_cells"
	ChangeUpdateCell              ChangeType = "update_cell"
	ChangeUpdateCellText          ChangeType = "update_cell_text"
	ChangeUpdateNotebookTimeRange ChangeType = "update_notebook_time_range"
	ChangeUpdateNotebookTitle     ChangeType = "update_notebook_title"
	ChangeSetSelectedDataSource   ChangeType = "set_selected_data_source"
	ChangeAddLabel                ChangeType = "add_label"
	ChangeReplaceLabel            ChangeType = "replace_label"
	ChangeRemoveLabel             ChangeType = "remove_label"
)

type InsertCellChange struct {
	Cell  notebook.Cell `json:"cell"`
	Index uint32        `json:"index"`
}

type DeleteCellChange struct {
	CellID notebook.Base64Uuid `json:"cellId"`
}

type MoveCellsChange struct {
	CellIDs []notebook.Base64Uuid `json:"cellIds"`
	Index   uint32                `json:"index"`
}

type UpdateCellChange struct {
	Cell notebook.Cell `json:"cell"`
}

type UpdateCellTextChange struct {
	CellID     notebook.Base64Uuid `json:"cellId"`
	Field      *string             `json:"field,omitempty"`
	Text       string              `json:"text"`
	Formatting notebook.Formatting `json:"formatting,omitempty"`
}

// FieldName returns the targeted field name, defaulting to "".
func (c UpdateCellTextChange) FieldName() string {
	if c.Field == nil {
		return ""
	}
	return *c.Field
}

type UpdateNotebookTimeRangeChange struct {
	TimeRange notebook.TimeRange `json:"timeRange"`
}

type UpdateNotebookTitleChange struct {
	Title string `json:"title"`
}

type SetSelectedDataSourceChange struct {
	ProviderType       string                        `json:"providerType"`
	SelectedDataSource *notebook.SelectedDataSource `json:"selectedDataSource,omitempty"`
}

type AddLabelChange struct {
	Label notebook.Label `json:"label"`
}

type ReplaceLabelChange struct {
	Key   string         `json:"key"`
	Label notebook.Label `json:"label"`
}

type RemoveLabelChange struct {
	Label notebook.Label `json:"label"`
}

// Change is a low-level, post-apply edit record against the notebook view.
// Exactly one of the pointer fields is non-nil; Type names which one.
type Change struct {
	Type ChangeType `json:"type"`

	InsertCell              *InsertCellChange              `json:"-"`
	DeleteCell               *DeleteCellChange               `json:"-"`
	MoveCells                *MoveCellsChange                `json:"-"`
	UpdateCell               *UpdateCellChange               `json:"-"`
	UpdateCellText           *UpdateCellTextChange           `json:"-"`
	UpdateNotebookTimeRange *UpdateNotebookTimeRangeChange `json:"-"`
	UpdateNotebookTitle     *UpdateNotebookTitleChange     `json:"-"`
	SetSelectedDataSource   *SetSelectedDataSourceChange   `json:"-"`
	AddLabel                 *AddLabelChange                  `json:"-"`
	ReplaceLabel             *ReplaceLabelChange              `json:"-"`
	RemoveLabel               *RemoveLabelChange                `json:"-"`
}

// CellID returns the cell a per-cell change refers to, and false for
// MoveCells (which carries a list of cell IDs) and for document-level
// changes (time range, title, data source, labels).
func (c Change) CellID() (notebook.Base64Uuid, bool) {
	switch c.Type {
	case ChangeInsertCell:
		return c.InsertCell.Cell.ID, true
	case ChangeDeleteCell:
		return c.DeleteCell.CellID, true
	case ChangeUpdateCell:
		return c.UpdateCell.Cell.ID, true
	case ChangeUpdateCellText:
		return c.UpdateCellText.CellID, true
	default:
		return notebook.Base64Uuid{}, false
	}
}

func (c Change) payload() any {
	switch c.Type {
	case ChangeInsertCell:
		return c.InsertCell
	case ChangeDeleteCell:
		return c.DeleteCell
	case ChangeMoveCells:
		return c.MoveCells
	case ChangeUpdateCell:
		return c.UpdateCell
	case ChangeUpdateCellText:
		return c.UpdateCellText
	case ChangeUpdateNotebookTimeRange:
		return c.UpdateNotebookTimeRange
	case ChangeUpdateNotebookTitle:
		return c.UpdateNotebookTitle
	case ChangeSetSelectedDataSource:
		return c.SetSelectedDataSource
	case ChangeAddLabel:
		return c.AddLabel
	case ChangeReplaceLabel:
		return c.ReplaceLabel
	case ChangeRemoveLabel:
		return c.RemoveLabel
	default:
		return nil
	}
}

func (c Change) MarshalJSON() ([]byte, error) {
	payload := c.payload()
	if payload == nil {
		return nil, fmt.Errorf("ot: unknown change type %q", c.Type)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"] = json.RawMessage(`"` + string(c.Type) + `"`)
	return json.Marshal(fields)
}

func (c *Change) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type ChangeType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	c.Type = tag.Type
	switch tag.Type {
	case ChangeInsertCell:
		c.InsertCell = &InsertCellChange{}
		return json.Unmarshal(data, c.InsertCell)
	case ChangeDeleteCell:
		c.DeleteCell = &DeleteCellChange{}
		return json.Unmarshal(data, c.DeleteCell)
	case ChangeMoveCells:
		c.MoveCells = &MoveCellsChange{}
		return json.Unmarshal(data, c.MoveCells)
	case ChangeUpdateCell:
		c.UpdateCell = &UpdateCellChange{}
		return json.Unmarshal(data, c.UpdateCell)
	case ChangeUpdateCellText:
		c.UpdateCellText = &UpdateCellTextChange{}
		return json.Unmarshal(data, c.UpdateCellText)
	case ChangeUpdateNotebookTimeRange:
		c.UpdateNotebookTimeRange = &UpdateNotebookTimeRangeChange{}
		return json.Unmarshal(data, c.UpdateNotebookTimeRange)
	case ChangeUpdateNotebookTitle:
		c.UpdateNotebookTitle = &UpdateNotebookTitleChange{}
		return json.Unmarshal(data, c.UpdateNotebookTitle)
	case ChangeSetSelectedDataSource:
		c.SetSelectedDataSource = &SetSelectedDataSourceChange{}
		return json.Unmarshal(data, c.SetSelectedDataSource)
	case ChangeAddLabel:
		c.AddLabel = &AddLabelChange{}
		return json.Unmarshal(data, c.AddLabel)
	case ChangeReplaceLabel:
		c.ReplaceLabel = &ReplaceLabelChange{}
		return json.Unmarshal(data, c.ReplaceLabel)
	case ChangeRemoveLabel:
		c.RemoveLabel = &RemoveLabelChange{}
		return json.Unmarshal(data, c.RemoveLabel)
	default:
		return fmt.Errorf("ot: unknown change type %q", tag.Type)
	}
}

func newInsertCell(cell notebook.Cell, index uint32) Change {
	return Change{Type: ChangeInsertCell, InsertCell: &InsertCellChange{Cell: cell, Index: index}}
}

func newDeleteCell(id notebook.Base64Uuid) Change {
	return Change{Type: ChangeDeleteCell, DeleteCell: &DeleteCellChange{CellID: id}}
}

func newMoveCells(ids []notebook.Base64Uuid, index uint32) Change {
	return Change{Type: ChangeMoveCells, MoveCells: &MoveCellsChange{CellIDs: ids, Index: index}}
}

func newUpdateCell(cell notebook.Cell) Change {
	return Change{Type: ChangeUpdateCell, UpdateCell: &UpdateCellChange{Cell: cell}}
}

func newUpdateCellText(id notebook.Base64Uuid, field *string, text string, formatting notebook.Formatting) Change {
	return Change{Type: ChangeUpdateCellText, UpdateCellText: &UpdateCellTextChange{
		CellID: id, Field: field, Text: text, Formatting: formatting,
	}}
}

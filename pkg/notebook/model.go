package notebook

import (
	"errors"
	"time"
)

// Visibility controls who may view a notebook outside its owning workspace.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// TimeRange is an inclusive-exclusive [From, To) pair of seconds-since-epoch.
type TimeRange struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// SelectedDataSource binds a provider type to a concrete data source.
type SelectedDataSource struct {
	Name      string  `json:"name"`
	ProxyName *string `json:"proxyName,omitempty"`
}

// FrontMatterValueType enumerates the scalar kinds a front-matter schema
// entry can declare.
type FrontMatterValueType string

const (
	FrontMatterString   FrontMatterValueType = "string"
	FrontMatterNumber   FrontMatterValueType = "number"
	FrontMatterDatetime FrontMatterValueType = "datetime"
	FrontMatterUser     FrontMatterValueType = "user"
)

// FrontMatterSchemaEntry describes one key a notebook's front matter may
// carry: its declared value type and whether it accepts a sequence of
// values rather than a single one.
type FrontMatterSchemaEntry struct {
	Key      string               `json:"key"`
	Type     FrontMatterValueType `json:"type"`
	Multiple bool                 `json:"multiple,omitempty"`
}

// FrontMatterEntry is a single key/value pair of freeform front matter.
// Value holds whatever JSON value was stored for Key; ordering of entries is
// preserved across round-trips.
type FrontMatterEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

var (
	ErrDuplicateCellID   = errors.New("notebook: duplicate cell id")
	ErrMultipleTitleRole = errors.New("notebook: more than one cell has the title role")
	ErrTitleMismatch     = errors.New("notebook: title-role cell content does not match notebook title")
	ErrDanglingSourceID   = errors.New("notebook: cell references a source id that does not exist")
	ErrFormattingOutOfRange = errors.New("notebook: formatting offset lies outside the cell's content")
	ErrFormattingUnsorted   = errors.New("notebook: formatting is not sorted by offset")
)

// Notebook is the root collaborative document: an ordered sequence of cells
// plus document-level metadata.
type Notebook struct {
	ID                  Base64Uuid                    `json:"id"`
	Title               string                         `json:"title"`
	Revision            uint32                         `json:"revision"`
	TimeRange           TimeRange                      `json:"timeRange"`
	Visibility          Visibility                     `json:"visibility"`
	ReadOnly            bool                           `json:"readOnly"`
	Cells               []Cell                         `json:"cells"`
	SelectedDataSources map[string]SelectedDataSource  `json:"selectedDataSources"`
	Labels              []Label                        `json:"labels"`
	FrontMatter         []FrontMatterEntry             `json:"frontMatter"`
	FrontMatterSchema   []FrontMatterSchemaEntry       `json:"frontMatterSchema"`
	CreatedAt           time.Time                      `json:"createdAt"`
	UpdatedAt           time.Time                      `json:"updatedAt"`
	CreatedBy           string                         `json:"createdBy"`
}

// NewNotebook constructs an empty notebook at revision 0, owned by createdBy.
func NewNotebook(title string, createdBy string) *Notebook {
	now := time.Time{}
	return &Notebook{
		ID:                  NewID(),
		Title:               title,
		Revision:            0,
		Visibility:          VisibilityPrivate,
		Cells:               nil,
		SelectedDataSources: make(map[string]SelectedDataSource),
		CreatedAt:           now,
		UpdatedAt:           now,
		CreatedBy:           createdBy,
	}
}

// CellIndex returns the index of the cell with the given ID, or -1.
func (n *Notebook) CellIndex(id Base64Uuid) int {
	for i, c := range n.Cells {
		if c.Header().ID == id {
			return i
		}
	}
	return -1
}

// CellByID returns a pointer to the cell with the given ID, or nil.
func (n *Notebook) CellByID(id Base64Uuid) *Cell {
	idx := n.CellIndex(id)
	if idx < 0 {
		return nil
	}
	return &n.Cells[idx]
}

// Cell returns the cell with the given ID by value, satisfying the
// narrow NotebookView contract Apply/Transform depend on.
func (n *Notebook) Cell(id Base64Uuid) (Cell, bool) {
	c := n.CellByID(id)
	if c == nil {
		return Cell{}, false
	}
	return *c, true
}

// CellIDs returns the ordered list of cell IDs.
func (n *Notebook) CellIDs() []Base64Uuid {
	ids := make([]Base64Uuid, len(n.Cells))
	for i, c := range n.Cells {
		ids[i] = c.Header().ID
	}
	return ids
}

// LabelIndex returns the index of the label with the given key, or -1.
func (n *Notebook) LabelIndex(key string) int {
	for i, l := range n.Labels {
		if l.Key == key {
			return i
		}
	}
	return -1
}

// Validate checks every invariant in the document model against the current
// state of the notebook: unique cell IDs, at most one title-role cell whose
// content matches Title, every source_id resolves, and formatting is sorted
// and in range.
func (n *Notebook) Validate() error {
	seen := make(map[Base64Uuid]bool, len(n.Cells))
	titleRoles := 0
	for _, c := range n.Cells {
		h := c.Header()
		if seen[h.ID] {
			return ErrDuplicateCellID
		}
		seen[h.ID] = true
		if h.TitleRole {
			titleRoles++
			if c.TextContent() != n.Title {
				return ErrTitleMismatch
			}
		}
		if err := validateCellFormatting(c); err != nil {
			return err
		}
	}
	if titleRoles > 1 {
		return ErrMultipleTitleRole
	}
	for _, c := range n.Cells {
		for _, src := range c.SourceIDs() {
			if !seen[src] {
				return ErrDanglingSourceID
			}
		}
	}
	for _, l := range n.Labels {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// InsertCellAt inserts cell at index, shifting everything at or after index
// one slot to the right.
func (n *Notebook) InsertCellAt(index uint32, cell Cell) {
	i := int(index)
	n.Cells = append(n.Cells, Cell{})
	copy(n.Cells[i+1:], n.Cells[i:])
	n.Cells[i] = cell
}

// RemoveCellByID deletes the cell with the given ID, reporting whether it
// was found.
func (n *Notebook) RemoveCellByID(id Base64Uuid) bool {
	idx := n.CellIndex(id)
	if idx < 0 {
		return false
	}
	n.Cells = append(n.Cells[:idx], n.Cells[idx+1:]...)
	return true
}

// ReplaceCellByID overwrites the cell sharing cell.ID's identity in place,
// reporting whether a matching cell was found.
func (n *Notebook) ReplaceCellByID(cell Cell) bool {
	idx := n.CellIndex(cell.ID)
	if idx < 0 {
		return false
	}
	n.Cells[idx] = cell
	return true
}

// UpdateCellTextByID replaces one text field of the cell with the given ID,
// reporting whether a matching cell was found.
func (n *Notebook) UpdateCellTextByID(id Base64Uuid, field, text string, formatting Formatting) bool {
	idx := n.CellIndex(id)
	if idx < 0 {
		return false
	}
	n.Cells[idx] = n.Cells[idx].WithTextField(field, text, formatting)
	return true
}

// MoveCellsTo relocates the cells with the given (contiguous, ordered) IDs so
// that they occupy index..index+len(ids) in document order. Cell IDs not
// currently present in the notebook are silently skipped. An index past the
// end of the remaining cells is clamped, so the moved cells land at the end.
func (n *Notebook) MoveCellsTo(ids []Base64Uuid, index uint32) {
	moving := make(map[Base64Uuid]bool, len(ids))
	for _, id := range ids {
		moving[id] = true
	}

	var movedCells []Cell
	for _, id := range ids {
		if c := n.CellByID(id); c != nil {
			movedCells = append(movedCells, *c)
		}
	}

	remaining := n.Cells[:0:0]
	for _, c := range n.Cells {
		if !moving[c.ID] {
			remaining = append(remaining, c)
		}
	}

	at := int(index)
	if at > len(remaining) {
		at = len(remaining)
	}
	out := make([]Cell, 0, len(remaining)+len(movedCells))
	out = append(out, remaining[:at]...)
	out = append(out, movedCells...)
	out = append(out, remaining[at:]...)
	n.Cells = out
}

// AddLabel appends a new label.
func (n *Notebook) AddLabel(l Label) { n.Labels = append(n.Labels, l) }

// RemoveLabelByKey deletes the label with the given key, reporting whether it
// was found.
func (n *Notebook) RemoveLabelByKey(key string) bool {
	idx := n.LabelIndex(key)
	if idx < 0 {
		return false
	}
	n.Labels = append(n.Labels[:idx], n.Labels[idx+1:]...)
	return true
}

// ReplaceLabelByKey overwrites the label at key, reporting whether it was
// found.
func (n *Notebook) ReplaceLabelByKey(key string, l Label) bool {
	idx := n.LabelIndex(key)
	if idx < 0 {
		return false
	}
	n.Labels[idx] = l
	return true
}

// SetTimeRange overwrites the notebook's default time range.
func (n *Notebook) SetTimeRange(tr TimeRange) { n.TimeRange = tr }

// SetTitle overwrites the notebook's title.
func (n *Notebook) SetTitle(title string) { n.Title = title }

// SetSelectedDataSource rebinds or unbinds the data source for providerType.
func (n *Notebook) SetSelectedDataSource(providerType string, ds *SelectedDataSource) {
	if ds == nil {
		delete(n.SelectedDataSources, providerType)
		return
	}
	n.SelectedDataSources[providerType] = *ds
}

func validateCellFormatting(c Cell) error {
	f := c.CellFormatting()
	if f == nil {
		return nil
	}
	count := CharCount(c.TextContent())
	prev := uint32(0)
	for i, a := range f {
		if i > 0 && a.Offset < prev {
			return ErrFormattingUnsorted
		}
		if a.Offset > count {
			return ErrFormattingOutOfRange
		}
		prev = a.Offset
	}
	return nil
}

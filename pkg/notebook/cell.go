package notebook

// CellKind discriminates the Cell sum type on the wire via its "type" tag.
type CellKind string

const (
	CellKindText       CellKind = "text"
	CellKindHeading    CellKind = "heading"
	CellKindListItem   CellKind = "list_item"
	CellKindCheckbox   CellKind = "checkbox"
	CellKindCode       CellKind = "code"
	CellKindDivider    CellKind = "divider"
	CellKindImage      CellKind = "image"
	CellKindProvider   CellKind = "provider"
	CellKindGraph      CellKind = "graph"
	CellKindTable      CellKind = "table"
	CellKindLog        CellKind = "log"
	CellKindTimeline   CellKind = "timeline"
	CellKindDiscussion CellKind = "discussion"
)

// HeadingType is the level of a Heading cell.
type HeadingType string

const (
	Heading1 HeadingType = "h1"
	Heading2 HeadingType = "h2"
	Heading3 HeadingType = "h3"
)

// ListType distinguishes ordered from unordered ListItem cells.
type ListType string

const (
	ListOrdered   ListType = "ordered"
	ListUnordered ListType = "unordered"
)

// Blob is an opaque, declared-MIME-type payload — the shape a provider
// response or cached query result takes. The core never interprets Data; it
// is round-tripped verbatim.
type Blob struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// CellHeader is the common envelope every cell variant carries: its stable
// identity, an optional read-only lock, and whether it is the notebook's
// title-role cell (at most one cell may set this, enforced by
// Notebook.Validate).
type CellHeader struct {
	ID        Base64Uuid `json:"id"`
	ReadOnly  bool       `json:"readOnly,omitempty"`
	TitleRole bool       `json:"titleRole,omitempty"`
}

// Cell is a tagged variant over the notebook's 13 content kinds. It is
// modeled as one flat struct — mirroring the same `#[serde(flatten)]`
// tagged-union shape used for Annotation — rather than 13 separate Go types,
// so Apply/Invert/Transform can treat "the cell" as a single value and only
// switch on Kind where the field semantics actually differ.
type Cell struct {
	CellHeader
	Kind CellKind `json:"type"`

	// Text, Heading, ListItem, Checkbox, Code.
	Content    string     `json:"content,omitempty"`
	Formatting Formatting `json:"formatting,omitempty"`

	// Heading.
	HeadingType HeadingType `json:"headingType,omitempty"`

	// ListItem.
	ListType    ListType `json:"listType,omitempty"`
	Level       *uint8   `json:"level,omitempty"`
	StartNumber *uint16  `json:"startNumber,omitempty"`

	// Checkbox.
	Checked bool `json:"checked,omitempty"`

	// Code.
	Syntax *string `json:"syntax,omitempty"`

	// Image.
	URL      *string  `json:"url,omitempty"`
	FileID   *string  `json:"fileId,omitempty"`
	Width    *uint32  `json:"width,omitempty"`
	Height   *uint32  `json:"height,omitempty"`
	Preview  *string  `json:"preview,omitempty"`
	Progress *float64 `json:"progress,omitempty"`

	// Provider.
	Intent    string `json:"intent,omitempty"`
	QueryData string `json:"queryData,omitempty"`
	Response  *Blob  `json:"response,omitempty"`
	Output    []Cell `json:"output,omitempty"`

	// Provider, Graph, Table, Log, Timeline share Title/TitleFormatting.
	Title           string     `json:"title,omitempty"`
	TitleFormatting Formatting `json:"titleFormatting,omitempty"`

	// Graph, Table, Log, Timeline.
	SourceCellIDs []Base64Uuid `json:"sourceIds,omitempty"`
	TimeRange     *TimeRange   `json:"timeRange,omitempty"`

	// Graph-specific.
	GraphType string `json:"graphType,omitempty"`

	// Table-specific.
	TableColumns []string `json:"tableColumns,omitempty"`

	// Discussion.
	DiscussionID *Base64Uuid `json:"discussionId,omitempty"`
}

// Header returns the cell's common envelope.
func (c Cell) Header() CellHeader { return c.CellHeader }

// hasContentField reports whether Kind uses Content/Formatting as its
// primary text field.
func (c Cell) hasContentField() bool {
	switch c.Kind {
	case CellKindText, CellKindHeading, CellKindListItem, CellKindCheckbox, CellKindCode:
		return true
	}
	return false
}

// hasTitleField reports whether Kind uses Title/TitleFormatting as its
// primary text field.
func (c Cell) hasTitleField() bool {
	switch c.Kind {
	case CellKindProvider, CellKindGraph, CellKindTable, CellKindLog, CellKindTimeline:
		return true
	}
	return false
}

// TextContent returns the default text field's content: Content for
// text-bearing variants, Title for Provider, Graph, Table, Log, and Timeline
// cells, and "" for
// Divider, Image, and Discussion cells, which carry no editable text.
func (c Cell) TextContent() string {
	switch {
	case c.hasContentField():
		return c.Content
	case c.hasTitleField():
		return c.Title
	default:
		return ""
	}
}

// CellFormatting returns the Formatting overlaying the cell's default text
// field, or nil if the cell carries no formatting.
func (c Cell) CellFormatting() Formatting {
	switch {
	case c.hasContentField():
		return c.Formatting
	case c.hasTitleField():
		return c.TitleFormatting
	default:
		return nil
	}
}

// TextField resolves a (cell-kind, field-name) pair to the cell's current
// text and formatting for that field. field == "" and "content" select
// Content on the content-bearing kinds; "title" selects Title on the
// title-bearing kinds. ok is false if the cell has no such field, which
// includes field == "" on a title-bearing cell.
func (c Cell) TextField(field string) (text string, formatting Formatting, ok bool) {
	switch field {
	case "", "content":
		if c.hasContentField() {
			return c.Content, c.Formatting, true
		}
	case "title":
		if c.hasTitleField() {
			return c.Title, c.TitleFormatting, true
		}
	}
	return "", nil, false
}

// WithTextField returns a copy of c with the named field's text and
// formatting replaced.
func (c Cell) WithTextField(field, text string, formatting Formatting) Cell {
	out := c
	switch field {
	case "", "content":
		out.Content = text
		out.Formatting = formatting
	case "title":
		out.Title = text
		out.TitleFormatting = formatting
	}
	return out
}

// SourceIDs returns the IDs of cells this cell references, for variants that
// carry a source-id relation (Graph, Table, Log, Timeline).
func (c Cell) SourceIDs() []Base64Uuid {
	switch c.Kind {
	case CellKindGraph, CellKindTable, CellKindLog, CellKindTimeline:
		return c.SourceCellIDs
	default:
		return nil
	}
}

package notebook

import "sort"

// AnnotationType discriminates the Annotation sum type on the wire.
type AnnotationType string

// Annotation variants. Paired toggles come in Start/End pairs; Link
// additionally carries a URL on its Start; Mention, Timestamp, and Label are
// point annotations with no closing pair.
const (
	AnnotationStartBold          AnnotationType = "start_bold"
	AnnotationEndBold            AnnotationType = "end_bold"
	AnnotationStartItalics       AnnotationType = "start_italics"
	AnnotationEndItalics         AnnotationType = "end_italics"
	AnnotationStartCode          AnnotationType = "start_code"
	AnnotationEndCode            AnnotationType = "end_code"
	AnnotationStartHighlight     AnnotationType = "start_highlight"
	AnnotationEndHighlight       AnnotationType = "end_highlight"
	AnnotationStartStrikethrough AnnotationType = "start_strikethrough"
	AnnotationEndStrikethrough   AnnotationType = "end_strikethrough"
	AnnotationStartUnderline     AnnotationType = "start_underline"
	AnnotationEndUnderline       AnnotationType = "end_underline"
	AnnotationStartLink          AnnotationType = "start_link"
	AnnotationEndLink            AnnotationType = "end_link"
	AnnotationMention            AnnotationType = "mention"
	AnnotationTimestamp          AnnotationType = "timestamp"
	AnnotationLabel              AnnotationType = "label"
)

// Annotation is a single rich-text annotation. Only the fields relevant to
// Type are meaningful; this mirrors the `#[serde(flatten)]` tagged-union
// shape of the Rust original (one flat struct instead of per-variant types).
type Annotation struct {
	Type AnnotationType `json:"type"`

	// StartLink
	URL string `json:"url,omitempty"`

	// Mention
	MentionName   string `json:"name,omitempty"`
	MentionUserID string `json:"userId,omitempty"`

	// Timestamp
	Timestamp float64 `json:"timestamp,omitempty"`

	// Label
	LabelKey   string `json:"key,omitempty"`
	LabelValue string `json:"value,omitempty"`
}

// IsStartToggle reports whether the annotation opens one of the six plain
// paired toggles; StartLink is not counted.
func (a Annotation) IsStartToggle() bool {
	switch a.Type {
	case AnnotationStartBold, AnnotationStartItalics, AnnotationStartCode,
		AnnotationStartHighlight, AnnotationStartStrikethrough, AnnotationStartUnderline:
		return true
	}
	return false
}

// EndCounterpart returns the End annotation type that closes a Start toggle,
// and false for annotations that have no pair.
func (a Annotation) EndCounterpart() (AnnotationType, bool) {
	switch a.Type {
	case AnnotationStartBold:
		return AnnotationEndBold, true
	case AnnotationStartItalics:
		return AnnotationEndItalics, true
	case AnnotationStartCode:
		return AnnotationEndCode, true
	case AnnotationStartHighlight:
		return AnnotationEndHighlight, true
	case AnnotationStartStrikethrough:
		return AnnotationEndStrikethrough, true
	case AnnotationStartUnderline:
		return AnnotationEndUnderline, true
	case AnnotationStartLink:
		return AnnotationEndLink, true
	}
	return "", false
}

// AnnotationWithOffset is a single (offset, Annotation) tuple.
type AnnotationWithOffset struct {
	Offset     uint32     `json:"offset"`
	Annotation Annotation `json:"annotation"`
}

// Translate returns a copy of a with its offset shifted by delta.
func (a AnnotationWithOffset) Translate(delta int64) AnnotationWithOffset {
	return AnnotationWithOffset{
		Offset:     uint32(int64(a.Offset) + delta),
		Annotation: a.Annotation,
	}
}

// Formatting is an ordered sequence of (offset, Annotation) pairs, sorted
// ascending by offset. The relative order of annotations at the same
// offset is unspecified but must be preserved through transformation.
type Formatting []AnnotationWithOffset

// FirstAnnotationIndexForOffset finds the first index at which an annotation
// can be found for offset, or the insertion index for the next existing
// offset if no exact match exists.
func FirstAnnotationIndexForOffset(f Formatting, offset uint32) int {
	index := AnnotationInsertionIndex(f, offset)
	for index > 0 && f[index-1].Offset == offset {
		index--
	}
	return index
}

// FirstAnnotationIndexBeyondOffset finds the first index at which an
// annotation can be found for an offset strictly higher than offset.
func FirstAnnotationIndexBeyondOffset(f Formatting, offset uint32) int {
	index := AnnotationInsertionIndex(f, offset)
	for index < len(f) && f[index].Offset == offset {
		index++
	}
	return index
}

// AnnotationInsertionIndex finds the correct insertion index for an
// annotation at the given offset, via binary search.
func AnnotationInsertionIndex(f Formatting, offset uint32) int {
	return sort.Search(len(f), func(i int) bool {
		return f[i].Offset >= offset
	})
}

// Translate returns a copy of f with every offset shifted by delta.
func (f Formatting) Translate(delta int64) Formatting {
	if f == nil {
		return nil
	}
	out := make(Formatting, len(f))
	for i, a := range f {
		out[i] = a.Translate(delta)
	}
	return out
}

// Clone returns a deep copy of f.
func (f Formatting) Clone() Formatting {
	if f == nil {
		return nil
	}
	out := make(Formatting, len(f))
	copy(out, f)
	return out
}

// Slice returns the sub-formatting applying within [from, to), with offsets
// rebased to start at 0. Point annotations exactly at `to` are excluded.
func (f Formatting) Slice(from, to uint32) Formatting {
	start := AnnotationInsertionIndex(f, from)
	end := AnnotationInsertionIndex(f, to)
	if end < start {
		end = start
	}
	out := make(Formatting, 0, end-start)
	for _, a := range f[start:end] {
		out = append(out, a.Translate(-int64(from)))
	}
	return out
}

// ActiveFormatting is the set of active paired toggles plus any point
// annotations at a given offset.
type ActiveFormatting struct {
	Bold          bool
	Italics       bool
	Code          bool
	Highlight     bool
	Strikethrough bool
	Underline     bool
	LinkURL       *string
	Mention       *Annotation
	Timestamp     *Annotation
	Labels        []Annotation
}

// ActiveFormattingAt computes the ActiveFormatting snapshot at offset by
// replaying every annotation up to (and including) offset. Point annotations
// are not cleared at later offsets: Mention and Timestamp hold the last one
// seen at or before offset, and Labels collects every Label annotation at or
// before offset.
func ActiveFormattingAt(f Formatting, offset uint32) ActiveFormatting {
	var active ActiveFormatting
	for _, a := range f {
		if a.Offset > offset {
			break
		}
		applyToggle(&active, a.Annotation)
	}
	return active
}

func applyToggle(active *ActiveFormatting, a Annotation) {
	switch a.Type {
	case AnnotationStartBold:
		active.Bold = true
	case AnnotationEndBold:
		active.Bold = false
	case AnnotationStartItalics:
		active.Italics = true
	case AnnotationEndItalics:
		active.Italics = false
	case AnnotationStartCode:
		active.Code = true
	case AnnotationEndCode:
		active.Code = false
	case AnnotationStartHighlight:
		active.Highlight = true
	case AnnotationEndHighlight:
		active.Highlight = false
	case AnnotationStartStrikethrough:
		active.Strikethrough = true
	case AnnotationEndStrikethrough:
		active.Strikethrough = false
	case AnnotationStartUnderline:
		active.Underline = true
	case AnnotationEndUnderline:
		active.Underline = false
	case AnnotationStartLink:
		url := a.URL
		active.LinkURL = &url
	case AnnotationEndLink:
		active.LinkURL = nil
	case AnnotationMention:
		m := a
		active.Mention = &m
	case AnnotationTimestamp:
		t := a
		active.Timestamp = &t
	case AnnotationLabel:
		active.Labels = append(active.Labels, a)
	}
}

// Toggle returns the minimal annotation list that transitions the formatting
// state `from` into the state `to`, anchored at offset. Only the paired
// toggles and the link URL are compared; differences in Mention, Timestamp,
// and Labels produce no annotations.
func Toggle(offset uint32, from, to ActiveFormatting) []AnnotationWithOffset {
	var out []AnnotationWithOffset
	emit := func(t AnnotationType) {
		out = append(out, AnnotationWithOffset{Offset: offset, Annotation: Annotation{Type: t}})
	}

	if from.Bold != to.Bold {
		if to.Bold {
			emit(AnnotationStartBold)
		} else {
			emit(AnnotationEndBold)
		}
	}
	if from.Italics != to.Italics {
		if to.Italics {
			emit(AnnotationStartItalics)
		} else {
			emit(AnnotationEndItalics)
		}
	}
	if from.Code != to.Code {
		if to.Code {
			emit(AnnotationStartCode)
		} else {
			emit(AnnotationEndCode)
		}
	}
	if from.Highlight != to.Highlight {
		if to.Highlight {
			emit(AnnotationStartHighlight)
		} else {
			emit(AnnotationEndHighlight)
		}
	}
	if from.Strikethrough != to.Strikethrough {
		if to.Strikethrough {
			emit(AnnotationStartStrikethrough)
		} else {
			emit(AnnotationEndStrikethrough)
		}
	}
	if from.Underline != to.Underline {
		if to.Underline {
			emit(AnnotationStartUnderline)
		} else {
			emit(AnnotationEndUnderline)
		}
	}
	fromURL, toURL := "", ""
	if from.LinkURL != nil {
		fromURL = *from.LinkURL
	}
	if to.LinkURL != nil {
		toURL = *to.LinkURL
	}
	if fromURL != toURL {
		if to.LinkURL != nil {
			out = append(out, AnnotationWithOffset{Offset: offset, Annotation: Annotation{Type: AnnotationStartLink, URL: toURL}})
		} else {
			emit(AnnotationEndLink)
		}
	}
	return out
}

// CharCount returns the number of Unicode scalar values (code points) in s —
// never bytes, never UTF-16 units.
func CharCount(s string) uint32 {
	return uint32(len([]rune(s)))
}

package notebook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharCountCountsScalarValuesNotBytes(t *testing.T) {
	assert.Equal(t, uint32(5), CharCount("hello"))
	assert.Equal(t, uint32(1), CharCount("é")) // precomposed e-acute, 2 bytes, 1 rune
	assert.Equal(t, uint32(2), CharCount("\U0001F600\U0001F601")) // two emoji, 4 bytes each
}

func TestAnnotationInsertionIndexOrdering(t *testing.T) {
	f := Formatting{
		{Offset: 0, Annotation: Annotation{Type: AnnotationStartBold}},
		{Offset: 3, Annotation: Annotation{Type: AnnotationEndBold}},
		{Offset: 3, Annotation: Annotation{Type: AnnotationStartItalics}},
		{Offset: 7, Annotation: Annotation{Type: AnnotationEndItalics}},
	}

	assert.Equal(t, 0, AnnotationInsertionIndex(f, 0))
	assert.Equal(t, 1, FirstAnnotationIndexBeyondOffset(f, 0))
	assert.Equal(t, 1, FirstAnnotationIndexForOffset(f, 3))
	assert.Equal(t, 3, FirstAnnotationIndexBeyondOffset(f, 3))
	assert.Equal(t, 4, AnnotationInsertionIndex(f, 100))
}

func TestFormattingTranslate(t *testing.T) {
	f := Formatting{{Offset: 5, Annotation: Annotation{Type: AnnotationMention}}}
	translated := f.Translate(3)
	assert.Equal(t, uint32(8), translated[0].Offset)
	assert.Equal(t, uint32(5), f[0].Offset, "Translate must not mutate the receiver")
}

func TestFormattingSliceRebasesOffsets(t *testing.T) {
	f := Formatting{
		{Offset: 0, Annotation: Annotation{Type: AnnotationStartBold}},
		{Offset: 5, Annotation: Annotation{Type: AnnotationEndBold}},
		{Offset: 10, Annotation: Annotation{Type: AnnotationMention}},
	}
	sliced := f.Slice(2, 8)
	require := assert.New(t)
	require.Len(sliced, 1)
	require.Equal(uint32(3), sliced[0].Offset)
}

func TestActiveFormattingAtReplaysToggles(t *testing.T) {
	f := Formatting{
		{Offset: 0, Annotation: Annotation{Type: AnnotationStartBold}},
		{Offset: 5, Annotation: Annotation{Type: AnnotationEndBold}},
		{Offset: 5, Annotation: Annotation{Type: AnnotationStartItalics}},
	}
	assert.True(t, ActiveFormattingAt(f, 3).Bold)
	at5 := ActiveFormattingAt(f, 5)
	assert.False(t, at5.Bold)
	assert.True(t, at5.Italics)
}

func TestToggleEmitsMinimalTransitions(t *testing.T) {
	from := ActiveFormatting{Bold: true}
	to := ActiveFormatting{Bold: true, Italics: true}
	diff := Toggle(4, from, to)
	if assert.Len(t, diff, 1) {
		assert.Equal(t, AnnotationStartItalics, diff[0].Annotation.Type)
		assert.Equal(t, uint32(4), diff[0].Offset)
	}
}

func TestToggleLinkTransitionsCarryURL(t *testing.T) {
	url := "https://example.com"
	from := ActiveFormatting{}
	to := ActiveFormatting{LinkURL: &url}
	diff := Toggle(0, from, to)
	if assert.Len(t, diff, 1) {
		assert.Equal(t, AnnotationStartLink, diff[0].Annotation.Type)
		assert.Equal(t, url, diff[0].Annotation.URL)
	}
}

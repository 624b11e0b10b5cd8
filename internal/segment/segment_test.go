package segment_test

import (
	"testing"

	"github.com/hbomb79/Verto/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSegments = "0:00|0:10\n0:10|0:20"

func Test_At_FieldOrdering(t *testing.T) {
	tests := []struct {
		summary  string
		order    segment.Order
		expected segment.Segment
	}{
		{"label first", segment.LabelFirst, segment.Segment{Label: "0:00", Start: "0:10", End: "0:10"}},
		{"timestamp first", segment.TimestampFirst, segment.Segment{Label: "0:10", Start: "0:00", End: "0:10"}},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			seg, err := segment.At(twoSegments, "|", 0, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, seg)
		})
	}
}

func Test_At_LastSegmentHasNoEnd(t *testing.T) {
	seg, err := segment.At(twoSegments, "|", 1, segment.TimestampFirst)
	require.NoError(t, err)
	assert.Equal(t, segment.Segment{Start: "0:10", Label: "0:20", End: ""}, seg)
}

func Test_At_CursorOutOfRange(t *testing.T) {
	for _, cursor := range []int{-1, 2, 10} {
		_, err := segment.At(twoSegments, "|", cursor, segment.TimestampFirst)
		assert.ErrorIs(t, err, segment.ErrCursorOutOfRange, "cursor %d", cursor)
	}
}

func Test_Parse_IgnoresBlankLinesAndWhitespace(t *testing.T) {
	text := "\r\n 00:00 - Intro \r\n\r\n01:30 - Verse\n   \n03:00 - Outro\n"
	lines := segment.Parse(text, " - ")

	assert.Equal(t, []segment.Line{
		{First: "00:00", Second: "Intro"},
		{First: "01:30", Second: "Verse"},
		{First: "03:00", Second: "Outro"},
	}, lines)
	assert.Equal(t, 3, segment.Count(text, " - "))
}

func Test_Parse_DefaultSeparator(t *testing.T) {
	lines := segment.Parse("0:00|Start\nno separator here", "")
	require.Len(t, lines, 2)
	assert.Equal(t, segment.Line{First: "no separator here"}, lines[1])
}

func Test_At_DoesNotMutateInput(t *testing.T) {
	text := "0:00|a\n0:05|b\n0:07|c"
	original := text

	for i := 0; i < 3; i++ {
		_, err := segment.At(text, "|", i, segment.TimestampFirst)
		require.NoError(t, err)
	}

	assert.Equal(t, original, text)
}

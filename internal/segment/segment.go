// Package segment parses multi-line segment descriptions (one
// "timestamp|label" pair per line) in to the start/end/label triples
// used to split a single input in to several timestamped outputs.
package segment

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultSeparator is used when no separator is configured.
const DefaultSeparator = "|"

var ErrCursorOutOfRange = errors.New("segment cursor out of range")

// Order controls which field of each line holds the timestamp.
type Order int

const (
	// TimestampFirst lines are formatted as "<timestamp><sep><label>"
	TimestampFirst Order = iota

	// LabelFirst lines are formatted as "<label><sep><timestamp>"
	LabelFirst
)

func (o Order) String() string {
	switch o {
	case TimestampFirst:
		return "timestamp-first"
	case LabelFirst:
		return "label-first"
	}

	return fmt.Sprintf("UNKNOWN[%d]", int(o))
}

type (
	// Line is a single parsed line of a segment description. The fields
	// are kept in the order they were written.
	Line struct {
		First  string
		Second string
	}

	// Segment is a single timestamped sub-range of the input. An empty End
	// indicates the segment runs to the end of the media, and that no
	// further segment follows it.
	Segment struct {
		Label string
		Start string
		End   string
	}
)

// Parse splits the text provided in to lines, ignoring any blank lines. Lines
// which do not contain the separator are returned with an empty Second field.
func Parse(text string, separator string) []Line {
	if separator == "" {
		separator = DefaultSeparator
	}

	lines := make([]Line, 0)
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		first, second, _ := strings.Cut(raw, separator)
		lines = append(lines, Line{First: strings.TrimSpace(first), Second: strings.TrimSpace(second)})
	}

	return lines
}

// Count returns the number of segments described by the text provided.
func Count(text string, separator string) int {
	return len(Parse(text, separator))
}

// At returns the segment at the cursor provided. The end of the segment is
// taken from the first field of the following line (if any), regardless of
// the display order. The input is not mutated.
func At(text string, separator string, cursor int, order Order) (Segment, error) {
	lines := Parse(text, separator)
	if cursor < 0 || cursor >= len(lines) {
		return Segment{}, fmt.Errorf("%w: cursor %d, %d segment(s) available", ErrCursorOutOfRange, cursor, len(lines))
	}

	line := lines[cursor]
	seg := Segment{Start: line.First, Label: line.Second}
	if order == LabelFirst {
		seg = Segment{Label: line.First, Start: line.Second}
	}

	if cursor+1 < len(lines) {
		seg.End = lines[cursor+1].First
	}

	return seg, nil
}

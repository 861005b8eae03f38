package hawk

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Location is a single point in a source stream: a zero-based byte
// cursor plus the 1-based line/column it falls on, and the source
// file it belongs to (empty for the top-level/synthetic source).
type Location struct {
	Line   int32
	Column int32
	Cursor int32
	File   string
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Span is a half-open range between two Locations, used to anchor
// GemError and AST node positions.
type Span struct {
	Start Location
	End   Location
}

func NewSpan(start, end Location) Span { return Span{Start: start, End: end} }

func (s Span) String() string {
	if s.Start.File == s.End.File && s.Start.Line == s.End.Line {
		if s.Start.Column == s.End.Column {
			return fmt.Sprintf("%s:%d:%d", s.Start.File, s.Start.Line, s.Start.Column)
		}
		return fmt.Sprintf("%s:%d:%d..%d", s.Start.File, s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%s..%s", s.Start, s.End)
}

// Range is a byte offset range within a single input buffer, used
// where only the span within one string of source matters (field
// splitting, regex matches).
type Range struct{ Start, End int }

func NewRange(start, end int) Range { return Range{Start: start, End: end} }

func (r Range) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d..%d", r.Start, r.End)
}

// LineIndex allows fast conversion from byte cursor offsets to
// line/column. The lexer tracks line/column itself and does not use
// it.
type LineIndex struct {
	input     []byte
	lineStart []int
}

func NewLineIndex(input []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{input: input, lineStart: lineStart}
}

func (li *LineIndex) LocationAt(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.input) {
		cursor = len(li.input)
	}
	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := li.lineStart[lineIdx]
	col := int32(utf8.RuneCount(li.input[lineStart:cursor])) + 1
	return Location{Line: int32(lineIdx + 1), Column: col, Cursor: int32(cursor)}
}

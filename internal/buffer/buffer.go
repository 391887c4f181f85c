// Package buffer holds the text being reviewed and exposes the line metrics
// the annotation mapper needs.
package buffer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Buffer is an in-memory source buffer split into lines. A buffer always has
// at least one line; "a\nb\n" has three, the last one empty.
type Buffer struct {
	name    string
	lines   []string
	version int
}

// New creates a buffer named name (usually a file path) holding text.
func New(name, text string) *Buffer {
	b := &Buffer{name: name}
	b.setText(text)
	return b
}

// Name returns the buffer name.
func (b *Buffer) Name() string {
	return b.name
}

// Version increments on every mutation.
func (b *Buffer) Version() int {
	return b.version
}

// Text returns the full buffer contents.
func (b *Buffer) Text() string {
	return strings.Join(b.lines, "\n")
}

// SetText replaces the buffer contents.
func (b *Buffer) SetText(text string) {
	b.setText(text)
	b.version++
}

func (b *Buffer) setText(text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	b.lines = strings.Split(text, "\n")
}

// Lines returns a copy of the buffer lines.
func (b *Buffer) Lines() []string {
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Line returns the 1-based line n.
func (b *Buffer) Line(n int) (string, bool) {
	if n < 1 || n > len(b.lines) {
		return "", false
	}
	return b.lines[n-1], true
}

// LineCount returns the number of lines.
func (b *Buffer) LineCount() int {
	return len(b.lines)
}

// LineWidth returns the number of runes on line n, 0 if it does not exist.
func (b *Buffer) LineWidth(n int) int {
	s, ok := b.Line(n)
	if !ok {
		return 0
	}
	return utf8.RuneCountInString(s)
}

// FirstNonBlankColumn returns the 1-based column of the first non-space rune
// on line n, or 0 when the line is blank or missing.
func (b *Buffer) FirstNonBlankColumn(n int) int {
	s, ok := b.Line(n)
	if !ok {
		return 0
	}
	col := 1
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return col
		}
		col++
	}
	return 0
}

// LastNonBlankColumn returns the column just past the last non-space rune on
// line n, or 0 when the line is blank or missing.
func (b *Buffer) LastNonBlankColumn(n int) int {
	s, ok := b.Line(n)
	if !ok {
		return 0
	}
	trimmed := strings.TrimRightFunc(s, unicode.IsSpace)
	if strings.TrimSpace(trimmed) == "" {
		return 0
	}
	return utf8.RuneCountInString(trimmed) + 1
}

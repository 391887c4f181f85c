// Package annotate maps review results onto a live text buffer as per-line
// decorations and hover content.
//
// The buffer may change between the moment a review was requested and the
// moment its result is mapped. Ranges are clamped to whatever the buffer looks
// like when decorations are computed; nothing here ever fails on stale data.
package annotate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sprite-ai/crev/internal/metrics"
	"github.com/sprite-ai/crev/internal/model"
)

// Buffer is a read-only view of the text being reviewed. Columns are 1-based.
type Buffer interface {
	LineCount() int
	// FirstNonBlankColumn returns the column of the first non-blank rune on
	// line, or 0 when the line is blank or does not exist.
	FirstNonBlankColumn(line int) int
	// LastNonBlankColumn returns the column just past the last non-blank rune
	// on line, or 0 when the line is blank or does not exist.
	LastNonBlankColumn(line int) int
	// LineWidth returns the number of columns on line.
	LineWidth(line int) int
}

// Class is the visual class of a decoration.
type Class int

const (
	ClassWarning Class = iota
	ClassError
)

func (c Class) String() string {
	if c == ClassError {
		return "error"
	}
	return "warning"
}

// ClassFor maps an issue category to its visual class. Unknown categories get
// the lower-severity class.
func ClassFor(c model.Category) Class {
	if c.Severity() == model.SeverityError {
		return ClassError
	}
	return ClassWarning
}

// Decoration highlights columns [StartColumn, EndColumn) on one line.
type Decoration struct {
	Line        int
	StartColumn int
	EndColumn   int
	Class       Class
	// Item is the index of the annotation item in the review result.
	Item int
}

// Mapper owns the decoration set derived from the latest accepted review.
type Mapper struct {
	buf    Buffer
	result *model.ReviewResult

	nextSub int
	subs    []subscriber
}

type subscriber struct {
	id int
	fn func()
}

// NewMapper creates a mapper reading column metrics from buf.
func NewMapper(buf Buffer) *Mapper {
	return &Mapper{buf: buf}
}

// SetResult replaces the current review result. nil clears all decorations.
func (m *Mapper) SetResult(r *model.ReviewResult) {
	m.result = r
	m.Touch()
}

// Touch notifies subscribers without changing the result. Owners call it
// after the buffer changed, since decorations depend on the line count.
func (m *Mapper) Touch() {
	for _, s := range slices.Clone(m.subs) {
		s.fn()
	}
}

// Result returns the current review result, or nil.
func (m *Mapper) Result() *model.ReviewResult {
	return m.result
}

// Subscribe registers fn to run whenever the result changes or Touch is
// called. Subscribers run in registration order. Callers must invoke the
// returned release func on teardown.
func (m *Mapper) Subscribe(fn func()) (release func()) {
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	return func() {
		m.subs = slices.DeleteFunc(m.subs, func(s subscriber) bool { return s.id == id })
	}
}

// Decorations computes decorations against the buffer's current line count.
func (m *Mapper) Decorations() []Decoration {
	return m.DecorationsFor(m.buf.LineCount())
}

// DecorationsFor computes decorations for a buffer of lineCount lines, in
// result order and then line order. The same result and line count always
// produce the same slice.
func (m *Mapper) DecorationsFor(lineCount int) []Decoration {
	if m.result == nil {
		return nil
	}

	var out []Decoration
	for i, item := range m.result.Items {
		r, ok := item.Range.Clamp(lineCount)
		if !ok {
			continue
		}
		class := ClassFor(item.Category)
		for line := r.Start; line <= r.End; line++ {
			start, end := m.columns(line)
			out = append(out, Decoration{
				Line:        line,
				StartColumn: start,
				EndColumn:   end,
				Class:       class,
				Item:        i,
			})
		}
	}
	metrics.DecorationsRendered.Observe(float64(len(out)))
	return out
}

// columns returns the span to highlight on line. Blank lines get the whole
// line, and never less than one column.
func (m *Mapper) columns(line int) (int, int) {
	first := m.buf.FirstNonBlankColumn(line)
	last := m.buf.LastNonBlankColumn(line)
	if first > 0 && last > first {
		return first, last
	}
	width := m.buf.LineWidth(line)
	if width < 1 {
		width = 1
	}
	return 1, width + 1
}

// HoverAt returns the first item, in result order, whose clamped range
// contains line. Overlaps resolve by order, not by severity.
func (m *Mapper) HoverAt(line int) (model.AnnotationItem, bool) {
	if m.result == nil {
		return model.AnnotationItem{}, false
	}
	n := m.buf.LineCount()
	if line < 1 || line > n {
		return model.AnnotationItem{}, false
	}
	for _, item := range m.result.Items {
		r, ok := item.Range.Clamp(n)
		if ok && r.Contains(line) {
			return item, true
		}
	}
	return model.AnnotationItem{}, false
}

// LineClasses folds decorations into the strongest class per line, for
// presenters that color whole lines.
func LineClasses(decs []Decoration) map[int]Class {
	out := make(map[int]Class, len(decs))
	for _, d := range decs {
		if cur, ok := out[d.Line]; !ok || d.Class > cur {
			out[d.Line] = d.Class
		}
	}
	return out
}

// HoverMarkdown renders an item the way it is shown on hover.
func HoverMarkdown(item model.AnnotationItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n%s", categoryLabel(item.Category), item.Issue)
	if item.FixSuggestion != "" {
		fmt.Fprintf(&b, "\n\n💡 *%s*", item.FixSuggestion)
	}
	return b.String()
}

func categoryLabel(c model.Category) string {
	if c == "" {
		return "Issue"
	}
	return string(c)
}

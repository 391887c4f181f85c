// Package model defines the core data types shared across crev.
package model

import "fmt"

// Severity for annotations.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Category is the kind of issue reported by the review service. Values the
// service invents later are carried verbatim.
type Category string

const (
	CategoryCorrectness Category = "Correctness"
	CategoryWarning     Category = "Warning"
	CategoryStyle       Category = "Style"
	CategoryPerformance Category = "Performance"
	CategoryReadability Category = "Readability"
)

// Severity maps the category onto an annotation severity. Only correctness
// issues are errors; anything unrecognised is treated as a warning.
func (c Category) Severity() Severity {
	if c == CategoryCorrectness {
		return SeverityError
	}
	return SeverityWarning
}

// LineRange identifies a range of lines in a file. Lines are 1-indexed and
// both ends are inclusive.
type LineRange struct {
	Start int
	End   int
}

func (r LineRange) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("L%d", r.Start)
	}
	return fmt.Sprintf("L%d-%d", r.Start, r.End)
}

// Normalize returns the range with Start <= End and Start >= 1.
func (r LineRange) Normalize() LineRange {
	if r.Start > r.End {
		r.Start, r.End = r.End, r.Start
	}
	if r.Start < 1 {
		r.Start = 1
	}
	if r.End < r.Start {
		r.End = r.Start - 1
	}
	return r
}

// Empty reports whether the range covers no line.
func (r LineRange) Empty() bool {
	return r.End < r.Start
}

// Clamp restricts the range to [1, lineCount]. ok is false when no line of
// the range lies inside the buffer.
func (r LineRange) Clamp(lineCount int) (LineRange, bool) {
	r = r.Normalize()
	if r.End > lineCount {
		r.End = lineCount
	}
	if r.Empty() {
		return LineRange{}, false
	}
	return r, true
}

// Contains reports whether line falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// ColumnRange is an optional column span reported alongside a line range.
type ColumnRange struct {
	Start int
	End   int
}

// AnnotationItem is a single review finding anchored to a line range.
type AnnotationItem struct {
	Range         LineRange
	Columns       *ColumnRange
	Category      Category
	Issue         string
	FixSuggestion string
	Snippet       string
}

// Severity returns the severity of the item's category.
func (a AnnotationItem) Severity() Severity {
	return a.Category.Severity()
}

// ReviewResult is the outcome of one review request.
type ReviewResult struct {
	Summary string
	Detail  string
	Items   []AnnotationItem
}

// CountBySeverity returns how many items fall in each severity.
func (r *ReviewResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	if r == nil {
		return counts
	}
	for _, item := range r.Items {
		counts[item.Severity()]++
	}
	return counts
}

// Assignment describes the exercise the submission is graded against.
type Assignment struct {
	Content  string
	Language string
}

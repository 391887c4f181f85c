package annotate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/crev/internal/buffer"
	"github.com/sprite-ai/crev/internal/model"
)

const fiveLines = `int len = strlen(str);
  int j = 0;

  while (i < len) i++;
  return j;`

func item(start, end int, cat model.Category, issue string) model.AnnotationItem {
	return model.AnnotationItem{
		Range:         model.LineRange{Start: start, End: end},
		Category:      cat,
		Issue:         issue,
		FixSuggestion: "fix " + issue,
	}
}

func newMapper(t *testing.T, text string) (*Mapper, *buffer.Buffer) {
	t.Helper()
	buf := buffer.New("main.cpp", text)
	return NewMapper(buf), buf
}

func TestClassFor(t *testing.T) {
	assert.Equal(t, ClassError, ClassFor(model.CategoryCorrectness))
	assert.Equal(t, ClassWarning, ClassFor(model.CategoryWarning))
	assert.Equal(t, ClassWarning, ClassFor(model.CategoryStyle))
	assert.Equal(t, ClassWarning, ClassFor(model.Category("SomethingNew")))
	assert.Equal(t, "error", ClassError.String())
	assert.Equal(t, "warning", ClassWarning.String())
}

func TestNoResultNoDecorations(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	assert.Empty(t, m.Decorations())

	_, ok := m.HoverAt(1)
	assert.False(t, ok)
}

func TestRangePartlyOutsideBuffer(t *testing.T) {
	m, buf := newMapper(t, fiveLines)
	require.Equal(t, 5, buf.LineCount())

	m.SetResult(&model.ReviewResult{Items: []model.AnnotationItem{
		item(4, 7, model.CategoryCorrectness, "overflow"),
	}})

	decs := m.DecorationsFor(5)
	require.Len(t, decs, 2)
	assert.Equal(t, 4, decs[0].Line)
	assert.Equal(t, 5, decs[1].Line)
	for _, d := range decs {
		assert.Equal(t, ClassError, d.Class)
	}
}

func TestRangeFullyOutsideBuffer(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	m.SetResult(&model.ReviewResult{Items: []model.AnnotationItem{
		item(6, 9, model.CategoryWarning, "gone"),
		item(0, 0, model.CategoryWarning, "zero"),
		item(-3, -1, model.CategoryWarning, "negative"),
		item(2, 2, model.CategoryStyle, "kept"),
	}})

	decs := m.DecorationsFor(5)
	require.Len(t, decs, 1)
	assert.Equal(t, 2, decs[0].Line)
	assert.Equal(t, 3, decs[0].Item)
}

func TestColumnsFollowNonBlankSpan(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	m.SetResult(&model.ReviewResult{Items: []model.AnnotationItem{
		item(2, 3, model.CategoryStyle, "indent"),
	}})

	decs := m.Decorations()
	require.Len(t, decs, 2)

	// "  int j = 0;"
	assert.Equal(t, Decoration{Line: 2, StartColumn: 3, EndColumn: 13, Class: ClassWarning}, decs[0])
	// blank line still gets a visible span
	assert.Equal(t, 3, decs[1].Line)
	assert.Equal(t, 1, decs[1].StartColumn)
	assert.Greater(t, decs[1].EndColumn, decs[1].StartColumn)
}

func TestWhitespaceOnlyLineUsesFullWidth(t *testing.T) {
	m, _ := newMapper(t, "x\n    \ny")
	m.SetResult(&model.ReviewResult{Items: []model.AnnotationItem{
		item(2, 2, model.CategoryWarning, "ws"),
	}})

	decs := m.Decorations()
	require.Len(t, decs, 1)
	assert.Equal(t, 1, decs[0].StartColumn)
	assert.Equal(t, 5, decs[0].EndColumn)
}

func TestSetResultIdempotent(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	r := &model.ReviewResult{Items: []model.AnnotationItem{
		item(1, 2, model.CategoryCorrectness, "a"),
		item(2, 4, model.CategoryStyle, "b"),
		item(5, 8, model.CategoryWarning, "c"),
	}}

	m.SetResult(r)
	first := m.DecorationsFor(5)
	m.SetResult(r)
	second := m.DecorationsFor(5)

	assert.Equal(t, first, second)
}

func TestSetResultNilClears(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	m.SetResult(&model.ReviewResult{Items: []model.AnnotationItem{item(1, 1, model.CategoryWarning, "a")}})
	require.NotEmpty(t, m.Decorations())

	m.SetResult(nil)
	assert.Empty(t, m.Decorations())
	assert.Nil(t, m.Result())
}

func TestBufferShrinksAfterResult(t *testing.T) {
	m, buf := newMapper(t, fiveLines)
	m.SetResult(&model.ReviewResult{Items: []model.AnnotationItem{
		item(2, 5, model.CategoryCorrectness, "a"),
	}})
	require.Len(t, m.Decorations(), 4)

	buf.SetText("int x;\n  int y;")
	decs := m.Decorations()
	require.Len(t, decs, 1)
	assert.Equal(t, 2, decs[0].Line)

	// A caller holding an outdated line count must not break anything.
	stale := m.DecorationsFor(5)
	require.Len(t, stale, 4)
	assert.Equal(t, 1, stale[3].StartColumn)
	assert.Equal(t, 2, stale[3].EndColumn)
}

func TestHoverFirstMatch(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	m.SetResult(&model.ReviewResult{Items: []model.AnnotationItem{
		item(1, 3, model.CategoryStyle, "style first"),
		item(2, 2, model.CategoryCorrectness, "correctness second"),
		item(5, 9, model.CategoryWarning, "tail"),
	}})

	got, ok := m.HoverAt(2)
	require.True(t, ok)
	assert.Equal(t, "style first", got.Issue)

	got, ok = m.HoverAt(5)
	require.True(t, ok)
	assert.Equal(t, "tail", got.Issue)

	_, ok = m.HoverAt(4)
	assert.False(t, ok)

	_, ok = m.HoverAt(6)
	assert.False(t, ok, "line past the buffer never matches")

	_, ok = m.HoverAt(0)
	assert.False(t, ok)
}

func TestSubscribe(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	calls := 0
	release := m.Subscribe(func() { calls++ })

	m.SetResult(&model.ReviewResult{})
	m.SetResult(nil)
	release()
	m.SetResult(&model.ReviewResult{})

	assert.Equal(t, 2, calls)
}

func TestSubscribersRunInOrder(t *testing.T) {
	m, _ := newMapper(t, fiveLines)
	var order []int
	for i := 0; i < 5; i++ {
		m.Subscribe(func() { order = append(order, i) })
	}

	m.SetResult(&model.ReviewResult{})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestTouchKeepsResult(t *testing.T) {
	m, buf := newMapper(t, fiveLines)
	res := &model.ReviewResult{Items: []model.AnnotationItem{item(5, 5, model.CategoryStyle, "last")}}
	m.SetResult(res)

	calls := 0
	release := m.Subscribe(func() { calls++ })
	defer release()

	buf.SetText("one line")
	m.Touch()

	assert.Equal(t, 1, calls)
	assert.Same(t, res, m.Result())
	assert.Empty(t, m.Decorations())
}

func TestLineClasses(t *testing.T) {
	decs := []Decoration{
		{Line: 1, Class: ClassWarning},
		{Line: 1, Class: ClassError},
		{Line: 2, Class: ClassWarning},
	}
	got := LineClasses(decs)
	assert.Equal(t, map[int]Class{1: ClassError, 2: ClassWarning}, got)
}

func TestHoverMarkdown(t *testing.T) {
	md := HoverMarkdown(item(1, 1, model.CategoryCorrectness, "off by one"))
	assert.True(t, strings.HasPrefix(md, "**Correctness**\n\noff by one"))
	assert.Contains(t, md, "💡 *fix off by one*")

	bare := HoverMarkdown(model.AnnotationItem{Issue: "x"})
	assert.Equal(t, "**Issue**\n\nx", bare)
}

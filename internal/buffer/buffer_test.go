package buffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 1},
		{"a", 1},
		{"a\nb", 2},
		{"a\nb\n", 3},
		{"a\r\nb", 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New("x", tt.text).LineCount(), "text %q", tt.text)
	}
}

func TestColumnMetrics(t *testing.T) {
	b := New("main.cpp", "int x;\n    return 0;  \n\n   \n\tfoo();")

	tests := []struct {
		line        int
		first, last int
		width       int
	}{
		{1, 1, 7, 6},
		{2, 5, 14, 15},
		{3, 0, 0, 0},
		{4, 0, 0, 3},
		{5, 2, 8, 7},
		{6, 0, 0, 0},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.first, b.FirstNonBlankColumn(tt.line), "first col line %d", tt.line)
		assert.Equal(t, tt.last, b.LastNonBlankColumn(tt.line), "last col line %d", tt.line)
		assert.Equal(t, tt.width, b.LineWidth(tt.line), "width line %d", tt.line)
	}
}

func TestColumnsCountRunes(t *testing.T) {
	b := New("x", "  héllo")
	assert.Equal(t, 3, b.FirstNonBlankColumn(1))
	assert.Equal(t, 8, b.LastNonBlankColumn(1))
}

func TestSetTextBumpsVersion(t *testing.T) {
	b := New("x", "a")
	v := b.Version()
	b.SetText("a\nb")
	assert.Equal(t, v+1, b.Version())
	assert.Equal(t, "a\nb", b.Text())
	line, ok := b.Line(2)
	assert.True(t, ok)
	assert.Equal(t, "b", line)
}

const samplePatch = `--- a/main.cpp
+++ b/main.cpp
@@ -1,3 +1,4 @@
 int main() {
-    return 1;
+    int x = 0;
+    return x;
 }
`

func TestApplyPatch(t *testing.T) {
	b := New("main.cpp", "int main() {\n    return 1;\n}")

	require.NoError(t, b.ApplyPatch(samplePatch))
	assert.Equal(t, "int main() {\n    int x = 0;\n    return x;\n}", b.Text())
	assert.Equal(t, 4, b.LineCount())
}

func TestApplyPatchConflictLeavesBuffer(t *testing.T) {
	b := New("main.cpp", "something else entirely\n")
	before := b.Text()

	err := b.ApplyPatch(samplePatch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPatch))
	assert.Equal(t, before, b.Text())
}

func TestApplyPatchRejectsEmpty(t *testing.T) {
	b := New("main.cpp", "x")
	err := b.ApplyPatch("")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPatch)
}

func TestPatchStats(t *testing.T) {
	added, deleted, err := PatchStats(samplePatch)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, deleted)
}

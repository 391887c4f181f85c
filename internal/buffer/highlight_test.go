package buffer

import (
	"testing"
)

func TestHighlightLines(t *testing.T) {
	lines := []string{
		"#include <cstdio>",
		"",
		"int main() {",
		`	printf("hello");`,
		"}",
	}

	highlighted := HighlightLines("cpp", "main.cpp", lines)

	if len(highlighted) != len(lines) {
		t.Fatalf("expected %d highlighted lines, got %d", len(lines), len(highlighted))
	}

	if len(highlighted[2].Tokens) == 0 {
		t.Error("expected tokens in third line")
	}

	if highlighted[2].Plain() != "int main() {" {
		t.Errorf("plain text mismatch: %q", highlighted[2].Plain())
	}
}

func TestHighlightLinesUnknownLanguage(t *testing.T) {
	lines := []string{"some content", "more content"}
	highlighted := HighlightLines("", "unknown.xyz123", lines)

	if len(highlighted) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(highlighted))
	}
	if highlighted[0].Plain() != "some content" {
		t.Errorf("expected plain passthrough, got %q", highlighted[0].Plain())
	}
}

func TestBufferHighlightUsesName(t *testing.T) {
	b := New("main.go", "package main\n\nfunc main() {}")
	hl := b.Highlight("")
	if len(hl) != b.LineCount() {
		t.Fatalf("expected %d lines, got %d", b.LineCount(), len(hl))
	}
	if hl[0].Plain() != "package main" {
		t.Errorf("plain text mismatch: %q", hl[0].Plain())
	}
}

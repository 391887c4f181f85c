package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// markdownRenderer caches a glamour renderer per wrap width.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// render renders markdown for the terminal, falling back to plain wrapping
// when glamour is unavailable.
func (mr *markdownRenderer) render(markdown string, width int) string {
	if width < 10 {
		width = 10
	}
	r := mr.getOrCreate(width)
	if r == nil {
		return lipgloss.NewStyle().Width(width).Render(markdown)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return lipgloss.NewStyle().Width(width).Render(markdown)
	}
	return strings.TrimSpace(out)
}

func (mr *markdownRenderer) getOrCreate(width int) *glamour.TermRenderer {
	if mr.renderer != nil && mr.width == width {
		return mr.renderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	mr.renderer = r
	mr.width = width
	return r
}

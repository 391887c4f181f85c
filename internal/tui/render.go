package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/crev/internal/annotate"
	"github.com/sprite-ai/crev/internal/buffer"
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/operation"
)

// lineDecoration is what the code view needs to paint one line.
type lineDecoration struct {
	Class       annotate.Class
	StartColumn int
	EndColumn   int
}

// decorationsByLine keeps the first decoration per line, with the strongest
// class seen on that line.
func decorationsByLine(decs []annotate.Decoration) map[int]lineDecoration {
	classes := annotate.LineClasses(decs)
	out := make(map[int]lineDecoration, len(classes))
	for _, d := range decs {
		if _, ok := out[d.Line]; ok {
			continue
		}
		out[d.Line] = lineDecoration{
			Class:       classes[d.Line],
			StartColumn: d.StartColumn,
			EndColumn:   d.EndColumn,
		}
	}
	return out
}

// styleLine renders line n of the code view.
func styleLine(n int, hl buffer.HighlightedLine, dec *lineDecoration, cursor bool, width int) string {
	numStyle := lineNumberStyle
	if cursor {
		numStyle = cursorLineNumberStyle
	}
	num := numStyle.Render(fmt.Sprintf("%4d", n))

	gutter := " "
	if dec != nil {
		gutter = gutterStyle(dec.Class).Render("●")
	}

	maxContent := width - 7
	var content string
	if dec != nil {
		content = renderDecorated(truncate(hl.Plain(), maxContent), *dec)
	} else {
		content = renderHighlighted(hl, maxContent)
	}

	return num + " " + gutter + " " + content
}

// renderDecorated paints columns [StartColumn, EndColumn) of text in the
// decoration style. Columns are 1-based and counted in runes.
func renderDecorated(text string, dec lineDecoration) string {
	runes := []rune(text)
	start := clampIndex(dec.StartColumn-1, len(runes))
	end := clampIndex(dec.EndColumn-1, len(runes))
	if end < start {
		end = start
	}

	style := decorationStyle(dec.Class)
	if start == end {
		// Blank line: mark it so the decoration is still visible.
		return string(runes) + style.Render(" ")
	}
	return contextLineStyle.Render(string(runes[:start])) +
		style.Render(string(runes[start:end])) +
		contextLineStyle.Render(string(runes[end:]))
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// renderHighlighted renders line content with syntax tokens.
func renderHighlighted(hl buffer.HighlightedLine, maxContent int) string {
	if lipgloss.Width(hl.Plain()) > maxContent {
		return contextLineStyle.Render(truncate(hl.Plain(), maxContent))
	}

	var b strings.Builder
	for _, tok := range hl.Tokens {
		if tok.Color != "" {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
		} else {
			b.WriteString(contextLineStyle.Render(tok.Text))
		}
	}
	return b.String()
}

// hoverMarkdown describes the item under the cursor, or nothing.
func hoverMarkdown(item model.AnnotationItem, ok bool) string {
	if !ok {
		return ""
	}
	md := annotate.HoverMarkdown(item)
	if item.Snippet != "" {
		md += "\n\n```\n" + item.Snippet + "\n```"
	}
	return md
}

// outcomeLines renders the outcome list and the active outcome's detail.
func outcomeLines(st operation.State[model.TestRunResult], outcomes []model.TestCaseOutcome, active int, width int) []string {
	switch st.Phase {
	case operation.Idle:
		return []string{helpBarStyle.Render("Press t to run the tests")}
	case operation.Pending:
		return []string{helpBarStyle.Render("Running...")}
	case operation.Error:
		return wrapLines(errorTextStyle, st.ErrorMessage, width)
	}

	if len(outcomes) == 0 {
		return []string{helpBarStyle.Render("No test cases were run")}
	}

	var lines []string
	passed := 0
	for i, o := range outcomes {
		mark := outcomeFailedStyle.Render("✗")
		if o.Passed() {
			mark = outcomePassedStyle.Render("✓")
			passed++
		}
		name := truncate(o.Name, width-4)
		style := outcomeItemStyle
		if i == active {
			style = outcomeSelectedStyle
		}
		lines = append(lines, mark+" "+style.Render(name))
	}
	lines = append(lines, "", helpBarStyle.Render(fmt.Sprintf("%d/%d passed", passed, len(outcomes))))

	if active >= 0 && active < len(outcomes) {
		o := outcomes[active]
		lines = append(lines, "")
		lines = append(lines, outcomeField("Input", o.Input, width)...)
		lines = append(lines, outcomeField("Expected", o.Expected, width)...)
		lines = append(lines, outcomeField("Actual", o.Actual, width)...)
		if o.ErrorMessage != "" {
			lines = append(lines, outcomeField("Error", o.ErrorMessage, width)...)
		}
	}
	return lines
}

func outcomeField(label, value string, width int) []string {
	lines := []string{outcomeLabelStyle.Render(label + ":")}
	// Quote so leading and trailing whitespace stays visible.
	return append(lines, wrapLines(contextLineStyle, fmt.Sprintf("%q", value), width)...)
}

func wrapLines(style lipgloss.Style, text string, width int) []string {
	if width < 1 {
		width = 1
	}
	return strings.Split(style.Width(width).Render(text), "\n")
}

// phaseLabel renders an operation phase for the status bar.
func phaseLabel(name string, phase operation.Phase, spin string) string {
	switch phase {
	case operation.Pending:
		return spin + " " + name
	case operation.Success:
		return statusOKStyle.Render(name + " ✓")
	case operation.Error:
		return statusErrorStyle.Render(name + " ✗")
	default:
		return name + " -"
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

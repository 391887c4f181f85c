package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/crev/internal/annotate"
)

// Color palette.
var (
	colorRed       = lipgloss.Color("#ff5555")
	colorGreen     = lipgloss.Color("#50fa7b")
	colorYellow    = lipgloss.Color("#f1fa8c")
	colorBlue      = lipgloss.Color("#8be9fd")
	colorPurple    = lipgloss.Color("#bd93f9")
	colorDim       = lipgloss.Color("#6272a4")
	colorBgLight   = lipgloss.Color("#343746")
	colorFg        = lipgloss.Color("#f8f8f2")
	colorOrange    = lipgloss.Color("#ffb86c")
	colorBorder    = lipgloss.Color("#44475a")
	colorHighlight = lipgloss.Color("#44475a")
)

// Style definitions.
var (
	// Code view
	codeViewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	lineNumberStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(4).
			Align(lipgloss.Right)

	cursorLineNumberStyle = lipgloss.NewStyle().
				Foreground(colorYellow).
				Bold(true).
				Width(4).
				Align(lipgloss.Right)

	contextLineStyle = lipgloss.NewStyle().
				Foreground(colorFg)

	fileHeaderStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true).
			Padding(0, 0, 1, 0)

	// Decorations
	decorationErrorStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Underline(true)

	decorationWarningStyle = lipgloss.NewStyle().
				Foreground(colorOrange).
				Underline(true)

	gutterErrorStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	gutterWarningStyle = lipgloss.NewStyle().
				Foreground(colorOrange)

	// Side panels
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	panelHeaderStyle = lipgloss.NewStyle().
				Foreground(colorPurple).
				Bold(true).
				Padding(0, 0, 1, 0)

	outcomeItemStyle = lipgloss.NewStyle().
				Foreground(colorFg)

	outcomeSelectedStyle = lipgloss.NewStyle().
				Foreground(colorFg).
				Background(colorHighlight).
				Bold(true)

	outcomePassedStyle = lipgloss.NewStyle().
				Foreground(colorGreen)

	outcomeFailedStyle = lipgloss.NewStyle().
				Foreground(colorRed)

	outcomeLabelStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	statusKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Background(colorBgLight).
			Bold(true)

	statusErrorStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Background(colorBgLight)

	statusOKStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Background(colorBgLight)

	// Help bar
	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

func decorationStyle(c annotate.Class) lipgloss.Style {
	if c == annotate.ClassError {
		return decorationErrorStyle
	}
	return decorationWarningStyle
}

func gutterStyle(c annotate.Class) lipgloss.Style {
	if c == annotate.ClassError {
		return gutterErrorStyle
	}
	return gutterWarningStyle
}

func newSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPurple)
	return s
}

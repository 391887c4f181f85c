// Package tui implements the Bubble Tea terminal user interface.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/crev/internal/buffer"
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/operation"
	"github.com/sprite-ai/crev/internal/workspace"
)

// Options configures the review session.
type Options struct {
	// Language selects the syntax highlighter. Empty means guess from the
	// buffer name.
	Language string
	// Cases are the test cases sent on every run.
	Cases []model.TestCase
	// Watch reloads the buffer when the file at this path changes on disk.
	Watch  string
	Logger zerolog.Logger
}

// completionMsg delivers a finished job back to the Update loop.
type completionMsg workspace.Completion

// Model is the top-level Bubble Tea model for crev.
type Model struct {
	ws   *workspace.Workspace
	opts Options
	log  zerolog.Logger
	ctx  context.Context

	watcher *fileWatcher

	// Rendered state, refreshed after every workspace change
	lines       []buffer.HighlightedLine
	lineVersion int
	decorations map[int]lineDecoration

	// UI state
	width      int
	height     int
	viewHeight int

	cursor       int // 1-based cursor line
	scrollOffset int // index of the first visible line

	spinner  spinner.Model
	markdown *markdownRenderer
	status   string

	showHelp bool
}

// New creates a new TUI model over a workspace.
func New(ctx context.Context, ws *workspace.Workspace, opts Options) Model {
	m := Model{
		ws:          ws,
		opts:        opts,
		log:         opts.Logger.With().Str("component", "tui").Logger(),
		ctx:         ctx,
		cursor:      1,
		lineVersion: -1,
		spinner:     newSpinner(),
		markdown:    &markdownRenderer{},
	}
	m.refresh()
	return m
}

// refresh recomputes highlighting and decorations from the workspace.
func (m *Model) refresh() {
	buf := m.ws.Buffer()
	if buf.Version() != m.lineVersion || m.lines == nil {
		m.lines = buf.Highlight(m.opts.Language)
		m.lineVersion = buf.Version()
	}
	m.decorations = decorationsByLine(m.ws.Decorations())

	n := buf.LineCount()
	if m.cursor > n {
		m.cursor = n
	}
	if m.cursor < 1 {
		m.cursor = 1
	}
	m.scrollToCursor()
}

func (m *Model) scrollToCursor() {
	visible := m.visibleLines()
	if m.cursor-1 < m.scrollOffset {
		m.scrollOffset = m.cursor - 1
	}
	if m.cursor-1 >= m.scrollOffset+visible {
		m.scrollOffset = m.cursor - visible
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m Model) visibleLines() int {
	v := m.viewHeight - 4 // borders + file header
	if v < 1 {
		v = 1
	}
	return v
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.waitForFile()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewHeight = m.height - 1 // status bar
		m.scrollToCursor()
		return m, nil

	case spinner.TickMsg:
		if !m.pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case completionMsg:
		c := workspace.Completion(msg)
		if m.ws.Complete(c) {
			m.status = ""
		}
		m.refresh()
		return m, nil

	case fileChangedMsg:
		if msg.text != m.ws.Text() {
			m.ws.SetText(msg.text)
			m.log.Info().Int("lines", m.ws.Buffer().LineCount()).Msg("buffer reloaded")
			m.status = "reloaded from disk"
			m.refresh()
		}
		return m, m.waitForFile()

	case fileErrorMsg:
		m.log.Warn().Err(msg.err).Msg("watch failed")
		m.status = msg.err.Error()
		return m, m.waitForFile()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, keys.Help) || key.Matches(msg, keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Down):
		if m.cursor < m.ws.Buffer().LineCount() {
			m.cursor++
			m.scrollToCursor()
		}

	case key.Matches(msg, keys.Up):
		if m.cursor > 1 {
			m.cursor--
			m.scrollToCursor()
		}

	case key.Matches(msg, keys.PageDown):
		m.cursor = min(m.cursor+m.visibleLines(), m.ws.Buffer().LineCount())
		m.scrollToCursor()

	case key.Matches(msg, keys.PageUp):
		m.cursor = max(m.cursor-m.visibleLines(), 1)
		m.scrollToCursor()

	case key.Matches(msg, keys.Review):
		job := m.ws.StartReview()
		m.refresh()
		return m, tea.Batch(m.runJob(job), m.spinner.Tick)

	case key.Matches(msg, keys.Run):
		job := m.ws.StartRun(m.opts.Cases)
		m.refresh()
		return m, tea.Batch(m.runJob(job), m.spinner.Tick)

	case key.Matches(msg, keys.NextOutcome):
		m.ws.NextOutcome()

	case key.Matches(msg, keys.PrevOutcome):
		m.ws.PrevOutcome()

	case key.Matches(msg, keys.Help):
		m.showHelp = true
	}

	return m, nil
}

// runJob executes the blocking call off the Update loop.
func (m Model) runJob(job workspace.Job) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return completionMsg(job.Run(ctx))
	}
}

func (m Model) waitForFile() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.wait()
}

func (m Model) pending() bool {
	return m.ws.ReviewState().Phase == operation.Pending || m.ws.RunState().Phase == operation.Pending
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	codeWidth := m.width * 3 / 5
	sideWidth := m.width - codeWidth - 1 // -1 for gap

	code := m.renderCodeView(codeWidth, m.viewHeight)

	hoverHeight := m.viewHeight / 2
	side := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHoverPanel(sideWidth, hoverHeight),
		m.renderOutcomePanel(sideWidth, m.viewHeight-hoverHeight),
	)

	main := lipgloss.JoinHorizontal(lipgloss.Top, code, " ", side)
	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderCodeView(width, height int) string {
	innerWidth := width - 4 // borders + padding
	innerHeight := height - 2

	var b strings.Builder
	b.WriteString(fileHeaderStyle.Render(m.ws.Buffer().Name()))
	b.WriteByte('\n')

	end := min(m.scrollOffset+m.visibleLines(), len(m.lines))
	for i := m.scrollOffset; i < end; i++ {
		n := i + 1
		var dec *lineDecoration
		if d, ok := m.decorations[n]; ok {
			dec = &d
		}
		b.WriteString(styleLine(n, m.lines[i], dec, n == m.cursor, innerWidth))
		if i < end-1 {
			b.WriteByte('\n')
		}
	}

	return codeViewStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderHoverPanel(width, height int) string {
	innerWidth := width - 4
	innerHeight := max(height-2, 1)

	var b strings.Builder
	b.WriteString(panelHeaderStyle.Render(fmt.Sprintf("Line %d", m.cursor)))
	b.WriteByte('\n')

	item, ok := m.ws.HoverAt(m.cursor)
	switch {
	case ok:
		b.WriteString(m.markdown.render(hoverMarkdown(item, ok), innerWidth))
	case m.ws.ReviewState().Phase == operation.Error:
		b.WriteString(errorTextStyle.Width(innerWidth).Render(m.ws.ReviewState().ErrorMessage))
	default:
		b.WriteString(m.reviewSummary(innerWidth))
	}

	content := strings.Join(firstN(strings.Split(b.String(), "\n"), innerHeight), "\n")
	return panelStyle.Width(width).Height(innerHeight).Render(content)
}

func (m Model) reviewSummary(width int) string {
	st := m.ws.ReviewState()
	switch st.Phase {
	case operation.Idle:
		return helpBarStyle.Render("Press r to request a review")
	case operation.Pending:
		return helpBarStyle.Render("Reviewing...")
	}
	if st.Payload == nil {
		return ""
	}
	counts := st.Payload.CountBySeverity()
	text := fmt.Sprintf("%s\n\n%d error(s), %d warning(s)",
		st.Payload.Summary, counts[model.SeverityError], counts[model.SeverityWarning])
	return contextLineStyle.Width(width).Render(text)
}

func (m Model) renderOutcomePanel(width, height int) string {
	innerWidth := width - 4
	innerHeight := max(height-2, 1)

	lines := []string{panelHeaderStyle.Render("Tests")}
	lines = append(lines, outcomeLines(m.ws.RunState(), m.ws.Outcomes(), m.ws.ActiveIndex(), innerWidth)...)

	content := strings.Join(firstN(lines, innerHeight), "\n")
	return panelStyle.Width(width).Height(innerHeight).Render(content)
}

func (m Model) renderStatusBar() string {
	spin := m.spinner.View()
	left := fmt.Sprintf(" %s  %s",
		phaseLabel("review", m.ws.ReviewState().Phase, spin),
		phaseLabel("tests", m.ws.RunState().Phase, spin),
	)
	if m.status != "" {
		left += "  " + m.status
	}

	right := fmt.Sprintf("Ln %d/%d  %s ", m.cursor, m.ws.Buffer().LineCount(), statusKeyStyle.Render("? help"))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(fileHeaderStyle.Render("crev: Keyboard Shortcuts"))
	b.WriteString("\n\n")

	for _, k := range []key.Binding{
		keys.Up, keys.Down, keys.PageUp, keys.PageDown,
		keys.Review, keys.Run, keys.NextOutcome, keys.PrevOutcome,
		keys.Help, keys.Quit,
	} {
		h := k.Help()
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(h.Key),
			h.Desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))

	return b.String()
}

func firstN(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}

// Run starts the TUI application and blocks until the user quits. The
// returned Result describes the workspace at that moment.
func Run(ctx context.Context, ws *workspace.Workspace, opts Options) (*Result, error) {
	m := New(ctx, ws, opts)
	if opts.Watch != "" {
		fw, err := newFileWatcher(opts.Watch)
		if err != nil {
			return nil, fmt.Errorf("watching %s: %w", opts.Watch, err)
		}
		defer fw.Close()
		m.watcher = fw
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}

	res := resultFrom(final.(Model).ws)
	ws.Close()
	return res, nil
}

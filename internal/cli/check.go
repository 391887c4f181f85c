package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sprite-ai/crev/internal/annotate"
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/operation"
	"github.com/sprite-ai/crev/internal/workspace"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Review and test a file and output a report (non-interactive)",
	Long: `Request a review and run the configured test cases in parallel, then
print a report. Useful for CI and pre-commit hooks.

Exit codes:
  0  clean: no findings, all tests passed
  1  warnings found or tests failed
  2  correctness issues found or the code did not compile`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringP("format", "f", "text", "output format: text, json, markdown")
	checkCmd.Flags().Bool("no-run", false, "skip running test cases")
	checkCmd.Flags().Bool("no-review", false, "skip the review")
}

// checkReport is the end state of a check run.
type checkReport struct {
	File        string
	Review      operation.State[model.ReviewResult]
	Run         operation.State[model.TestRunResult]
	Decorations []annotate.Decoration
	// CompileError is set when the run failed because the code did not compile.
	CompileError string
}

func runCheck(cmd *cobra.Command, args []string) error {
	buf, err := loadBuffer(args[0])
	if err != nil {
		return err
	}

	noRun, _ := cmd.Flags().GetBool("no-run")
	noReview, _ := cmd.Flags().GetBool("no-review")

	ws := workspace.New(buf, newClient(), workspaceOptions())
	defer ws.Close()

	var jobs []workspace.Job
	if !noReview {
		jobs = append(jobs, ws.StartReview())
	}
	if !noRun {
		jobs = append(jobs, ws.StartRun(cfg.ModelTestCases()))
	}

	report := check(cmd.Context(), ws, jobs)
	report.File = args[0]

	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		err = outputJSON(out, report)
	case "markdown":
		err = outputMarkdown(out, report)
	case "text":
		err = outputText(out, report)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}

	if code := report.exitCode(); code != 0 {
		closeLogger()
		os.Exit(code)
	}
	return nil
}

// check runs jobs concurrently and applies their completions in order on the
// calling goroutine.
func check(ctx context.Context, ws *workspace.Workspace, jobs []workspace.Job) checkReport {
	completions := make([]workspace.Completion, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			completions[i] = job.Run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	var report checkReport
	for _, c := range completions {
		ws.Complete(c)
		if c.Kind == workspace.KindRun && c.Err == nil && c.Run.Kind == model.RunCompileError {
			report.CompileError = c.Run.CompileError
		}
	}

	report.Review = ws.ReviewState()
	report.Run = ws.RunState()
	report.Decorations = ws.Decorations()
	return report
}

func (r checkReport) exitCode() int {
	code := 0
	if r.CompileError != "" {
		return 2
	}
	if r.Review.Payload != nil {
		counts := r.Review.Payload.CountBySeverity()
		if counts[model.SeverityError] > 0 {
			return 2
		}
		if counts[model.SeverityWarning] > 0 {
			code = 1
		}
	}
	if r.Run.Payload != nil {
		if _, failed := r.Run.Payload.Counts(); failed > 0 {
			code = 1
		}
	}
	if r.Review.Phase == operation.Error || r.Run.Phase == operation.Error {
		code = max(code, 1)
	}
	return code
}

// linesFor returns the decorated lines for item i, in order.
func (r checkReport) linesFor(i int) []int {
	var lines []int
	for _, d := range r.Decorations {
		if d.Item == i {
			lines = append(lines, d.Line)
		}
	}
	return lines
}

func lineSpan(lines []int) string {
	switch len(lines) {
	case 0:
		return "-"
	case 1:
		return fmt.Sprintf("%d", lines[0])
	default:
		return fmt.Sprintf("%d-%d", lines[0], lines[len(lines)-1])
	}
}

func outputText(w io.Writer, r checkReport) error {
	fmt.Fprintf(w, "%s\n", r.File)

	switch r.Review.Phase {
	case operation.Error:
		fmt.Fprintf(w, "Review: %s\n", r.Review.ErrorMessage)
	case operation.Success:
		res := r.Review.Payload
		fmt.Fprintf(w, "Review: %s\n", res.Summary)
		if len(res.Items) == 0 {
			fmt.Fprintln(w, "  No issues found.")
		}
		for i, item := range res.Items {
			fmt.Fprintf(w, "  %s %s:%s [%s] %s\n",
				severityIcon(item.Severity()), r.File, lineSpan(r.linesFor(i)), item.Category, item.Issue)
			if item.FixSuggestion != "" {
				fmt.Fprintf(w, "      fix: %s\n", item.FixSuggestion)
			}
		}
	}

	switch {
	case r.CompileError != "":
		fmt.Fprintf(w, "Tests: compile error\n  %s\n", strings.ReplaceAll(r.CompileError, "\n", "\n  "))
	case r.Run.Phase == operation.Error:
		fmt.Fprintf(w, "Tests: %s\n", r.Run.ErrorMessage)
	case r.Run.Phase == operation.Success:
		passed, failed := r.Run.Payload.Counts()
		fmt.Fprintf(w, "Tests: %d passed, %d failed\n", passed, failed)
		for _, o := range r.Run.Payload.Outcomes {
			mark := "ok  "
			if !o.Passed() {
				mark = "FAIL"
			}
			fmt.Fprintf(w, "  %s %s\n", mark, o.Name)
			if !o.Passed() {
				fmt.Fprintf(w, "       expected %q, got %q\n", o.Expected, o.Actual)
			}
		}
	}
	return nil
}

func outputJSON(w io.Writer, r checkReport) error {
	type jsonItem struct {
		Category      string `json:"category"`
		Severity      string `json:"severity"`
		StartLine     int    `json:"start_line"`
		EndLine       int    `json:"end_line"`
		Decorated     []int  `json:"decorated_lines"`
		Issue         string `json:"issue"`
		FixSuggestion string `json:"fix_suggestion,omitempty"`
	}

	type jsonOutcome struct {
		Name     string `json:"name"`
		Status   string `json:"status"`
		Expected string `json:"expected"`
		Actual   string `json:"actual"`
	}

	type jsonOutput struct {
		File         string        `json:"file"`
		Review       string        `json:"review"`
		ReviewError  string        `json:"review_error,omitempty"`
		Summary      string        `json:"summary,omitempty"`
		Items        []jsonItem    `json:"items"`
		Run          string        `json:"run"`
		RunError     string        `json:"run_error,omitempty"`
		CompileError string        `json:"compile_error,omitempty"`
		Outcomes     []jsonOutcome `json:"outcomes"`
		ExitCode     int           `json:"exit_code"`
	}

	out := jsonOutput{
		File:         r.File,
		Review:       r.Review.Phase.String(),
		ReviewError:  r.Review.ErrorMessage,
		Items:        []jsonItem{},
		Run:          r.Run.Phase.String(),
		RunError:     r.Run.ErrorMessage,
		CompileError: r.CompileError,
		Outcomes:     []jsonOutcome{},
		ExitCode:     r.exitCode(),
	}

	if res := r.Review.Payload; res != nil {
		out.Summary = res.Summary
		for i, item := range res.Items {
			out.Items = append(out.Items, jsonItem{
				Category:      string(item.Category),
				Severity:      item.Severity().String(),
				StartLine:     item.Range.Start,
				EndLine:       item.Range.End,
				Decorated:     append([]int{}, r.linesFor(i)...),
				Issue:         item.Issue,
				FixSuggestion: item.FixSuggestion,
			})
		}
	}
	if run := r.Run.Payload; run != nil {
		for _, o := range run.Outcomes {
			out.Outcomes = append(out.Outcomes, jsonOutcome{
				Name:     o.Name,
				Status:   o.Status.String(),
				Expected: o.Expected,
				Actual:   o.Actual,
			})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func outputMarkdown(w io.Writer, r checkReport) error {
	fmt.Fprintf(w, "## Review Report: `%s`\n\n", r.File)

	switch r.Review.Phase {
	case operation.Error:
		fmt.Fprintf(w, "**Review failed:** %s\n\n", r.Review.ErrorMessage)
	case operation.Success:
		res := r.Review.Payload
		counts := res.CountBySeverity()
		fmt.Fprintf(w, "%s\n\n", res.Summary)
		fmt.Fprintf(w, "**Errors:** %d | **Warnings:** %d\n\n", counts[model.SeverityError], counts[model.SeverityWarning])
		if len(res.Items) > 0 {
			fmt.Fprintln(w, "| Severity | Lines | Category | Issue |")
			fmt.Fprintln(w, "|----------|-------|----------|-------|")
			for i, item := range res.Items {
				fmt.Fprintf(w, "| %s | %s | %s | %s |\n",
					item.Severity(), lineSpan(r.linesFor(i)), item.Category, markdownCell(item.Issue))
			}
			fmt.Fprintln(w)
		}
	}

	switch {
	case r.CompileError != "":
		fmt.Fprintf(w, "### Tests\n\nCompile error:\n\n```\n%s\n```\n", r.CompileError)
	case r.Run.Phase == operation.Error:
		fmt.Fprintf(w, "### Tests\n\n**Run failed:** %s\n", r.Run.ErrorMessage)
	case r.Run.Phase == operation.Success:
		passed, failed := r.Run.Payload.Counts()
		fmt.Fprintf(w, "### Tests\n\n**%d** passed, **%d** failed\n\n", passed, failed)
		fmt.Fprintln(w, "| Case | Status | Expected | Actual |")
		fmt.Fprintln(w, "|------|--------|----------|--------|")
		for _, o := range r.Run.Payload.Outcomes {
			fmt.Fprintf(w, "| %s | %s | `%s` | `%s` |\n", markdownCell(o.Name), o.Status, o.Expected, o.Actual)
		}
	}
	return nil
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityError:
		return "! "
	case model.SeverityWarning:
		return "* "
	default:
		return "  "
	}
}

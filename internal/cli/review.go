package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sprite-ai/crev/internal/buffer"
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/operation"
	"github.com/sprite-ai/crev/internal/tui"
	"github.com/sprite-ai/crev/internal/workspace"
)

var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Open an interactive review session",
	Long: `Open an interactive TUI for a source file. Press r to request a review
and t to run the configured test cases. The file is reloaded when it changes
on disk.

Examples:
  crev review main.cpp
  crev review main.cpp --patch fix.diff   # review with a patch applied
  crev review main.cpp --no-watch`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("patch", "", "apply a unified diff to the buffer before reviewing")
	reviewCmd.Flags().StringP("language", "l", "", "syntax highlighting language (default: guess from file name)")
	reviewCmd.Flags().Bool("no-watch", false, "do not reload the file when it changes")
	reviewCmd.Flags().Bool("stat", false, "print patch stats and exit (non-interactive)")
}

func runReview(cmd *cobra.Command, args []string) error {
	path := args[0]
	buf, err := loadBuffer(path)
	if err != nil {
		return err
	}

	patchPath, _ := cmd.Flags().GetString("patch")
	if patchPath != "" {
		patch, err := os.ReadFile(patchPath)
		if err != nil {
			return fmt.Errorf("reading patch: %w", err)
		}

		if stat, _ := cmd.Flags().GetBool("stat"); stat {
			added, deleted, err := buffer.PatchStats(string(patch))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d insertions(+), %d deletions(-)\n", filepath.Base(path), added, deleted)
			return nil
		}

		if err := buf.ApplyPatch(string(patch)); err != nil {
			return err
		}
	}

	lang, _ := cmd.Flags().GetString("language")
	if lang == "" {
		lang = cfg.Assignment.Language
	}

	watch := path
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch || patchPath != "" {
		watch = ""
	}

	ws := workspace.New(buf, newClient(), workspaceOptions())
	result, err := tui.Run(cmd.Context(), ws, tui.Options{
		Language: lang,
		Cases:    cfg.ModelTestCases(),
		Watch:    watch,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	printSessionSummary(cmd.OutOrStdout(), result)
	return nil
}

func loadBuffer(path string) (*buffer.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buffer.New(path, string(data)), nil
}

func printSessionSummary(w io.Writer, r *tui.Result) {
	if r.Reviewed() {
		counts := r.Review.Payload.CountBySeverity()
		fmt.Fprintf(w, "Review: %d error(s), %d warning(s)\n",
			counts[model.SeverityError], counts[model.SeverityWarning])
		if r.Review.Payload.Summary != "" {
			fmt.Fprintf(w, "  %s\n", r.Review.Payload.Summary)
		}
	} else if r.Review.Phase == operation.Error {
		fmt.Fprintf(w, "Review failed: %s\n", r.Review.ErrorMessage)
	}

	switch {
	case r.Run.Phase == operation.Error:
		fmt.Fprintf(w, "Tests failed: %s\n", r.Run.ErrorMessage)
	case r.Tested() && r.Run.Payload != nil:
		passed, failed := r.Run.Payload.Counts()
		fmt.Fprintf(w, "Tests: %d passed, %d failed\n", passed, failed)
	}
}

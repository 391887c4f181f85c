package tui

import (
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/operation"
	"github.com/sprite-ai/crev/internal/workspace"
)

// Result holds the state of an interactive session when it ended.
type Result struct {
	Review operation.State[model.ReviewResult]
	Run    operation.State[model.TestRunResult]
	// Text is the buffer as it was at the end, including reloads.
	Text string
}

func resultFrom(ws *workspace.Workspace) *Result {
	return &Result{
		Review: ws.ReviewState(),
		Run:    ws.RunState(),
		Text:   ws.Text(),
	}
}

// Reviewed reports whether a review finished successfully.
func (r *Result) Reviewed() bool {
	return r.Review.Phase == operation.Success && r.Review.Payload != nil
}

// Tested reports whether a test run finished, successfully or not.
func (r *Result) Tested() bool {
	return r.Run.Phase == operation.Success || r.Run.Phase == operation.Error
}

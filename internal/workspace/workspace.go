// Package workspace ties one code buffer to its review and test-run
// operations. A Workspace is created per view or session and is driven by a
// single owner loop; only Job.Run may be called from another goroutine.
package workspace

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprite-ai/crev/internal/annotate"
	"github.com/sprite-ai/crev/internal/buffer"
	"github.com/sprite-ai/crev/internal/model"
	"github.com/sprite-ai/crev/internal/operation"
	"github.com/sprite-ai/crev/internal/selection"
	"github.com/sprite-ai/crev/internal/service"
)

// Messages shown when the service could not be reached at all.
const (
	ReviewUnavailable = "review service unavailable"
	RunUnavailable    = "run service unavailable"
)

// Service is the remote backend a workspace talks to.
type Service interface {
	Review(ctx context.Context, req service.ReviewRequest) (model.ReviewResult, error)
	Run(ctx context.Context, req service.RunRequest) (model.TestRunResult, error)
}

// Kind says which operation a job or completion belongs to.
type Kind int

const (
	KindReview Kind = iota
	KindRun
)

func (k Kind) String() string {
	if k == KindRun {
		return "run"
	}
	return "review"
}

// Options configures a Workspace.
type Options struct {
	Assignment   model.Assignment
	Timeout      time.Duration
	ClearOnStart bool
	ClearOnEdit  bool
	Logger       zerolog.Logger
}

// Workspace is the explicit state behind one edited buffer.
type Workspace struct {
	buf    *buffer.Buffer
	svc    Service
	opts   Options
	log    zerolog.Logger
	mapper *annotate.Mapper
	sel    *selection.Selection
	review *operation.Machine[model.ReviewResult]
	run    *operation.Machine[model.TestRunResult]
}

// New creates a workspace over buf.
func New(buf *buffer.Buffer, svc Service, opts Options) *Workspace {
	return &Workspace{
		buf:    buf,
		svc:    svc,
		opts:   opts,
		log:    opts.Logger.With().Str("component", "workspace").Str("buffer", buf.Name()).Logger(),
		mapper: annotate.NewMapper(buf),
		sel:    selection.New(),
		review: operation.New[model.ReviewResult]("review"),
		run:    operation.New[model.TestRunResult]("run"),
	}
}

// Job is a triggered request waiting to be executed. It holds a snapshot of
// the request, so later edits to the buffer do not affect it.
type Job struct {
	Kind  Kind
	Token operation.Token

	exec func(ctx context.Context) Completion
}

// Run performs the blocking service call and returns its completion. It is
// safe to call from any goroutine.
func (j Job) Run(ctx context.Context) Completion {
	if j.exec == nil {
		return Completion{Kind: j.Kind, Token: j.Token, Err: errors.New("empty job")}
	}
	return j.exec(ctx)
}

// Completion is the outcome of a Job, to be handed back to Complete on the
// owner loop.
type Completion struct {
	Kind   Kind
	Token  operation.Token
	Review model.ReviewResult
	Run    model.TestRunResult
	Err    error
}

// StartReview moves the review operation to pending and returns the job that
// fetches its result.
func (w *Workspace) StartReview() Job {
	if w.opts.ClearOnStart {
		w.mapper.SetResult(nil)
	}
	tok := w.review.Start()
	req := service.ReviewRequest{Assignment: w.opts.Assignment, Code: w.buf.Text()}
	svc, timeout := w.svc, w.opts.Timeout

	w.log.Debug().Str("token", string(tok)).Int("version", w.buf.Version()).Msg("review started")

	return Job{
		Kind:  KindReview,
		Token: tok,
		exec: func(ctx context.Context) Completion {
			ctx, cancel := withTimeout(ctx, timeout)
			defer cancel()
			res, err := svc.Review(ctx, req)
			return Completion{Kind: KindReview, Token: tok, Review: res, Err: err}
		},
	}
}

// StartRun moves the run operation to pending and returns the job that
// executes the buffer against cases. The previous outcomes are dropped.
func (w *Workspace) StartRun(cases []model.TestCase) Job {
	w.sel.Clear()
	tok := w.run.Start()
	req := service.RunRequest{
		Assignment: w.opts.Assignment,
		Code:       w.buf.Text(),
		Cases:      append([]model.TestCase(nil), cases...),
	}
	svc, timeout := w.svc, w.opts.Timeout

	w.log.Debug().Str("token", string(tok)).Int("cases", len(cases)).Msg("run started")

	return Job{
		Kind:  KindRun,
		Token: tok,
		exec: func(ctx context.Context) Completion {
			ctx, cancel := withTimeout(ctx, timeout)
			defer cancel()
			res, err := svc.Run(ctx, req)
			return Completion{Kind: KindRun, Token: tok, Run: res, Err: err}
		},
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Complete applies a completion to the matching operation. It returns false
// when the completion was stale and nothing changed.
func (w *Workspace) Complete(c Completion) bool {
	var accepted bool
	switch c.Kind {
	case KindReview:
		accepted = w.completeReview(c)
	case KindRun:
		accepted = w.completeRun(c)
	}

	w.log.Debug().
		Str("operation", c.Kind.String()).
		Str("token", string(c.Token)).
		Bool("stale", !accepted).
		Msg("completion")
	return accepted
}

func (w *Workspace) completeReview(c Completion) bool {
	if c.Err != nil {
		return w.review.Reject(c.Token, w.failureMessage(c.Kind, c.Err))
	}
	if !w.review.Resolve(c.Token, c.Review) {
		return false
	}
	res := c.Review
	w.mapper.SetResult(&res)
	return true
}

func (w *Workspace) completeRun(c Completion) bool {
	if c.Err != nil {
		return w.run.Reject(c.Token, w.failureMessage(c.Kind, c.Err))
	}
	if c.Run.Kind == model.RunCompileError {
		return w.run.Reject(c.Token, c.Run.CompileError)
	}
	if !w.run.Resolve(c.Token, c.Run) {
		return false
	}
	w.sel.Ingest(c.Run)
	return true
}

// failureMessage turns err into the text shown to the user. Service-reported
// failures are passed through; everything else gets a generic message.
func (w *Workspace) failureMessage(kind Kind, err error) string {
	var svcErr *service.Error
	switch {
	case errors.As(err, &svcErr):
		w.log.Warn().Err(err).Str("operation", kind.String()).Msg("service reported failure")
		return svcErr.Message
	case errors.Is(err, service.ErrInvalidRequest):
		w.log.Warn().Err(err).Str("operation", kind.String()).Msg("request rejected")
		return err.Error()
	}

	w.log.Error().Err(err).Str("operation", kind.String()).Msg("service call failed")
	if kind == KindRun {
		return RunUnavailable
	}
	return ReviewUnavailable
}

// ReviewState returns the review operation snapshot.
func (w *Workspace) ReviewState() operation.State[model.ReviewResult] {
	return w.review.State()
}

// RunState returns the test-run operation snapshot.
func (w *Workspace) RunState() operation.State[model.TestRunResult] {
	return w.run.State()
}

// Decorations returns the decorations for the buffer as it is now.
func (w *Workspace) Decorations() []annotate.Decoration {
	return w.mapper.Decorations()
}

// DecorationsFor returns the decorations for a buffer of lineCount lines.
func (w *Workspace) DecorationsFor(lineCount int) []annotate.Decoration {
	return w.mapper.DecorationsFor(lineCount)
}

// HoverAt returns the first review item covering line.
func (w *Workspace) HoverAt(line int) (model.AnnotationItem, bool) {
	return w.mapper.HoverAt(line)
}

// SelectOutcome makes the named outcome active.
func (w *Workspace) SelectOutcome(name string) bool {
	return w.sel.Select(name)
}

// NextOutcome and PrevOutcome cycle the active outcome.
func (w *Workspace) NextOutcome() { w.sel.Next() }

func (w *Workspace) PrevOutcome() { w.sel.Prev() }

// ActiveOutcome returns the selected outcome, if any.
func (w *Workspace) ActiveOutcome() (model.TestCaseOutcome, bool) {
	return w.sel.Active()
}

// ActiveIndex returns the position of the selected outcome, or -1.
func (w *Workspace) ActiveIndex() int {
	return w.sel.ActiveIndex()
}

// Outcomes returns the outcomes of the latest accepted run.
func (w *Workspace) Outcomes() []model.TestCaseOutcome {
	return w.sel.Outcomes()
}

// Buffer exposes the underlying buffer for rendering.
func (w *Workspace) Buffer() *buffer.Buffer {
	return w.buf
}

// Text returns the buffer contents.
func (w *Workspace) Text() string {
	return w.buf.Text()
}

// SetText replaces the buffer contents.
func (w *Workspace) SetText(text string) {
	w.buf.SetText(text)
	w.edited()
}

// ApplyPatch applies a unified diff to the buffer. On error the buffer is
// left unchanged.
func (w *Workspace) ApplyPatch(patch string) error {
	if err := w.buf.ApplyPatch(patch); err != nil {
		return err
	}
	w.edited()
	return nil
}

func (w *Workspace) edited() {
	if w.opts.ClearOnEdit && w.mapper.Result() != nil {
		w.mapper.SetResult(nil)
		return
	}
	w.mapper.Touch()
}

// Watch calls fn after any change to decorations or operation state. The
// returned release func unregisters it.
func (w *Workspace) Watch(fn func()) (release func()) {
	releases := []func(){
		w.mapper.Subscribe(fn),
		w.review.OnChange(func(operation.State[model.ReviewResult]) { fn() }),
		w.run.OnChange(func(operation.State[model.TestRunResult]) { fn() }),
	}
	return func() {
		for _, r := range releases {
			r()
		}
	}
}

// Close resets both operations, so any in-flight completion is discarded,
// and drops all decorations and outcomes.
func (w *Workspace) Close() {
	w.review.Reset()
	w.run.Reset()
	w.mapper.SetResult(nil)
	w.sel.Clear()
}

// Package operation tracks the lifecycle of a single asynchronous request
// (a review or a test run) and discards completions from superseded requests.
//
// A Machine is owned by one event loop and is not safe for concurrent use.
// The blocking request itself runs elsewhere; only its completion is handed
// back to the owning loop through Resolve or Reject.
package operation

import (
	"slices"

	"github.com/google/uuid"

	"github.com/sprite-ai/crev/internal/metrics"
)

// Phase is the observable state of an operation.
type Phase int

const (
	Idle Phase = iota
	Pending
	Success
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Token identifies one triggered request.
type Token string

// State is a snapshot of a Machine.
type State[T any] struct {
	Phase        Phase
	Payload      *T
	ErrorMessage string
	Token        Token
}

// Machine drives Idle -> Pending -> Success|Error for one kind of request.
type Machine[T any] struct {
	name  string
	state State[T]

	nextListener int
	listeners    []listener[T]
}

type listener[T any] struct {
	id int
	fn func(State[T])
}

// New creates an idle machine. name labels its metrics.
func New[T any](name string) *Machine[T] {
	return &Machine[T]{name: name}
}

// Name returns the operation name.
func (m *Machine[T]) Name() string {
	return m.name
}

// Start mints a new token and moves to Pending. Any previously pending token
// is forgotten, so its completion will be ignored.
func (m *Machine[T]) Start() Token {
	tok := Token(uuid.NewString())
	m.state = State[T]{Phase: Pending, Token: tok}
	metrics.OperationsStarted.WithLabelValues(m.name).Inc()
	m.notify()
	return tok
}

// Resolve records a successful completion. It returns false and changes
// nothing when tok is not the currently pending token.
func (m *Machine[T]) Resolve(tok Token, payload T) bool {
	if !m.accepts(tok) {
		return false
	}
	m.state.Phase = Success
	m.state.Payload = &payload
	m.state.ErrorMessage = ""
	metrics.OperationsCompleted.WithLabelValues(m.name, "success").Inc()
	m.notify()
	return true
}

// Reject records a failed completion, with the same staleness guard as Resolve.
func (m *Machine[T]) Reject(tok Token, msg string) bool {
	if !m.accepts(tok) {
		return false
	}
	m.state.Phase = Error
	m.state.Payload = nil
	m.state.ErrorMessage = msg
	metrics.OperationsCompleted.WithLabelValues(m.name, "error").Inc()
	m.notify()
	return true
}

// Reset returns to Idle and invalidates any outstanding token.
func (m *Machine[T]) Reset() {
	m.state = State[T]{Phase: Idle}
	m.notify()
}

// State returns the current snapshot.
func (m *Machine[T]) State() State[T] {
	return m.state
}

// Pending reports whether a request is in flight.
func (m *Machine[T]) Pending() bool {
	return m.state.Phase == Pending
}

// OnChange registers fn to be called after every transition. Listeners run
// in registration order. The returned release func unregisters fn and is safe
// to call more than once.
func (m *Machine[T]) OnChange(fn func(State[T])) (release func()) {
	id := m.nextListener
	m.nextListener++
	m.listeners = append(m.listeners, listener[T]{id: id, fn: fn})
	return func() {
		m.listeners = slices.DeleteFunc(m.listeners, func(l listener[T]) bool { return l.id == id })
	}
}

// Reasons a completion is discarded, as reported by the stale responses metric.
const (
	ReasonSuperseded = "superseded"  // a newer request is pending
	ReasonNotPending = "not_pending" // already completed, reset, or never started
	ReasonNoToken    = "no_token"
)

func (m *Machine[T]) accepts(tok Token) bool {
	var reason string
	switch {
	case tok == "":
		reason = ReasonNoToken
	case m.state.Phase != Pending:
		reason = ReasonNotPending
	case tok != m.state.Token:
		reason = ReasonSuperseded
	default:
		return true
	}
	metrics.StaleResponses.WithLabelValues(m.name, reason).Inc()
	return false
}

func (m *Machine[T]) notify() {
	// Copy so a listener may release itself.
	for _, l := range slices.Clone(m.listeners) {
		l.fn(m.state)
	}
}

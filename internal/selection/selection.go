// Package selection tracks which test outcome is active in a presenter.
package selection

import "github.com/sprite-ai/crev/internal/model"

// Selection holds the outcomes of the latest run and the active one. The
// active name, when set, always names an outcome in the current list.
type Selection struct {
	outcomes []model.TestCaseOutcome
	active   int // index into outcomes, -1 when nothing is selected
}

// New returns an empty selection.
func New() *Selection {
	return &Selection{active: -1}
}

// Ingest replaces the outcomes and resets the selection to the first one.
// A compile-error result leaves nothing selected. The previous selection is
// never carried over, even when a name repeats.
func (s *Selection) Ingest(r model.TestRunResult) {
	s.outcomes = nil
	s.active = -1
	if r.Kind != model.RunOutcomes || len(r.Outcomes) == 0 {
		return
	}
	s.outcomes = make([]model.TestCaseOutcome, len(r.Outcomes))
	copy(s.outcomes, r.Outcomes)
	s.active = 0
}

// Clear drops all outcomes.
func (s *Selection) Clear() {
	s.outcomes = nil
	s.active = -1
}

// Select makes the outcome called name active. Unknown names are rejected
// and the selection is left as it was.
func (s *Selection) Select(name string) bool {
	for i, o := range s.outcomes {
		if o.Name == name {
			s.active = i
			return true
		}
	}
	return false
}

// Next moves the selection forward, wrapping around.
func (s *Selection) Next() {
	if len(s.outcomes) == 0 {
		return
	}
	s.active = (s.active + 1) % len(s.outcomes)
}

// Prev moves the selection backward, wrapping around.
func (s *Selection) Prev() {
	if len(s.outcomes) == 0 {
		return
	}
	s.active = (s.active - 1 + len(s.outcomes)) % len(s.outcomes)
}

// Active returns the active outcome.
func (s *Selection) Active() (model.TestCaseOutcome, bool) {
	if s.active < 0 || s.active >= len(s.outcomes) {
		return model.TestCaseOutcome{}, false
	}
	return s.outcomes[s.active], true
}

// ActiveIndex returns the index of the active outcome, or -1.
func (s *Selection) ActiveIndex() int {
	return s.active
}

// Outcomes returns the current outcomes in run order.
func (s *Selection) Outcomes() []model.TestCaseOutcome {
	return s.outcomes
}

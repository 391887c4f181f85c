package operation

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/crev/internal/metrics"
)

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{Idle, "idle"},
		{Pending, "pending"},
		{Success, "success"},
		{Error, "error"},
		{Phase(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.phase.String())
	}
}

func TestMachineLifecycle(t *testing.T) {
	m := New[string]("test")
	assert.Equal(t, Idle, m.State().Phase)

	tok := m.Start()
	require.NotEmpty(t, tok)
	assert.Equal(t, Pending, m.State().Phase)
	assert.True(t, m.Pending())

	require.True(t, m.Resolve(tok, "done"))
	st := m.State()
	assert.Equal(t, Success, st.Phase)
	require.NotNil(t, st.Payload)
	assert.Equal(t, "done", *st.Payload)
	assert.Empty(t, st.ErrorMessage)
}

func TestMachineReject(t *testing.T) {
	m := New[string]("test")
	tok := m.Start()

	require.True(t, m.Reject(tok, "compile error"))
	st := m.State()
	assert.Equal(t, Error, st.Phase)
	assert.Nil(t, st.Payload)
	assert.Equal(t, "compile error", st.ErrorMessage)
}

func TestStartClearsPreviousError(t *testing.T) {
	m := New[string]("test")
	tok := m.Start()
	m.Reject(tok, "boom")

	m.Start()
	st := m.State()
	assert.Equal(t, Pending, st.Phase)
	assert.Empty(t, st.ErrorMessage)
	assert.Nil(t, st.Payload)
}

func TestSupersededTokenIsIgnored(t *testing.T) {
	m := New[string]("test")
	t1 := m.Start()
	t2 := m.Start()
	require.NotEqual(t, t1, t2)

	assert.False(t, m.Resolve(t1, "old"))
	assert.Equal(t, Pending, m.State().Phase)
	assert.Equal(t, t2, m.State().Token)

	assert.False(t, m.Reject(t1, "old failure"))
	assert.Equal(t, Pending, m.State().Phase)

	require.True(t, m.Resolve(t2, "new"))
	assert.Equal(t, "new", *m.State().Payload)
}

func TestLateResponseAfterNewerCompleted(t *testing.T) {
	m := New[string]("test")
	t1 := m.Start()
	t2 := m.Start()

	require.True(t, m.Resolve(t2, "fresh"))
	assert.False(t, m.Resolve(t1, "stale"))

	st := m.State()
	assert.Equal(t, Success, st.Phase)
	assert.Equal(t, "fresh", *st.Payload)
}

func TestDoubleCompletionIgnored(t *testing.T) {
	m := New[string]("test")
	tok := m.Start()
	require.True(t, m.Resolve(tok, "first"))
	assert.False(t, m.Reject(tok, "second"))
	assert.Equal(t, Success, m.State().Phase)
}

func TestResetInvalidatesToken(t *testing.T) {
	m := New[int]("test")
	tok := m.Start()
	m.Reset()

	assert.False(t, m.Resolve(tok, 1))
	assert.Equal(t, Idle, m.State().Phase)
}

func TestEmptyTokenNeverAccepted(t *testing.T) {
	m := New[int]("test")
	assert.False(t, m.Resolve("", 1))
	assert.Equal(t, Idle, m.State().Phase)
}

func TestOnChange(t *testing.T) {
	m := New[int]("test")
	var phases []Phase
	release := m.OnChange(func(s State[int]) { phases = append(phases, s.Phase) })

	tok := m.Start()
	m.Resolve(tok, 7)
	release()
	release()
	m.Start()

	assert.Equal(t, []Phase{Pending, Success}, phases)
}

func TestOnChangeOrder(t *testing.T) {
	m := New[int]("test")
	var order []string
	m.OnChange(func(State[int]) { order = append(order, "first") })
	releaseSecond := m.OnChange(func(State[int]) { order = append(order, "second") })
	m.OnChange(func(State[int]) { order = append(order, "third") })

	m.Start()
	releaseSecond()
	m.Reset()

	assert.Equal(t, []string{"first", "second", "third", "first", "third"}, order)
}

func TestDiscardReasons(t *testing.T) {
	const name = "discard-reasons"
	count := func(reason string) float64 {
		return testutil.ToFloat64(metrics.StaleResponses.WithLabelValues(name, reason))
	}

	m := New[int](name)
	old := m.Start()
	tok := m.Start()
	assert.False(t, m.Resolve(old, 1))
	assert.Equal(t, 1.0, count(ReasonSuperseded))

	require.True(t, m.Resolve(tok, 2))
	assert.False(t, m.Resolve(tok, 3))
	m.Reset()
	assert.False(t, m.Reject(tok, "late"))
	assert.Equal(t, 2.0, count(ReasonNotPending))

	assert.False(t, m.Resolve("", 4))
	assert.Equal(t, 1.0, count(ReasonNoToken))
	assert.Equal(t, 1.0, count(ReasonSuperseded))
}

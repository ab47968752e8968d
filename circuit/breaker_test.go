package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_ClosedAllowsUntilMaxFailures(t *testing.T) {
	b := New(Config{MaxFailures: 3, ResetTimeout: time.Minute})

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestBreaker_OpenRejectsUntilResetTimeout(t *testing.T) {
	b := New(Config{MaxFailures: 1, ResetTimeout: 20 * time.Millisecond})

	b.RecordFailure()
	require.Equal(t, Open, b.State())
	assert.False(t, b.Allow())

	time.Sleep(25 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(Config{MaxFailures: 1, ResetTimeout: time.Millisecond})

	b.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{MaxFailures: 1, ResetTimeout: time.Millisecond})

	b.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(Config{MaxFailures: 2, ResetTimeout: time.Minute})

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, Closed, b.State(), "failure count should have reset on success")
}

func TestBreaker_Reset(t *testing.T) {
	b := New(Config{MaxFailures: 1, ResetTimeout: time.Minute})

	b.RecordFailure()
	require.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_ExplicitTransitions(t *testing.T) {
	b := New(Config{MaxFailures: 5, ResetTimeout: time.Hour})

	b.Open()
	assert.Equal(t, Open, b.State())
	assert.False(t, b.Allow())

	b.HalfOpen()
	assert.Equal(t, HalfOpen, b.State())
	assert.True(t, b.Allow())

	b.Close()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Allow())
}

func TestRegistry_ExplicitTransitions(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 5, ResetTimeout: time.Hour})

	r.Open("host-a:2375")
	assert.Equal(t, Open, r.State("host-a:2375"))

	r.HalfOpen("host-a:2375")
	assert.Equal(t, HalfOpen, r.State("host-a:2375"))

	r.Close("host-a:2375")
	assert.Equal(t, Closed, r.State("host-a:2375"))
}

func TestRegistry_LazyPerHost(t *testing.T) {
	r := NewRegistry(Config{MaxFailures: 1, ResetTimeout: time.Minute})

	assert.Equal(t, Closed, r.State("host-a:2375"))
	assert.Empty(t, r.Hosts())

	r.RecordFailure("host-a:2375")
	assert.Equal(t, Open, r.State("host-a:2375"))
	assert.Equal(t, Closed, r.State("host-b:2375"), "unrelated host must not be affected")
	assert.ElementsMatch(t, []string{"host-a:2375"}, r.Hosts())
}

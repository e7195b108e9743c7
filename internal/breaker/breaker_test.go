package breaker

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-master/internal/errors"
)

func testManager(openFor time.Duration) *Manager {
	return NewManager(Config{
		FailureThreshold: 3,
		OpenDuration:     openFor,
		SuccessThreshold: 2,
	}, slog.Default())
}

func failing() (any, error)    { return nil, errors.Network("ieee", nil) }
func succeeding() (any, error) { return "ok", nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	m := testManager(time.Minute)

	for i := 0; i < 3; i++ {
		_, err := m.Execute("ieee", failing)
		require.Error(t, err)
	}
	assert.Equal(t, "open", m.State("ieee"))
	assert.False(t, m.CanRequest("ieee"))

	// Short-circuited: fn must not run.
	ran := false
	_, err := m.Execute("ieee", func() (any, error) {
		ran = true
		return nil, nil
	})
	require.Error(t, err)
	assert.False(t, ran)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	m := testManager(30 * time.Millisecond)

	for i := 0; i < 3; i++ {
		m.Execute("core", failing)
	}
	require.Equal(t, "open", m.State("core"))

	time.Sleep(50 * time.Millisecond)

	// First probe moves the breaker to half-open; two successes close it.
	_, err := m.Execute("core", succeeding)
	require.NoError(t, err)
	_, err = m.Execute("core", succeeding)
	require.NoError(t, err)
	assert.Equal(t, "closed", m.State("core"))
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	m := testManager(30 * time.Millisecond)

	for i := 0; i < 3; i++ {
		m.Execute("base", failing)
	}
	time.Sleep(50 * time.Millisecond)

	_, err := m.Execute("base", failing)
	require.Error(t, err)
	assert.Equal(t, "open", m.State("base"))
}

func TestPermanentErrorsDoNotTrip(t *testing.T) {
	m := testManager(time.Minute)

	for i := 0; i < 10; i++ {
		_, err := m.Execute("crossref", func() (any, error) {
			return nil, errors.NotFound("crossref", "no such doi")
		})
		require.Error(t, err)
	}
	assert.Equal(t, "closed", m.State("crossref"))
	assert.True(t, m.CanRequest("crossref"))
}

func TestStateOfUnknownProvider(t *testing.T) {
	m := testManager(time.Minute)
	assert.Equal(t, "closed", m.State("never-seen"))
	assert.Empty(t, m.Snapshot())
}

func TestSnapshotAndStateChangeHook(t *testing.T) {
	m := testManager(time.Minute)
	var transitions []string
	m.OnStateChange = func(provider, from, to string) {
		transitions = append(transitions, provider+":"+from+"->"+to)
	}

	for i := 0; i < 3; i++ {
		m.Execute("osf", failing)
	}
	snap := m.Snapshot()
	assert.Equal(t, "open", snap["osf"])
	require.NotEmpty(t, transitions)
	assert.Equal(t, "osf:closed->open", transitions[0])
}

// Package breaker isolates failing providers behind per-provider circuit
// breakers. The breaker sits outside the retry executor, so one retried
// request sequence registers as a single success or failure.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"research-master/internal/errors"
)

// Config mirrors the circuit thresholds: trip after FailureThreshold
// consecutive failures, stay open for OpenDuration, then allow
// SuccessThreshold half-open probes before closing again.
type Config struct {
	FailureThreshold uint32
	OpenDuration     time.Duration
	SuccessThreshold uint32
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenDuration:     60 * time.Second,
		SuccessThreshold: 3,
	}
}

// Manager lazily creates one breaker per provider id.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	logger   *slog.Logger
	breakers map[string]*gobreaker.CircuitBreaker

	// OnStateChange, when set, observes transitions (for metrics).
	OnStateChange func(provider, from, to string)
}

func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.FailureThreshold == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (m *Manager) get(id string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[id]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: m.cfg.SuccessThreshold,
		Timeout:     m.cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.cfg.FailureThreshold
		},
		// A permanent error (404, bad request) means the upstream answered;
		// only transient failures count against the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("circuit state changed",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if m.OnStateChange != nil {
				m.OnStateChange(name, from.String(), to.String())
			}
		},
	})
	m.breakers[id] = cb
	return cb
}

// Execute runs fn through the provider's breaker. While the circuit is
// open the call fails immediately without touching the network.
func (m *Manager) Execute(id string, fn func() (any, error)) (any, error) {
	out, err := m.get(id).Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, &errors.Error{
			Kind:     errors.KindAPI,
			Provider: id,
			Msg:      "circuit breaker open",
		}
	}
	return out, err
}

// CanRequest reports whether a call to the provider would currently be
// allowed through.
func (m *Manager) CanRequest(id string) bool {
	return m.get(id).State() != gobreaker.StateOpen
}

// State returns "closed", "half-open" or "open" for the provider.
// Providers never seen report "closed".
func (m *Manager) State(id string) string {
	m.mu.Lock()
	cb, ok := m.breakers[id]
	m.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

// Snapshot lists the state of every breaker created so far.
func (m *Manager) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.breakers))
	for id, cb := range m.breakers {
		out[id] = cb.State().String()
	}
	return out
}

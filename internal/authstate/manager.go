/*
 * internal/authstate/manager.go
 *
 * Tracks whether the service account's own cluster API connection is
 * currently healthy, independent of any individual caller's bearer token.
 * pkg/clusterauth's TokenReview calls, and the OAuth discovery HTTP client
 * AuthAwareTransport wraps, both report their outcomes here so a single
 * state machine governs bounded, backed-off recovery rather than each call
 * site retrying on its own. SelfSubjectAccessReview calls do not report.
 */

package authstate

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxAttempts is a recommended value for Config.MaxAttempts. New
// does not substitute it for a zero MaxAttempts: zero disables automatic
// recovery.
const DefaultMaxAttempts = 4

// DefaultBackoffSchedule is the delay schedule between recovery attempts
// when Config.BackoffSchedule is nil. The first attempt runs immediately.
var DefaultBackoffSchedule = []time.Duration{0, 5 * time.Second, 10 * time.Second, 15 * time.Second}

// Config configures a Manager.
type Config struct {
	// MaxAttempts is the number of recovery attempts before giving up and
	// settling in StateInvalid. Zero disables automatic recovery: a
	// reported failure goes straight to StateInvalid.
	MaxAttempts int

	// BackoffSchedule is the delay before each recovery attempt. Shorter
	// than MaxAttempts, its last entry is reused for remaining attempts.
	// Nil uses DefaultBackoffSchedule when MaxAttempts > 0.
	BackoffSchedule []time.Duration

	// OnStateChange, if set, is called synchronously whenever the state
	// changes, useful for surfacing transitions to telemetry.
	OnStateChange func(state State, reason string)

	// RecoveryTest probes whether the cluster connection has recovered. A
	// nil RecoveryTest is only sensible alongside MaxAttempts == 0 or
	// BackoffSchedule{0}: with nothing to actually check, recovery
	// declares success on the first attempt.
	RecoveryTest func() error
}

// Manager tracks State and drives recovery. Safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	state         State
	failureReason string
	config        Config

	ctx            context.Context
	cancel         context.CancelFunc
	recoveryCancel context.CancelFunc

	wg sync.WaitGroup
}

// New builds a Manager starting in StateValid.
func New(cfg Config) *Manager {
	backoff := cfg.BackoffSchedule
	if backoff == nil && cfg.MaxAttempts > 0 {
		backoff = DefaultBackoffSchedule
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		state: StateValid,
		config: Config{
			MaxAttempts:     cfg.MaxAttempts,
			BackoffSchedule: backoff,
			OnStateChange:   cfg.OnStateChange,
			RecoveryTest:    cfg.RecoveryTest,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current state and, for a non-valid state, the reason
// it was entered.
func (m *Manager) State() (State, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.failureReason
}

// IsValid reports whether the current state is StateValid.
func (m *Manager) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateValid
}

// ReportFailure records a cluster-call failure. Idempotent: a second
// failure reported while already StateInvalid or StateRecovering is
// ignored, since recovery (or its exhaustion) is already in flight.
func (m *Manager) ReportFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateValid {
		return
	}

	if m.config.MaxAttempts > 0 {
		m.setState(StateRecovering, reason)
		m.startRecoveryLocked()
	} else {
		m.setState(StateInvalid, reason)
	}
}

// ReportSuccess records a cluster-call success, resetting to StateValid
// from any other state and cancelling any recovery attempt in flight.
func (m *Manager) ReportSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recoveryCancel != nil {
		m.recoveryCancel()
		m.recoveryCancel = nil
	}

	if m.state != StateValid {
		m.setState(StateValid, "")
	}
}

// TriggerRetry restarts recovery from StateInvalid on demand - a host can
// wire this to a manual "retry" action. A failure reported while in
// StateInvalid does not restart recovery; only TriggerRetry or a reported
// success leaves that state. Ignored outside StateInvalid.
func (m *Manager) TriggerRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateInvalid {
		return
	}

	reason := m.failureReason
	if m.config.MaxAttempts > 0 {
		m.setState(StateRecovering, reason)
		m.startRecoveryLocked()
	}
}

// Shutdown cancels any in-flight recovery and waits for its goroutine to
// return.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.recoveryCancel != nil {
		m.recoveryCancel()
		m.recoveryCancel = nil
	}
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
}

// setState must be called with m.mu held.
func (m *Manager) setState(newState State, reason string) {
	if m.state == newState && m.failureReason == reason {
		return
	}
	m.state = newState
	m.failureReason = reason
	if m.config.OnStateChange != nil {
		m.config.OnStateChange(newState, reason)
	}
}

// startRecoveryLocked must be called with m.mu held.
func (m *Manager) startRecoveryLocked() {
	if m.recoveryCancel != nil {
		m.recoveryCancel()
	}

	recoveryCtx, recoveryCancel := context.WithCancel(m.ctx)
	m.recoveryCancel = recoveryCancel

	m.wg.Add(1)
	go m.runRecovery(recoveryCtx)
}

func (m *Manager) runRecovery(ctx context.Context) {
	defer m.wg.Done()

	for attempt := 0; attempt < m.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if delay := m.getBackoffDelay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.testRecovery(); err == nil {
			m.mu.Lock()
			if ctx.Err() == nil && m.state == StateRecovering {
				m.setState(StateValid, "")
			}
			m.mu.Unlock()
			return
		}
	}

	m.mu.Lock()
	if ctx.Err() == nil && m.state == StateRecovering {
		m.setState(StateInvalid, "recovery failed after maximum attempts")
	}
	m.mu.Unlock()
}

func (m *Manager) getBackoffDelay(attempt int) time.Duration {
	if len(m.config.BackoffSchedule) == 0 {
		return 0
	}
	if attempt >= len(m.config.BackoffSchedule) {
		return m.config.BackoffSchedule[len(m.config.BackoffSchedule)-1]
	}
	return m.config.BackoffSchedule[attempt]
}

func (m *Manager) testRecovery() error {
	if m.config.RecoveryTest == nil {
		return nil
	}
	return m.config.RecoveryTest()
}

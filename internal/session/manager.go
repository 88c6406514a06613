// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

// Package session implements the authentication state machine that gates
// access to stored secrets: Locked -> Authenticating -> Unlocked, with an
// inactivity timeout that drops the session back to Locked.
//
// The platform pieces are injected: a BiometricAuthenticator wraps whatever
// presence prompt the host offers, and a PINGate (satisfied by *vault.Store)
// verifies the fallback PIN. With neither configured, unlocking succeeds
// immediately.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keyplane-btc/keyplane/internal/util"
)

var (
	// ErrNotAuthenticated is returned by Require when the session is not
	// unlocked.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired is returned by Require when an unlocked session
	// passed its inactivity deadline.
	ErrSessionExpired = errors.New("session expired")

	// ErrPINRequired signals that biometric authentication is unavailable
	// or was refused and the caller should collect a PIN and call
	// PINAttempt.
	ErrPINRequired = errors.New("PIN required")

	// ErrNotAuthenticating is returned by PINAttempt outside of an unlock
	// flow.
	ErrNotAuthenticating = errors.New("no authentication in progress")

	// ErrAuthInProgress is returned by Request when an unlock flow is
	// already underway.
	ErrAuthInProgress = errors.New("authentication already in progress")
)

// DefaultTimeout is the inactivity deadline applied when the config does not
// set one.
const DefaultTimeout = 5 * time.Minute

// State is the lock state of the session.
type State int

const (
	StateLocked State = iota
	StateAuthenticating
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateAuthenticating:
		return "authenticating"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BiometricAuthenticator is the injected platform presence check.
type BiometricAuthenticator interface {
	// Authenticate blocks on the platform prompt. A nil return means the
	// user passed the check.
	Authenticate(ctx context.Context) error

	// Available reports whether the check can be attempted right now.
	Available() bool

	// Method names the mechanism for display ("fingerprint", "faceid").
	Method() string
}

// PINGate verifies the fallback PIN. *vault.Store satisfies it. PIN bytes
// stay owned by the caller so they can be zeroed after the attempt.
type PINGate interface {
	VerifyPIN(pin []byte) bool
	HasPIN() bool
}

// Change is one lock-state transition, delivered to subscribers.
type Change struct {
	From State
	To   State
	At   time.Time
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State  State
	Expiry time.Time // zero when locked or no timeout configured
}

// Config carries the Manager's collaborators and policy.
type Config struct {
	Biometric BiometricAuthenticator // nil: no biometric path
	PINGate   PINGate                // nil: no PIN path
	Timeout   time.Duration          // 0: DefaultTimeout; negative: never expire
}

// Manager is the session state machine. All methods are safe for concurrent
// use.
type Manager struct {
	mu        sync.Mutex
	state     State
	biometric BiometricAuthenticator
	pinGate   PINGate
	timeout   time.Duration

	sessionTimerMu sync.Mutex
	sessionTimer   *time.Timer
	lastActivity   atomic.Int64

	subsMu  sync.Mutex
	subs    map[int]chan Change
	nextSub int
}

// NewManager returns a locked Manager.
func NewManager(cfg Config) *Manager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		state:     StateLocked,
		biometric: cfg.Biometric,
		pinGate:   cfg.PINGate,
		timeout:   timeout,
		subs:      make(map[int]chan Change),
	}
}

// Request runs the unlock flow. With no gate configured the session unlocks
// immediately. When a biometric authenticator is available it is tried
// first; on refusal (or when only a PIN is configured) Request leaves the
// session in Authenticating and returns ErrPINRequired so the caller can
// collect a PIN for PINAttempt. Cancelling ctx aborts the flow and locks.
func (m *Manager) Request(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateUnlocked:
		m.mu.Unlock()
		m.resetSessionTimer()
		return nil
	case StateAuthenticating:
		m.mu.Unlock()
		return ErrAuthInProgress
	}
	m.setStateLocked(StateAuthenticating)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		m.lock()
		return err
	}

	hasBiometric := m.biometric != nil && m.biometric.Available()
	hasPIN := m.pinGate != nil && m.pinGate.HasPIN()

	if !hasBiometric && !hasPIN {
		m.unlock()
		return nil
	}

	if hasBiometric {
		err := m.biometric.Authenticate(ctx)
		if err == nil {
			m.unlock()
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Cancelled mid-prompt: never half-unlocked.
			m.lock()
			return ctxErr
		}
		util.Logger.Debug("biometric authentication failed",
			"method", m.biometric.Method(), "error", err)
		if !hasPIN {
			m.lock()
			return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
	}

	// PIN fallback: stay in Authenticating and wait for PINAttempt.
	return ErrPINRequired
}

// PINAttempt verifies pin during an unlock flow. A correct PIN unlocks the
// session; a wrong one reports false and leaves the flow in Authenticating
// so the caller may retry or give up via Logout.
func (m *Manager) PINAttempt(pin []byte) (bool, error) {
	m.mu.Lock()
	if m.state != StateAuthenticating {
		m.mu.Unlock()
		return false, ErrNotAuthenticating
	}
	m.mu.Unlock()

	if m.pinGate == nil || !m.pinGate.HasPIN() {
		m.lock()
		return false, fmt.Errorf("%w: no PIN configured", ErrNotAuthenticated)
	}
	if !m.pinGate.VerifyPIN(pin) {
		return false, nil
	}
	m.unlock()
	return true, nil
}

// Logout locks the session and stops the inactivity timer.
func (m *Manager) Logout() {
	m.lock()
}

// Background handles the app losing foreground: the session locks
// immediately rather than waiting out the inactivity deadline.
func (m *Manager) Background() {
	m.lock()
}

// Foreground handles the app returning to foreground. The session stays
// locked; the next secret access must run Request again.
func (m *Manager) Foreground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Interrupted unlock flows do not survive a background round-trip.
	if m.state == StateAuthenticating {
		m.setStateLocked(StateLocked)
	}
}

// Require is the capability check before any secret access: nil when
// unlocked and within the inactivity deadline, ErrSessionExpired when the
// deadline has passed, ErrNotAuthenticated otherwise.
func (m *Manager) Require() error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	if state != StateUnlocked {
		return ErrNotAuthenticated
	}
	if m.timeout > 0 &&
		time.Since(time.Unix(0, m.lastActivity.Load())) >= m.timeout {
		m.lock()
		return ErrSessionExpired
	}
	return nil
}

// Extend bumps the activity clock of an unlocked session, pushing out the
// inactivity deadline.
func (m *Manager) Extend() {
	m.mu.Lock()
	unlocked := m.state == StateUnlocked
	m.mu.Unlock()
	if unlocked {
		m.resetSessionTimer()
	}
}

// State returns the current lock state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current state and, when unlocked with a timeout, the
// inactivity deadline.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{State: m.state}
	if m.state == StateUnlocked && m.timeout > 0 {
		snap.Expiry = time.Unix(0, m.lastActivity.Load()).Add(m.timeout)
	}
	return snap
}

// Subscribe registers an observer for lock-state transitions. The channel is
// buffered and delivery is non-blocking: a subscriber that stops draining
// loses events rather than stalling the state machine. The returned cancel
// function unregisters and closes the channel.
func (m *Manager) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 8)

	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subsMu.Unlock()

	cancel := func() {
		m.subsMu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.subsMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) unlock() {
	m.mu.Lock()
	m.setStateLocked(StateUnlocked)
	m.mu.Unlock()
	m.resetSessionTimer()
}

func (m *Manager) lock() {
	m.stopSessionTimer()
	m.mu.Lock()
	m.setStateLocked(StateLocked)
	m.mu.Unlock()
}

// setStateLocked transitions the state and notifies subscribers. Caller
// holds m.mu.
func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	change := Change{From: m.state, To: next, At: time.Now()}
	m.state = next

	m.subsMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
		}
	}
	m.subsMu.Unlock()
}

// resetSessionTimer resets (or starts) the inactivity timer. When the timer
// fires the session locks. Safe for concurrent use.
func (m *Manager) resetSessionTimer() {
	if m.timeout <= 0 {
		return
	}
	m.lastActivity.Store(time.Now().UnixNano())
	m.sessionTimerMu.Lock()
	defer m.sessionTimerMu.Unlock()
	if m.sessionTimer != nil {
		m.sessionTimer.Reset(m.timeout)
	} else {
		m.sessionTimer = time.AfterFunc(m.timeout, func() {
			// Guard against stale callback: if activity occurred after
			// this timer was scheduled, re-arm instead of locking.
			if time.Since(time.Unix(0, m.lastActivity.Load())) < m.timeout {
				m.resetSessionTimer()
				return
			}
			util.Logger.Debug("session timeout, locking", "timeout", m.timeout)
			m.lock()
		})
	}
}

// stopSessionTimer stops the inactivity timer if running. Safe for
// concurrent use from lock(), shutdown, and timer callbacks.
func (m *Manager) stopSessionTimer() {
	m.sessionTimerMu.Lock()
	defer m.sessionTimerMu.Unlock()
	if m.sessionTimer != nil {
		m.sessionTimer.Stop()
		m.sessionTimer = nil
	}
}

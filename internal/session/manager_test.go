// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 Keyplane Authors

package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockBiometric scripts the platform presence check.
type mockBiometric struct {
	available bool
	err       error
	calls     int
	block     chan struct{} // when set, Authenticate waits for ctx or close
}

func (m *mockBiometric) Authenticate(ctx context.Context) error {
	m.calls++
	if m.block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.block:
		}
	}
	return m.err
}

func (m *mockBiometric) Available() bool { return m.available }
func (m *mockBiometric) Method() string  { return "mock" }

// mockPINGate verifies against a fixed PIN.
type mockPINGate struct {
	pin string
}

func (m *mockPINGate) VerifyPIN(pin []byte) bool { return m.pin != "" && string(pin) == m.pin }
func (m *mockPINGate) HasPIN() bool              { return m.pin != "" }

func TestNoGateUnlocksImmediately(t *testing.T) {
	m := NewManager(Config{})

	if m.State() != StateLocked {
		t.Fatalf("initial state: got %v, want locked", m.State())
	}
	if err := m.Require(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Require while locked: got %v, want ErrNotAuthenticated", err)
	}

	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if m.State() != StateUnlocked {
		t.Fatalf("state after Request: got %v, want unlocked", m.State())
	}
	if err := m.Require(); err != nil {
		t.Fatalf("Require while unlocked: %v", err)
	}
}

func TestBiometricSuccess(t *testing.T) {
	bio := &mockBiometric{available: true}
	m := NewManager(Config{Biometric: bio, PINGate: &mockPINGate{pin: "1234"}})

	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if m.State() != StateUnlocked {
		t.Fatalf("state: got %v, want unlocked", m.State())
	}
	if bio.calls != 1 {
		t.Fatalf("biometric calls: got %d, want 1", bio.calls)
	}
}

func TestBiometricFailureFallsBackToPIN(t *testing.T) {
	bio := &mockBiometric{available: true, err: errors.New("finger not recognized")}
	m := NewManager(Config{Biometric: bio, PINGate: &mockPINGate{pin: "1234"}})

	if err := m.Request(context.Background()); !errors.Is(err, ErrPINRequired) {
		t.Fatalf("Request: got %v, want ErrPINRequired", err)
	}
	if m.State() != StateAuthenticating {
		t.Fatalf("state: got %v, want authenticating", m.State())
	}

	ok, err := m.PINAttempt([]byte("9999"))
	if err != nil {
		t.Fatalf("PINAttempt (wrong): %v", err)
	}
	if ok {
		t.Fatal("expected wrong PIN to be rejected")
	}
	if m.State() != StateAuthenticating {
		t.Fatal("expected wrong PIN to leave flow in authenticating")
	}

	ok, err = m.PINAttempt([]byte("1234"))
	if err != nil {
		t.Fatalf("PINAttempt (correct): %v", err)
	}
	if !ok || m.State() != StateUnlocked {
		t.Fatalf("expected unlock after correct PIN, state %v", m.State())
	}
}

func TestBiometricUnavailableGoesToPIN(t *testing.T) {
	bio := &mockBiometric{available: false}
	m := NewManager(Config{Biometric: bio, PINGate: &mockPINGate{pin: "1234"}})

	if err := m.Request(context.Background()); !errors.Is(err, ErrPINRequired) {
		t.Fatalf("Request: got %v, want ErrPINRequired", err)
	}
	if bio.calls != 0 {
		t.Fatal("expected unavailable biometric not to be prompted")
	}
}

func TestBiometricFailureNoPINLocks(t *testing.T) {
	bio := &mockBiometric{available: true, err: errors.New("denied")}
	m := NewManager(Config{Biometric: bio})

	if err := m.Request(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Request: got %v, want ErrNotAuthenticated", err)
	}
	if m.State() != StateLocked {
		t.Fatalf("state: got %v, want locked", m.State())
	}
}

func TestRequestCancellation(t *testing.T) {
	bio := &mockBiometric{available: true, block: make(chan struct{})}
	m := NewManager(Config{Biometric: bio, PINGate: &mockPINGate{pin: "1234"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Request(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Request: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Request did not return after cancellation")
	}
	if m.State() != StateLocked {
		t.Fatalf("state after cancel: got %v, want locked", m.State())
	}
}

func TestPINAttemptOutsideFlow(t *testing.T) {
	m := NewManager(Config{PINGate: &mockPINGate{pin: "1234"}})
	if _, err := m.PINAttempt([]byte("1234")); !errors.Is(err, ErrNotAuthenticating) {
		t.Fatalf("PINAttempt while locked: got %v, want ErrNotAuthenticating", err)
	}
}

func TestConcurrentRequestRejected(t *testing.T) {
	bio := &mockBiometric{available: true, block: make(chan struct{})}
	m := NewManager(Config{Biometric: bio, PINGate: &mockPINGate{pin: "1234"}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Request(ctx) }()
	time.Sleep(50 * time.Millisecond)

	if err := m.Request(context.Background()); !errors.Is(err, ErrAuthInProgress) {
		t.Fatalf("second Request: got %v, want ErrAuthInProgress", err)
	}

	close(bio.block)
	if err := <-done; err != nil {
		t.Fatalf("first Request: %v", err)
	}
}

func TestLogoutLocks(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}
	m.Logout()
	if m.State() != StateLocked {
		t.Fatalf("state after Logout: got %v, want locked", m.State())
	}
	if err := m.Require(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Require after Logout: got %v, want ErrNotAuthenticated", err)
	}
}

func TestBackgroundLocksImmediately(t *testing.T) {
	m := NewManager(Config{Timeout: time.Hour})
	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}
	m.Background()
	if m.State() != StateLocked {
		t.Fatalf("state after Background: got %v, want locked", m.State())
	}
	m.Foreground()
	if m.State() != StateLocked {
		t.Fatal("expected Foreground to leave session locked")
	}
}

func TestForegroundAbortsPendingFlow(t *testing.T) {
	m := NewManager(Config{PINGate: &mockPINGate{pin: "1234"}})
	if err := m.Request(context.Background()); !errors.Is(err, ErrPINRequired) {
		t.Fatalf("Request: got %v, want ErrPINRequired", err)
	}
	m.Background()
	m.Foreground()
	if m.State() != StateLocked {
		t.Fatalf("state: got %v, want locked", m.State())
	}
	if _, err := m.PINAttempt([]byte("1234")); !errors.Is(err, ErrNotAuthenticating) {
		t.Fatalf("PINAttempt after background: got %v, want ErrNotAuthenticating", err)
	}
}

func TestInactivityTimeout(t *testing.T) {
	m := NewManager(Config{Timeout: 80 * time.Millisecond})
	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for m.State() != StateLocked {
		select {
		case <-deadline:
			t.Fatal("session did not lock after inactivity timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := m.Require(); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Require after timeout: got %v, want ErrNotAuthenticated", err)
	}
}

func TestExtendDefersTimeout(t *testing.T) {
	m := NewManager(Config{Timeout: 150 * time.Millisecond})
	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}

	// Keep touching the session past the original deadline.
	for i := 0; i < 4; i++ {
		time.Sleep(60 * time.Millisecond)
		m.Extend()
		if err := m.Require(); err != nil {
			t.Fatalf("Require after Extend #%d: %v", i, err)
		}
	}
}

func TestNegativeTimeoutNeverExpires(t *testing.T) {
	m := NewManager(Config{Timeout: -1})
	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := m.Require(); err != nil {
		t.Fatalf("Require: %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewManager(Config{Timeout: time.Hour})

	snap := m.Snapshot()
	if snap.State != StateLocked || !snap.Expiry.IsZero() {
		t.Fatalf("locked snapshot: %+v", snap)
	}

	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}
	snap = m.Snapshot()
	if snap.State != StateUnlocked {
		t.Fatalf("unlocked snapshot state: %v", snap.State)
	}
	if remaining := time.Until(snap.Expiry); remaining < 59*time.Minute || remaining > time.Hour {
		t.Fatalf("expiry out of range: %v", remaining)
	}
}

func TestSubscribeObservesTransitions(t *testing.T) {
	m := NewManager(Config{})
	ch, cancel := m.Subscribe()
	defer cancel()

	if err := m.Request(context.Background()); err != nil {
		t.Fatalf("Request: %v", err)
	}
	m.Logout()

	want := []struct{ from, to State }{
		{StateLocked, StateAuthenticating},
		{StateAuthenticating, StateUnlocked},
		{StateUnlocked, StateLocked},
	}
	for i, w := range want {
		select {
		case change := <-ch:
			if change.From != w.from || change.To != w.to {
				t.Fatalf("transition %d: got %v->%v, want %v->%v",
					i, change.From, change.To, w.from, w.to)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing transition %d", i)
		}
	}
}

func TestSubscribeCancelCloses(t *testing.T) {
	m := NewManager(Config{})
	ch, cancel := m.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
	cancel() // idempotent
}

func TestStateString(t *testing.T) {
	if StateLocked.String() != "locked" ||
		StateAuthenticating.String() != "authenticating" ||
		StateUnlocked.String() != "unlocked" {
		t.Fatal("unexpected state strings")
	}
}

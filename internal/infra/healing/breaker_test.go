package healing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dadbase/dadbase/internal/domain"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

type flakySink struct {
	fail  bool
	calls int
}

func (f *flakySink) Notify(context.Context, domain.Notification) error {
	f.calls++
	if f.fail {
		return errors.New("sink down")
	}
	return nil
}

func newTestBreaker(t *testing.T, sink domain.Notifier, now *time.Time) *Breaker {
	t.Helper()
	b := Guard("test-sink", sink, Config{
		FailureThreshold: 3,
		ResetTimeout:     time.Second,
		HalfOpenProbes:   2,
	})
	b.now = func() time.Time { return *now }
	return b
}

func notify(b *Breaker) error {
	return b.Notify(context.Background(), domain.Notification{UserID: "u1", Type: domain.NotifyLevelUp})
}

// ─── State ──────────────────────────────────────────────────────────────────

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Closed, "CLOSED"},
		{Open, "OPEN"},
		{HalfOpen, "HALF_OPEN"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestGuard_Defaults(t *testing.T) {
	b := Guard("defaults", &flakySink{}, Config{})
	if b.config != DefaultConfig() {
		t.Errorf("config = %+v, want defaults", b.config)
	}
	if b.State() != Closed {
		t.Errorf("initial state = %s, want CLOSED", b.State())
	}
}

// ─── Transitions ────────────────────────────────────────────────────────────

func TestBreaker_TripsAndSkips(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sink := &flakySink{fail: true}
	b := newTestBreaker(t, sink, &now)

	for i := 0; i < 3; i++ {
		if err := notify(b); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("delivery %d: err = %v, want sink error", i, err)
		}
	}
	if b.State() != Open || b.Trips() != 1 {
		t.Fatalf("state = %s trips = %d, want OPEN after 3 failures", b.State(), b.Trips())
	}

	if err := notify(b); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker: err = %v, want ErrCircuitOpen", err)
	}
	if sink.calls != 3 {
		t.Errorf("sink calls = %d, want 3 (open breaker must not call the sink)", sink.calls)
	}
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sink := &flakySink{fail: true}
	b := newTestBreaker(t, sink, &now)
	for i := 0; i < 3; i++ {
		notify(b)
	}

	now = now.Add(time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state after timeout = %s, want HALF_OPEN", b.State())
	}

	sink.fail = false
	notify(b)
	if b.State() != HalfOpen {
		t.Errorf("state after one probe = %s, want HALF_OPEN", b.State())
	}
	notify(b)
	if b.State() != Closed {
		t.Errorf("state after two probes = %s, want CLOSED", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sink := &flakySink{fail: true}
	b := newTestBreaker(t, sink, &now)
	for i := 0; i < 3; i++ {
		notify(b)
	}
	now = now.Add(time.Second)

	notify(b)
	if b.State() != Open || b.Trips() != 2 {
		t.Errorf("state = %s trips = %d, want OPEN with 2 trips", b.State(), b.Trips())
	}
}

func TestBreaker_SuccessDecaysFailures(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	sink := &flakySink{fail: true}
	b := newTestBreaker(t, sink, &now)

	notify(b)
	notify(b)
	sink.fail = false
	notify(b)
	sink.fail = true
	notify(b)
	if b.State() != Closed {
		t.Errorf("state = %s, want CLOSED (a success decays one failure)", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	b := newTestBreaker(t, &flakySink{fail: true}, &now)
	for i := 0; i < 3; i++ {
		notify(b)
	}
	b.Reset()
	if b.State() != Closed {
		t.Errorf("state after reset = %s, want CLOSED", b.State())
	}
}

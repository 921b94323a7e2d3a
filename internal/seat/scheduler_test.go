package seat

import (
	"context"
	"testing"

	"seatrt/internal/errors"
)

// fakeCallback is a scriptable Callback used to drive the scheduler
// through the scenarios in spec §8 without any real VT/CDB plumbing.
type fakeCallback struct {
	name string
	log  *[]string

	activateErr   error
	deactivateErr error
}

func (f *fakeCallback) Activate() error {
	*f.log = append(*f.log, f.name+".ACTIVATE")
	return f.activateErr
}

func (f *fakeCallback) Deactivate() error {
	*f.log = append(*f.log, f.name+".DEACTIVATE")
	return f.deactivateErr
}

func (f *fakeCallback) Unregister() {
	*f.log = append(*f.log, f.name+".UNREGISTER")
}

type recordingListener struct {
	events []string
}

func (r *recordingListener) OnForeground() { r.events = append(r.events, "FOREGROUND") }
func (r *recordingListener) OnBackground() { r.events = append(r.events, "BACKGROUND") }
func (r *recordingListener) OnSleep()      { r.events = append(r.events, "SLEEP") }

func newTestSeat() (*Seat, *[]string, *recordingListener) {
	calls := &[]string{}
	listener := &recordingListener{}
	s := New(context.Background(), "seat0", listener)
	return s, calls, listener
}

// S1 — cold start, one seat, one session.
func TestS1ColdStartOneSession(t *testing.T) {
	s, calls, _ := newTestSeat()
	if err := s.Wake(); err != nil {
		t.Fatalf("wake: %v", err)
	}
	a := s.Register(1, true, &fakeCallback{name: "A", log: calls})

	if got := []string{"A.ACTIVATE"}; !equal(*calls, got) {
		t.Fatalf("calls = %v, want %v", *calls, got)
	}
	if s.Current() != a {
		t.Fatalf("current = %v, want A", s.Current())
	}
	if s.Scheduled() != a {
		t.Fatalf("scheduled = %v, want A", s.Scheduled())
	}
}

// S2 — synchronous switch.
func TestS2SynchronousSwitch(t *testing.T) {
	s, calls, _ := newTestSeat()
	s.Wake()
	a := s.Register(1, true, &fakeCallback{name: "A", log: calls})
	b := s.Register(2, true, &fakeCallback{name: "B", log: calls})
	*calls = nil

	if err := s.Schedule(b); err != nil {
		t.Fatalf("schedule(b): %v", err)
	}
	want := []string{"A.DEACTIVATE", "B.ACTIVATE"}
	if !equal(*calls, want) {
		t.Fatalf("calls = %v, want %v", *calls, want)
	}
	if s.Current() != b {
		t.Fatalf("current = %v, want B", s.Current())
	}
	_ = a
}

// S3 — async switch via VT_SETMODE process mode (Deactivate returns
// in-progress, completion arrives via NotifyDeactivated).
func TestS3AsyncSwitch(t *testing.T) {
	s, calls, _ := newTestSeat()
	s.Wake()
	a := s.Register(1, true, &fakeCallback{name: "A", log: calls, deactivateErr: errors.New(errors.InProgress, "pending")})
	b := s.Register(2, true, &fakeCallback{name: "B", log: calls})
	*calls = nil

	err := s.Schedule(b)
	if errors.KindOf(err) != errors.InProgress {
		t.Fatalf("schedule(b) = %v, want in-progress", err)
	}
	if s.Current() != a {
		t.Fatalf("current = %v, want A still", s.Current())
	}
	if s.AsyncTask() != AsyncSwitch {
		t.Fatalf("async task = %v, want switch", s.AsyncTask())
	}

	s.NotifyDeactivated(a)
	if s.Current() != b {
		t.Fatalf("current after notify = %v, want B", s.Current())
	}
	want := []string{"A.DEACTIVATE", "B.ACTIVATE"}
	if !equal(*calls, want) {
		t.Fatalf("calls = %v, want %v", *calls, want)
	}
}

// S4 — refusal: deactivation fails synchronously and notify never
// arrives; current must remain A indefinitely.
func TestS4Refusal(t *testing.T) {
	s, calls, _ := newTestSeat()
	s.Wake()
	a := s.Register(1, true, &fakeCallback{name: "A", log: calls, deactivateErr: errors.New(errors.Busy, "refused")})
	b := s.Register(2, true, &fakeCallback{name: "B", log: calls})
	*calls = nil

	err := s.Schedule(b)
	if err == nil {
		t.Fatalf("schedule(b) succeeded, want error")
	}
	if s.Current() != a {
		t.Fatalf("current = %v, want A", s.Current())
	}
	for _, c := range *calls {
		if c == "B.ACTIVATE" {
			t.Fatalf("B was activated despite refusal: %v", *calls)
		}
	}
}

// S5 — forced teardown.
func TestS5ForcedTeardown(t *testing.T) {
	s, calls, listener := newTestSeat()
	s.Wake()
	s.Register(1, true, &fakeCallback{name: "A", log: calls})
	*calls = nil

	if err := s.Sleep(true); err != nil {
		t.Fatalf("sleep(force=true): %v", err)
	}
	if s.Current() != nil {
		t.Fatalf("current = %v, want nil", s.Current())
	}
	if s.Awake() {
		t.Fatalf("awake = true, want false")
	}
	sleeps := 0
	for _, e := range listener.events {
		if e == "SLEEP" {
			sleeps++
		}
	}
	if sleeps != 1 {
		t.Fatalf("SLEEP emitted %d times, want 1", sleeps)
	}
	if len(*calls) == 0 || (*calls)[0] != "A.DEACTIVATE" {
		t.Fatalf("calls = %v, want A.DEACTIVATE first", *calls)
	}
}

func TestRegisteringIDZeroAppendsAtTail(t *testing.T) {
	s, calls, _ := newTestSeat()
	s.Register(5, false, &fakeCallback{name: "five", log: calls})
	zero := s.Register(0, false, &fakeCallback{name: "zero", log: calls})
	s.Register(2, false, &fakeCallback{name: "two", log: calls})

	ids := []int{}
	for _, sess := range s.Sessions() {
		ids = append(ids, sess.ID())
	}
	if ids[len(ids)-1] != 0 || s.Sessions()[len(ids)-1] != zero {
		t.Fatalf("id-0 session not at tail: %v", ids)
	}
	if ids[0] != 2 || ids[1] != 5 {
		t.Fatalf("ascending order violated: %v", ids)
	}
}

func TestUnregisterCurrentDoesNotAutoRun(t *testing.T) {
	s, calls, _ := newTestSeat()
	s.Wake()
	a := s.Register(1, true, &fakeCallback{name: "A", log: calls})
	s.Register(2, true, &fakeCallback{name: "B", log: calls})
	*calls = nil

	s.Unregister(a)
	if s.Current() != nil {
		t.Fatalf("current = %v, want nil after unregistering it", s.Current())
	}
	for _, c := range *calls {
		if c == "B.ACTIVATE" {
			t.Fatalf("run() was invoked after force-unregistering current: %v", *calls)
		}
	}
}

func TestCurrentAlwaysElementOfSessionsOrNil(t *testing.T) {
	s, calls, _ := newTestSeat()
	s.Wake()
	s.Register(1, true, &fakeCallback{name: "A", log: calls})
	b := s.Register(2, true, &fakeCallback{name: "B", log: calls})
	s.Schedule(b)
	s.Sleep(true)

	if s.Current() != nil {
		found := false
		for _, sess := range s.Sessions() {
			if sess == s.Current() {
				found = true
			}
		}
		if !found {
			t.Fatalf("current is not an element of sessions")
		}
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

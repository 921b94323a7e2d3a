package vtmaster

import (
	"context"
	"testing"
	"time"

	"seatrt/internal/eloop"
	"seatrt/internal/errors"
)

type fakeSignaler struct {
	sent []struct{ pid, sig int }
}

func (f *fakeSignaler) Signal(pid, sig int) error {
	f.sent = append(f.sent, struct{ pid, sig int }{pid, sig})
	return nil
}

func newTestMaster() (*Master, *fakeSignaler) {
	sig := &fakeSignaler{}
	m := New(context.Background(), false, sig, 0) // controlFD=0: no real console, always fake
	return m, sig
}

func TestSetKDModeCollapsesTextAliases(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)

	for _, raw := range []int{kdText, kdText0, kdText1} {
		if err := h.SetKDMode(raw); err != nil {
			t.Fatalf("SetKDMode(%d): %v", raw, err)
		}
		if h.KDMode() != KDText {
			t.Errorf("SetKDMode(%d) = %v, want KDText", raw, h.KDMode())
		}
	}
	if err := h.SetKDMode(kdGraphics); err != nil {
		t.Fatalf("SetKDMode(graphics): %v", err)
	}
	if h.KDMode() != KDGraphics {
		t.Errorf("got %v, want KDGraphics", h.KDMode())
	}
}

func TestSetKeyboardModeMapsRawToOff(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)

	if err := h.SetKeyboardMode(kRaw); err != nil {
		t.Fatalf("SetKeyboardMode(K_RAW): %v", err)
	}
	if h.KeyboardMode() != KeyboardOff {
		t.Errorf("K_RAW mapped to %v, want KeyboardOff", h.KeyboardMode())
	}
}

func TestSetKeyboardModeRejectsXlateAndMediumRaw(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)

	for _, raw := range []int{kXlate, kMediumRaw} {
		err := h.SetKeyboardMode(raw)
		if errors.KindOf(err) != errors.NotSupported {
			t.Errorf("SetKeyboardMode(%d) = %v, want NotSupported", raw, err)
		}
	}
}

func TestPollMaskReflectsSeatPresence(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)

	if got := h.PollMask(); got != (PollHangUp | PollReadable | PollWritable) {
		t.Errorf("no-seat poll mask = %v, want HUP|READ|WRITE", got)
	}
	h.SetHasSeat(true)
	if got := h.PollMask(); got != PollWritable {
		t.Errorf("with-seat poll mask = %v, want WRITE only", got)
	}
}

func TestFlushAcceptsKnownSelectorsOnly(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)

	for _, sel := range []int{tcIFlush, tcOFlush, tcIOFlush} {
		if err := h.Flush(sel); err != nil {
			t.Errorf("Flush(%d): %v", sel, err)
		}
	}
	if err := h.Flush(99); err == nil {
		t.Errorf("Flush(99) succeeded, want error")
	}
}

func TestBeginDeactivateAutoModeIsSynchronous(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)

	inProgress, err := h.BeginDeactivate(nil, time.Second, nil)
	if err != nil || inProgress {
		t.Fatalf("auto-mode BeginDeactivate = (%v, %v), want (false, nil)", inProgress, err)
	}
}

func TestBeginDeactivateProcessModeSendsRelsigAndAwaitsReldisp(t *testing.T) {
	m, sig := newTestMaster()
	h := m.Allocate(false)
	h.SetMode(SetModeRequest{Mode: ModeProcess, Relsig: 10, Acqsig: 12, Pid: 4242}, 0)

	l, err := eloop.New(nil)
	if err != nil {
		t.Fatalf("eloop.New: %v", err)
	}
	defer l.Close()

	outcome := make(chan bool, 1)
	inProgress, err := h.BeginDeactivate(l, time.Hour, func(accepted bool) { outcome <- accepted })
	if !inProgress || errors.KindOf(err) != errors.InProgress {
		t.Fatalf("BeginDeactivate = (%v, %v), want (true, in-progress)", inProgress, err)
	}
	if len(sig.sent) != 1 || sig.sent[0].pid != 4242 || sig.sent[0].sig != 10 {
		t.Fatalf("relsig not delivered correctly: %v", sig.sent)
	}

	if err := h.ReleaseDisplay(true); err != nil {
		t.Fatalf("ReleaseDisplay(accept): %v", err)
	}
	select {
	case accepted := <-outcome:
		if !accepted {
			t.Errorf("outcome = false, want true (accepted)")
		}
	default:
		t.Fatalf("onOutcome was never called")
	}
}

func TestReleaseDisplayRefuseNeverCallsOutcome(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)
	h.SetMode(SetModeRequest{Mode: ModeProcess, Relsig: 10, Acqsig: 12, Pid: 1}, 0)

	l, err := eloop.New(nil)
	if err != nil {
		t.Fatalf("eloop.New: %v", err)
	}
	defer l.Close()

	called := false
	if _, err := h.BeginDeactivate(l, time.Hour, func(bool) { called = true }); err == nil {
		t.Fatalf("expected in-progress error")
	}
	if err := h.ReleaseDisplay(false); err != nil {
		t.Fatalf("ReleaseDisplay(refuse): %v", err)
	}
	if called {
		t.Errorf("onOutcome called on refusal, want it never called")
	}
	if h.Deactivating() {
		t.Errorf("still deactivating after refusal")
	}
}

func TestBeginDeactivateTimesOutAndForces(t *testing.T) {
	m, _ := newTestMaster()
	h := m.Allocate(false)
	h.SetMode(SetModeRequest{Mode: ModeProcess, Relsig: 10, Acqsig: 12, Pid: 1}, 0)

	l, err := eloop.New(nil)
	if err != nil {
		t.Fatalf("eloop.New: %v", err)
	}
	defer l.Close()

	outcome := make(chan bool, 1)
	if _, err := h.BeginDeactivate(l, 20*time.Millisecond, func(accepted bool) { outcome <- accepted; l.Exit() }); err == nil {
		t.Fatalf("expected in-progress error")
	}
	if err := l.Run(1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case accepted := <-outcome:
		if !accepted {
			t.Errorf("forced outcome = false, want true")
		}
	default:
		t.Fatalf("timeout never forced completion")
	}
}

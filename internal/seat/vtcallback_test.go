package seat

import (
	"context"
	"testing"

	"seatrt/internal/cdb"
	"seatrt/internal/eloop"
	"seatrt/internal/errors"
	"seatrt/internal/vtmaster"
)

type fakeSignaler struct {
	sent []struct{ pid, sig int }
}

func (f *fakeSignaler) Signal(pid, sig int) error {
	f.sent = append(f.sent, struct{ pid, sig int }{pid, sig})
	return nil
}

func TestVTCallbackActivateMarksHasSeatAndSendsAcqsig(t *testing.T) {
	sig := &fakeSignaler{}
	m := vtmaster.New(context.Background(), false, sig, 0)
	h := m.Allocate(false)
	h.SetMode(vtmaster.SetModeRequest{Mode: vtmaster.ModeProcess, Relsig: 10, Acqsig: 12, Pid: 99}, 0)

	cb := &VTCallback{VT: &cdb.VTSession{Handle: h}}
	if err := cb.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if h.PollMask()&vtmaster.PollHangUp != 0 {
		t.Errorf("hang-up bit still set after Activate")
	}
	if len(sig.sent) != 1 || sig.sent[0].pid != 99 || sig.sent[0].sig != 12 {
		t.Fatalf("acqsig not delivered: %v", sig.sent)
	}
}

func TestVTCallbackDeactivateAutoModeSynchronous(t *testing.T) {
	sig := &fakeSignaler{}
	m := vtmaster.New(context.Background(), false, sig, 0)
	h := m.Allocate(false)

	cb := &VTCallback{VT: &cdb.VTSession{Handle: h}}
	if err := cb.Deactivate(); err != nil {
		t.Fatalf("auto-mode Deactivate: %v", err)
	}
	if h.PollMask()&vtmaster.PollHangUp == 0 {
		t.Errorf("hang-up bit not set after Deactivate")
	}
}

func TestVTCallbackDeactivateProcessModeReturnsInProgress(t *testing.T) {
	sig := &fakeSignaler{}
	m := vtmaster.New(context.Background(), false, sig, 0)
	h := m.Allocate(false)
	h.SetMode(vtmaster.SetModeRequest{Mode: vtmaster.ModeProcess, Relsig: 10, Acqsig: 12, Pid: 99}, 0)
	loop, err := eloop.New(nil)
	if err != nil {
		t.Fatalf("eloop.New: %v", err)
	}
	defer loop.Close()

	seat := New(context.Background(), "seat0", nopListener{})
	cb := &VTCallback{VT: &cdb.VTSession{Handle: h, Loop: loop}}
	sess := seat.Register(1, false, cb)
	cb.SetSession(sess)

	err = cb.Deactivate()
	if errors.KindOf(err) != errors.InProgress {
		t.Fatalf("process-mode Deactivate = %v, want InProgress", err)
	}
	if len(sig.sent) != 1 || sig.sent[0].sig != 10 {
		t.Fatalf("relsig not delivered: %v", sig.sent)
	}
}

package cdb

import (
	"context"
	"testing"

	"seatrt/internal/errors"
	"seatrt/internal/vtmaster"
)

func newTestSession(t *testing.T) (*VTSession, *vtmaster.Master) {
	t.Helper()
	m := vtmaster.New(context.Background(), false, fakeSignaler{}, 0)
	h := m.Allocate(false)
	return &VTSession{Handle: h}, m
}

type fakeSignaler struct{}

func (fakeSignaler) Signal(pid, sig int) error { return nil }

func TestIoctlKDModeRoundTrips(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.Ioctl(ReqKDSetMode, encodeInt(1)); err != nil { // KD_GRAPHICS
		t.Fatalf("KDSETMODE: %v", err)
	}
	out, err := s.Ioctl(ReqKDGetMode, nil)
	if err != nil {
		t.Fatalf("KDGETMODE: %v", err)
	}
	if decodeInt(out) != 1 {
		t.Fatalf("KDGETMODE = %d, want 1 (graphics)", decodeInt(out))
	}
}

func TestIoctlKeyboardModeRawMapsToOff(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.Ioctl(ReqKDSKbMode, encodeInt(0)); err != nil { // K_RAW
		t.Fatalf("KDSKBMODE: %v", err)
	}
	out, err := s.Ioctl(ReqKDGKbMode, nil)
	if err != nil {
		t.Fatalf("KDGKBMODE: %v", err)
	}
	if decodeInt(out) != 4 { // K_OFF
		t.Fatalf("KDGKBMODE = %d, want 4 (K_OFF)", decodeInt(out))
	}
}

func TestIoctlVTSetModeCarriesClientPid(t *testing.T) {
	s, _ := newTestSession(t)
	s.ClientPid = 777
	wire := encodeVTMode(vtmaster.SetModeRequest{Mode: vtmaster.ModeProcess, Relsig: 10, Acqsig: 12})
	if _, err := s.Ioctl(ReqVTSetMode, wire); err != nil {
		t.Fatalf("VT_SETMODE: %v", err)
	}
	got := s.Handle.SetModeState()
	if got.Pid != 777 || got.Relsig != 10 || got.Acqsig != 12 || got.Mode != vtmaster.ModeProcess {
		t.Fatalf("SetModeState = %+v, want pid 777 relsig 10 acqsig 12 process-mode", got)
	}
}

func TestIoctlVTActivateRequiresSwitcher(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.Ioctl(ReqVTActivate, nil); errors.KindOf(err) != errors.NotSupported {
		t.Fatalf("VT_ACTIVATE without a switcher = %v, want NotSupported", err)
	}
}

type fakeSwitcher struct {
	activated  int
	foreground int
}

func (f *fakeSwitcher) Activate(vtNum int) error { f.activated = vtNum; return nil }
func (f *fakeSwitcher) Foreground() int          { return f.foreground }

func TestIoctlVTActivateCallsSwitcher(t *testing.T) {
	s, _ := newTestSession(t)
	sw := &fakeSwitcher{}
	s.Switcher = sw
	if _, err := s.Ioctl(ReqVTActivate, nil); err != nil {
		t.Fatalf("VT_ACTIVATE: %v", err)
	}
	if sw.activated != s.Handle.Number() {
		t.Fatalf("switcher activated vt %d, want %d", sw.activated, s.Handle.Number())
	}
}

func TestIoctlVTWaitActiveFailsUntilForeground(t *testing.T) {
	s, _ := newTestSession(t)
	sw := &fakeSwitcher{foreground: 0} // 0 never matches a real or fake vt number
	s.Switcher = sw

	if _, err := s.Ioctl(ReqVTWaitActive, nil); errors.KindOf(err) != errors.Busy {
		t.Fatalf("VT_WAITACTIVE before foreground = %v, want Busy", err)
	}
	sw.foreground = s.Handle.Number()
	if _, err := s.Ioctl(ReqVTWaitActive, nil); err != nil {
		t.Fatalf("VT_WAITACTIVE once foreground: %v", err)
	}
}

func TestIoctlUnknownRequestIsNotSupported(t *testing.T) {
	s, _ := newTestSession(t)
	if _, err := s.Ioctl(0xdead, nil); errors.KindOf(err) != errors.NotSupported {
		t.Fatalf("unknown ioctl = %v, want NotSupported", err)
	}
}

func TestReadAlwaysReturnsZeroBytes(t *testing.T) {
	s, _ := newTestSession(t)
	n, err := s.Read(make([]byte, 10))
	if n != 0 || err != nil {
		t.Fatalf("Read = (%d, %v), want (0, nil)", n, err)
	}
}

func TestWriteIsAcceptedAndDiscarded(t *testing.T) {
	s, _ := newTestSession(t)
	n, err := s.Write([]byte("hello"))
	if n != 5 || err != nil {
		t.Fatalf("Write = (%d, %v), want (5, nil)", n, err)
	}
}

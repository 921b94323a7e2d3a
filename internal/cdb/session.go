package cdb

import (
	"encoding/binary"
	"time"

	"seatrt/internal/errors"
	"seatrt/internal/eloop"
	"seatrt/internal/vtmaster"
)

// Switcher is the seat-scheduler-level operation VT_ACTIVATE and
// VT_WAITACTIVE need: requesting that a given VT number become (or
// have become) the seat's foreground session. A thin adapter in the
// process entry point implements this over internal/seat.Seat, keeping
// cdb itself free of any dependency on the scheduler package.
type Switcher interface {
	// Activate requests that vtNum become foreground. It must not
	// block; VT_WAITACTIVE callers poll Foreground separately.
	Activate(vtNum int) error
	// Foreground reports the VT number currently foreground on this
	// seat, or 0 if none.
	Foreground() int
}

// ReldispTimeout bounds how long BeginDeactivate waits for a client's
// VT_RELDISP response before forcing the switch through, per spec §4.5.
const ReldispTimeout = 3 * time.Second

// VTSession adapts one internal/vtmaster.Handle to the VTOps interface
// a Node dispatches into, decoding raw ioctl requests arriving from a
// character-device client into the Handle's typed methods.
type VTSession struct {
	Handle   *vtmaster.Handle
	Loop     *eloop.Loop
	Switcher Switcher

	// OnOutcome is invoked by the scheduler side whenever a
	// VT_SETMODE deactivation this session initiated completes via
	// BeginDeactivate, so it can drive the seat scheduler's
	// notify_deactivated. nil if this session isn't currently
	// deactivating.
	OnOutcome func(accepted bool)

	// ClientPid is the pid of the process that opened this VT's
	// character device, the implicit VT_SETMODE controlling pid (the
	// kernel derives it from F_SETOWN; struct vt_mode itself carries
	// no pid field).
	ClientPid int
}

// Ioctl decodes req and dispatches into the bound Handle.
func (s *VTSession) Ioctl(req uint32, in []byte) ([]byte, error) {
	switch req {
	case ReqKDGetMode:
		return encodeInt(int32(s.Handle.KDMode())), nil
	case ReqKDSetMode:
		return nil, s.Handle.SetKDMode(int(decodeInt(in)))
	case ReqKDGKbMode:
		return encodeInt(int32(kernelKeyboardMode(s.Handle.KeyboardMode()))), nil
	case ReqKDSKbMode:
		return nil, s.Handle.SetKeyboardMode(int(decodeInt(in)))
	case ReqTCFlsh:
		return nil, s.Handle.Flush(int(decodeInt(in)))
	case ReqVTGetMode:
		return encodeVTMode(s.Handle.SetModeState()), nil
	case ReqVTSetMode:
		req, waitv := decodeVTMode(in)
		req.Pid = s.ClientPid
		return nil, s.Handle.SetMode(req, waitv)
	case ReqVTReldisp:
		arg := decodeInt(in)
		return nil, s.Handle.ReleaseDisplay(arg != 0)
	case ReqVTActivate:
		if s.Switcher == nil {
			return nil, errors.New(errors.NotSupported, "VT_ACTIVATE requires a seat switcher")
		}
		return nil, s.Switcher.Activate(s.Handle.Number())
	case ReqVTWaitActive:
		if s.Switcher == nil {
			return nil, errors.New(errors.NotSupported, "VT_WAITACTIVE requires a seat switcher")
		}
		if s.Switcher.Foreground() != s.Handle.Number() {
			return nil, errors.New(errors.Busy, "vt is not yet foreground")
		}
		return nil, nil
	default:
		return nil, errors.Errorf(errors.NotSupported, "unknown ioctl request 0x%x", req)
	}
}

// PollMask reports the bound Handle's revents.
func (s *VTSession) PollMask() uint32 { return uint32(s.Handle.PollMask()) }

// Read always returns zero bytes: VT fds in this runtime carry no input
// stream, per spec §4.5.
func (s *VTSession) Read(buf []byte) (int, error) { return 0, nil }

// Write is accepted and discarded; legacy writers to a VT device expect
// success, not a rendering side effect, since rendering happens through
// the video backend, not the character device.
func (s *VTSession) Write(buf []byte) (int, error) { return len(buf), nil }

// BeginDeactivate starts this session's VT_SETMODE handshake, delegating
// to the bound Handle and remembering onOutcome so a later VT_RELDISP
// (routed through Ioctl) can report back to the seat scheduler.
func (s *VTSession) BeginDeactivate(onOutcome func(accepted bool)) (inProgress bool, err error) {
	s.OnOutcome = onOutcome
	return s.Handle.BeginDeactivate(s.Loop, ReldispTimeout, func(accepted bool) {
		cb := s.OnOutcome
		s.OnOutcome = nil
		if cb != nil {
			cb(accepted)
		}
	})
}

func kernelKeyboardMode(m vtmaster.KeyboardMode) int {
	if m == vtmaster.KeyboardOff {
		return 4 // K_OFF
	}
	return 3 // K_UNICODE
}

func encodeInt(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

func decodeInt(b []byte) int32 {
	if len(b) < 4 {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func encodeVTMode(req vtmaster.SetModeRequest) []byte {
	m := vtMode{Relsig: int16(req.Relsig), Acqsig: int16(req.Acqsig)}
	if req.Mode == vtmaster.ModeProcess {
		m.Mode = vtProcessWire
	}
	b := make([]byte, 8)
	b[0] = m.Mode
	b[1] = m.Waitv
	binary.LittleEndian.PutUint16(b[2:], uint16(m.Relsig))
	binary.LittleEndian.PutUint16(b[4:], uint16(m.Acqsig))
	binary.LittleEndian.PutUint16(b[6:], uint16(m.Frsig))
	return b
}

func decodeVTMode(b []byte) (vtmaster.SetModeRequest, int) {
	if len(b) < 8 {
		return vtmaster.SetModeRequest{}, 0
	}
	mode := vtmaster.ModeAuto
	if b[0] == vtProcessWire {
		mode = vtmaster.ModeProcess
	}
	waitv := int(b[1])
	relsig := int(int16(binary.LittleEndian.Uint16(b[2:])))
	acqsig := int(int16(binary.LittleEndian.Uint16(b[4:])))
	return vtmaster.SetModeRequest{Mode: mode, Relsig: relsig, Acqsig: acqsig}, waitv
}

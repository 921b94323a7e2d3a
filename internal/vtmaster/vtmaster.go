// Package vtmaster implements the VT master and VT sessions (spec
// §4.5): the real-vs-fake VT allocation policy, the kernel-compatible
// VT_SETMODE process-mode handshake (relsig/acqsig delivery, bounded
// VT_RELDISP wait, forced deactivation on timeout), KD_TEXT/KD_GRAPHICS
// and keyboard-mode state, and the CDB poll-mask rule.
//
// The signal-delivery-plus-VT_RELDISP-handshake shape is grounded on
// gokrazy/fbstatus's internal/console package (other_examples/), whose
// handleSwitches installs SIGUSR1/SIGUSR2 handlers around VT_SETMODE and
// acks with VT_RELDISP; this package generalizes that from a single
// hardcoded console to an arbitrary number of real or fake VTs driven
// by the seat scheduler rather than a fixed SIGUSR1/SIGUSR2 pair tied to
// one process's own signal handlers. Because no in-pack library wraps
// VT_* ioctls, the numeric ioctl requests are the standard Linux
// linux/vt.h / linux/kd.h values, carried the same raw-constant way
// gokrazy/fbstatus carries its own (unexported) linuxvt package.
package vtmaster

import (
	"context"
	"time"

	"seatrt/internal/ctxutil"
	"seatrt/internal/eloop"
	"seatrt/internal/errors"
	"seatrt/internal/logging"
)

// Mode mirrors the kernel's VT_AUTO / VT_PROCESS distinction from
// VT_SETMODE.
type Mode int

const (
	ModeAuto Mode = iota
	ModeProcess
)

// KDMode mirrors KD_TEXT / KD_GRAPHICS. KD_TEXT0 and KD_TEXT1 collapse
// to KDText per spec §4.5.
type KDMode int

const (
	KDText KDMode = iota
	KDGraphics
)

// KeyboardMode is the mapped subset of kernel keyboard modes this
// runtime exposes: K_UNICODE and K_OFF are real, K_RAW is accepted and
// mapped to K_OFF (see the Open Question decision in DESIGN.md),
// K_XLATE and K_MEDIUMRAW are rejected outright.
type KeyboardMode int

const (
	KeyboardUnicode KeyboardMode = iota
	KeyboardOff
)

// SetModeRequest mirrors struct vt_mode from VT_SETMODE.
type SetModeRequest struct {
	Mode   Mode
	Relsig int
	Acqsig int
	Pid    int
}

// Classification distinguishes a VT backed by a real kernel console from
// one that exists only in this process's bookkeeping.
type Classification int

const (
	Fake Classification = iota
	Real
)

// Signaler delivers a signal to a process. The real implementation
// wraps unix.Kill; tests substitute a recording fake.
type Signaler interface {
	Signal(pid, sig int) error
}

// Master owns the VT allocation policy described in spec §4.5: in
// listen mode no seat may hold a real VT; otherwise the first seat to
// ask gets the real VT if one is free, and every other request gets a
// fake.
type Master struct {
	ctx        context.Context
	listenMode bool
	signaler   Signaler
	controlFD  uintptr // fd of /dev/tty0-equivalent control node, 0 if unavailable

	realHolder *Handle // the one seat currently holding the real VT, if any
	nextFakeID int
}

// New creates a VT master. controlFD is the fd of the console control
// node (conventionally /dev/tty0) used for VT_OPENQRY/VT_ACTIVATE/
// VT_DISALLOCATE; pass 0 when no real console access is available
// (e.g. running without the console group), which degrades every
// allocation to fake regardless of listenMode.
func New(ctx context.Context, listenMode bool, signaler Signaler, controlFD uintptr) *Master {
	return &Master{ctx: ctx, listenMode: listenMode, signaler: signaler, controlFD: controlFD}
}

// Allocate returns a real VT handle if one is available and permitted
// by policy, else a fake one. Real VT allocation never fails the
// caller: it silently degrades to fake, matching spec §4.5's framing of
// fake VTs as a transparent fallback rather than an error condition.
func (m *Master) Allocate(wantReal bool) *Handle {
	if wantReal && !m.listenMode && m.controlFD != 0 && m.realHolder == nil {
		if num, err := openNextFreeVT(m.controlFD); err != nil {
			m.logf("VT_OPENQRY failed, falling back to fake VT: %v", err)
		} else if err := activateVT(m.controlFD, num); err != nil {
			m.logf("activating VT %d failed, falling back to fake VT: %v", num, err)
		} else {
			h := &Handle{master: m, class: Real, num: num, kbd: KeyboardUnicode}
			m.realHolder = h
			return h
		}
	}
	m.nextFakeID++
	return &Handle{master: m, class: Fake, num: -m.nextFakeID, kbd: KeyboardUnicode}
}

// Free releases a handle. Releasing the real VT allows a subsequently
// registered seat to claim it.
func (m *Master) Free(h *Handle) {
	if h.class == Real && m.realHolder == h {
		if err := disallocateVT(m.controlFD, h.num); err != nil {
			m.logf("VT_DISALLOCATE(%d) failed: %v", h.num, err)
		}
		m.realHolder = nil
	}
}

func (m *Master) logf(format string, args ...interface{}) {
	logging.Infof(m.ctx, "vtmaster", format, args...)
}

// Handle is one VT, real or fake, wrapped by a session (spec §3 "VT
// handle").
type Handle struct {
	master *Master
	num    int
	class  Classification

	kd  KDMode
	kbd KeyboardMode

	setmode SetModeRequest

	deactivating bool
	hasSeat      bool

	loop     *eloop.Loop
	relTimer *eloop.Source
	onRelOut func(accepted bool)
}

func (h *Handle) Classification() Classification { return h.class }
func (h *Handle) Number() int                    { return h.num }
func (h *Handle) KDMode() KDMode                 { return h.kd }
func (h *Handle) KeyboardMode() KeyboardMode     { return h.kbd }
func (h *Handle) SetModeState() SetModeRequest    { return h.setmode }
func (h *Handle) Deactivating() bool             { return h.deactivating }

// SetHasSeat marks whether this VT currently has a seat bound to it;
// it drives PollMask's hang-up rule.
func (h *Handle) SetHasSeat(v bool) { h.hasSeat = v }

// SetKDMode implements KDSETMODE, collapsing the KD_TEXT0/KD_TEXT1
// aliases to KDText.
func (h *Handle) SetKDMode(requested int) error {
	switch requested {
	case kdText, kdText0, kdText1:
		h.kd = KDText
	case kdGraphics:
		h.kd = KDGraphics
	default:
		return errors.Errorf(errors.InvalidArgument, "unknown KD mode %d", requested)
	}
	return nil
}

// SetKeyboardMode implements KDSKBMODE. K_RAW is accepted and mapped to
// K_OFF; K_XLATE and K_MEDIUMRAW are refused.
func (h *Handle) SetKeyboardMode(requested int) error {
	switch requested {
	case kUnicode:
		h.kbd = KeyboardUnicode
	case kOff, kRaw:
		h.kbd = KeyboardOff
	case kXlate, kMediumRaw:
		return errors.Errorf(errors.NotSupported, "keyboard mode %d not supported", requested)
	default:
		return errors.Errorf(errors.InvalidArgument, "unknown keyboard mode %d", requested)
	}
	return nil
}

// SetMode implements VT_SETMODE. A non-zero waitv is rejected per the
// Open Question decision recorded in DESIGN.md: the legacy "block
// writes while inactive" contract is not implemented.
func (h *Handle) SetMode(req SetModeRequest, waitv int) error {
	if waitv != 0 {
		return errors.New(errors.NotSupported, "VT_SETMODE waitv is not supported")
	}
	h.setmode = req
	return nil
}

// Flush implements TCFLSH as a no-op validating the selector.
func (h *Handle) Flush(selector int) error {
	switch selector {
	case tcIFlush, tcOFlush, tcIOFlush:
		return nil
	default:
		return errors.Errorf(errors.InvalidArgument, "unknown TCFLSH selector %d", selector)
	}
}

// PollMask implements spec §4.5's poll-mask rule: HUP|READ|WRITE when
// the VT has no seat, WRITE only otherwise (the VT fd carries no input
// stream in this runtime; input is delivered out of band to the
// session).
func (h *Handle) PollMask() PollEvents {
	if !h.hasSeat {
		return PollHangUp | PollReadable | PollWritable
	}
	return PollWritable
}

// PollEvents mirrors the poll(2) revents bits this package cares about.
type PollEvents uint32

const (
	PollReadable PollEvents = 1 << iota
	PollWritable
	PollHangUp
)

// BeginDeactivate starts the VT_SETMODE deactivation handshake described
// in spec §4.5. Auto-mode VTs deactivate synchronously: it returns
// (false, nil) and the caller treats this as immediate success.
// Process-mode VTs return (true, *errors.E of kind InProgress): relsig
// has been sent to the controlling pid, a bounded timer is running on
// loop, and onOutcome is called at most once: from ReleaseDisplay
// (accepted=true on VT_RELDISP accept) or from the timeout
// (accepted=true, forced). A refusal ends the handshake without calling
// it.
func (h *Handle) BeginDeactivate(loop *eloop.Loop, timeout time.Duration, onOutcome func(accepted bool)) (inProgress bool, err error) {
	if h.setmode.Mode != ModeProcess {
		return false, nil
	}
	if err := h.master.signaler.Signal(h.setmode.Pid, h.setmode.Relsig); err != nil {
		return false, errors.Wrap(err, "delivering VT relsig")
	}

	if ctxutil.DeadlineBefore(h.master.ctx, time.Now().Add(timeout)) {
		// The process-wide context is due to expire before this
		// handshake's own VT_RELDISP timeout would fire, so the forced
		// deactivation below never gets a chance to run on its own timer
		// (shutdown tears the loop down first); the caller's teardown
		// path needs to force a deactivate itself rather than rely on
		// this handshake completing on its own.
		h.master.logf("vt %d: process deadline precedes the %v VT_RELDISP window, relying on caller-driven teardown", h.num, timeout)
	}

	h.deactivating = true
	h.loop = loop
	h.onRelOut = onOutcome

	timer, terr := loop.RegisterTimer(timeout, false, func(l *eloop.Loop, src *eloop.Source, expirations uint64) {
		if !h.deactivating {
			return
		}
		h.master.logf("vt %d: VT_RELDISP timed out, forcing deactivation", h.num)
		h.completeRelease(true)
	})
	if terr != nil {
		h.deactivating = false
		return false, errors.Wrap(terr, "arming VT_RELDISP timeout")
	}
	h.relTimer = timer
	return true, errors.New(errors.InProgress, "awaiting VT_RELDISP")
}

// ReleaseDisplay implements the client's VT_RELDISP response. accept
// matches the kernel convention: non-zero argument accepts the switch,
// zero refuses it.
func (h *Handle) ReleaseDisplay(accept bool) error {
	if !h.deactivating {
		return errors.New(errors.InvalidArgument, "no VT_RELDISP pending")
	}
	if accept {
		h.completeRelease(true)
	} else {
		h.cancelTimer()
		h.deactivating = false
		h.onRelOut = nil
	}
	return nil
}

func (h *Handle) completeRelease(accepted bool) {
	h.cancelTimer()
	h.deactivating = false
	cb := h.onRelOut
	h.onRelOut = nil
	if cb != nil {
		cb(accepted)
	}
}

func (h *Handle) cancelTimer() {
	if h.relTimer != nil && h.loop != nil {
		h.loop.Unregister(h.relTimer)
		h.relTimer = nil
	}
}

// AcknowledgeAcquire implements the VT_RELDISP(VT_ACKACQ) a process-mode
// client sends after acqsig delivery, confirming it has redrawn and is
// ready to be foreground. It carries no state transition of its own in
// this runtime; the session is already foreground by the time acqsig is
// sent.
func (h *Handle) AcknowledgeAcquire() error { return nil }

// NotifyAcquire delivers acqsig to a process-mode VT's controlling pid
// when it becomes foreground, per spec §4.5: "on the next activation
// acqsig is delivered to the new foreground's client". Auto-mode VTs
// and VTs with no signal registered are a no-op.
func (h *Handle) NotifyAcquire() error {
	if h.setmode.Mode != ModeProcess || h.setmode.Acqsig == 0 {
		return nil
	}
	if err := h.master.signaler.Signal(h.setmode.Pid, h.setmode.Acqsig); err != nil {
		return errors.Wrap(err, "delivering VT acqsig")
	}
	return nil
}

package seat

import (
	"seatrt/internal/cdb"
)

// VTCallback adapts one character-device-bridge VT session to the
// scheduler's Callback interface, so a legacy VT_SETMODE-aware process
// can be registered as a Session: activation marks the VT as having a
// seat and delivers acqsig if the VT is in process mode; deactivation runs the
// VT_SETMODE handshake (synchronous for auto-mode VTs, relsig-and-wait
// for process-mode ones) and reports back to the scheduler exactly the
// way spec §4.7's Deactivation rule expects.
type VTCallback struct {
	VT      *cdb.VTSession
	session *Session // set via SetSession after Seat.Register returns, for NotifyDeactivated
}

var _ Callback = (*VTCallback)(nil)

// SetSession binds the scheduler Session this callback belongs to, so
// a later asynchronous VT_RELDISP outcome can call back into it. The
// caller must invoke this immediately after Seat.Register returns the
// Session wrapping this callback, before any deactivation can occur.
func (c *VTCallback) SetSession(s *Session) { c.session = s }

// Activate implements Callback.Activate: the VT is marked as having a
// seat (flips the CDB poll-mask rule from hang-up to writable) and, if
// the VT is in VT_SETMODE process mode with an acqsig set, acqsig is
// delivered to the controlling pid on every activation.
func (c *VTCallback) Activate() error {
	c.VT.Handle.SetHasSeat(true)
	return c.VT.Handle.NotifyAcquire()
}

// Deactivate implements Callback.Deactivate, running the bounded
// VT_SETMODE handshake described in spec §4.5. Auto-mode VTs return nil
// synchronously; process-mode VTs return an in-progress error and later
// call the seat's NotifyDeactivated once VT_RELDISP arrives or the
// handshake times out.
func (c *VTCallback) Deactivate() error {
	c.VT.Handle.SetHasSeat(false)
	inProgress, err := c.VT.BeginDeactivate(func(accepted bool) {
		if c.session != nil && c.session.seat != nil {
			c.session.seat.NotifyDeactivated(c.session)
		}
	})
	if !inProgress {
		return err
	}
	return err // *errors.E of kind InProgress, exactly what pause() expects
}

// Unregister implements Callback.Unregister: nothing further to release
// here, since the owning Node/Client lifecycle is managed by the CDB
// registry independently of scheduler registration.
func (c *VTCallback) Unregister() {}

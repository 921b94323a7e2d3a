package seat

import (
	"context"

	"seatrt/internal/cdb"
	"seatrt/internal/devmon"
	"seatrt/internal/eloop"
	"seatrt/internal/errors"
	"seatrt/internal/input"
	"seatrt/internal/input/keymap"
	"seatrt/internal/logging"
	"seatrt/internal/video"
	"seatrt/internal/video/drm"
	"seatrt/internal/video/drmdumb"
	"seatrt/internal/video/fbdev"
	"seatrt/internal/vtmaster"
)

// Controller is the seat controller (SC, spec §4.8): one per seat. It
// owns the seat's scheduler, opens a video backend per accepted
// graphics device, feeds the input aggregate, and reacts to the
// scheduler's foreground/background/sleep edges by waking or sleeping
// every backend it owns.
type Controller struct {
	ctx  context.Context
	loop *eloop.Loop
	tag  string

	Seat  *Seat
	Input *input.Aggregate

	backends   map[string]video.Backend // sysPath -> backend
	inputPaths map[string]string        // sysPath -> device node, for Wake(paths)

	inputSink func(input.Event)

	exitMode      bool
	pendingVTExit int
	onVTExitDone  func()

	vt           *vtmaster.Master
	registry     *cdb.Registry
	transport    cdb.Mounter
	sessionsByVT map[int]*Session
	handles      []*vtmaster.Handle
}

// NewController creates a controller for one seat, with its own input
// aggregate, an empty backend set, and a character-device registry
// publishing under vt's console. devmon events for this seat are fed in
// via HandleDeviceEvent as they arrive; VT sessions are added with
// RegisterSession.
func NewController(ctx context.Context, loop *eloop.Loop, seatName string, opts keymap.Options, vt *vtmaster.Master) (*Controller, error) {
	c := &Controller{
		ctx:          ctx,
		loop:         loop,
		tag:          "seat." + seatName,
		backends:     make(map[string]video.Backend),
		inputPaths:   make(map[string]string),
		vt:           vt,
		registry:     cdb.NewRegistry(cdb.TTYMajor),
		transport:    cdb.NewTransport(ctx, "seat."+seatName+".cdb"),
		sessionsByVT: make(map[int]*Session),
	}
	c.Seat = New(ctx, seatName, c)

	in, err := input.New(ctx, loop, opts, c.onInputEvent)
	if err != nil {
		return nil, err
	}
	c.Input = in
	return c, nil
}

// seatSwitcher adapts a Controller's scheduler to cdb.Switcher, so a
// legacy VT_ACTIVATE/VT_WAITACTIVE arriving through the character
// device can drive the seat scheduler without cdb importing this
// package.
type seatSwitcher struct {
	c *Controller
}

var _ cdb.Switcher = (*seatSwitcher)(nil)

// Activate implements cdb.Switcher.Activate by looking up the session
// registered for vtNum and scheduling it; a request for a VT this
// controller never registered fails rather than silently doing nothing.
func (sw *seatSwitcher) Activate(vtNum int) error {
	sess, ok := sw.c.sessionsByVT[vtNum]
	if !ok {
		return errors.Errorf(errors.NotFound, "vt %d is not registered on this seat", vtNum)
	}
	return sw.c.Seat.Schedule(sess)
}

// Foreground implements cdb.Switcher.Foreground by reporting the VT
// number of the seat's current session, or 0 if the seat has none.
func (sw *seatSwitcher) Foreground() int {
	cur := sw.c.Seat.Current()
	if cur == nil {
		return 0
	}
	for vtNum, sess := range sw.c.sessionsByVT {
		if sess == cur {
			return vtNum
		}
	}
	return 0
}

// RegisterSession allocates a VT handle (real if wantReal and policy
// allows it, else fake per vtmaster.Master.Allocate), wraps it in a
// cdb.VTSession bridging legacy VT/KD ioctls, registers it with the seat
// scheduler, and publishes it as a character device through this
// controller's cdb registry/transport. A CUSE mount failure (no
// /dev/cuse, e.g. in a test sandbox or an unprivileged container) is
// logged and treated non-fatally: the session still schedules and
// receives ACTIVATE/DEACTIVATE normally, it is simply unreachable as a
// device node, the same best-effort degradation NewRuntime already
// applies to the console control node.
func (c *Controller) RegisterSession(wantReal, enabled bool) (*Session, error) {
	handle := c.vt.Allocate(wantReal)
	vtNum := handle.Number()

	vtSess := &cdb.VTSession{
		Handle:   handle,
		Loop:     c.loop,
		Switcher: &seatSwitcher{c: c},
	}
	cb := &VTCallback{VT: vtSess}

	sess := c.Seat.Register(vtNum, enabled, cb)
	cb.SetSession(sess)
	c.sessionsByVT[vtNum] = sess
	c.handles = append(c.handles, handle)

	node := c.registry.RegisterVT(vtNum, vtSess, nil)
	devName := node.Name()
	if err := c.transport.Mount(node, devName); err != nil {
		logging.Warnf(c.ctx, c.tag, "mounting character device %s failed, vt %d has no device node: %v", devName, vtNum, err)
	}

	return sess, nil
}

// SetInputSink installs the callback input events are forwarded to
// (normally the VT session currently bound to this seat's foreground
// session). A nil sink drops events on the floor.
func (c *Controller) SetInputSink(sink func(input.Event)) {
	c.inputSink = sink
}

func (c *Controller) onInputEvent(ev input.Event) {
	if c.inputSink != nil {
		c.inputSink(ev)
	}
}

// HandleDeviceEvent implements spec §4.8's device-monitor event
// dispatch for NEW_DEV/FREE_DEV/HOTPLUG_DEV. NEW_SEAT/FREE_SEAT are
// handled one level up (they create and destroy Controllers).
func (c *Controller) HandleDeviceEvent(ev devmon.Event) {
	switch ev.Kind {
	case devmon.NewDev:
		switch ev.Type {
		case devmon.DRM, devmon.FBDEV:
			c.addVideoDevice(ev)
		case devmon.INPUT:
			c.inputPaths[ev.SysPath] = ev.Node
			if err := c.Input.AddDevice(ev.Node); err != nil {
				logging.Warnf(c.ctx, c.tag, "adding input device %s: %v", ev.Node, err)
			}
		}
	case devmon.FreeDev:
		switch ev.Type {
		case devmon.DRM, devmon.FBDEV:
			c.removeVideoDevice(ev.SysPath)
		case devmon.INPUT:
			if node, ok := c.inputPaths[ev.SysPath]; ok {
				c.Input.RemoveDevice(node)
				delete(c.inputPaths, ev.SysPath)
			}
		}
	case devmon.HotplugDev:
		if b, ok := c.backends[ev.SysPath]; ok {
			if _, err := b.Poll(); err != nil {
				logging.Warnf(c.ctx, c.tag, "polling %s after hotplug: %v", ev.Node, err)
			}
		}
	}
}

// addVideoDevice implements the "DRM first; on failure DRM-dumb;
// otherwise fbdev per device type" preference order of spec §4.8/§4.4.
// A fbdev node flagged drm-backed by the device monitor is skipped
// entirely: its companion DRM node's backend already owns the
// hardware, per the shared-resource policy in spec §5.
func (c *Controller) addVideoDevice(ev devmon.Event) {
	if ev.Type == devmon.FBDEV && ev.Flags.DRMBacked {
		logging.Debugf(c.ctx, c.tag, "skipping drm-backed fbdev node %s", ev.Node)
		return
	}

	var b video.Backend
	switch ev.Type {
	case devmon.DRM:
		if _, err := drm.Open(ev.Node); err != nil {
			logging.Debugf(c.ctx, c.tag, "accelerated DRM unavailable on %s, falling back to dumb: %v", ev.Node, err)
			dumb, derr := drmdumb.Open(ev.Node)
			if derr != nil {
				logging.Warnf(c.ctx, c.tag, "opening %s as drm-dumb failed, giving up on this device: %v", ev.Node, derr)
				return
			}
			b = dumb
		}
	case devmon.FBDEV:
		fb, err := fbdev.Open(ev.Node)
		if err != nil {
			logging.Warnf(c.ctx, c.tag, "opening fbdev %s failed, giving up on this device: %v", ev.Node, err)
			return
		}
		b = fb
	}
	if b == nil {
		return
	}

	c.backends[ev.SysPath] = b
	if c.Seat.Awake() {
		if err := b.Wake(); err != nil {
			logging.Warnf(c.ctx, c.tag, "waking newly attached backend %s: %v", ev.Node, err)
		}
	}
}

func (c *Controller) removeVideoDevice(sysPath string) {
	b, ok := c.backends[sysPath]
	if !ok {
		return
	}
	delete(c.backends, sysPath)
	if err := b.Close(); err != nil {
		logging.Warnf(c.ctx, c.tag, "closing backend for %s: %v", sysPath, err)
	}
}

// OnForeground implements the Listener edge the scheduler fires when a
// session becomes foreground: every backend wakes, and so does the
// input pipeline.
func (c *Controller) OnForeground() {
	for sysPath, b := range c.backends {
		if err := b.Wake(); err != nil {
			logging.Warnf(c.ctx, c.tag, "waking backend %s: %v", sysPath, err)
		}
	}
	paths := make([]string, 0, len(c.inputPaths))
	for _, p := range c.inputPaths {
		paths = append(paths, p)
	}
	if err := c.Input.Wake(paths); err != nil {
		logging.Warnf(c.ctx, c.tag, "waking input pipeline: %v", err)
	}
}

// OnBackground implements the Listener edge fired when the seat loses
// its foreground session: every backend sleeps, and so does input.
func (c *Controller) OnBackground() {
	for sysPath, b := range c.backends {
		if err := b.Sleep(); err != nil {
			logging.Warnf(c.ctx, c.tag, "sleeping backend %s: %v", sysPath, err)
		}
	}
	c.Input.Sleep()
}

// BeginExit arms exit-mode teardown synchronization (spec §7's teardown
// guarantee): pending is the number of VTs that returned in-progress
// from deactivate_all and are expected to call back via SIGUSR2/
// VT_RELDISP before this controller's exit-mode teardown is complete.
// onDone fires once the counter reaches zero.
func (c *Controller) BeginExit(pending int, onDone func()) {
	c.exitMode = true
	c.pendingVTExit = pending
	c.onVTExitDone = onDone
	if pending <= 0 && onDone != nil {
		onDone()
	}
}

// OnSleep implements the Listener edge fired when go_asleep completes.
// In exit mode it decrements the pending-VT-exit counter and signals
// completion once it reaches zero; this is the teardown synchronization
// point. Runtime.Shutdown arms it with a no-op onDone and runs its
// bounded teardown pass for the full window regardless.
func (c *Controller) OnSleep() {
	if !c.exitMode {
		return
	}
	c.pendingVTExit--
	if c.pendingVTExit <= 0 && c.onVTExitDone != nil {
		done := c.onVTExitDone
		c.onVTExitDone = nil
		done()
	}
}

// Close implements spec §4.8's FREE_SEAT teardown: every backend is
// closed (which deactivates its displays), the seat is force-put to
// sleep dropping any current session unconditionally, every published
// character device is unmounted, and every allocated VT handle (real or
// fake) is released back to the shared vtmaster.Master.
func (c *Controller) Close() {
	for sysPath, b := range c.backends {
		if err := b.Close(); err != nil {
			logging.Warnf(c.ctx, c.tag, "closing backend %s during teardown: %v", sysPath, err)
		}
		delete(c.backends, sysPath)
	}
	c.Input.Sleep()
	c.Seat.Sleep(true)

	c.transport.Close()
	for _, h := range c.handles {
		c.vt.Free(h)
	}
	c.handles = nil
}

package seat

import (
	"context"
	"os"
	"syscall"

	"seatrt/internal/config"
	"seatrt/internal/devmon"
	"seatrt/internal/eloop"
	"seatrt/internal/errors"
	"seatrt/internal/input/keymap"
	"seatrt/internal/logging"
	"seatrt/internal/vtmaster"
)

const (
	// tty0Path is the console control node real VT allocation issues
	// VT_OPENQRY/VT_ACTIVATE/VT_DISALLOCATE against.
	tty0Path = "/dev/tty0"
	// teardownWindowMs bounds the pass of the runtime's event loop that
	// spec §7's teardown guarantee runs after deactivate_all, giving in-flight VT_RELDISP
	// acknowledgements a chance to arrive before shutdown proceeds
	// regardless.
	teardownWindowMs = 50
)

// Runtime is the top-level process wiring (spec §4, §6, §7): one
// event loop, one VT master shared by every seat, and one Controller
// per seat, created and destroyed as the device monitor reports
// NEW_SEAT/FREE_SEAT. It owns the process's graceful-shutdown sequence.
type Runtime struct {
	ctx context.Context
	loop *eloop.Loop
	cfg  config.Config
	tag  string

	vt      *vtmaster.Master
	monitor *devmon.Monitor

	controllers map[string]*Controller
	liveSeats   int

	controlFile *os.File
}

// NewRuntime builds a Runtime around loop and cfg: it opens the console
// control node (best effort; its absence degrades every VT allocation
// to fake, per vtmaster.Master.Allocate), constructs the shared VT
// master, and starts the device monitor. Seats are created lazily as
// NEW_SEAT events arrive, including the synthesized seat0 the monitor
// emits immediately when no login manager is present.
func NewRuntime(ctx context.Context, loop *eloop.Loop, cfg config.Config) (*Runtime, error) {
	listenMode := cfg.VTPolicy == config.VTPolicyListen

	r := &Runtime{
		ctx:         ctx,
		loop:        loop,
		cfg:         cfg,
		tag:         "runtime",
		controllers: make(map[string]*Controller),
	}

	controlFD := uintptr(0)
	if !listenMode {
		f, err := os.OpenFile(tty0Path, os.O_RDWR, 0)
		if err != nil {
			logging.Warnf(ctx, r.tag, "opening %s failed, real VTs unavailable: %v", tty0Path, err)
		} else {
			r.controlFile = f
			controlFD = f.Fd()
		}
	}
	r.vt = vtmaster.New(ctx, listenMode, vtmaster.UnixSignaler{}, controlFD)

	mon, err := devmon.New(loop, r.onDevmonEvent)
	if err != nil {
		if r.controlFile != nil {
			r.controlFile.Close()
		}
		return nil, errors.Wrap(err, "starting device monitor")
	}
	r.monitor = mon

	return r, nil
}

// VTMaster returns the VT master shared across every seat, for
// whatever component ends up brokering real VT session creation.
func (r *Runtime) VTMaster() *vtmaster.Master { return r.vt }

// Controller returns the controller owning name, or nil if no such
// seat currently exists.
func (r *Runtime) Controller(name string) *Controller { return r.controllers[name] }

func (r *Runtime) onDevmonEvent(ev devmon.Event) {
	switch ev.Kind {
	case devmon.NewSeat:
		r.addSeat(ev.Seat)
	case devmon.FreeSeat:
		r.removeSeat(ev.Seat)
	default:
		if c, ok := r.controllers[ev.Seat]; ok {
			c.HandleDeviceEvent(ev)
		}
	}
}

func (r *Runtime) addSeat(name string) {
	if _, exists := r.controllers[name]; exists {
		return
	}
	c, err := NewController(r.ctx, r.loop, name, r.seatKeymap(name), r.vt)
	if err != nil {
		logging.Warnf(r.ctx, r.tag, "creating controller for seat %s: %v", name, err)
		return
	}
	r.controllers[name] = c
	r.liveSeats++
	logging.Infof(r.ctx, r.tag, "seat %s attached (%d live)", name, r.liveSeats)

	if _, err := c.RegisterSession(true, true); err != nil {
		logging.Warnf(r.ctx, r.tag, "registering initial session for seat %s: %v", name, err)
		return
	}
	if err := c.Seat.Wake(); err != nil {
		logging.Warnf(r.ctx, r.tag, "waking seat %s: %v", name, err)
	}
}

// removeSeat implements spec §7's seat hang-up rule: in the default
// per-seat VT policy, the live-seat count dropping to zero ends the
// process; in listen mode the seat is simply dropped.
func (r *Runtime) removeSeat(name string) {
	c, ok := r.controllers[name]
	if !ok {
		return
	}
	c.Close()
	delete(r.controllers, name)
	r.liveSeats--
	logging.Infof(r.ctx, r.tag, "seat %s detached (%d live)", name, r.liveSeats)

	if r.cfg.VTPolicy != config.VTPolicyListen && r.liveSeats <= 0 {
		r.loop.Exit()
	}
}

func (r *Runtime) seatKeymap(name string) keymap.Options {
	for _, s := range r.cfg.Seats {
		if s.Name == name {
			return r.cfg.SeatKeymap(s).ToOptions()
		}
	}
	return r.cfg.Keymap.ToOptions()
}

// Run registers the process-level signal handlers and blocks dispatching
// on loop until Shutdown and Exit are called. SIGTERM and SIGINT trigger
// a graceful Shutdown; SIGPIPE is registered with a no-op handler purely
// to suppress its default disposition, per spec §6.
func (r *Runtime) Run() error {
	if _, err := r.loop.RegisterSignal([]os.Signal{syscall.SIGTERM, syscall.SIGINT}, func(l *eloop.Loop, src *eloop.Source, sig os.Signal) {
		logging.Infof(r.ctx, r.tag, "received %v, shutting down", sig)
		r.Shutdown()
		l.Exit()
	}); err != nil {
		return errors.Wrap(err, "registering termination signals")
	}
	if _, err := r.loop.RegisterSignal([]os.Signal{syscall.SIGPIPE}, func(l *eloop.Loop, src *eloop.Source, sig os.Signal) {}); err != nil {
		return errors.Wrap(err, "registering SIGPIPE")
	}
	return r.loop.Run(-1)
}

// Shutdown implements spec §7's teardown guarantee: every seat is asked
// to deactivate its current session; those that return in-progress are
// given one bounded (~50ms) pass of the runtime's event loop to let their VT_RELDISP
// acknowledgements arrive, after which every controller is force-closed
// regardless of outcome.
func (r *Runtime) Shutdown() {
	pending := 0
	for _, c := range r.controllers {
		err := c.Seat.Sleep(false)
		if errors.KindOf(err) == errors.InProgress {
			pending++
			c.BeginExit(1, func() {})
		} else {
			c.BeginExit(0, func() {})
		}
	}

	if pending > 0 {
		if err := r.loop.Run(teardownWindowMs); err != nil {
			logging.Warnf(r.ctx, r.tag, "teardown pass: %v", err)
		}
	}

	for name, c := range r.controllers {
		c.Close()
		delete(r.controllers, name)
	}
	r.liveSeats = 0

	if r.monitor != nil {
		r.monitor.Close()
	}
	if r.controlFile != nil {
		r.controlFile.Close()
	}
}

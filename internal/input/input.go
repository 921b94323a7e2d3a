// Package input implements the input pipeline (IP, spec §4.3): a
// per-seat aggregate of evdev nodes that decodes key presses into
// {keycode, keysym, mod-mask, unicode} events using a keymap.Keymap, and
// that is sleep/wake aware per the input-device-aggregate invariants in
// spec §3.
package input

import (
	"context"

	"seatrt/internal/eloop"
	"seatrt/internal/errors"
	"seatrt/internal/input/keymap"
	"seatrt/internal/logging"

	evdev "github.com/gvalkov/golang-evdev"
)

// Event is what the pipeline emits for a press or a marked-repeating
// repeat; releases never produce one (spec §4.3).
type Event struct {
	Keycode uint16
	Keysym  rune
	Mods    keymap.ModMask
	Unicode rune
}

// Sink receives decoded events, one call per emitted Event, from the
// event loop's dispatch goroutine.
type Sink func(Event)

// device is one opened evdev node plus its private modifier/LED state,
// per spec §3's "Input device aggregate" (which is modeled per-node here;
// Aggregate below is the seat-level container spec §4.3 actually drives).
type device struct {
	path  string
	fd    *evdev.InputDevice
	src   *eloop.Source
	state *keymap.State
}

// Aggregate is the per-seat collection of opened evdev nodes sharing one
// compiled keymap, spec §4.3's "input device aggregate". awake mirrors
// spec §3's invariant: asleep means no open fds.
type Aggregate struct {
	ctx   context.Context
	loop  *eloop.Loop
	km    keymap.Keymap
	opts  keymap.Options
	sink  Sink
	devs  map[string]*device
	awake bool
}

// New compiles opts (falling back to keymap.DefaultOptions on failure,
// per spec §4.3) and returns an empty, awake Aggregate bound to loop.
// Diagnostics are written through ctx's attached logging.Logger, if any.
func New(ctx context.Context, loop *eloop.Loop, opts keymap.Options, sink Sink) (*Aggregate, error) {
	km, err := keymap.Compile(opts)
	if err != nil {
		logging.Warnf(ctx, "input", "keymap %+v failed to compile, falling back to %+v: %v", opts, keymap.DefaultOptions, err)
		km, err = keymap.Compile(keymap.DefaultOptions)
		if err != nil {
			return nil, errors.Wrap(err, "fallback keymap also failed to compile")
		}
		opts = keymap.DefaultOptions
	}
	return &Aggregate{
		ctx:   ctx,
		loop:  loop,
		km:    km,
		opts:  opts,
		sink:  sink,
		devs:  make(map[string]*device),
		awake: true,
	}, nil
}

// AddDevice opens and registers an evdev node. It is a no-op (returning
// nil) if the aggregate is currently asleep; the caller (the seat
// controller reacting to a devmon NEW_DEV) is expected to retain the
// path and call AddDevice again on wake, mirroring how the device
// monitor itself re-delivers NEW_DEV after a hotplug rescan.
func (a *Aggregate) AddDevice(path string) error {
	if !a.awake {
		return nil
	}
	if _, exists := a.devs[path]; exists {
		return nil
	}
	fd, err := evdev.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening evdev node %s", path)
	}
	logging.Debugf(a.ctx, "input", "opened evdev node %s", path)
	d := &device{path: path, fd: fd, state: keymap.NewState()}
	a.syncLEDs(d)

	src, err := a.loop.RegisterFD(int(fd.File.Fd()), eloop.Readable, func(l *eloop.Loop, s *eloop.Source, revents eloop.EventMask) {
		a.readDevice(d)
	})
	if err != nil {
		fd.File.Close()
		return errors.Wrapf(err, "registering evdev node %s", path)
	}
	d.src = src
	a.devs[path] = d
	return nil
}

// RemoveDevice closes and unregisters an evdev node, e.g. on FREE_DEV.
func (a *Aggregate) RemoveDevice(path string) {
	d, ok := a.devs[path]
	if !ok {
		return
	}
	a.loop.Unregister(d.src)
	d.fd.File.Close()
	delete(a.devs, path)
}

// Sleep closes every open evdev fd, per spec §3's aggregate invariant.
func (a *Aggregate) Sleep() {
	if !a.awake {
		return
	}
	for path, d := range a.devs {
		a.loop.Unregister(d.src)
		d.fd.File.Close()
		delete(a.devs, path)
	}
	a.awake = false
}

// Wake reopens every node whose path is passed (the caller -- the seat
// controller -- is the source of truth for which nodes currently belong
// to this seat, since the aggregate itself holds nothing while asleep),
// rebuilding keymap state from scratch for each and resyncing LEDs, per
// spec §4.3 ("avoids the stuck modifier class of bugs").
func (a *Aggregate) Wake(paths []string) error {
	a.awake = true
	var firstErr error
	for _, p := range paths {
		if err := a.AddDevice(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readDevice handles one evdev node becoming readable. The fd is
// registered level-triggered, so it is enough to read one input_event
// per dispatch: if more than one arrived, epoll reports the fd ready
// again on the next iteration.
func (a *Aggregate) readDevice(d *device) {
	ev, err := d.fd.ReadOne()
	if err != nil {
		logging.Warnf(a.ctx, "input", "%s: read failed, unregistering: %v", d.path, err)
		a.RemoveDevice(d.path)
		return
	}
	if ev.Type != evdev.EV_KEY {
		return
	}
	a.handleKey(d, uint16(ev.Code)+8, int32(ev.Value))
}

// key event value per the kernel EV_KEY convention: 0 release, 1 press,
// 2 autorepeat.
const (
	valRelease = 0
	valPress   = 1
	valRepeat  = 2
)

func (a *Aggregate) handleKey(d *device, xKeycode uint16, value int32) {
	switch value {
	case valRelease:
		a.km.KeyUp(d.state, xKeycode)
	case valPress:
		syms, _ := a.km.KeyDown(d.state, xKeycode)
		a.emit(xKeycode, syms, d.state)
	case valRepeat:
		syms, repeating := a.km.KeyDown(d.state, xKeycode)
		if repeating {
			a.emit(xKeycode, syms, d.state)
		}
	}
}

func (a *Aggregate) emit(xKeycode uint16, syms []rune, state *keymap.State) {
	if len(syms) == 0 {
		return
	}
	keysym := syms[0]
	cp, ok := a.km.Unicode(keysym)
	if !ok {
		cp = keymap.InvalidUnicode
	}
	a.sink(Event{
		Keycode: xKeycode,
		Keysym:  keysym,
		Mods:    state.Mask(),
		Unicode: cp,
	})
}

// syncLEDs reads the node's current LED state via EVIOCGLED. golang-evdev
// covers event reading but not this particular query, so it is read the
// same way every other kernel bit-state ioctl in this codebase is (a raw
// unix.Syscall(SYS_IOCTL) call), not through the evdev library.
func (a *Aggregate) syncLEDs(d *device) {
	bits, err := evioctlGetLED(int(d.fd.File.Fd()))
	if err != nil {
		return
	}
	d.state.SetLED("capslock", bits&(1<<ledCapsL) != 0)
	d.state.SetLED("numlock", bits&(1<<ledNumL) != 0)
	d.state.SetLED("scrolllock", bits&(1<<ledScrollL) != 0)
}


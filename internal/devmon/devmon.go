// Package devmon implements the device monitor (DM, spec §4.2): it
// classifies DRM, fbdev, and evdev nodes, tags them by seat, and emits
// seat/device lifecycle events for the seat controller to consume.
//
// Linux udev device enumeration has no direct third-party binding in the
// retrieval pack (the kernel-uevent netlink socket itself is read with
// bare golang.org/x/sys/unix, following the raw-syscall style
// gokrazy/fbstatus and helixml/helix use for every other kernel
// interface); the seat-manager half is real: org.freedesktop.login1's
// SeatNew/SeatRemoved signals and device seat-tagging are read over
// github.com/godbus/dbus/v5, carried over from canonical-snapd's
// dependency set.
package devmon

import (
	"sync"

	"seatrt/internal/eloop"
	"seatrt/internal/errors"
)

// DevType is the classification a device is assigned per spec §4.2's
// table.
type DevType int

const (
	DRM DevType = iota
	FBDEV
	INPUT
)

func (t DevType) String() string {
	switch t {
	case DRM:
		return "drm"
	case FBDEV:
		return "fbdev"
	case INPUT:
		return "input"
	default:
		return "unknown"
	}
}

// EventKind enumerates the device-monitor's event vocabulary.
type EventKind int

const (
	NewSeat EventKind = iota
	FreeSeat
	NewDev
	FreeDev
	HotplugDev
)

// Flags carries the extra per-device bits spec §4.2 computes.
type Flags struct {
	Primary   bool // boot_vga parent (DRM) or VESA VGA (fbdev)
	Aux       bool // usb/udl driver (DRM) or udlfb (fbdev)
	DRMBacked bool // fbdev only: finfo.id names a known DRM-backed fb driver
}

// Event is one item from the monitor's event stream.
type Event struct {
	Kind    EventKind
	Seat    string
	Type    DevType
	Flags   Flags
	Node    string // device node path, e.g. /dev/dri/card0
	SysPath string // originating sysfs path, used to correlate FREE_DEV with a prior NEW_DEV
}

// Handler receives monitor events. It runs on the event loop's dispatch
// goroutine, never concurrently with itself or any other handler.
type Handler func(Event)

// Monitor owns both halves of §4.2: the device stream and, if a login
// manager is present, the seat-manager stream. Its public surface is a
// single callback, not a channel, so that delivery happens synchronously
// inside the event loop's dispatch just like every other source.
type Monitor struct {
	loop    *eloop.Loop
	handler Handler

	mu      sync.Mutex
	seats   map[string]bool          // seats currently known to exist
	devices map[string]Event         // sysPath -> last NEW_DEV event, for FREE_DEV/change diffing
	idSeat  map[string]string        // sysPath -> cached ID_SEAT, for change-event remove-then-add detection

	login *loginClient // nil if no login manager present on this host
	udev  *udevClient
}

// New creates a monitor bound to loop. If a login manager is reachable
// over D-Bus, its seat stream drives NEW_SEAT/FREE_SEAT; otherwise a
// single synthesized "seat0" is reported and no seat hotplug occurs, per
// spec §4.2 and §6.
func New(loop *eloop.Loop, handler Handler) (*Monitor, error) {
	m := &Monitor{
		loop:    loop,
		handler: handler,
		seats:   make(map[string]bool),
		devices: make(map[string]Event),
		idSeat:  make(map[string]string),
	}

	login, err := newLoginClient(loop, m.onSeatManagerEvent)
	if err != nil {
		// No login manager reachable: synthesize seat0 and proceed
		// device-monitor-only, per spec §6 "if absent, a single seat0 is
		// synthesized".
		m.seats["seat0"] = true
	} else {
		m.login = login
	}

	udev, err := newUdevClient(loop, m.drainLoginQueue, m.onUdevEvent)
	if err != nil {
		return nil, errors.Wrap(err, "starting udev client")
	}
	m.udev = udev

	if m.login == nil {
		m.emit(Event{Kind: NewSeat, Seat: "seat0"})
	}

	return m, nil
}

// Close tears down both halves of the monitor.
func (m *Monitor) Close() {
	if m.login != nil {
		m.login.close()
	}
	m.udev.close()
}

func (m *Monitor) emit(ev Event) {
	m.handler(ev)
}

// seatOf resolves the seat key for a raw ID_SEAT property value, applying
// the documented default.
func seatOf(idSeat string) string {
	if idSeat == "" {
		return "seat0"
	}
	return idSeat
}

// drainLoginQueue is the udev client's preDispatch hook: it flushes any
// SeatNew/SeatRemoved signals already queued before this Dispatch pass
// decodes a single uevent, so a device tagged for a seat that just
// appeared in the same wake-up is never rejected by onUdevEvent's
// m.seats[seat] gate. Dispatch delivers ready fds in whatever order
// epoll_wait happened to return them, which Linux does not guarantee
// matches registration order, so this enforces spec §4.2's ordering rule
// explicitly rather than relying on it falling out of fd registration
// order.
func (m *Monitor) drainLoginQueue() {
	if m.login != nil {
		m.login.drainQueue()
	}
}

// onSeatManagerEvent is invoked by the login client for SeatNew/SeatRemoved,
// either from its own counter-driven dispatch (a SeatNew/SeatRemoved
// arriving on its own) or synchronously from drainLoginQueue just before
// a udev dispatch pass.
func (m *Monitor) onSeatManagerEvent(kind EventKind, seat string) {
	m.mu.Lock()
	switch kind {
	case NewSeat:
		m.seats[seat] = true
	case FreeSeat:
		delete(m.seats, seat)
	}
	m.mu.Unlock()
	m.emit(Event{Kind: kind, Seat: seat})
}

// onUdevEvent is invoked by the udev client for every device add/remove/
// change uevent it classifies as interesting.
func (m *Monitor) onUdevEvent(action udevAction, dev rawDevice) {
	classified, ok := classify(dev)
	if !ok {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seat := seatOf(dev.IDSeat)

	if m.login != nil && !m.seats[seat] {
		// Seat-manager present but hasn't tagged this device's seat yet
		// (or the seat doesn't exist): spec §4.2 says a device is only
		// accepted once tagged.
		return
	}

	switch action {
	case udevAdd:
		ev := Event{Kind: NewDev, Seat: seat, Type: classified.Type, Flags: classified.Flags, Node: dev.Node, SysPath: dev.SysPath}
		m.devices[dev.SysPath] = ev
		m.idSeat[dev.SysPath] = seat
		m.emit(ev)
	case udevRemove:
		prev, ok := m.devices[dev.SysPath]
		if !ok {
			return
		}
		delete(m.devices, dev.SysPath)
		delete(m.idSeat, dev.SysPath)
		m.emit(Event{Kind: FreeDev, Seat: prev.Seat, Type: prev.Type, Node: prev.Node, SysPath: prev.SysPath})
	case udevChange:
		prevSeat, known := m.idSeat[dev.SysPath]
		if known && prevSeat != seat {
			// ID_SEAT changed: remove-then-add, per spec §4.2.
			if prev, ok := m.devices[dev.SysPath]; ok {
				m.emit(Event{Kind: FreeDev, Seat: prev.Seat, Type: prev.Type, Node: prev.Node, SysPath: prev.SysPath})
			}
			ev := Event{Kind: NewDev, Seat: seat, Type: classified.Type, Flags: classified.Flags, Node: dev.Node, SysPath: dev.SysPath}
			m.devices[dev.SysPath] = ev
			m.idSeat[dev.SysPath] = seat
			m.emit(ev)
			return
		}
		if dev.hotplug {
			prev := m.devices[dev.SysPath]
			m.emit(Event{Kind: HotplugDev, Seat: seat, Type: prev.Type, Node: prev.Node, SysPath: prev.SysPath})
		}
	}
}

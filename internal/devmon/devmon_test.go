package devmon

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func newBareMonitor(onEvent func(Event)) *Monitor {
	return &Monitor{
		handler: onEvent,
		seats:   map[string]bool{"seat0": true},
		devices: make(map[string]Event),
		idSeat:  make(map[string]string),
	}
}

func TestOnUdevEventNewDevEmitted(t *testing.T) {
	var got []Event
	m := newBareMonitor(func(ev Event) { got = append(got, ev) })

	m.onUdevEvent(udevAdd, rawDevice{Subsystem: "drm", Sysname: "card0", SysPath: "/devices/card0", Node: "/dev/dri/card0"})

	if len(got) != 1 || got[0].Kind != NewDev || got[0].Type != DRM {
		t.Fatalf("got %+v", got)
	}
}

func TestOnUdevEventFreeDevMatchesPriorAdd(t *testing.T) {
	var got []Event
	m := newBareMonitor(func(ev Event) { got = append(got, ev) })

	m.onUdevEvent(udevAdd, rawDevice{Subsystem: "input", Sysname: "event3", SysPath: "/devices/event3", hasInputParent: true})
	m.onUdevEvent(udevRemove, rawDevice{Subsystem: "input", Sysname: "event3", SysPath: "/devices/event3"})

	if len(got) != 2 || got[1].Kind != FreeDev || got[1].SysPath != "/devices/event3" {
		t.Fatalf("got %+v", got)
	}
}

func TestOnUdevEventUnknownDeviceRejectedWithoutSeatTag(t *testing.T) {
	var got []Event
	m := newBareMonitor(func(ev Event) { got = append(got, ev) })
	m.login = &loginClient{} // presence alone gates seat-tag enforcement

	m.onUdevEvent(udevAdd, rawDevice{Subsystem: "drm", Sysname: "card0", SysPath: "/devices/card0", IDSeat: "seat1"})

	if len(got) != 0 {
		t.Fatalf("device on untagged seat should be dropped, got %+v", got)
	}
}

func TestOnUdevEventSeatChangeIsRemoveThenAdd(t *testing.T) {
	var got []Event
	m := newBareMonitor(func(ev Event) { got = append(got, ev) })
	m.seats["seat1"] = true

	m.onUdevEvent(udevAdd, rawDevice{Subsystem: "drm", Sysname: "card0", SysPath: "/devices/card0"})
	m.onUdevEvent(udevChange, rawDevice{Subsystem: "drm", Sysname: "card0", SysPath: "/devices/card0", IDSeat: "seat1"})

	if len(got) != 3 {
		t.Fatalf("want add, free, add; got %+v", got)
	}
	if got[1].Kind != FreeDev || got[2].Kind != NewDev || got[2].Seat != "seat1" {
		t.Fatalf("got %+v", got)
	}
}

func TestDrainLoginQueueNoopWithoutLoginManager(t *testing.T) {
	m := newBareMonitor(func(Event) {})
	m.drainLoginQueue() // must not panic when no login manager is present
}

func TestDrainLoginQueueDrainsPendingSeatSignals(t *testing.T) {
	var got []Event
	m := newBareMonitor(func(ev Event) { got = append(got, ev) })
	m.login = &loginClient{onEvent: m.onSeatManagerEvent, queue: make(chan *dbus.Signal, 1)}
	m.login.queue <- &dbus.Signal{
		Name: "org.freedesktop.login1.Manager.SeatNew",
		Body: []interface{}{"seat1", dbus.ObjectPath("/org/freedesktop/login1/seat/seat1")},
	}

	m.drainLoginQueue()

	if !m.seats["seat1"] {
		t.Fatal("seat1 not tracked after drainLoginQueue")
	}
	if len(got) != 1 || got[0].Kind != NewSeat {
		t.Fatalf("got %+v", got)
	}
}

func TestOnSeatManagerEventTracksSeatSet(t *testing.T) {
	var got []Event
	m := newBareMonitor(func(ev Event) { got = append(got, ev) })
	m.seats = map[string]bool{}

	m.onSeatManagerEvent(NewSeat, "seat0")
	if !m.seats["seat0"] {
		t.Fatal("seat0 not tracked after NewSeat")
	}
	m.onSeatManagerEvent(FreeSeat, "seat0")
	if m.seats["seat0"] {
		t.Fatal("seat0 still tracked after FreeSeat")
	}
	if len(got) != 2 || got[0].Kind != NewSeat || got[1].Kind != FreeSeat {
		t.Fatalf("got %+v", got)
	}
}

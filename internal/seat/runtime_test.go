package seat

import (
	"context"
	"testing"

	"seatrt/internal/config"
	"seatrt/internal/devmon"
	"seatrt/internal/eloop"
	"seatrt/internal/vtmaster"
)

func newBareRuntime(t *testing.T, cfg config.Config) *Runtime {
	t.Helper()
	loop, err := eloop.New(nil)
	if err != nil {
		t.Fatalf("eloop.New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })
	return &Runtime{
		ctx:         context.Background(),
		loop:        loop,
		cfg:         cfg,
		tag:         "runtime",
		vt:          vtmaster.New(context.Background(), true, vtmaster.UnixSignaler{}, 0),
		controllers: make(map[string]*Controller),
	}
}

func TestAddSeatCreatesControllerAndIncrementsLiveCount(t *testing.T) {
	r := newBareRuntime(t, config.Default())
	r.addSeat("seat0")

	if r.Controller("seat0") == nil {
		t.Fatal("expected a controller for seat0")
	}
	if r.liveSeats != 1 {
		t.Fatalf("liveSeats = %d, want 1", r.liveSeats)
	}
}

func TestAddSeatIsIdempotent(t *testing.T) {
	r := newBareRuntime(t, config.Default())
	r.addSeat("seat0")
	first := r.Controller("seat0")
	r.addSeat("seat0")

	if r.liveSeats != 1 {
		t.Fatalf("liveSeats = %d, want 1 after duplicate NEW_SEAT", r.liveSeats)
	}
	if r.Controller("seat0") != first {
		t.Fatal("duplicate NEW_SEAT replaced an existing controller")
	}
}

func TestRemoveSeatClosesControllerAndDecrementsLiveCount(t *testing.T) {
	r := newBareRuntime(t, config.Default())
	r.addSeat("seat0")
	r.removeSeat("seat0")

	if r.Controller("seat0") != nil {
		t.Fatal("controller should be gone after FREE_SEAT")
	}
	if r.liveSeats != 0 {
		t.Fatalf("liveSeats = %d, want 0", r.liveSeats)
	}
}

func TestRemoveSeatToZeroDropsLastSeatInDefaultPolicy(t *testing.T) {
	cfg := config.Default()
	r := newBareRuntime(t, cfg)
	r.addSeat("seat0")
	r.removeSeat("seat0")

	if r.liveSeats != 0 || r.Controller("seat0") != nil {
		t.Fatalf("expected seat0 fully torn down, got liveSeats=%d controller=%v", r.liveSeats, r.Controller("seat0"))
	}
}

func TestRemoveSeatToZeroDoesNotExitInListenMode(t *testing.T) {
	cfg := config.Default()
	cfg.VTPolicy = config.VTPolicyListen
	r := newBareRuntime(t, cfg)
	r.addSeat("seat0")
	r.removeSeat("seat0")

	if r.liveSeats != 0 {
		t.Fatalf("liveSeats = %d, want 0", r.liveSeats)
	}
}

func TestOnDevmonEventForwardsDeviceEventsToOwningController(t *testing.T) {
	r := newBareRuntime(t, config.Default())
	r.addSeat("seat0")

	r.onDevmonEvent(devmon.Event{Kind: devmon.NewDev, Seat: "seat0", Type: devmon.INPUT, Node: "/dev/input/event7", SysPath: "/devices/event7"})

	c := r.Controller("seat0")
	if _, ok := c.inputPaths["/devices/event7"]; !ok {
		t.Fatal("NEW_DEV input event was not forwarded to seat0's controller")
	}
}

func TestOnDevmonEventForUnknownSeatIsDropped(t *testing.T) {
	r := newBareRuntime(t, config.Default())
	// No controller exists yet; this must not panic.
	r.onDevmonEvent(devmon.Event{Kind: devmon.NewDev, Seat: "seat1", Type: devmon.INPUT, Node: "/dev/input/event0"})
}

func TestSeatKeymapFallsBackToTopLevelDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Keymap = config.Keymap{Layout: "de"}
	r := newBareRuntime(t, cfg)

	got := r.seatKeymap("seat0")
	if got.Layout != "de" {
		t.Fatalf("seatKeymap = %+v, want layout de", got)
	}
}

func TestSeatKeymapUsesPerSeatOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Keymap = config.Keymap{Layout: "us"}
	cfg.Seats = []config.SeatConfig{{Name: "seat0", Keymap: config.Keymap{Layout: "fr"}}}
	r := newBareRuntime(t, cfg)

	got := r.seatKeymap("seat0")
	if got.Layout != "fr" {
		t.Fatalf("seatKeymap = %+v, want layout fr", got)
	}
}

func TestShutdownClosesEveryControllerAndSeatFallsAsleep(t *testing.T) {
	r := newBareRuntime(t, config.Default())
	r.addSeat("seat0")
	r.addSeat("seat1")
	s0, s1 := r.Controller("seat0").Seat, r.Controller("seat1").Seat

	r.Shutdown()

	if len(r.controllers) != 0 {
		t.Fatalf("expected every controller removed after Shutdown, got %d", len(r.controllers))
	}
	if r.liveSeats != 0 {
		t.Fatalf("liveSeats = %d after Shutdown, want 0", r.liveSeats)
	}
	if s0.Awake() || s1.Awake() {
		t.Fatalf("seat still awake after Shutdown: seat0=%v seat1=%v", s0.Awake(), s1.Awake())
	}
}

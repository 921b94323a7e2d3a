package input

import (
	"testing"

	"seatrt/internal/input/keymap"
)

func newTestAggregate(t *testing.T) (*Aggregate, *[]Event) {
	t.Helper()
	km, err := keymap.Compile(keymap.Options{Layout: "us"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var events []Event
	a := &Aggregate{
		km:   km,
		devs: make(map[string]*device),
		sink: func(ev Event) { events = append(events, ev) },
	}
	return a, &events
}

func TestHandleKeyPressEmitsEvent(t *testing.T) {
	a, events := newTestAggregate(t)
	d := &device{path: "fake", state: keymap.NewState()}

	a.handleKey(d, 30+8, valPress) // KEY_A + x-offset

	if len(*events) != 1 {
		t.Fatalf("got %d events, want 1", len(*events))
	}
	if (*events)[0].Unicode != 'a' {
		t.Errorf("unicode = %q, want 'a'", (*events)[0].Unicode)
	}
}

func TestHandleKeyReleaseEmitsNothing(t *testing.T) {
	a, events := newTestAggregate(t)
	d := &device{path: "fake", state: keymap.NewState()}

	a.handleKey(d, 30+8, valRelease)

	if len(*events) != 0 {
		t.Fatalf("release should not emit, got %v", *events)
	}
}

func TestHandleKeyRepeatOnlyEmitsForRepeatingKeys(t *testing.T) {
	a, events := newTestAggregate(t)
	d := &device{path: "fake", state: keymap.NewState()}

	// Enter is marked non-repeating in the plain table.
	a.handleKey(d, 28+8, valRepeat)
	if len(*events) != 0 {
		t.Fatalf("non-repeating key should not emit on repeat, got %v", *events)
	}

	a.handleKey(d, 30+8, valRepeat) // 'a' repeats
	if len(*events) != 1 {
		t.Fatalf("repeating key should emit on repeat, got %v", *events)
	}
}

func TestHandleKeyModifierUpdatesMaskAcrossPresses(t *testing.T) {
	a, events := newTestAggregate(t)
	d := &device{path: "fake", state: keymap.NewState()}

	a.handleKey(d, 29+8, valPress) // left ctrl
	a.handleKey(d, 30+8, valPress) // 'a'

	if len(*events) != 1 {
		t.Fatalf("got %d events", len(*events))
	}
	if (*events)[0].Mods&keymap.ModControl == 0 {
		t.Errorf("mods = %b, want control set", (*events)[0].Mods)
	}
}

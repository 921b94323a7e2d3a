// Package keymap implements the input pipeline's keyboard-layout
// abstraction (spec §4.3, §9: "polymorphic over {plain, xkb}"). A Keymap
// turns an X-convention keycode (evdev code + 8) plus a per-device State
// into the keysym list and effective modifier mask the input pipeline
// emits.
//
// No xkbcommon Go binding exists anywhere in the retrieval pack (checked
// every go.mod and every other_examples/ file), so only the built-in
// "plain" variant below is implemented; Xkb is a documented stub so a
// real xkbcommon-backed implementation can be dropped in later without
// touching the input pipeline's call sites.
package keymap

import "seatrt/internal/errors"

// ModMask is the stable-ABI modifier bitmask spec §4.3 describes.
type ModMask uint8

const (
	ModShift ModMask = 1 << iota
	ModLock
	ModControl
	ModMod1
	ModMod2
	ModMod3
	ModMod4
	ModMod5
)

// effective-state modifier names, mapped 1:1 onto the ABI bits above per
// spec §4.3's table (shift, caps, ctrl, alt, logo -> shift, lock, control,
// mod1, mod2; mod3/mod4/mod5 are reserved for layouts this codebase's
// plain keymap never produces).
const (
	effShift = "shift"
	effCaps  = "caps"
	effCtrl  = "ctrl"
	effAlt   = "alt"
	effLogo  = "logo"
)

var effToBit = map[string]ModMask{
	effShift: ModShift,
	effCaps:  ModLock,
	effCtrl:  ModControl,
	effAlt:   ModMod1,
	effLogo:  ModMod2,
}

// InvalidUnicode is the sentinel codepoint the input pipeline emits when a
// keysym has no associated character, per spec §4.3. As a rune (int32) it
// is -1, the 0xFFFFFFFF bit pattern.
const InvalidUnicode rune = -1

// State is the mutable per-device state a Keymap consults and updates:
// which modifier keys are currently held, and which LEDs are latched.
// Owned by the input pipeline's device aggregate, one per evdev node,
// rebuilt from scratch on wake (spec §4.3).
type State struct {
	held map[uint16]bool  // keycode -> currently pressed, for modifier keys only
	eff  map[string]bool  // effective modifier name -> active
	led  map[string]bool  // LED name -> lit ("capslock", "numlock", "scrolllock")
}

// NewState returns a zeroed state: no modifiers held, no LEDs lit. The
// input pipeline re-reads LED hardware state after constructing one on
// wake and calls SetLED to resync it.
func NewState() *State {
	return &State{
		held: make(map[uint16]bool),
		eff:  make(map[string]bool),
		led:  make(map[string]bool),
	}
}

// SetLED resyncs a latched LED's logical state from hardware, used on
// wake per spec §4.3 ("reopened and LED bits are read back").
func (s *State) SetLED(name string, lit bool) {
	s.led[name] = lit
}

// LED reports whether an LED is currently logically lit.
func (s *State) LED(name string) bool {
	return s.led[name]
}

// Mask packs the state's active effective modifiers into the ABI bitmask.
func (s *State) Mask() ModMask {
	var m ModMask
	for name, active := range s.eff {
		if active {
			m |= effToBit[name]
		}
	}
	return m
}

// Keymap is the polymorphic keyboard-layout backend spec §9 requires.
type Keymap interface {
	// Name identifies the compiled layout, e.g. "us" or "us+dvorak".
	Name() string

	// KeyDown processes a key press: updates state for modifier keys and
	// returns the keysyms bound to keycode (first is primary) plus
	// whether this key is marked as repeating.
	KeyDown(state *State, keycode uint16) (keysyms []rune, repeating bool)

	// KeyUp processes a key release, updating modifier state only; the
	// input pipeline never emits an event for a release (spec §4.3).
	KeyUp(state *State, keycode uint16)

	// Unicode derives the codepoint a keysym maps to, if any.
	Unicode(keysym rune) (rune, bool)
}

// Options describes a requested layout/variant/options triple, mirroring
// xkb's own configuration vocabulary even though only "plain" currently
// compiles anything from it.
type Options struct {
	Layout  string
	Variant string
	Options string
}

// DefaultOptions is the fallback keymap spec §4.3 falls back to when the
// configured one fails to compile: "(layout=us, variant="", options="")".
var DefaultOptions = Options{Layout: "us"}

// Compile builds a Keymap for opts. Only layout "us" (or an empty
// layout) is implemented, by the plain backend, which does not consult
// Variant or Options; any other layout returns NotSupported, which the
// input pipeline's fallback path (spec §4.3) catches and retries with
// DefaultOptions.
func Compile(opts Options) (Keymap, error) {
	if opts.Layout == "us" || opts.Layout == "" {
		return newPlainUS(), nil
	}
	return nil, errors.Errorf(errors.NotSupported, "keymap layout %q not supported by the plain backend", opts.Layout)
}

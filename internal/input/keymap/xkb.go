package keymap

import "seatrt/internal/errors"

// xkb is the documented stub for a real xkbcommon-backed Keymap. No
// xkbcommon Go binding is available to this build (see the package doc),
// so CompileXkb always returns NotSupported and the methods below are
// inert; CompileXkb exists so a caller can probe for the capability
// explicitly. Compile itself builds only the plain "us" layout and
// returns NotSupported for any other layout.
type xkb struct {
	opts Options
}

// CompileXkb is the entry point a future xkbcommon binding would replace;
// today it always fails.
func CompileXkb(opts Options) (Keymap, error) {
	return nil, errors.Errorf(errors.NotSupported, "xkb keymap backend not available (layout %q)", opts.Layout)
}

func (k *xkb) Name() string { return "xkb:" + k.opts.Layout }

func (k *xkb) KeyDown(state *State, keycode uint16) ([]rune, bool) {
	return nil, false
}

func (k *xkb) KeyUp(state *State, keycode uint16) {}

func (k *xkb) Unicode(keysym rune) (rune, bool) {
	return InvalidUnicode, false
}

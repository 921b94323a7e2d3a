package keymap

// Linux evdev key codes (linux/input-event-codes.h) for the subset this
// built-in US layout covers. The input pipeline adds 8 before calling
// into a Keymap (the evdev-to-X keycode convention, spec §4.3); the
// tables below are keyed by that X keycode directly so KeyDown and KeyUp
// never have to re-derive the offset.
const (
	evKeyEsc       = 1
	evKey1         = 2
	evKey2         = 3
	evKey3         = 4
	evKey4         = 5
	evKey5         = 6
	evKey6         = 7
	evKey7         = 8
	evKey8         = 9
	evKey9         = 10
	evKey0         = 11
	evKeyMinus     = 12
	evKeyEqual     = 13
	evKeyBackspace = 14
	evKeyTab       = 15
	evKeyQ         = 16
	evKeyW         = 17
	evKeyE         = 18
	evKeyR         = 19
	evKeyT         = 20
	evKeyY         = 21
	evKeyU         = 22
	evKeyI         = 23
	evKeyO         = 24
	evKeyP         = 25
	evKeyEnter     = 28
	evKeyLeftCtrl  = 29
	evKeyA         = 30
	evKeyS         = 31
	evKeyD         = 32
	evKeyF         = 33
	evKeyG         = 34
	evKeyH         = 35
	evKeyJ         = 36
	evKeyK         = 37
	evKeyL         = 38
	evKeyLeftShift = 42
	evKeyZ         = 44
	evKeyX         = 45
	evKeyC         = 46
	evKeyV         = 47
	evKeyB         = 48
	evKeyN         = 49
	evKeyM         = 50
	evKeyComma     = 51
	evKeyDot       = 52
	evKeySlash     = 53
	evKeyRightShift = 54
	evKeyLeftAlt   = 56
	evKeySpace     = 57
	evKeyCapsLock  = 58
	evKeyRightCtrl = 97
	evKeyRightAlt  = 100
	evKeyLeftMeta  = 125
	evKeyRightMeta = 126
)

const xOffset = 8

func x(evCode int) uint16 { return uint16(evCode + xOffset) }

type keyEntry struct {
	base, shifted rune
	repeats       bool
}

// modifierKind is what plainModifiers maps a modifier keycode to: the
// effective-state name it drives and whether it is a "lock" toggle
// (CapsLock) rather than a hold (Shift/Ctrl/Alt/Logo).
type modifierKind struct {
	name   string
	isLock bool
}

var plainModifiers = map[uint16]modifierKind{
	x(evKeyLeftShift):  {effShift, false},
	x(evKeyRightShift): {effShift, false},
	x(evKeyCapsLock):   {effCaps, true},
	x(evKeyLeftCtrl):   {effCtrl, false},
	x(evKeyRightCtrl):  {effCtrl, false},
	x(evKeyLeftAlt):    {effAlt, false},
	x(evKeyRightAlt):   {effAlt, false},
	x(evKeyLeftMeta):   {effLogo, false},
	x(evKeyRightMeta):  {effLogo, false},
}

var plainKeys = map[uint16]keyEntry{
	x(evKey1): {'1', '!', true}, x(evKey2): {'2', '@', true}, x(evKey3): {'3', '#', true},
	x(evKey4): {'4', '$', true}, x(evKey5): {'5', '%', true}, x(evKey6): {'6', '^', true},
	x(evKey7): {'7', '&', true}, x(evKey8): {'8', '*', true}, x(evKey9): {'9', '(', true},
	x(evKey0): {'0', ')', true},
	x(evKeyMinus): {'-', '_', true}, x(evKeyEqual): {'=', '+', true},

	x(evKeyQ): {'q', 'Q', true}, x(evKeyW): {'w', 'W', true}, x(evKeyE): {'e', 'E', true},
	x(evKeyR): {'r', 'R', true}, x(evKeyT): {'t', 'T', true}, x(evKeyY): {'y', 'Y', true},
	x(evKeyU): {'u', 'U', true}, x(evKeyI): {'i', 'I', true}, x(evKeyO): {'o', 'O', true},
	x(evKeyP): {'p', 'P', true},

	x(evKeyA): {'a', 'A', true}, x(evKeyS): {'s', 'S', true}, x(evKeyD): {'d', 'D', true},
	x(evKeyF): {'f', 'F', true}, x(evKeyG): {'g', 'G', true}, x(evKeyH): {'h', 'H', true},
	x(evKeyJ): {'j', 'J', true}, x(evKeyK): {'k', 'K', true}, x(evKeyL): {'l', 'L', true},

	x(evKeyZ): {'z', 'Z', true}, x(evKeyX): {'x', 'X', true}, x(evKeyC): {'c', 'C', true},
	x(evKeyV): {'v', 'V', true}, x(evKeyB): {'b', 'B', true}, x(evKeyN): {'n', 'N', true},
	x(evKeyM): {'m', 'M', true},
	x(evKeyComma): {',', '<', true}, x(evKeyDot): {'.', '>', true}, x(evKeySlash): {'/', '?', true},

	x(evKeySpace):     {' ', ' ', true},
	x(evKeyTab):       {'\t', '\t', true},
	x(evKeyEnter):     {'\r', '\r', false},
	x(evKeyBackspace): {'\b', '\b', true},
	x(evKeyEsc):       {0x1b, 0x1b, false},
}

type plainUS struct{}

func newPlainUS() *plainUS { return &plainUS{} }

func (p *plainUS) Name() string { return "us" }

func (p *plainUS) KeyDown(state *State, keycode uint16) ([]rune, bool) {
	if mod, ok := plainModifiers[keycode]; ok {
		if mod.isLock {
			state.eff[mod.name] = !state.eff[mod.name]
		} else {
			state.held[keycode] = true
			state.eff[mod.name] = true
		}
		return nil, false
	}

	entry, ok := plainKeys[keycode]
	if !ok {
		return nil, false
	}

	shifted := state.eff[effShift] != state.eff[effCaps] && isLetter(entry.base)
	if state.eff[effShift] && !isLetter(entry.base) {
		shifted = true
	}
	if state.eff[effCaps] && isLetter(entry.base) {
		shifted = !state.eff[effShift]
	}

	if shifted {
		return []rune{entry.shifted}, entry.repeats
	}
	return []rune{entry.base}, entry.repeats
}

func (p *plainUS) KeyUp(state *State, keycode uint16) {
	mod, ok := plainModifiers[keycode]
	if !ok || mod.isLock {
		return
	}
	state.held[keycode] = false
	// A shift/ctrl/alt/logo name is only cleared once neither the left
	// nor right physical key for it remains held.
	for kc, held := range state.held {
		if held {
			if m2, ok := plainModifiers[kc]; ok && m2.name == mod.name {
				return
			}
		}
	}
	state.eff[mod.name] = false
}

func (p *plainUS) Unicode(keysym rune) (rune, bool) {
	if keysym == 0 {
		return InvalidUnicode, false
	}
	return keysym, true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

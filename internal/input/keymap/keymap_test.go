package keymap

import "testing"

func TestPlainLowercase(t *testing.T) {
	km, err := Compile(Options{Layout: "us"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := NewState()
	syms, repeats := km.KeyDown(st, x(evKeyA))
	if len(syms) != 1 || syms[0] != 'a' || !repeats {
		t.Errorf("got %v repeats=%v", syms, repeats)
	}
}

func TestPlainShiftUppercases(t *testing.T) {
	km := newPlainUS()
	st := NewState()
	km.KeyDown(st, x(evKeyLeftShift))
	syms, _ := km.KeyDown(st, x(evKeyA))
	if len(syms) != 1 || syms[0] != 'A' {
		t.Errorf("got %v", syms)
	}
	km.KeyUp(st, x(evKeyLeftShift))
	syms, _ = km.KeyDown(st, x(evKeyA))
	if syms[0] != 'a' {
		t.Errorf("shift not released: got %v", syms)
	}
}

func TestPlainCapsLockTogglesLettersOnly(t *testing.T) {
	km := newPlainUS()
	st := NewState()
	km.KeyDown(st, x(evKeyCapsLock)) // toggle on
	syms, _ := km.KeyDown(st, x(evKeyA))
	if syms[0] != 'A' {
		t.Errorf("caps lock should uppercase letters: got %v", syms)
	}
	syms, _ = km.KeyDown(st, x(evKey1))
	if syms[0] != '1' {
		t.Errorf("caps lock should not affect digits: got %v", syms)
	}
}

func TestPlainShiftAndCapsCancel(t *testing.T) {
	km := newPlainUS()
	st := NewState()
	km.KeyDown(st, x(evKeyCapsLock))
	km.KeyDown(st, x(evKeyLeftShift))
	syms, _ := km.KeyDown(st, x(evKeyA))
	if syms[0] != 'a' {
		t.Errorf("shift+capslock should cancel back to lowercase: got %v", syms)
	}
}

func TestModifierMaskReflectsEffectiveState(t *testing.T) {
	km := newPlainUS()
	st := NewState()
	km.KeyDown(st, x(evKeyLeftCtrl))
	km.KeyDown(st, x(evKeyLeftAlt))
	mask := st.Mask()
	if mask&ModControl == 0 || mask&ModMod1 == 0 {
		t.Errorf("mask = %b, want control and mod1 set", mask)
	}
	if mask&ModShift != 0 {
		t.Errorf("mask = %b, shift should not be set", mask)
	}
}

func TestUnrecognizedKeycodeReturnsNoSyms(t *testing.T) {
	km := newPlainUS()
	st := NewState()
	syms, repeats := km.KeyDown(st, 9999)
	if syms != nil || repeats {
		t.Errorf("got %v %v, want nil/false", syms, repeats)
	}
}

func TestUnicodeSentinelForZeroKeysym(t *testing.T) {
	km := newPlainUS()
	if cp, ok := km.Unicode(0); ok || cp != InvalidUnicode {
		t.Errorf("got %v %v, want InvalidUnicode/false", cp, ok)
	}
}

func TestCompileUnsupportedLayoutIsNotSupported(t *testing.T) {
	_, err := Compile(Options{Layout: "dvorak"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized layout")
	}
}

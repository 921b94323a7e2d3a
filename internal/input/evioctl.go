package input

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func uintptrOf(b *byte) uintptr { return uintptr(unsafe.Pointer(b)) }

// EVIOCGLED(len) per linux/input.h: _IOC(_IOC_READ, 'E', 0x19, len). The
// full LED bitmap is LED_MAX+1 = 16 bits (two bytes); a single-byte read
// returns LEDs 0-7, which covers the NumLock, CapsLock and ScrollLock
// bits this codebase resyncs.
const (
	ledCapsL   = 0x01 // LED_CAPSL
	ledNumL    = 0x00 // LED_NUML
	ledScrollL = 0x02 // LED_SCROLLL

	evIOCGLED = 0x80014519 // _IOR('E', 0x19, char[1])
)

func evioctlGetLED(fd int) (byte, error) {
	var buf [1]byte
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(evIOCGLED), uintptr(uintptrOf(&buf[0])))
	if errno != 0 {
		return 0, errno
	}
	return buf[0], nil
}

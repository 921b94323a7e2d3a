package vtmaster

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"seatrt/internal/errors"
)

// vtState mirrors struct vt_stat from VT_GETSTATE.
type vtState struct {
	Active uint16
	Signal uint16
	State  uint16
}

func ioctlInt(fd uintptr, req uintptr, arg int) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func ioctlGetInt(fd uintptr, req uintptr) (int, error) {
	var v int32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&v)))
	if errno != 0 {
		return 0, errno
	}
	return int(v), nil
}

// openNextFreeVT queries the console driver for the next unallocated VT
// number via VT_OPENQRY against the given control fd (conventionally
// /dev/tty0). Grounded on gokrazy/fbstatus's nextFreeConsole.
func openNextFreeVT(controlFD uintptr) (int, error) {
	n, err := ioctlGetInt(controlFD, vtOpenQry)
	if err != nil {
		return 0, errors.Wrap(err, "VT_OPENQRY")
	}
	return n, nil
}

func activateVT(controlFD uintptr, num int) error {
	if err := ioctlInt(controlFD, vtActivate, num); err != nil {
		return errors.Wrapf(err, "VT_ACTIVATE(%d)", num)
	}
	if err := ioctlInt(controlFD, vtWaitActive, num); err != nil {
		return errors.Wrapf(err, "VT_WAITACTIVE(%d)", num)
	}
	return nil
}

func disallocateVT(controlFD uintptr, num int) error {
	if err := ioctlInt(controlFD, vtDisallocate, num); err != nil {
		return errors.Wrapf(err, "VT_DISALLOCATE(%d)", num)
	}
	return nil
}

func currentActiveVT(controlFD uintptr) (int, error) {
	var st vtState
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, controlFD, vtGetState, uintptr(unsafe.Pointer(&st)))
	if errno != 0 {
		return 0, errors.Wrap(errno, "VT_GETSTATE")
	}
	return int(st.Active), nil
}

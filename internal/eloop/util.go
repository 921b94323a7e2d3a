package eloop

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

var byteOrder = binary.LittleEndian

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}

func ptrOf(info *unix.SignalfdSiginfo) unsafe.Pointer {
	return unsafe.Pointer(info)
}

// sigsetAdd sets the bit for sig in set. x/sys/unix exposes Sigset_t as a
// fixed array of words with no helper to set an individual signal, so this
// mirrors the bit arithmetic glibc's sigaddset performs: signal numbers are
// 1-based, word size is 64 bits on linux/amd64 and linux/arm64.
func sigsetAdd(set *unix.Sigset_t, s os.Signal) {
	sig, ok := s.(syscall.Signal)
	if !ok {
		return
	}
	n := int(sig) - 1
	if n < 0 {
		return
	}
	words := (*[16]uint64)(unsafe.Pointer(set))
	words[n/64] |= 1 << uint(n%64)
}

// sigsetUnion ORs src's bits into dst.
func sigsetUnion(dst, src *unix.Sigset_t) {
	d := (*[16]uint64)(unsafe.Pointer(dst))
	s := (*[16]uint64)(unsafe.Pointer(src))
	for i := range d {
		d[i] |= s[i]
	}
}

// durationToItimerspec converts a Go duration into the Itimerspec
// timerfd_settime expects. If periodic is false, Interval is left zero so
// the timer fires exactly once.
func durationToItimerspec(d time.Duration, periodic bool) unix.ItimerSpec {
	val := unix.NsecToTimespec(d.Nanoseconds())
	spec := unix.ItimerSpec{Value: val}
	if periodic {
		spec.Interval = val
	}
	return spec
}

// signalFromInfo recovers an os.Signal from a signalfd_siginfo record.
func signalFromInfo(info *unix.SignalfdSiginfo) os.Signal {
	return syscall.Signal(info.Signo)
}

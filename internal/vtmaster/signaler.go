package vtmaster

import "golang.org/x/sys/unix"

// UnixSignaler delivers relsig/acqsig via the kill(2) syscall, the
// Signaler implementation the process entry point wires in outside of
// tests (which substitute a recording fake).
type UnixSignaler struct{}

var _ Signaler = UnixSignaler{}

// Signal implements Signaler.
func (UnixSignaler) Signal(pid, sig int) error {
	return unix.Kill(pid, unix.Signal(sig))
}

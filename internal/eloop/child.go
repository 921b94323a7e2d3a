package eloop

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"seatrt/internal/errors"
)

// RegisterChild arms a reaper for pid: a SIGCHLD handler that wait4()s pid
// specifically (WNOHANG) whenever SIGCHLD arrives, invoking handler once
// the child has actually changed state. It registers SIGCHLD on the loop's
// shared signalfd the same way RegisterSignal does, so RegisterChild and
// RegisterSignal(syscall.SIGCHLD, ...) on the same Loop compose: both will
// see every SIGCHLD delivery, and each independently reaps by pid.
func (l *Loop) RegisterChild(pid int, handler ChildHandler) (*Source, error) {
	src := &Source{kind: kindChild, fd: -1, childHandler: handler}
	_, err := l.RegisterSignal([]os.Signal{syscall.SIGCHLD}, func(ll *Loop, sigSrc *Source, sig os.Signal) {
		if src.removed {
			return
		}
		var ws unix.WaitStatus
		got, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if err != nil || got != pid {
			return
		}
		src.childHandler(ll, src, pid, ws)
	})
	if err != nil {
		return nil, errors.Wrap(err, "register child reaper")
	}
	return src, nil
}

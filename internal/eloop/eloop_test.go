package eloop

import (
	"testing"
	"time"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestCounterWakesLoop(t *testing.T) {
	l := newTestLoop(t)
	got := make(chan uint64, 1)
	src, err := l.RegisterCounter(func(l *Loop, s *Source, count uint64) {
		got <- count
		l.Exit()
	})
	if err != nil {
		t.Fatalf("RegisterCounter: %v", err)
	}
	if err := src.Bump(3); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if err := l.Run(1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case n := <-got:
		if n != 3 {
			t.Errorf("count = %d, want 3", n)
		}
	default:
		t.Errorf("counter handler never fired")
	}
}

func TestTimerFiresOnce(t *testing.T) {
	l := newTestLoop(t)
	fired := 0
	_, err := l.RegisterTimer(10*time.Millisecond, false, func(l *Loop, s *Source, exp uint64) {
		fired++
		l.Exit()
	})
	if err != nil {
		t.Fatalf("RegisterTimer: %v", err)
	}
	if err := l.Run(1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
}

func TestIdlePreAndPostHooksRunEveryIteration(t *testing.T) {
	l := newTestLoop(t)
	var order []string
	l.RegisterPre(func(l *Loop) { order = append(order, "pre") })
	l.RegisterIdle(false, func(l *Loop) { order = append(order, "idle") })
	l.RegisterPost(func(l *Loop) { order = append(order, "post") })

	if err := l.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := []string{"pre", "idle", "post"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestOneShotIdleRunsOnce(t *testing.T) {
	l := newTestLoop(t)
	count := 0
	l.RegisterIdle(true, func(l *Loop) { count++ })

	l.Dispatch(0)
	l.Dispatch(0)
	l.Dispatch(0)

	if count != 1 {
		t.Errorf("one-shot idle ran %d times, want 1", count)
	}
}

func TestUnregisterDuringOwnHandler(t *testing.T) {
	l := newTestLoop(t)
	var src *Source
	fired := 0
	src, err := l.RegisterCounter(func(l *Loop, s *Source, count uint64) {
		fired++
		l.Unregister(src)
		l.Exit()
	})
	if err != nil {
		t.Fatalf("RegisterCounter: %v", err)
	}
	src.Bump(1)
	if err := l.Run(1000); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fired != 1 {
		t.Errorf("fired = %d, want 1", fired)
	}
	if _, ok := l.fds[src.fd]; ok {
		t.Errorf("source still registered after Unregister")
	}
}

func TestSubLoopDispatchesChildEvents(t *testing.T) {
	parent := newTestLoop(t)
	child, err := parent.NewSubLoop()
	if err != nil {
		t.Fatalf("NewSubLoop: %v", err)
	}
	t.Cleanup(func() { child.Close() })

	childFired := false
	src, err := child.RegisterCounter(func(l *Loop, s *Source, count uint64) {
		childFired = true
	})
	if err != nil {
		t.Fatalf("RegisterCounter: %v", err)
	}
	src.Bump(1)

	if err := parent.Dispatch(100); err != nil {
		t.Fatalf("parent.Dispatch: %v", err)
	}
	if !childFired {
		t.Errorf("sub-loop event never reached child handler via parent dispatch")
	}
}

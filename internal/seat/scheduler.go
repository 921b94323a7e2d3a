// Package seat implements the seat scheduler (SS, spec §4.7) and seat
// controller (SC, spec §4.8) — the critical algorithm the rest of the
// runtime exists to drive. The scheduler itself is pure state: it holds
// no file descriptors and makes no syscalls, so every rule in spec §4.7
// and every property in spec §8 can be exercised directly in tests
// without eloop, devmon, or any backend involved.
//
// The small-struct-plus-explicit-state-machine shape (no implicit
// goroutines, no channels, a single mutable struct advanced only by its
// own methods) follows nya3jp-tast's job/state-tracking packages, which
// favor an explicit current/pending pair over a continuation style for
// exactly the re-entrancy reason spec §9 calls out.
package seat

import (
	"context"
	"sort"

	"seatrt/internal/errors"
	"seatrt/internal/logging"
)

// AsyncTask is the single pending-completion slot the scheduler carries
// across a DEACTIVATE that returned in-progress.
type AsyncTask int

const (
	AsyncNone AsyncTask = iota
	AsyncSwitch
	AsyncSleep
	AsyncUnregister
)

func (t AsyncTask) String() string {
	switch t {
	case AsyncSwitch:
		return "switch"
	case AsyncSleep:
		return "sleep"
	case AsyncUnregister:
		return "unregister"
	default:
		return "none"
	}
}

// Callback is the capability a registered session hands the scheduler.
// The scheduler invokes exactly these three methods and never anything
// else; Deactivate may return an *errors.E of kind InProgress to signal
// that completion will arrive later via Seat.NotifyDeactivated.
type Callback interface {
	Activate() error
	Deactivate() error
	Unregister()
}

// Session is one schedulable unit on a seat (a VT session in practice).
// Sessions with a non-zero id are kept sorted ascending; id-0 sessions
// are appended after all numbered ones in registration order.
type Session struct {
	seat *Seat
	id   int
	cb   Callback

	enabled      bool
	deactivating bool
	isDummy      bool

	// shadowed marks a session whose id collided with an
	// already-registered session; permitted, flagged, never scheduled
	// in preference to the session it shadows.
	shadowed bool
}

func (s *Session) ID() int           { return s.id }
func (s *Session) Enabled() bool     { return s.enabled }
func (s *Session) Deactivating() bool { return s.deactivating }
func (s *Session) Shadowed() bool    { return s.shadowed }
func (s *Session) IsDummy() bool     { return s.isDummy }

// SetEnabled flips the enabled flag and, if enabling makes this session
// a schedule candidate, kicks the scheduler.
func (s *Session) SetEnabled(enabled bool) {
	s.enabled = enabled
	if s.seat != nil {
		s.seat.reschedule()
		s.seat.run()
	}
}

// Listener receives the seat-level edges the controller (SC) reacts to:
// KMSCON_SEAT_FOREGROUND/BACKGROUND when a session gains or loses the
// foreground, and SLEEP when go_asleep completes.
type Listener interface {
	OnForeground()
	OnBackground()
	OnSleep()
}

type nopListener struct{}

func (nopListener) OnForeground() {}
func (nopListener) OnBackground() {}
func (nopListener) OnSleep()      {}

// Seat is the scheduler state described in spec §3/§4.7.
type Seat struct {
	Name string

	awake     bool
	sessions  []*Session
	current   *Session
	scheduled *Session
	dummy     *Session
	asyncTask AsyncTask

	listener Listener
	ctx      context.Context
}

// New creates a seat with no sessions, asleep. Call Wake to admit
// scheduling. Diagnostics are written through ctx's attached
// logging.Logger, if any.
func New(ctx context.Context, name string, listener Listener) *Seat {
	if listener == nil {
		listener = nopListener{}
	}
	return &Seat{Name: name, ctx: ctx, listener: listener}
}

func (s *Seat) Awake() bool           { return s.awake }
func (s *Seat) Current() *Session     { return s.current }
func (s *Seat) Scheduled() *Session   { return s.scheduled }
func (s *Seat) Dummy() *Session       { return s.dummy }
func (s *Seat) AsyncTask() AsyncTask  { return s.asyncTask }
func (s *Seat) Sessions() []*Session  { return append([]*Session(nil), s.sessions...) }

func (s *Seat) logf(format string, args ...interface{}) {
	logging.Infof(s.ctx, "seat."+s.Name, format, args...)
}

// Register inserts a new session in id order (spec §3's session
// ordering invariant: non-zero ids ascending, id 0 appended after all
// numbered sessions in registration order) and, if it is immediately
// eligible to take the foreground, schedules it.
func (s *Seat) Register(id int, enabled bool, cb Callback) *Session {
	sess := &Session{seat: s, id: id, enabled: enabled, cb: cb}
	s.insert(sess)
	if enabled && (s.current == nil || s.current == s.dummy) {
		s.Schedule(sess)
	}
	return sess
}

// RegisterDummy registers a background fallback session and remembers
// it as the seat's dummy.
func (s *Seat) RegisterDummy(id int, enabled bool, cb Callback) *Session {
	sess := s.Register(id, enabled, cb)
	sess.isDummy = true
	s.dummy = sess
	return sess
}

func (s *Seat) insert(sess *Session) {
	if sess.id == 0 {
		s.sessions = append(s.sessions, sess)
		return
	}
	for _, other := range s.sessions {
		if other.id == sess.id {
			sess.shadowed = true
			break
		}
	}
	idx := sort.Search(len(s.sessions), func(i int) bool {
		o := s.sessions[i]
		if o.id == 0 {
			return true // all id-0 entries sort after every numbered one
		}
		return o.id > sess.id // strictly greater: equal ids go after the earlier registration
	})
	s.sessions = append(s.sessions, nil)
	copy(s.sessions[idx+1:], s.sessions[idx:])
	s.sessions[idx] = sess
}

// Unregister removes a session from the seat. If it was the current
// session it is force-dropped and the scheduler does not auto-run
// afterward, per spec §4.7, to avoid thrashing on a failing device; the
// caller (or a later external event) must re-drive scheduling.
func (s *Seat) Unregister(sess *Session) {
	s.removeFromList(sess)
	if s.scheduled == sess {
		s.scheduled = nil
	}
	if s.dummy == sess {
		s.dummy = nil
	}
	wasCurrent := s.current == sess
	if wasCurrent {
		s.pause(true, AsyncNone)
		s.reschedule()
	} else {
		s.reschedule()
		s.run()
	}
	sess.cb.Unregister()
}

func (s *Seat) removeFromList(sess *Session) {
	for i, o := range s.sessions {
		if o == sess {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			return
		}
	}
}

// run implements spec §4.7's Activation rule.
func (s *Seat) run() error {
	if !s.awake || s.current != nil || s.scheduled == nil {
		return nil
	}
	target := s.scheduled
	if err := target.cb.Activate(); err != nil {
		s.logf("activate session %d failed: %v", target.id, err)
		return err
	}
	s.current = target
	s.listener.OnForeground()
	return nil
}

// pause implements spec §4.7's Deactivation rule.
func (s *Seat) pause(force bool, tag AsyncTask) error {
	if s.current == nil {
		return nil
	}
	cur := s.current
	cur.deactivating = true
	err := cur.cb.Deactivate()

	if force {
		cur.deactivating = false
		s.current = nil
		s.asyncTask = AsyncNone
		s.listener.OnBackground()
		return nil
	}

	if err == nil {
		cur.deactivating = false
		s.current = nil
		s.asyncTask = AsyncNone
		s.listener.OnBackground()
		return nil
	}

	// Synchronous error or in-progress: state unchanged except the
	// pending-async-task slot, which remembers what to do on completion.
	s.asyncTask = tag
	return err
}

// reschedule implements spec §4.7's Rescheduling rule.
func (s *Seat) reschedule() {
	if s.scheduled != nil && s.scheduled.enabled {
		return
	}
	if s.current != nil && s.current.enabled {
		s.scheduled = s.current
		return
	}

	start := 0
	if s.current != nil {
		for i, o := range s.sessions {
			if o == s.current {
				start = i + 1
				break
			}
		}
	}
	for i := start; i < len(s.sessions); i++ {
		cand := s.sessions[i]
		if cand.enabled && cand != s.dummy {
			s.scheduled = cand
			return
		}
	}
	if s.dummy != nil && s.dummy.enabled {
		s.scheduled = s.dummy
		return
	}
	s.scheduled = nil
}

// Schedule implements spec §4.7's Switch rule: schedule(next).
func (s *Seat) Schedule(next *Session) error {
	s.scheduled = next
	s.reschedule()
	if s.scheduled == s.current {
		return nil
	}
	if err := s.pause(false, AsyncSwitch); err != nil {
		return err
	}
	return s.run()
}

// Next implements spec §4.7's Next/prev rule: a circular walk from the
// current session, skipping the dummy, falling back to the dummy if
// nothing else is enabled.
func (s *Seat) Next(reverse bool) error {
	n := len(s.sessions)
	if n == 0 {
		return errors.New(errors.NotFound, "seat has no sessions")
	}
	start := 0
	for i, o := range s.sessions {
		if o == s.current {
			start = i
			break
		}
	}
	step := 1
	if reverse {
		step = -1
	}
	var chosen *Session
	for i := 1; i <= n; i++ {
		idx := ((start+i*step)%n + n) % n
		cand := s.sessions[idx]
		if cand.enabled && cand != s.dummy {
			chosen = cand
			break
		}
	}
	if chosen == nil && s.dummy != nil && s.dummy.enabled {
		chosen = s.dummy
	}
	if chosen == nil {
		return errors.New(errors.NotFound, "no enabled session to switch to")
	}
	return s.Schedule(chosen)
}

// NotifyDeactivated implements spec §4.7's Completion rule: the session
// previously returned in-progress from Deactivate and has now finished.
// Sessions that are not the current deactivating one are ignored (stale
// or duplicate notification).
func (s *Seat) NotifyDeactivated(sess *Session) {
	if s.current != sess {
		return
	}
	task := s.asyncTask
	sess.deactivating = false
	s.current = nil
	s.asyncTask = AsyncNone
	s.listener.OnBackground()
	s.reschedule()

	switch task {
	case AsyncSleep:
		s.goAsleep(false)
	case AsyncUnregister:
		s.Unregister(sess)
	default: // AsyncNone, AsyncSwitch
		s.run()
	}
}

// Sleep implements spec §4.7's Sleep rule.
func (s *Seat) Sleep(force bool) error {
	err := s.pause(force, AsyncSleep)
	if err != nil {
		// Synchronous error or in-progress: go_asleep runs later, either
		// never (sync error — nothing will call NotifyDeactivated) or
		// from the completion path (in-progress, always force=false).
		return err
	}
	return s.goAsleep(force)
}

func (s *Seat) goAsleep(force bool) error {
	if s.current != nil {
		if !force {
			return errors.New(errors.Busy, "seat busy, cannot sleep")
		}
		cur := s.current
		cur.deactivating = false
		s.current = nil
	}
	s.awake = false
	s.listener.OnSleep()
	return nil
}

// Wake implements spec §4.7's Wake rule.
func (s *Seat) Wake() error {
	s.awake = true
	return s.run()
}

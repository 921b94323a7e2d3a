package logging

import (
	"time"

	"github.com/coreos/go-systemd/journal"
)

// JournalLogger routes logs to the systemd journal with SEAT_TAG and
// PRIORITY fields, so `journalctl _COMM=seatd SEAT_TAG=seat.seat0` isolates one
// seat's activity from the rest of the daemon's.
type JournalLogger struct{}

var _ Logger = JournalLogger{}

// NewJournalLogger returns a JournalLogger, or an error if the journal
// socket is not reachable (e.g. running outside systemd).
func NewJournalLogger() (JournalLogger, error) {
	if !journal.Enabled() {
		return JournalLogger{}, errNoJournal
	}
	return JournalLogger{}, nil
}

var errNoJournal = journalUnavailable{}

type journalUnavailable struct{}

func (journalUnavailable) Error() string { return "systemd journal is not available" }

// Log implements Logger.
func (JournalLogger) Log(level Level, ts time.Time, tag, msg string) {
	journal.Send(msg, journalPriority(level), map[string]string{
		"SEAT_TAG": tag,
	})
}

func journalPriority(level Level) journal.Priority {
	switch level {
	case LevelDebug:
		return journal.PriDebug
	case LevelInfo:
		return journal.PriInfo
	case LevelWarn:
		return journal.PriWarning
	default:
		return journal.PriErr
	}
}

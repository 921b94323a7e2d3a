// Package config parses the seat runtime's YAML configuration: keymap
// selection, VT allocation policy, per-backend preference order, and
// log sink/level selection. It is intentionally a thin, static load
// step: nothing in this package watches the file or reloads on SIGHUP,
// mirroring the one-shot config parse cmd/seatd's entry point performs
// before handing off to the library.
package config

import (
	"os"

	"gopkg.in/yaml.v2"

	"seatrt/internal/errors"
	"seatrt/internal/input/keymap"
	"seatrt/internal/logging"
)

// VTPolicy selects the VT master's real-VT allocation behavior, spec
// §4.5's "listen mode" switch.
type VTPolicy string

const (
	// VTPolicyPerSeat lets each seat that asks allocate the real VT if
	// one is free, falling back to fake otherwise.
	VTPolicyPerSeat VTPolicy = "per-seat"
	// VTPolicyListen forbids any seat from holding the real VT; every
	// session gets a fake VT.
	VTPolicyListen VTPolicy = "listen"
)

// LogSink selects where log entries are written.
type LogSink string

const (
	LogSinkConsole LogSink = "console"
	LogSinkJournal LogSink = "journal"
)

// Keymap mirrors internal/input/keymap.Options in YAML form.
type Keymap struct {
	Layout  string `yaml:"layout"`
	Variant string `yaml:"variant"`
	Options string `yaml:"options"`
}

// ToOptions converts y to the keymap package's own Options type.
func (k Keymap) ToOptions() keymap.Options {
	return keymap.Options{Layout: k.Layout, Variant: k.Variant, Options: k.Options}
}

// SeatConfig is one seat's configuration block.
type SeatConfig struct {
	Name string `yaml:"name"`
	// BackendOrder lists video backend kinds in preference order
	// ("drm", "drmdumb", "fbdev"). It is parsed but not consulted: the
	// seat controller always uses its built-in order (DRM-accel, then
	// DRM-dumb, for a DRM node; fbdev for an fbdev node) whatever this
	// list holds.
	BackendOrder []string `yaml:"backend_order"`
	Keymap       Keymap   `yaml:"keymap"`
}

// Config is the top-level seat runtime configuration.
type Config struct {
	VTPolicy VTPolicy     `yaml:"vt_policy"`
	LogLevel string       `yaml:"log_level"`
	LogSink  LogSink      `yaml:"log_sink"`
	Keymap   Keymap       `yaml:"keymap"` // default, overridable per seat
	Seats    []SeatConfig `yaml:"seats"`
}

// Default returns the configuration used when no file is supplied: a
// single seat named "seat0", per-seat real VT allocation, the "us"
// keymap, and console logging at info level.
func Default() Config {
	return Config{
		VTPolicy: VTPolicyPerSeat,
		LogLevel: "info",
		LogSink:  LogSinkConsole,
		Keymap:   Keymap{Layout: "us"},
		Seats:    []SeatConfig{{Name: "seat0"}},
	}
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config file %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parsing config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks invariants Load cannot fix up with a default: at
// least one seat, no duplicate seat names, and a recognized log level.
func (c Config) Validate() error {
	if len(c.Seats) == 0 {
		return errors.New(errors.InvalidArgument, "config must declare at least one seat")
	}
	seen := make(map[string]bool, len(c.Seats))
	for _, s := range c.Seats {
		if s.Name == "" {
			return errors.New(errors.InvalidArgument, "seat entry missing a name")
		}
		if seen[s.Name] {
			return errors.Errorf(errors.InvalidArgument, "duplicate seat name %q", s.Name)
		}
		seen[s.Name] = true
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogSink {
	case LogSinkConsole, LogSinkJournal, "":
	default:
		return errors.Errorf(errors.InvalidArgument, "unknown log sink %q", c.LogSink)
	}
	return nil
}

// ParseLevel maps a config string to a logging.Level.
func ParseLevel(s string) (logging.Level, error) {
	switch s {
	case "debug":
		return logging.LevelDebug, nil
	case "info", "":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, errors.Errorf(errors.InvalidArgument, "unknown log level %q", s)
	}
}

// SeatKeymap resolves a seat's keymap, falling back to the top-level
// default when the seat block leaves it empty.
func (c Config) SeatKeymap(seat SeatConfig) Keymap {
	if seat.Keymap.Layout == "" {
		return c.Keymap
	}
	return seat.Keymap
}

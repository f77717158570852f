// Package dictation runs voice dictation sessions: it drives the loudness
// graph while a speech engine listens, then commits or discards what was
// recognized.
package dictation

import (
	"fmt"
	"math/rand/v2"
	"time"

	"murmur/levels"
	"murmur/meter"
	"murmur/speech"
)

type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome is how a session ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeCancelled
	OutcomeUnavailable  // engine unusable, session never started
	OutcomeEngineFailed // engine failed to start, rolled back
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeEngineFailed:
		return "engine_failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

const (
	DefaultLocale  = "en-US"
	DefaultCadence = 80 * time.Millisecond
)

// Config is the caller-owned state a Session is built from. Zero fields
// take the defaults.
type Config struct {
	Locale   string
	Cadence  time.Duration
	Bars     int
	Baseline float64
}

func DefaultConfig() Config {
	return Config{
		Locale:   DefaultLocale,
		Cadence:  DefaultCadence,
		Bars:     levels.DefaultSize,
		Baseline: levels.DefaultBaseline,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Locale == "" {
		c.Locale = d.Locale
	}
	if c.Cadence <= 0 {
		c.Cadence = d.Cadence
	}
	if c.Bars <= 0 {
		c.Bars = d.Bars
	}
	if c.Baseline <= levels.DisplayMin || c.Baseline > levels.DisplayMax {
		c.Baseline = d.Baseline
	}
	return c
}

// TextSink receives the committed transcript.
type TextSink interface {
	Deliver(text string) error
}

// NoticeSurface tells the user dictation is not available.
type NoticeSurface interface {
	NotifyUnavailable()
}

// EventSink observes a session for display. LevelsChanged is called from the
// session's loop goroutine; the rest from the goroutine driving the session.
type EventSink interface {
	StateChanged(s State)
	LevelsChanged(levels []float64)
	PartialChanged(text string)
	SessionEnded(o Outcome)
}

// Deps are the collaborators a Session drives. Capability, Events and Rand
// may be nil.
type Deps struct {
	Engine     speech.Engine
	Capability meter.Capability
	Sink       TextSink
	Notice     NoticeSurface
	Events     EventSink
	Rand       *rand.Rand
}

type nopEvents struct{}

func (nopEvents) StateChanged(State)      {}
func (nopEvents) LevelsChanged([]float64) {}
func (nopEvents) PartialChanged(string)   {}
func (nopEvents) SessionEnded(Outcome)    {}

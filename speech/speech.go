// Package speech defines the recognizer contract used by a dictation session
// and provides a Deepgram streaming implementation and a scripted fake.
package speech

import (
	"context"
	"errors"
	"fmt"
)

type EventKind int

const (
	EventPartial EventKind = iota
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is emitted by a running engine. Partial events carry the full
// current transcript, not a delta.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

func Partial(text string) Event { return Event{Kind: EventPartial, Text: text} }

func RecognitionError(err error) Event { return Event{Kind: EventError, Err: err} }

var (
	ErrNotStarted     = errors.New("speech engine not started")
	ErrAlreadyStarted = errors.New("speech engine already started")
)

// Engine is a speech recognizer. Start returns the event channel for one
// recognition run; the engine closes it once Stop or Cancel returns.
type Engine interface {
	Usable() bool
	Start(ctx context.Context, locale string) (<-chan Event, error)
	// Stop ends recognition and waits for the final result.
	Stop(ctx context.Context) error
	// Cancel ends recognition and discards pending results.
	Cancel() error
}

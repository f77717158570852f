package hotkey

import (
	"sync/atomic"
	"time"
)

type Mode string

const (
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

// StartEvent asks for a new dictation session.
type StartEvent struct {
	Mode Mode
}

// Toggle starts a session on a press when none is running and stops it
// otherwise. active reports whether a session is running; it is asked on
// every press, so sessions started or ended elsewhere keep the key in step.
type Toggle struct {
	startCh chan StartEvent
	stopCh  chan struct{}
	active  func() bool
}

func NewToggle(hk Hotkey, active func() bool) *Toggle {
	t := &Toggle{
		startCh: make(chan StartEvent, 1),
		stopCh:  make(chan struct{}, 1),
		active:  active,
	}
	go t.run(hk)
	return t
}

func (t *Toggle) Start() <-chan StartEvent  { return t.startCh }
func (t *Toggle) StopChan() <-chan struct{} { return t.stopCh }

func (t *Toggle) run(hk Hotkey) {
	for {
		<-hk.Keydown()
		<-hk.Keyup()
		if t.active() {
			t.stopCh <- struct{}{}
		} else {
			t.startCh <- StartEvent{Mode: ModeToggle}
		}
	}
}

// Hybrid wraps a Hotkey to provide tap-to-toggle and hold-to-talk on the
// same key. A press starts at once; whether its release stops the session
// depends on how long it was held.
type Hybrid struct {
	startCh chan StartEvent
	stopCh  chan struct{}
	toggle  atomic.Bool
	active  func() bool
}

// NewHybrid builds a Hybrid on hk. Presses held at least longPress are
// hold-to-talk. A press while active reports a running session stops it on
// release.
func NewHybrid(hk Hotkey, longPress time.Duration, active func() bool) *Hybrid {
	h := &Hybrid{
		startCh: make(chan StartEvent, 1),
		stopCh:  make(chan struct{}, 1),
		active:  active,
	}
	go h.run(hk, longPress)
	return h
}

func (h *Hybrid) Start() <-chan StartEvent  { return h.startCh }
func (h *Hybrid) StopChan() <-chan struct{} { return h.stopCh }

// IsToggle reports whether the current session was started by a short tap.
func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

func (h *Hybrid) stop() {
	select {
	case h.stopCh <- struct{}{}:
	default:
	}
}

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	for {
		<-hk.Keydown()
		if h.active() {
			<-hk.Keyup()
			h.stop()
			continue
		}
		h.toggle.Store(false)
		h.startCh <- StartEvent{Mode: ModePTT}
		timer := time.NewTimer(longPress)
		select {
		case <-timer.C:
			<-hk.Keyup()
			h.stop()
		case <-hk.Keyup():
			// Short tap: keeps running until the next press.
			timer.Stop()
			h.toggle.Store(true)
		}
	}
}

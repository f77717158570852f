package speech

import (
	"context"
	"strings"
	"sync"
	"time"
)

const fakeBuffer = 64

// Fake is a scripted Engine for tests and offline demos.
type Fake struct {
	mu          sync.Mutex
	usable      bool
	startErr    error
	stopErr     error
	cancelErr   error
	finalOnStop string
	script      []string
	every       time.Duration

	ch      chan Event
	quit    chan struct{}
	locale  string
	starts  int
	stops   int
	cancels int
}

func NewFake() *Fake {
	return &Fake{usable: true}
}

func (f *Fake) SetUsable(ok bool) {
	f.mu.Lock()
	f.usable = ok
	f.mu.Unlock()
}

func (f *Fake) FailStart(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

func (f *Fake) FailStop(stopErr, cancelErr error) {
	f.mu.Lock()
	f.stopErr, f.cancelErr = stopErr, cancelErr
	f.mu.Unlock()
}

// FinalOnStop makes Stop emit text as a last partial before closing.
func (f *Fake) FinalOnStop(text string) {
	f.mu.Lock()
	f.finalOnStop = text
	f.mu.Unlock()
}

// Script makes every run emit the words one by one as growing partials.
func (f *Fake) Script(words []string, every time.Duration) {
	f.mu.Lock()
	f.script, f.every = words, every
	f.mu.Unlock()
}

func (f *Fake) Usable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usable
}

func (f *Fake) Start(_ context.Context, locale string) (<-chan Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.ch != nil {
		return nil, ErrAlreadyStarted
	}
	f.starts++
	f.locale = locale
	f.ch = make(chan Event, fakeBuffer)
	f.quit = make(chan struct{})
	if len(f.script) > 0 {
		go f.play(f.script, f.every, f.quit)
	}
	return f.ch, nil
}

func (f *Fake) play(words []string, every time.Duration, quit chan struct{}) {
	for i := range words {
		select {
		case <-quit:
			return
		case <-time.After(every):
		}
		f.Emit(Partial(strings.Join(words[:i+1], " ")))
	}
}

// Emit delivers ev to the running session. It reports false when no run is
// active or the buffer is full.
func (f *Fake) Emit(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		return false
	}
	select {
	case f.ch <- ev:
		return true
	default:
		return false
	}
}

func (f *Fake) end() bool {
	if f.ch == nil {
		return false
	}
	close(f.quit)
	close(f.ch)
	f.ch, f.quit = nil, nil
	return true
}

func (f *Fake) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch == nil {
		return ErrNotStarted
	}
	if f.finalOnStop != "" {
		select {
		case f.ch <- Partial(f.finalOnStop):
		default:
		}
	}
	f.end()
	f.stops++
	return f.stopErr
}

func (f *Fake) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.end() {
		return ErrNotStarted
	}
	f.cancels++
	return f.cancelErr
}

// Running reports whether a run is active.
func (f *Fake) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ch != nil
}

// Counts returns how many times Start, Stop and Cancel succeeded.
func (f *Fake) Counts() (starts, stops, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.cancels
}

func (f *Fake) Locale() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locale
}

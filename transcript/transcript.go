// Package transcript tracks the live recognition text of one dictation
// session.
package transcript

import (
	"strings"
	"sync"
)

// Tracker holds the latest partial result. Updates are last-write-wins.
// Once sealed, late results from a stopping engine are dropped until the
// next Open.
type Tracker struct {
	mu      sync.Mutex
	text    string
	sealed  bool
	updates int
	errors  int
}

// New returns a sealed tracker; call Open when a session starts.
func New() *Tracker {
	return &Tracker{sealed: true}
}

// Open clears the text and starts accepting results.
func (t *Tracker) Open() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = ""
	t.sealed = false
	t.updates = 0
	t.errors = 0
}

// OnPartialResult replaces the current text. It reports whether the result
// was accepted.
func (t *Tracker) OnPartialResult(text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return false
	}
	t.text = text
	t.updates++
	return true
}

// OnError records a recognition error. The text is left untouched and the
// error is not propagated.
func (t *Tracker) OnError(error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.sealed {
		t.errors++
	}
}

// Seal stops accepting results. The text is kept for Snapshot.
func (t *Tracker) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Snapshot returns the trimmed text. The returned string shares nothing
// with later updates.
func (t *Tracker) Snapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Clone(strings.TrimSpace(t.text))
}

// Current returns the untrimmed live text.
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = ""
}

// Stats returns the number of accepted updates and recognition errors since
// Open.
func (t *Tracker) Stats() (updates, errors int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updates, t.errors
}

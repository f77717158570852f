// Package clipboard delivers committed dictation text: it copies the text to
// the system clipboard and can paste it into the focused window.
package clipboard

import (
	"errors"
	"fmt"

	cb "github.com/atotto/clipboard"
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Sink copies every delivered text and, with AutoPaste, sends the paste
// keystroke afterwards.
type Sink struct {
	AutoPaste bool

	copy  func(string) error
	paste func() error
}

func NewSink(autoPaste bool) *Sink {
	return &Sink{AutoPaste: autoPaste, copy: Copy, paste: Paste}
}

func (s *Sink) Deliver(text string) error {
	if text == "" {
		return errors.New("nothing to deliver")
	}
	if err := s.copy(text); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if !s.AutoPaste {
		return nil
	}
	if err := s.paste(); err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	return nil
}

// Package hotkey turns a global keyboard shortcut into dictation start and
// stop signals.
package hotkey

import (
	"golang.design/x/hotkey"
)

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Trigger is what the application listens to: a start signal and a stop
// signal, whatever the key gesture behind them.
type Trigger interface {
	Start() <-chan StartEvent
	StopChan() <-chan struct{}
}

const Combo = "Ctrl+Shift+Space"

type xHotkey struct {
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	done    chan struct{}
}

// New returns the Ctrl+Shift+Space system hotkey. It is not listening until
// Register.
func New() Hotkey {
	return &xHotkey{
		hk:      hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeySpace),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (h *xHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return err
	}
	h.done = make(chan struct{})
	go forward(h.hk.Keydown(), h.keydown, h.done)
	go forward(h.hk.Keyup(), h.keyup, h.done)
	return nil
}

func forward(in <-chan hotkey.Event, out chan<- struct{}, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-in:
		}
		select {
		case out <- struct{}{}:
		case <-done:
			return
		}
	}
}

func (h *xHotkey) Unregister() {
	if h.done != nil {
		close(h.done)
		h.done = nil
	}
	h.hk.Unregister()
}

func (h *xHotkey) Keydown() <-chan struct{} { return h.keydown }
func (h *xHotkey) Keyup() <-chan struct{}   { return h.keyup }

// Diagnose registers and releases the hotkey once.
func Diagnose() (string, error) {
	hk := New()
	if err := hk.Register(); err != nil {
		return "", err
	}
	hk.Unregister()
	return "hotkey registered (" + Combo + ")", nil
}

// Package meter decides how the live loudness graph is fed for a session and
// provides the two samplers: one backed by real microphone metering, one
// simulated.
package meter

import (
	"context"
	"errors"
	"fmt"
)

type Mode int

const (
	ModeSimulated Mode = iota
	ModeMetering
)

func (m Mode) String() string {
	switch m {
	case ModeMetering:
		return "metering"
	case ModeSimulated:
		return "simulated"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type Permission int

const (
	Denied Permission = iota
	Granted
)

// Capability is the platform facility that provides real loudness readings.
type Capability interface {
	HasSupport() bool
	RequestPermission(ctx context.Context) (Permission, error)
	Open(ctx context.Context) (Capture, error)
}

// Capture is an open metering resource. Level reports loudness in dBFS.
type Capture interface {
	Level() (float64, error)
	Close() error
}

var ErrCaptureStalled = errors.New("capture stalled")

// CaptureError reports a failure to open or read a metering capture.
type CaptureError struct {
	Op  string // "open" or "tick"
	Err error
}

func (e *CaptureError) Error() string { return "capture " + e.Op + ": " + e.Err.Error() }

func (e *CaptureError) Unwrap() error { return e.Err }

// WrapCapture tags err with op unless it already is a CaptureError.
func WrapCapture(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CaptureError
	if errors.As(err, &ce) {
		return err
	}
	return &CaptureError{Op: op, Err: err}
}

// Negotiate picks the sampler mode for one session. It never fails: a missing
// capability, a denied permission or a permission error all yield
// ModeSimulated, and the reason is returned for logging.
func Negotiate(ctx context.Context, c Capability) (Mode, error) {
	if c == nil || !c.HasSupport() {
		return ModeSimulated, nil
	}
	perm, err := c.RequestPermission(ctx)
	if err != nil {
		return ModeSimulated, fmt.Errorf("request permission: %w", err)
	}
	if perm != Granted {
		return ModeSimulated, ErrPermissionDenied
	}
	return ModeMetering, nil
}

var ErrPermissionDenied = errors.New("metering permission denied")

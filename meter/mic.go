package meter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"murmur/audio"
)

const defaultStale = 500 * time.Millisecond

// MicCapability meters the microphone through an audio.Context. The context
// is created lazily and shared by every capture it opens; Close releases it.
type MicCapability struct {
	NewContext func() (audio.Context, error)
	Device     string
	// Stale is how long Level tolerates no audio before reporting
	// ErrCaptureStalled.
	Stale time.Duration

	mu  sync.Mutex
	ctx audio.Context
	err error
}

// NewMicCapability meters the named device, or the system default when
// device is empty.
func NewMicCapability(device string) *MicCapability {
	return &MicCapability{NewContext: audio.NewContext, Device: device}
}

func (m *MicCapability) context() (audio.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil || m.err != nil {
		return m.ctx, m.err
	}
	m.ctx, m.err = m.NewContext()
	return m.ctx, m.err
}

func (m *MicCapability) HasSupport() bool {
	ctx, err := m.context()
	if err != nil {
		return false
	}
	devices, err := ctx.Devices()
	return err == nil && len(devices) > 0
}

// RequestPermission probes a start/stop cycle on the device. The OS shows
// its microphone prompt on the first start; a refused start is Denied.
func (m *MicCapability) RequestPermission(_ context.Context) (Permission, error) {
	ctx, err := m.context()
	if err != nil {
		return Denied, err
	}
	dev, err := ctx.NewCapture(audio.FindDevice(ctx, m.Device), audio.DefaultCaptureConfig())
	if err != nil {
		return Denied, fmt.Errorf("probe capture: %w", err)
	}
	defer dev.Close()
	if err := dev.Start(); err != nil {
		return Denied, fmt.Errorf("probe start: %w", err)
	}
	dev.Stop()
	return Granted, nil
}

func (m *MicCapability) Open(_ context.Context) (Capture, error) {
	ctx, err := m.context()
	if err != nil {
		return nil, &CaptureError{Op: "open", Err: err}
	}
	dev, err := ctx.NewCapture(audio.FindDevice(ctx, m.Device), audio.DefaultCaptureConfig())
	if err != nil {
		return nil, &CaptureError{Op: "open", Err: err}
	}
	stale := m.Stale
	if stale <= 0 {
		stale = defaultStale
	}
	mc := &micCapture{dev: dev, stale: stale, opened: time.Now()}
	dev.SetCallback(mc.onData)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, &CaptureError{Op: "open", Err: err}
	}
	return mc, nil
}

// Close releases the shared audio context.
func (m *MicCapability) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		m.ctx.Close()
		m.ctx = nil
	}
}

type micCapture struct {
	dev    audio.CaptureDevice
	stale  time.Duration
	opened time.Time

	level  atomic.Uint64 // math.Float64bits of the latest dBFS
	lastAt atomic.Int64  // unix nanos of the latest chunk, 0 before any
	once   sync.Once
}

func (c *micCapture) onData(data []byte, _ uint32) {
	c.level.Store(math.Float64bits(audio.LevelDB(data)))
	c.lastAt.Store(time.Now().UnixNano())
}

func (c *micCapture) Level() (float64, error) {
	last := c.lastAt.Load()
	if last == 0 {
		if time.Since(c.opened) > c.stale {
			return 0, ErrCaptureStalled
		}
		return audio.SilenceDB, nil
	}
	if time.Since(time.Unix(0, last)) > c.stale {
		return 0, ErrCaptureStalled
	}
	return math.Float64frombits(c.level.Load()), nil
}

func (c *micCapture) Close() error {
	c.once.Do(func() {
		c.dev.Stop()
		c.dev.ClearCallback()
		c.dev.Close()
	})
	return nil
}

package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const (
	fakeFrameSize     = 320 // 20ms at 16 kHz
	fakeBytesPerFrame = 2   // 16-bit mono
	fakeInterval      = 20 * time.Millisecond
)

// FakeContext hands out captures that loop PCM into the callback on a
// real-time cadence. StartErr makes every Start fail.
type FakeContext struct {
	PCM      []byte
	Names    []string
	StartErr error
}

// NewFakeContext returns a context with one device that loops pcm.
func NewFakeContext(pcm []byte) *FakeContext {
	return &FakeContext{PCM: pcm, Names: []string{"fake"}}
}

// Tone returns d of a sine wave at the given peak amplitude (0..1).
func Tone(freq, amplitude float64, d time.Duration) []byte {
	n := int(d.Seconds() * SampleRate)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / SampleRate
		s := int16(math.Sin(2*math.Pi*freq*t) * amplitude * 32767)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	devices := make([]DeviceInfo, len(f.Names))
	for i, name := range f.Names {
		devices[i] = DeviceInfo{ID: name, Name: name}
	}
	return devices, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(device *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	name := "fake"
	if device != nil {
		name = device.Name
	}
	return &FakeCapture{pcm: f.PCM, startErr: f.StartErr, name: name}, nil
}

type FakeCapture struct {
	pcm      []byte
	startErr error
	name     string

	mu       sync.Mutex
	cb       DataCallback
	stopCh   chan struct{}
	feedDone chan struct{}
	starts   int
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return f.name }

// Starts reports how many times Start succeeded.
func (f *FakeCapture) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *FakeCapture) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	if f.stopCh != nil {
		f.mu.Unlock()
		return nil
	}
	f.starts++
	stop := make(chan struct{})
	done := make(chan struct{})
	f.stopCh, f.feedDone = stop, done
	f.mu.Unlock()

	chunkBytes := fakeFrameSize * fakeBytesPerFrame
	go func() {
		defer close(done)
		ticker := time.NewTicker(fakeInterval)
		defer ticker.Stop()
		pos := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			f.mu.Lock()
			cb := f.cb
			f.mu.Unlock()
			if cb == nil || len(f.pcm) == 0 {
				continue
			}
			chunk := make([]byte, chunkBytes)
			for i := range chunk {
				chunk[i] = f.pcm[(pos+i)%len(f.pcm)]
			}
			pos = (pos + chunkBytes) % len(f.pcm)
			cb(chunk, fakeFrameSize)
		}
	}()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	stop, done := f.stopCh, f.feedDone
	f.stopCh, f.feedDone = nil, nil
	f.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (f *FakeCapture) Close() { f.Stop() }

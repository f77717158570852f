// Package audio opens microphone capture devices and measures the loudness
// of the PCM they deliver.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16

	// SilenceDB is reported for empty or all-zero chunks.
	SilenceDB = -96.0
)

// DataCallback receives interleaved little-endian int16 PCM.
type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

// DefaultCaptureConfig is 16 kHz mono, which both the meter and the
// streaming recognizer consume.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// LevelDB returns the RMS level of a PCM16 chunk in dBFS (0 is full scale).
func LevelDB(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return SilenceDB
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	rms := math.Sqrt(sumSquares / float64(n))
	if rms == 0 {
		return SilenceDB
	}
	return max(20*math.Log10(rms), SilenceDB)
}

// FindDevice returns the device with the given name, or nil.
func FindDevice(ctx Context, name string) *DeviceInfo {
	if name == "" {
		return nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i]
		}
	}
	return nil
}

// Package beep plays the short audible cues of a dictation session.
package beep

import (
	"encoding/binary"
	"math"
	"sync"
)

var disabled bool

func Disable() { disabled = true }

const sampleRate = 44100

// Cue is one of the session sounds.
type Cue int

const (
	CueStart  Cue = iota // recording began
	CueCommit            // text delivered
	CueCancel            // session discarded
	CueError             // dictation unavailable
)

type shape struct {
	freq, dur, volume, decay float64
	double                   bool
}

var shapes = map[Cue]shape{
	CueStart:  {freq: 1200, dur: 0.06, volume: 0.5, decay: 60},
	CueCommit: {freq: 900, dur: 0.08, volume: 0.5, decay: 40},
	CueCancel: {freq: 600, dur: 0.08, volume: 0.4, decay: 40},
	CueError:  {freq: 350, dur: 0.08, volume: 0.6, decay: 30, double: true},
}

const doubleGap = 0.05

var (
	cues     map[Cue][]int16
	cuesOnce sync.Once
)

func buildCues() {
	cues = make(map[Cue][]int16, len(shapes))
	for c, s := range shapes {
		if s.double {
			cues[c] = doubleBeep(s.freq, s.dur, doubleGap, s.volume, s.decay)
		} else {
			cues[c] = tick(s.freq, s.dur, s.volume, s.decay)
		}
	}
}

// tick is a mono sine with an exponential decay envelope.
func tick(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func doubleBeep(freq, beepDur, gapDur, volume, decay float64) []int16 {
	b := tick(freq, beepDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur))
	out := make([]int16, 0, len(b)*2+len(gap))
	out = append(out, b...)
	out = append(out, gap...)
	return append(out, b...)
}

func toBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func samplesFor(c Cue) []int16 {
	cuesOnce.Do(buildCues)
	return cues[c]
}

// Play starts the cue without waiting for it to finish.
func Play(c Cue) {
	if disabled {
		return
	}
	Init()
	play(samplesFor(c))
}

func PlayStart()  { Play(CueStart) }
func PlayCommit() { Play(CueCommit) }
func PlayCancel() { Play(CueCancel) }
func PlayError()  { Play(CueError) }

package meter

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// Display mapping for metering readings.
const (
	FloorDB = -60.0
	CeilDB  = 0.0
)

// Band of the simulated sampler: a visually moderate loudness.
const (
	SimulatedMin = 0.25
	SimulatedMax = 0.65
)

// ToDisplay maps dBFS onto [0, 1] with clamping at both ends.
func ToDisplay(db float64) float64 {
	if db != db { // NaN
		return 0
	}
	v := (db - FloorDB) / (CeilDB - FloorDB)
	return min(max(v, 0), 1)
}

type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated returns a simulated sampler; a nil rng uses a random seed.
func NewSimulated(rng *rand.Rand) *Simulated {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulated{rng: rng}
}

func (s *Simulated) Tick() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SimulatedMin + s.rng.Float64()*(SimulatedMax-SimulatedMin)
}

type Metering struct {
	capture Capture
	once    sync.Once
	err     error
}

func NewMetering(c Capture) *Metering {
	return &Metering{capture: c}
}

func (m *Metering) Tick() (float64, error) {
	db, err := m.capture.Level()
	if err != nil {
		return 0, &CaptureError{Op: "tick", Err: err}
	}
	return ToDisplay(db), nil
}

// Close releases the capture; later calls return the first result.
func (m *Metering) Close() error {
	m.once.Do(func() { m.err = m.capture.Close() })
	return m.err
}

// Degrading serves ticks from a Metering sampler until its first failure and
// from the Simulated sampler from then on. There is no way back.
type Degrading struct {
	mu        sync.Mutex
	metering  *Metering
	sim       *Simulated
	onDegrade func(error)
}

// NewDegrading starts in ModeMetering when m is non-nil, else ModeSimulated.
// onDegrade is called once, from Tick, with the capture error.
func NewDegrading(m *Metering, sim *Simulated, onDegrade func(error)) *Degrading {
	return &Degrading{metering: m, sim: sim, onDegrade: onDegrade}
}

func (d *Degrading) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.metering != nil {
		return ModeMetering
	}
	return ModeSimulated
}

// Tick always yields a sample. A failing metering tick is answered by the
// simulated sampler so the graph never skips a slot.
func (d *Degrading) Tick() float64 {
	d.mu.Lock()
	m := d.metering
	d.mu.Unlock()
	if m != nil {
		v, err := m.Tick()
		if err == nil {
			return v
		}
		d.degrade(err)
	}
	return d.sim.Tick()
}

func (d *Degrading) degrade(err error) {
	d.mu.Lock()
	m := d.metering
	d.metering = nil
	d.mu.Unlock()
	if m == nil {
		return
	}
	closeErr := m.Close()
	if d.onDegrade != nil {
		d.onDegrade(errors.Join(err, closeErr))
	}
}

// Close releases the metering capture if it is still held.
func (d *Degrading) Close() error {
	d.mu.Lock()
	m := d.metering
	d.metering = nil
	d.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close()
}

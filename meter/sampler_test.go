package meter

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestToDisplay(t *testing.T) {
	for _, tt := range []struct {
		db, want float64
	}{
		{-96, 0},
		{FloorDB, 0},
		{-30, 0.5},
		{CeilDB, 1},
		{12, 1},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	} {
		if got := ToDisplay(tt.db); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ToDisplay(%v) = %v, want %v", tt.db, got, tt.want)
		}
	}
}

func TestSimulatedStaysInBand(t *testing.T) {
	s := NewSimulated(rand.New(rand.NewPCG(1, 2)))
	for i := 0; i < 10000; i++ {
		v := s.Tick()
		if v < SimulatedMin || v > SimulatedMax {
			t.Fatalf("tick %d = %v outside [%v, %v]", i, v, SimulatedMin, SimulatedMax)
		}
	}
}

type scriptedCapture struct {
	levels []float64
	failAt int // 1-based tick that fails; 0 never
	ticks  int
	closed int
}

func (c *scriptedCapture) Level() (float64, error) {
	c.ticks++
	if c.failAt > 0 && c.ticks >= c.failAt {
		return 0, ErrCaptureStalled
	}
	return c.levels[(c.ticks-1)%len(c.levels)], nil
}

func (c *scriptedCapture) Close() error {
	c.closed++
	return nil
}

func TestMeteringTickWrapsError(t *testing.T) {
	m := NewMetering(&scriptedCapture{levels: []float64{-30}, failAt: 1})
	_, err := m.Tick()
	var ce *CaptureError
	if !errors.As(err, &ce) || ce.Op != "tick" {
		t.Fatalf("err = %v, want tick CaptureError", err)
	}
	if !errors.Is(err, ErrCaptureStalled) {
		t.Errorf("err should wrap ErrCaptureStalled")
	}
}

func TestMeteringCloseOnce(t *testing.T) {
	c := &scriptedCapture{levels: []float64{-30}}
	m := NewMetering(c)
	m.Close()
	m.Close()
	if c.closed != 1 {
		t.Errorf("capture closed %d times, want 1", c.closed)
	}
}

func TestDegradingOneWay(t *testing.T) {
	c := &scriptedCapture{levels: []float64{0}, failAt: 3}
	var degraded []error
	d := NewDegrading(NewMetering(c), NewSimulated(rand.New(rand.NewPCG(3, 4))), func(err error) {
		degraded = append(degraded, err)
	})

	if d.Mode() != ModeMetering {
		t.Fatalf("mode = %v, want metering", d.Mode())
	}
	for i := 1; i <= 2; i++ {
		if v := d.Tick(); v != 1 {
			t.Errorf("tick %d = %v, want metered 1", i, v)
		}
	}
	// tick 3 fails and is served by the simulated sampler
	for i := 3; i <= 10; i++ {
		v := d.Tick()
		if v < SimulatedMin || v > SimulatedMax {
			t.Errorf("tick %d = %v, want simulated value", i, v)
		}
	}
	if d.Mode() != ModeSimulated {
		t.Errorf("mode = %v, want simulated", d.Mode())
	}
	if len(degraded) != 1 {
		t.Fatalf("onDegrade called %d times, want 1", len(degraded))
	}
	if !errors.Is(degraded[0], ErrCaptureStalled) {
		t.Errorf("degrade err = %v", degraded[0])
	}
	if c.ticks != 3 {
		t.Errorf("capture polled %d times, want 3", c.ticks)
	}
	if c.closed != 1 {
		t.Errorf("capture closed %d times, want 1", c.closed)
	}
	d.Close()
	if c.closed != 1 {
		t.Errorf("Close after degrade re-closed capture")
	}
}

func TestDegradingSimulatedOnly(t *testing.T) {
	d := NewDegrading(nil, NewSimulated(nil), nil)
	if d.Mode() != ModeSimulated {
		t.Fatalf("mode = %v, want simulated", d.Mode())
	}
	if v := d.Tick(); v < SimulatedMin || v > SimulatedMax {
		t.Errorf("tick = %v", v)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

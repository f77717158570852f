// Package levels holds the fixed-size sliding window of loudness samples
// that backs the live bar graph.
package levels

import "sync"

const (
	DefaultSize     = 48
	DefaultBaseline = 0.05
	DisplayMin      = 0.0
	DisplayMax      = 1.0
)

// Buffer is a fixed-capacity ring of display samples. It always holds exactly
// Len() values; Push evicts the oldest.
type Buffer struct {
	mu       sync.RWMutex
	data     []float64
	writePos int
	baseline float64
	min, max float64
}

// New returns a buffer of n slots, all set to baseline. Pushed values are
// clamped into [min, max].
func New(n int, baseline, min, max float64) *Buffer {
	if n <= 0 {
		n = DefaultSize
	}
	if min > max {
		min, max = max, min
	}
	b := &Buffer{
		data:     make([]float64, n),
		baseline: clamp(baseline, min, max),
		min:      min,
		max:      max,
	}
	b.fill()
	return b
}

// NewDefault returns a DefaultSize buffer over the display range.
func NewDefault() *Buffer {
	return New(DefaultSize, DefaultBaseline, DisplayMin, DisplayMax)
}

func clamp(v, min, max float64) float64 {
	if v != v { // NaN
		return min
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func (b *Buffer) fill() {
	for i := range b.data {
		b.data[i] = b.baseline
	}
	b.writePos = 0
}

// Push appends v (clamped) as the newest sample and drops the oldest.
func (b *Buffer) Push(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[b.writePos] = clamp(v, b.min, b.max)
	b.writePos = (b.writePos + 1) % len(b.data)
}

// Snapshot returns a copy of the samples, oldest first.
func (b *Buffer) Snapshot() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.data)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = b.data[(b.writePos+i)%n]
	}
	return out
}

// Reset sets every slot back to the baseline.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fill()
}

// IsBaseline reports whether every slot equals the baseline.
func (b *Buffer) IsBaseline() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, v := range b.data {
		if v != b.baseline {
			return false
		}
	}
	return true
}

func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) Baseline() float64 { return b.baseline }

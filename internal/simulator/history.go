package simulator

import (
	"errors"
	"fmt"
	"sync"

	"nilm_simulator/internal/model"
)

// ErrInvalidConfig is returned when a configuration value is rejected. The
// previously active value stays in effect.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultHistoryCapacity is the rolling buffer size used by the demo server.
const DefaultHistoryCapacity = 30

// History is a fixed-capacity FIFO of aggregate power samples.
type History struct {
	mu       sync.RWMutex
	capacity int
	samples  []model.AggregatedSample
}

// NewHistory creates a buffer holding at most capacity samples.
func NewHistory(capacity int) (*History, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity %d: %w", capacity, ErrInvalidConfig)
	}
	return &History{
		capacity: capacity,
		samples:  make([]model.AggregatedSample, 0, capacity),
	}, nil
}

// Append adds a sample to the tail, evicting from the head past capacity.
func (h *History) Append(s model.AggregatedSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples = append(h.samples, s)
	if len(h.samples) > h.capacity {
		n := copy(h.samples, h.samples[len(h.samples)-h.capacity:])
		h.samples = h.samples[:n]
	}
}

// Snapshot returns a copy of the buffered samples in insertion order.
func (h *History) Snapshot() []model.AggregatedSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.AggregatedSample, len(h.samples))
	copy(out, h.samples)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

func (h *History) Capacity() int {
	return h.capacity
}

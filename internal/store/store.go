package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"nilm_simulator/internal/model"
)

// ErrUnknownDevice is returned when an operation references a device ID that
// is not in the catalog.
var ErrUnknownDevice = errors.New("unknown device")

// Store holds the current state of every catalog device, keyed by device ID.
// Reads return copies so callers never observe a write in progress.
type Store struct {
	mu      sync.RWMutex
	catalog *model.Catalog
	states  map[string]model.DeviceState
}

// New creates a store with every catalog device off at zero power.
func New(catalog *model.Catalog, now time.Time) *Store {
	s := &Store{
		catalog: catalog,
		states:  make(map[string]model.DeviceState, catalog.Len()),
	}
	for _, id := range catalog.IDs() {
		s.states[id] = model.DeviceState{LastChangedAt: now}
	}
	return s
}

// Catalog returns the catalog the store was built from.
func (s *Store) Catalog() *model.Catalog {
	return s.catalog
}

// Get returns the state of one device.
func (s *Store) Get(id string) (model.DeviceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[id]
	if !ok {
		return model.DeviceState{}, fmt.Errorf("get %q: %w", id, ErrUnknownDevice)
	}
	return st, nil
}

// GetAll returns a snapshot of all device states.
func (s *Store) GetAll() map[string]model.DeviceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]model.DeviceState, len(s.states))
	for id, st := range s.states {
		snapshot[id] = st
	}
	return snapshot
}

// SetState replaces the state of one device. The write is rejected before any
// mutation when the ID is unknown. An off state always stores zero power.
func (s *Store) SetState(id string, st model.DeviceState) error {
	if _, ok := s.catalog.Get(id); !ok {
		return fmt.Errorf("set state %q: %w", id, ErrUnknownDevice)
	}
	if !st.On {
		st.PowerW = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = st
	return nil
}

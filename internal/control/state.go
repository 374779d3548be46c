package control

import (
	"sync"

	"github.com/nerrad567/ptcontrol/internal/entity"
)

// LiveState is the engine's in-memory mirror of sensor values and actuator
// flags. It starts empty and is never loaded from the store; only readings
// delivered to the engine and the engine's own transitions change it.
//
// The engine loop is the only writer. The lock exists so API handlers can
// take snapshots.
type LiveState struct {
	mu      sync.RWMutex
	values  map[entity.Key]float64
	engaged map[entity.Key]bool
}

// NewLiveState returns an empty mirror: no values, every actuator off.
func NewLiveState() *LiveState {
	return &LiveState{
		values:  make(map[entity.Key]float64),
		engaged: make(map[entity.Key]bool),
	}
}

// Value returns the last reading for key and whether one was ever received.
func (s *LiveState) Value(key entity.Key) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Engaged reports whether the actuator is on. Unknown actuators are off.
func (s *LiveState) Engaged(key entity.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engaged[key]
}

func (s *LiveState) setValue(key entity.Key, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = v
}

func (s *LiveState) setEngaged(key entity.Key, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engaged[key] = on
}

// StateSnapshot is a point-in-time copy of a LiveState.
type StateSnapshot struct {
	Values  map[entity.Key]float64 `json:"values"`
	Engaged map[entity.Key]bool    `json:"engaged"`
}

// Snapshot copies the mirror.
func (s *LiveState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StateSnapshot{
		Values:  make(map[entity.Key]float64, len(s.values)),
		Engaged: make(map[entity.Key]bool, len(s.engaged)),
	}
	for k, v := range s.values {
		snap.Values[k] = v
	}
	for k, v := range s.engaged {
		snap.Engaged[k] = v
	}
	return snap
}

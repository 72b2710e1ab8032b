// internal/storage/memory.go
package storage

import (
	"sync"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const DefaultMemoryCapacity = 120 // two minutes of one-second readings

// MemoryStore keeps the most recent readings in arrival order.
type MemoryStore struct {
	mu       sync.RWMutex
	buffer   []data.Reading
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		buffer:   make([]data.Reading, 0, capacity),
		capacity: capacity,
	}
}

func (s *MemoryStore) Add(reading data.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) >= s.capacity {
		// Remove the oldest element
		copy(s.buffer, s.buffer[1:])
		s.buffer = s.buffer[:len(s.buffer)-1]
	}
	s.buffer = append(s.buffer, reading)
}

// GetRecent returns up to count of the newest readings, oldest first. A
// non-positive count returns everything.
func (s *MemoryStore) GetRecent(count int) []data.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.buffer) {
		count = len(s.buffer)
	}
	result := make([]data.Reading, count)
	copy(result, s.buffer[len(s.buffer)-count:])
	return result
}

// Latest returns the newest reading.
func (s *MemoryStore) Latest() (data.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buffer) == 0 {
		return data.Reading{}, false
	}
	return s.buffer[len(s.buffer)-1], true
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffer)
}

package store

import (
	"sync"

	"github.com/berfenger/solaxgw2mqtt/internal/core/port"
)

type MemoryStore struct {
	mu       sync.Mutex
	switches map[string]bool
	numbers  map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		switches: make(map[string]bool),
		numbers:  make(map[string]float64),
	}
}

func (s *MemoryStore) LoadSwitch(entityId string) (*bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.switches[entityId]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *MemoryStore) SaveSwitch(entityId string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switches[entityId] = value
	return nil
}

func (s *MemoryStore) LoadNumber(entityId string) (*float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.numbers[entityId]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *MemoryStore) SaveNumber(entityId string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numbers[entityId] = value
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance
var _ port.EntityStateStore = (*MemoryStore)(nil)

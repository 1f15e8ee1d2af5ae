package store

import (
	"context"
	"sync"

	"github.com/dunamismax/pixelkit/internal/domain"
)

type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.ConversionRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]domain.ConversionRecord),
	}
}

func (s *MemoryRecordStore) Create(_ context.Context, rec domain.ConversionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return nil
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryRecordStore) Get(_ context.Context, id string) (domain.ConversionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

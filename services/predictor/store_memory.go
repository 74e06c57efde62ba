package predictor

import (
	"context"
	"sync"
)

// MemoryModelStore keeps the trained model in process memory. Used when
// MONGODB_URI is not configured: retraining still works, but artifacts do
// not survive a restart.
type MemoryModelStore struct {
	mu    sync.RWMutex
	model *Model
}

// NewMemoryModelStore creates an empty in-memory model store
func NewMemoryModelStore() *MemoryModelStore {
	return &MemoryModelStore{}
}

// Save stores the model in memory
func (s *MemoryModelStore) Save(_ context.Context, m *Model) error {
	s.mu.Lock()
	s.model = m
	s.mu.Unlock()
	return nil
}

// LoadLatest returns the stored model or ErrNoModel
func (s *MemoryModelStore) LoadLatest(_ context.Context) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, ErrNoModel
	}
	return s.model, nil
}

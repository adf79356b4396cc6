package offset

import (
	"context"
	"sync"
)

// MemoryStore keeps cursors and counters in process.
type MemoryStore struct {
	mu       sync.Mutex
	cursors  map[string]int64
	counters map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cursors:  make(map[string]int64),
		counters: make(map[string]int64),
	}
}

func cursorKey(accountKey, docType string) string {
	return accountKey + "\x00" + docType
}

func (s *MemoryStore) GetCursor(_ context.Context, accountKey, docType string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return max(s.cursors[cursorKey(accountKey, docType)], InitialCursor)
}

func (s *MemoryStore) AdvanceCursor(_ context.Context, accountKey, docType string) error {
	if err := validateCursorKey(accountKey, docType); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cursorKey(accountKey, docType)
	s.cursors[key] = max(s.cursors[key], InitialCursor) + 1
	return nil
}

func (s *MemoryStore) SetCursor(_ context.Context, accountKey, docType string, value int64) error {
	if err := validateCursorKey(accountKey, docType); err != nil {
		return err
	}
	if value < 0 {
		return ErrNegativeValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[cursorKey(accountKey, docType)] = value
	return nil
}

func (s *MemoryStore) GetDocumentCounter(_ context.Context, counterKey string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counterKey]
}

func (s *MemoryStore) AdvanceDocumentCounter(_ context.Context, counterKey string) error {
	if err := validateCounterKey(counterKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey]++
	return nil
}

func (s *MemoryStore) SeedDocumentCounter(_ context.Context, counterKey string, value int64) error {
	if err := validateCounterKey(counterKey); err != nil {
		return err
	}
	if value < 0 {
		return ErrNegativeValue
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[counterKey]; !ok {
		s.counters[counterKey] = value
	}
	return nil
}

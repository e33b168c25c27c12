package repository

import (
	"context"
	"sync"

	"github.com/liliang-cn/tablechat/internal/domain"
)

// MemoryHistory keeps history in process memory only
type MemoryHistory struct {
	mu   sync.RWMutex
	data map[HistoryKey][]domain.Message
}

// NewMemoryHistory creates an empty in-memory history
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{data: make(map[HistoryKey][]domain.Message)}
}

func (m *MemoryHistory) Append(ctx context.Context, key HistoryKey, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append(m.data[key], *msg)
	return nil
}

func (m *MemoryHistory) List(ctx context.Context, key HistoryKey) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Message, len(m.data[key]))
	copy(out, m.data[key])
	return out, nil
}

func (m *MemoryHistory) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if key.SessionID == sessionID {
			delete(m.data, key)
		}
	}
	return nil
}

// Len returns the number of stored histories
func (m *MemoryHistory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryHistory) Close() error {
	return nil
}

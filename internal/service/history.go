package service

import (
	"context"

	"github.com/liliang-cn/tablechat/internal/domain"
	"github.com/liliang-cn/tablechat/internal/repository"
)

// HistoryStore scopes a history repository to one session
type HistoryStore struct {
	repo      repository.HistoryRepository
	sessionID string
}

// NewHistoryStore creates a history store for sessionID
func NewHistoryStore(repo repository.HistoryRepository, sessionID string) *HistoryStore {
	return &HistoryStore{repo: repo, sessionID: sessionID}
}

func (h *HistoryStore) key(db, table string) repository.HistoryKey {
	return repository.HistoryKey{SessionID: h.sessionID, DBName: db, TableName: table}
}

// Append adds msg to the end of table's history
func (h *HistoryStore) Append(ctx context.Context, db, table string, msg *domain.Message) error {
	return h.repo.Append(ctx, h.key(db, table), msg)
}

// List returns table's history, oldest first
func (h *HistoryStore) List(ctx context.Context, db, table string) ([]domain.Message, error) {
	msgs, err := h.repo.List(ctx, h.key(db, table))
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

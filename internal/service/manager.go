package service

import (
	"context"
	"sync"
	"time"

	"github.com/liliang-cn/tablechat/internal/repository"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// SessionOptions controls workspace lifetime
type SessionOptions struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	// PurgeOnExpiry deletes a session's history when its workspace expires.
	// A reset always deletes it.
	PurgeOnExpiry bool
}

// WorkspaceManager keeps one workspace per browser session and forgets
// sessions that stay idle longer than the configured TTL.
type WorkspaceManager struct {
	catalog  Catalog
	history  repository.HistoryRepository
	opts     WorkspaceOptions
	sessions SessionOptions
	logger   *zap.Logger

	mu    sync.Mutex
	cache *cache.Cache
}

// NewWorkspaceManager creates a new workspace manager
func NewWorkspaceManager(
	cat Catalog,
	history repository.HistoryRepository,
	opts WorkspaceOptions,
	sessions SessionOptions,
	logger *zap.Logger,
) *WorkspaceManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &WorkspaceManager{
		catalog:  cat,
		history:  history,
		opts:     opts,
		sessions: sessions,
		logger:   logger,
		cache:    cache.New(sessions.IdleTTL, sessions.CleanupInterval),
	}
	m.cache.OnEvicted(func(sessionID string, _ interface{}) {
		m.logger.Debug("workspace evicted", zap.String("session_id", sessionID))
		if m.sessions.PurgeOnExpiry {
			m.purge(sessionID)
		}
	})
	return m
}

// Get returns the session's workspace and extends its lifetime
func (m *WorkspaceManager) Get(sessionID string) (*Workspace, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	ws := v.(*Workspace)
	m.cache.SetDefault(sessionID, ws)
	return ws, true
}

// GetOrCreate returns the session's workspace, creating an empty one if needed
func (m *WorkspaceManager) GetOrCreate(sessionID string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.cache.Get(sessionID); ok {
		ws := v.(*Workspace)
		m.cache.SetDefault(sessionID, ws)
		return ws
	}

	ws := NewWorkspace(sessionID, m.catalog, NewHistoryStore(m.history, sessionID), m.opts, m.logger)
	m.cache.SetDefault(sessionID, ws)
	m.logger.Debug("workspace created", zap.String("session_id", sessionID))
	return ws
}

// Reset forgets the session's workspace and deletes its history. It runs
// when the upstream rejects the session's credentials.
func (m *WorkspaceManager) Reset(sessionID string) {
	if sessionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(sessionID)
	m.purge(sessionID)
	m.logger.Info("session reset", zap.String("session_id", sessionID))
}

// purge deletes the session's history. It must not take m.mu: the cache
// calls it from OnEvicted.
func (m *WorkspaceManager) purge(sessionID string) {
	if err := m.history.DeleteSession(context.Background(), sessionID); err != nil {
		m.logger.Warn("failed to delete session history", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Count returns the number of live workspaces
func (m *WorkspaceManager) Count() int {
	return m.cache.ItemCount()
}

package service

import (
	"context"
	"strings"

	"github.com/liliang-cn/tablechat/internal/domain"
	"go.uber.org/zap"
)

// CatalogAdmin lists and deletes uploaded databases
type CatalogAdmin interface {
	ListCatalogs(ctx context.Context, visibility domain.Visibility) ([]domain.CatalogEntry, error)
	DeleteDatabase(ctx context.Context, db string) (string, error)
}

// CatalogService handles catalog operations that are not bound to a workspace
type CatalogService struct {
	admin    CatalogAdmin
	sessions *WorkspaceManager
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(admin CatalogAdmin, sessions *WorkspaceManager, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{admin: admin, sessions: sessions, logger: logger}
}

// List returns the catalogs visible under visibility
func (s *CatalogService) List(ctx context.Context, visibility domain.Visibility) ([]domain.CatalogEntry, error) {
	return s.admin.ListCatalogs(ctx, visibility)
}

// Delete removes a database. A session that has it open is closed.
func (s *CatalogService) Delete(ctx context.Context, sessionID, db string) (string, error) {
	db = strings.TrimSpace(db)
	if db == "" {
		return "", domain.NewValidationError(domain.ErrInvalidRequest, "Database name is required")
	}

	msg, err := s.admin.DeleteDatabase(ctx, db)
	if err != nil {
		s.logger.Warn("failed to delete database", zap.String("db_name", db), zap.Error(err))
		return "", err
	}
	if ws, ok := s.sessions.Get(sessionID); ok && ws.State().DBName == db {
		s.sessions.Reset(sessionID)
	}
	s.logger.Info("database deleted", zap.String("db_name", db))
	return msg, nil
}

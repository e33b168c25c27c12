package repository

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/liliang-cn/tablechat/internal/config"
	"github.com/liliang-cn/tablechat/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// HistoryKey addresses one table's conversation within a session
type HistoryKey struct {
	SessionID string
	DBName    string
	TableName string
}

// HistoryRepository stores per-table chat history in insertion order
type HistoryRepository interface {
	// Append adds msg to the end of the history for key.
	Append(ctx context.Context, key HistoryKey, msg *domain.Message) error
	// List returns the history for key, oldest first. Unknown keys yield an empty list.
	List(ctx context.Context, key HistoryKey) ([]domain.Message, error)
	// DeleteSession removes every history of sessionID.
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

// History backends
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// NewHistoryRepository creates the history backend named in cfg
func NewHistoryRepository(ctx context.Context, cfg *config.Config) (HistoryRepository, error) {
	switch cfg.History.Backend {
	case BackendMemory, "":
		return NewMemoryHistory(), nil

	case BackendSQLite:
		db, err := NewDB(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteHistory(db), nil

	case BackendBadger:
		opts := badger.DefaultOptions(cfg.History.BadgerPath)
		opts.Logger = nil
		return OpenBadgerHistory(opts)

	case BackendRedis:
		opts, err := goredis.ParseURL(cfg.History.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return NewRedisHistory(client), nil

	default:
		return nil, fmt.Errorf("unsupported history backend: %s", cfg.History.Backend)
	}
}

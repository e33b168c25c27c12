package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/tablechat/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisHistory stores each table's history as a JSON list
type RedisHistory struct {
	client *redis.Client
}

// NewRedisHistory creates a redis-backed history
func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client}
}

func redisKey(key HistoryKey) string {
	return sessionPrefix(key.SessionID) + url.QueryEscape(key.DBName) + ":" + url.QueryEscape(key.TableName)
}

func (r *RedisHistory) Append(ctx context.Context, key HistoryKey, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return r.client.RPush(ctx, redisKey(key), b).Err()
}

func (r *RedisHistory) List(ctx context.Context, key HistoryKey) ([]domain.Message, error) {
	result, err := r.client.LRange(ctx, redisKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, len(result))
	for i, item := range result {
		if err := json.Unmarshal([]byte(item), &messages[i]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message at index %d: %w", i, err)
		}
	}
	return messages, nil
}

func (r *RedisHistory) DeleteSession(ctx context.Context, sessionID string) error {
	iter := r.client.Scan(ctx, 0, sessionPrefix(sessionID)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan session keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisHistory) Close() error {
	return r.client.Close()
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/tablechat/internal/domain"
)

// SQLiteHistory persists history in the sqlite messages table
type SQLiteHistory struct {
	db *DB
}

// NewSQLiteHistory creates a sqlite-backed history
func NewSQLiteHistory(db *DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

func (r *SQLiteHistory) Append(ctx context.Context, key HistoryKey, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	sourcesJSON, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}
	chartsJSON, err := json.Marshal(msg.Charts)
	if err != nil {
		return fmt.Errorf("failed to encode charts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, db_name, table_name, role, text, sources, charts, is_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, key.SessionID, key.DBName, key.TableName, msg.Role, msg.Text,
		string(sourcesJSON), string(chartsJSON), msg.IsError, msg.Timestamp.UnixNano())

	return err
}

func (r *SQLiteHistory) List(ctx context.Context, key HistoryKey) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, text, sources, charts, is_error, created_at
		FROM messages WHERE session_id = ? AND db_name = ? AND table_name = ?
		ORDER BY seq ASC
	`, key.SessionID, key.DBName, key.TableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			msg                     domain.Message
			sourcesJSON, chartsJSON sql.NullString
			createdAt               int64
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Text, &sourcesJSON, &chartsJSON,
			&msg.IsError, &createdAt); err != nil {
			return nil, err
		}
		msg.Timestamp = time.Unix(0, createdAt)

		if sourcesJSON.Valid && sourcesJSON.String != "" {
			if err := json.Unmarshal([]byte(sourcesJSON.String), &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode sources of %s: %w", msg.ID, err)
			}
		}
		if chartsJSON.Valid && chartsJSON.String != "" {
			if err := json.Unmarshal([]byte(chartsJSON.String), &msg.Charts); err != nil {
				return nil, fmt.Errorf("failed to decode charts of %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (r *SQLiteHistory) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID)
	return err
}

func (r *SQLiteHistory) Close() error {
	return r.db.Close()
}

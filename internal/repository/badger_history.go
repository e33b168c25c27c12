package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/liliang-cn/tablechat/internal/domain"
)

// BadgerHistory persists history in badger under
// "history:<session>:<db>:<table>:<seq>" keys.
type BadgerHistory struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadgerHistory opens a badger store with the given options
func OpenBadgerHistory(opts badger.Options) (*BadgerHistory, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte("history_seq"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sequence: %w", err)
	}
	return &BadgerHistory{db: db, seq: seq}, nil
}

func historyPrefix(key HistoryKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:",
		sessionPrefix(key.SessionID), url.QueryEscape(key.DBName), url.QueryEscape(key.TableName)))
}

// sessionPrefix is shared by the badger and redis key layouts. Escaping
// keeps ':' and glob characters out of the parts.
func sessionPrefix(sessionID string) string {
	return "history:" + url.QueryEscape(sessionID) + ":"
}

func (b *BadgerHistory) Append(ctx context.Context, key HistoryKey, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	n, err := b.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	k := append(historyPrefix(key), []byte(fmt.Sprintf("%020d", n))...)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, data)
	})
}

func (b *BadgerHistory) List(ctx context.Context, key HistoryKey) ([]domain.Message, error) {
	messages := []domain.Message{}

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = historyPrefix(key)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var msg domain.Message
				if err := json.Unmarshal(val, &msg); err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return messages, err
}

func (b *BadgerHistory) DeleteSession(ctx context.Context, sessionID string) error {
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(sessionPrefix(sessionID))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
	}
	return wb.Flush()
}

func (b *BadgerHistory) Close() error {
	if err := b.seq.Release(); err != nil {
		b.db.Close()
		return err
	}
	return b.db.Close()
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/tablechat/internal/domain"
	"go.uber.org/zap"
)

// ErrorReply is the bot text appended when a query fails
const ErrorReply = "Sorry, I encountered an error. Please try again."

// Exchange is the outcome of one send
type Exchange struct {
	Table     string          `json:"table"`
	User      domain.Message  `json:"user"`
	Reply     *domain.Message `json:"reply,omitempty"`
	Discarded bool            `json:"discarded,omitempty"`
}

// Send queries the active table with text. The user message is appended to
// the table's history immediately, followed by the answer or an error reply.
// A returned Exchange means the history was updated, even when err is set.
func (w *Workspace) Send(ctx context.Context, text string) (*Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, w.reject(domain.ErrEmptyQuery, "Please enter a question")
	}

	w.mu.Lock()
	table, db, vis := w.active, w.db, w.visibility
	if table == "" {
		w.mu.Unlock()
		return nil, w.reject(domain.ErrNoActiveTable, "Please select a table to start the conversation")
	}
	key := pendingKey(db, table)
	if _, busy := w.pending[key]; busy {
		w.mu.Unlock()
		return nil, w.reject(domain.ErrTablePending, "A query for this table is still running")
	}

	// The query outlives the caller: late answers still land in the history.
	qctx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if w.opts.QueryTimeout > 0 {
		qctx, cancel = context.WithTimeout(qctx, w.opts.QueryTimeout)
	} else {
		qctx, cancel = context.WithCancel(qctx)
	}
	p := &pendingQuery{cancel: cancel}
	w.pending[key] = p
	w.mu.Unlock()

	defer func() {
		cancel()
		w.mu.Lock()
		if w.pending[key] == p {
			delete(w.pending, key)
		}
		w.mu.Unlock()
	}()

	user := newMessage(domain.RoleUser, text)
	if err := w.history.Append(ctx, db, table, user); err != nil {
		w.logger.Error("failed to store user message", zap.String("table", table), zap.Error(err))
		w.notify(domain.NoticeError, "Message failed to send")
		return nil, err
	}
	ex := &Exchange{Table: table, User: *user}

	start := time.Now()
	resp, err := w.catalog.Query(w.callCtx(qctx), &domain.QueryRequest{
		Query:      text,
		Database:   db,
		DatasetID:  table,
		TableName:  table,
		Visibility: vis.Wire(),
	})

	w.mu.Lock()
	discarded := p.discarded
	w.mu.Unlock()
	if discarded {
		w.logger.Info("discarding answer for deselected table", zap.String("table", table))
		ex.Discarded = true
		return ex, nil
	}

	var reply *domain.Message
	if err != nil {
		w.logger.Warn("query failed",
			zap.String("db_name", db), zap.String("table", table),
			zap.Duration("took", time.Since(start)), zap.Error(err))
		w.notify(domain.NoticeError, "Message failed to send")
		reply = newMessage(domain.RoleBot, ErrorReply)
		reply.IsError = true
	} else {
		w.logger.Info("query answered",
			zap.String("db_name", db), zap.String("table", table),
			zap.Int("sources", len(resp.Sources)), zap.Int("charts", len(resp.Charts)),
			zap.Duration("took", time.Since(start)))
		reply = newMessage(domain.RoleBot, resp.BotAnswer)
		reply.Sources = resp.Sources
		reply.Charts = resp.Charts
	}

	if herr := w.history.Append(context.WithoutCancel(ctx), db, table, reply); herr != nil {
		w.logger.Error("failed to store reply", zap.String("table", table), zap.Error(herr))
		return ex, errors.Join(err, herr)
	}
	ex.Reply = reply
	return ex, err
}

func newMessage(role, text string) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

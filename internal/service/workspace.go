package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/liliang-cn/tablechat/internal/catalog"
	"github.com/liliang-cn/tablechat/internal/domain"
	"go.uber.org/zap"
)

const maxNotices = 50

// Catalog is the remote table catalog a workspace works against
type Catalog interface {
	ListAvailable(ctx context.Context, db string, visibility domain.Visibility, fileType string) ([]domain.TableRef, error)
	ListSelected(ctx context.Context, db string) ([]domain.TableRef, error)
	AddSelected(ctx context.Context, db, table string, visibility domain.Visibility) error
	RemoveSelected(ctx context.Context, db, table string) error
	RemoveManySelected(ctx context.Context, db string, tables []string) error
	PreviewRows(ctx context.Context, db, table string, rowCount int, visibility domain.Visibility) (*domain.Preview, error)
	Query(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error)
}

// WorkspaceOptions tunes selection and dispatch behavior
type WorkspaceOptions struct {
	FileType         string
	PreviewRows      int
	QueryTimeout     time.Duration
	CancelOnDeselect bool
}

// State is a snapshot of a workspace
type State struct {
	SessionID  string            `json:"session_id"`
	DBName     string            `json:"db_name"`
	Visibility domain.Visibility `json:"visibility"`
	TraceID    string            `json:"trace_id"`
	Available  []domain.TableRef `json:"available_tables"`
	Selected   []domain.TableRef `json:"selected_tables"`
	Active     string            `json:"active_table,omitempty"`
	Pending    []string          `json:"pending_tables"`
}

type pendingQuery struct {
	cancel    context.CancelFunc
	discarded bool
}

// Workspace is one session's table-scoped chat: the selected tables of the
// open database, the active table, per-table history and in-flight queries.
type Workspace struct {
	sessionID string
	catalog   Catalog
	history   *HistoryStore
	opts      WorkspaceOptions
	logger    *zap.Logger

	mu         sync.Mutex
	generation uint64
	db         string
	visibility domain.Visibility
	traceID    string
	available  []domain.TableRef
	selected   []domain.TableRef
	active     string
	pending    map[string]*pendingQuery
	notices    []domain.Notice
}

// NewWorkspace creates an empty workspace for a session
func NewWorkspace(sessionID string, cat Catalog, history *HistoryStore, opts WorkspaceOptions, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 5
	}
	return &Workspace{
		sessionID:  sessionID,
		catalog:    cat,
		history:    history,
		opts:       opts,
		logger:     logger.With(zap.String("session_id", sessionID)),
		visibility: domain.VisibilityPrivate,
		pending:    make(map[string]*pendingQuery),
	}
}

// State returns a copy of the current workspace state
func (w *Workspace) State() *State {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := &State{
		SessionID:  w.sessionID,
		DBName:     w.db,
		Visibility: w.visibility,
		TraceID:    w.traceID,
		Available:  append([]domain.TableRef{}, w.available...),
		Selected:   append([]domain.TableRef{}, w.selected...),
		Active:     w.active,
		Pending:    []string{},
	}
	for _, t := range w.selected {
		if _, ok := w.pending[pendingKey(w.db, t.Name)]; ok {
			st.Pending = append(st.Pending, t.Name)
		}
	}
	return st
}

// ActiveTable returns the active table, or "" when none is active
func (w *Workspace) ActiveTable() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// DrainNotices returns and clears the queued notices
func (w *Workspace) DrainNotices() []domain.Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.notices
	w.notices = nil
	if out == nil {
		out = []domain.Notice{}
	}
	return out
}

// Preview fetches sample rows of table. An empty table name previews the
// active table, or the first selected one.
func (w *Workspace) Preview(ctx context.Context, table string, rows int) (*domain.Preview, error) {
	w.mu.Lock()
	db, vis := w.db, w.visibility
	if table == "" {
		table = w.active
	}
	if table == "" && len(w.selected) > 0 {
		table = w.selected[0].Name
	}
	w.mu.Unlock()

	if db == "" {
		return nil, domain.ErrNoWorkspace
	}
	if table == "" {
		return nil, w.reject(domain.ErrTableNotSelected, "Please select a table to preview")
	}
	if rows <= 0 {
		rows = w.opts.PreviewRows
	}

	preview, err := w.catalog.PreviewRows(w.callCtx(ctx), db, table, rows, vis)
	if err != nil {
		w.logger.Warn("failed to preview table", zap.String("table", table), zap.Error(err))
		w.notify(domain.NoticeError, "Failed to load table preview")
		return nil, err
	}
	return preview, nil
}

// History returns the messages exchanged for table in the open database.
// An empty table name means the active table; with none active the result is empty.
func (w *Workspace) History(ctx context.Context, table string) ([]domain.Message, error) {
	w.mu.Lock()
	db := w.db
	if table == "" {
		table = w.active
	}
	w.mu.Unlock()

	if db == "" || table == "" {
		return []domain.Message{}, nil
	}
	return w.history.List(ctx, db, table)
}

func (w *Workspace) callCtx(ctx context.Context) context.Context {
	w.mu.Lock()
	trace := w.traceID
	w.mu.Unlock()
	if trace == "" {
		return ctx
	}
	return catalog.WithTraceID(ctx, trace)
}

func (w *Workspace) notify(level, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pushNotice(level, message)
}

// pushNotice requires w.mu
func (w *Workspace) pushNotice(level, message string) {
	w.notices = append(w.notices, domain.NewNotice(level, message))
	if len(w.notices) > maxNotices {
		w.notices = w.notices[len(w.notices)-maxNotices:]
	}
}

func (w *Workspace) reject(err error, notice string) error {
	w.notify(domain.NoticeError, notice)
	return domain.NewValidationError(err, notice)
}

func pendingKey(db, table string) string {
	return fmt.Sprintf("%s\x00%s", db, table)
}

func containsTable(tables []domain.TableRef, name string) bool {
	for _, t := range tables {
		if t.Name == name {
			return true
		}
	}
	return false
}

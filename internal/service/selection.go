package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/liliang-cn/tablechat/internal/domain"
	"go.uber.org/zap"
)

// Open switches the workspace to a database context. Selection state is
// reset, a new trace ID is issued and available and selected tables are
// fetched; the first selected table becomes active.
func (w *Workspace) Open(ctx context.Context, db string, visibility domain.Visibility) error {
	db = strings.TrimSpace(db)
	if db == "" {
		return domain.NewValidationError(domain.ErrInvalidRequest, "Database name is required")
	}

	w.mu.Lock()
	w.generation++
	gen := w.generation
	w.db = db
	w.visibility = visibility
	w.traceID = uuid.New().String()
	w.available = nil
	w.selected = nil
	w.active = ""
	w.mu.Unlock()

	w.logger.Info("opening database", zap.String("db_name", db), zap.String("visibility", string(visibility)))

	if err := w.refreshAvailable(ctx, gen); err != nil {
		w.logger.Warn("failed to fetch tables", zap.String("db_name", db), zap.Error(err))
	}
	if err := w.refreshSelected(ctx, gen, true); err != nil {
		w.logger.Warn("failed to fetch selected tables", zap.String("db_name", db), zap.Error(err))
	}

	w.notify(domain.NoticeSuccess, fmt.Sprintf("Connected to %s", db))
	return nil
}

// RefreshAvailable re-fetches the tables of the open database
func (w *Workspace) RefreshAvailable(ctx context.Context) error {
	w.mu.Lock()
	gen, db := w.generation, w.db
	w.mu.Unlock()
	if db == "" {
		return domain.ErrNoWorkspace
	}
	return w.refreshAvailable(ctx, gen)
}

// Select adds table to the server-side selection and refreshes the list
func (w *Workspace) Select(ctx context.Context, table string) error {
	table = strings.TrimSpace(table)
	if table == "" {
		return w.reject(domain.ErrInvalidRequest, "Table name is required")
	}
	w.mu.Lock()
	gen, db, vis := w.generation, w.db, w.visibility
	w.mu.Unlock()
	if db == "" {
		return domain.ErrNoWorkspace
	}

	if err := w.catalog.AddSelected(w.callCtx(ctx), db, table, vis); err != nil {
		w.logger.Warn("failed to store selected table", zap.String("table", table), zap.Error(err))
		w.notify(domain.NoticeError, "Failed to add table")
		return err
	}

	if err := w.refreshSelected(ctx, gen, true); err != nil {
		w.logger.Warn("failed to refresh selected tables", zap.Error(err))
	}
	w.notify(domain.NoticeSuccess, fmt.Sprintf("Table %q added successfully", table))
	return nil
}

// Deselect removes table from the selection. Removing the active table
// leaves no table active.
func (w *Workspace) Deselect(ctx context.Context, table string) error {
	table = strings.TrimSpace(table)
	if table == "" {
		return w.reject(domain.ErrInvalidRequest, "Table name is required")
	}
	w.mu.Lock()
	gen, db := w.generation, w.db
	w.mu.Unlock()
	if db == "" {
		return domain.ErrNoWorkspace
	}

	if err := w.catalog.RemoveSelected(w.callCtx(ctx), db, table); err != nil {
		w.logger.Warn("failed to remove selected table", zap.String("table", table), zap.Error(err))
		w.notify(domain.NoticeError, "Failed to remove table")
		return err
	}

	w.dropTables(gen, db, []string{table})
	if err := w.refreshSelected(ctx, gen, false); err != nil {
		w.logger.Warn("failed to refresh selected tables", zap.Error(err))
	}
	w.notify(domain.NoticeSuccess, fmt.Sprintf("Table %q removed", table))
	return nil
}

// DeselectMany removes several tables at once
func (w *Workspace) DeselectMany(ctx context.Context, tables []string) error {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		if t = strings.TrimSpace(t); t != "" {
			names = append(names, t)
		}
	}
	if len(names) == 0 {
		return nil
	}
	w.mu.Lock()
	gen, db := w.generation, w.db
	w.mu.Unlock()
	if db == "" {
		return domain.ErrNoWorkspace
	}

	if err := w.catalog.RemoveManySelected(w.callCtx(ctx), db, names); err != nil {
		w.logger.Warn("failed to remove selected tables", zap.Strings("tables", names), zap.Error(err))
		w.notify(domain.NoticeError, "Failed to remove selected tables")
		return err
	}

	w.dropTables(gen, db, names)
	if err := w.refreshSelected(ctx, gen, false); err != nil {
		w.logger.Warn("failed to refresh selected tables", zap.Error(err))
	}
	w.notify(domain.NoticeSuccess, fmt.Sprintf("%d tables removed successfully", len(names)))
	return nil
}

// SetActive makes table the one receiving queries. No network call is made.
func (w *Workspace) SetActive(table string) error {
	w.mu.Lock()
	ok := containsTable(w.selected, table)
	if ok {
		w.active = table
	}
	w.mu.Unlock()

	if !ok {
		return w.reject(domain.ErrTableNotSelected, fmt.Sprintf("Table %q is not selected", table))
	}
	return nil
}

// dropTables clears the active pointer when it is among tables and, when
// configured, cancels their in-flight queries.
func (w *Workspace) dropTables(gen uint64, db string, tables []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != gen {
		return
	}
	for _, t := range tables {
		if w.active == t {
			w.active = ""
		}
		if !w.opts.CancelOnDeselect {
			continue
		}
		if p, ok := w.pending[pendingKey(db, t)]; ok {
			p.discarded = true
			p.cancel()
			w.logger.Info("cancelled in-flight query", zap.String("table", t))
		}
	}
}

func (w *Workspace) refreshAvailable(ctx context.Context, gen uint64) error {
	w.mu.Lock()
	db, vis := w.db, w.visibility
	w.mu.Unlock()

	tables, err := w.catalog.ListAvailable(w.callCtx(ctx), db, vis, w.opts.FileType)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation == gen {
		w.available = tables
	}
	return nil
}

// refreshSelected replaces the selection with the server's list. An active
// table the server no longer lists is cleared; with autoActivate the first
// selected table becomes active when none is.
func (w *Workspace) refreshSelected(ctx context.Context, gen uint64, autoActivate bool) error {
	w.mu.Lock()
	db := w.db
	w.mu.Unlock()

	tables, err := w.catalog.ListSelected(w.callCtx(ctx), db)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != gen {
		return nil
	}
	w.selected = tables
	if w.active != "" && !containsTable(tables, w.active) {
		w.active = ""
	}
	if autoActivate && w.active == "" && len(tables) > 0 {
		w.active = tables[0].Name
	}
	return nil
}

package service

import (
	"context"
	"sync"

	"github.com/liliang-cn/tablechat/internal/domain"
	"github.com/liliang-cn/tablechat/internal/repository"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	mu        sync.Mutex
	available []string
	selected  []string
	addErr    error
	removeErr error
	listErr   error
	queryFn   func(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error)
	queries   []domain.QueryRequest
	calls     int
}

func refs(names ...string) []domain.TableRef {
	out := make([]domain.TableRef, 0, len(names))
	for _, n := range names {
		out = append(out, domain.TableRef{Name: n})
	}
	return out
}

func (f *fakeCatalog) ListAvailable(ctx context.Context, db string, visibility domain.Visibility, fileType string) ([]domain.TableRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return refs(f.available...), nil
}

func (f *fakeCatalog) ListSelected(ctx context.Context, db string) ([]domain.TableRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return refs(f.selected...), nil
}

func (f *fakeCatalog) AddSelected(ctx context.Context, db, table string, visibility domain.Visibility) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.addErr != nil {
		return f.addErr
	}
	for _, s := range f.selected {
		if s == table {
			return nil
		}
	}
	f.selected = append(f.selected, table)
	return nil
}

func (f *fakeCatalog) RemoveSelected(ctx context.Context, db, table string) error {
	return f.RemoveManySelected(ctx, db, []string{table})
}

func (f *fakeCatalog) RemoveManySelected(ctx context.Context, db string, tables []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.removeErr != nil {
		return f.removeErr
	}
	drop := map[string]bool{}
	for _, t := range tables {
		drop[t] = true
	}
	kept := f.selected[:0]
	for _, s := range f.selected {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	f.selected = kept
	return nil
}

func (f *fakeCatalog) PreviewRows(ctx context.Context, db, table string, rowCount int, visibility domain.Visibility) (*domain.Preview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	rows := make([]map[string]any, rowCount)
	for i := range rows {
		rows[i] = map[string]any{"id": float64(i)}
	}
	return &domain.Preview{TableName: table, Columns: []string{"id"}, Rows: rows}, nil
}

func (f *fakeCatalog) Query(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	f.mu.Lock()
	f.calls++
	f.queries = append(f.queries, *req)
	fn := f.queryFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &domain.QueryResponse{BotAnswer: "answer for " + req.TableName}, nil
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestWorkspace(cat Catalog, opts WorkspaceOptions) *Workspace {
	store := NewHistoryStore(repository.NewMemoryHistory(), "session-1")
	return NewWorkspace("session-1", cat, store, opts, zap.NewNop())
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liliang-cn/tablechat/internal/domain"
	"github.com/liliang-cn/tablechat/internal/repository"
	"go.uber.org/zap"
)

func newTestManager(cat Catalog) *WorkspaceManager {
	return NewWorkspaceManager(cat, repository.NewMemoryHistory(), WorkspaceOptions{},
		SessionOptions{IdleTTL: time.Hour, CleanupInterval: time.Hour}, zap.NewNop())
}

func TestWorkspaceManager_GetOrCreate(t *testing.T) {
	m := newTestManager(&fakeCatalog{})

	if _, ok := m.Get("a"); ok {
		t.Fatal("unknown session must not have a workspace")
	}
	first := m.GetOrCreate("a")
	if again := m.GetOrCreate("a"); again != first {
		t.Error("GetOrCreate must return the same workspace for a session")
	}
	if got, ok := m.Get("a"); !ok || got != first {
		t.Error("Get must find the created workspace")
	}
	if other := m.GetOrCreate("b"); other == first {
		t.Error("sessions must not share workspaces")
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, want 2", m.Count())
	}
}

func TestWorkspaceManager_Reset(t *testing.T) {
	m := newTestManager(&fakeCatalog{selected: []string{"orders"}})
	ws := m.GetOrCreate("a")
	if err := ws.Open(context.Background(), "sales", domain.VisibilityPrivate); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m.Reset("a")
	m.Reset("")
	if _, ok := m.Get("a"); ok {
		t.Fatal("reset session must be gone")
	}
	fresh := m.GetOrCreate("a")
	if fresh.State().DBName != "" {
		t.Error("a reset session must start empty")
	}
}

func TestWorkspaceManager_IdleExpiry(t *testing.T) {
	m := NewWorkspaceManager(&fakeCatalog{}, repository.NewMemoryHistory(), WorkspaceOptions{},
		SessionOptions{IdleTTL: 20 * time.Millisecond, CleanupInterval: time.Hour}, nil)
	m.GetOrCreate("a")
	time.Sleep(50 * time.Millisecond)
	if _, ok := m.Get("a"); ok {
		t.Error("idle workspace must expire")
	}
}

func sendOnce(t *testing.T, ws *Workspace) {
	t.Helper()
	ctx := context.Background()
	if err := ws.Open(ctx, "sales", domain.VisibilityPrivate); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := ws.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestWorkspaceManager_ResetDeletesHistory(t *testing.T) {
	history := repository.NewMemoryHistory()
	m := NewWorkspaceManager(&fakeCatalog{selected: []string{"orders"}}, history, WorkspaceOptions{},
		SessionOptions{IdleTTL: time.Hour, CleanupInterval: time.Hour}, nil)
	ctx := context.Background()

	sendOnce(t, m.GetOrCreate("s1"))
	sendOnce(t, m.GetOrCreate("s2"))
	m.Reset("s1")

	ws := m.GetOrCreate("s1")
	ws.Open(ctx, "sales", domain.VisibilityPrivate)
	msgs, err := ws.History(ctx, "orders")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("history survived the reset: %d messages", len(msgs))
	}
	if history.Len() != 1 {
		t.Errorf("expected only s2's history to remain, got %d histories", history.Len())
	}
}

func TestWorkspaceManager_ExpiryPurgesHistory(t *testing.T) {
	history := repository.NewMemoryHistory()
	m := NewWorkspaceManager(&fakeCatalog{selected: []string{"orders"}}, history, WorkspaceOptions{},
		SessionOptions{IdleTTL: 20 * time.Millisecond, CleanupInterval: 10 * time.Millisecond, PurgeOnExpiry: true}, nil)

	sendOnce(t, m.GetOrCreate("s1"))

	deadline := time.Now().Add(2 * time.Second)
	for history.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if history.Len() != 0 {
		t.Errorf("expired session's history was kept")
	}
}

func TestWorkspaceManager_ExpiryKeepsPersistedHistory(t *testing.T) {
	history := repository.NewMemoryHistory()
	m := NewWorkspaceManager(&fakeCatalog{selected: []string{"orders"}}, history, WorkspaceOptions{},
		SessionOptions{IdleTTL: 10 * time.Millisecond, CleanupInterval: 5 * time.Millisecond}, nil)

	sendOnce(t, m.GetOrCreate("s1"))
	time.Sleep(60 * time.Millisecond)

	if _, ok := m.Get("s1"); ok {
		t.Fatal("workspace should have expired")
	}
	if history.Len() != 1 {
		t.Errorf("history without PurgeOnExpiry must survive expiry, got %d", history.Len())
	}
}

func TestWorkspaceManager_SessionsShareRepositoryNotHistory(t *testing.T) {
	m := newTestManager(&fakeCatalog{selected: []string{"orders"}})
	ctx := context.Background()

	a := m.GetOrCreate("a")
	b := m.GetOrCreate("b")
	a.Open(ctx, "sales", domain.VisibilityPrivate)
	b.Open(ctx, "sales", domain.VisibilityPrivate)

	if _, err := a.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs, _ := b.History(ctx, "orders")
	if len(msgs) != 0 {
		t.Errorf("session b sees %d messages of session a", len(msgs))
	}
}

type fakeAdmin struct {
	entries []domain.CatalogEntry
	deleted []string
	err     error
}

func (f *fakeAdmin) ListCatalogs(ctx context.Context, visibility domain.Visibility) ([]domain.CatalogEntry, error) {
	var out []domain.CatalogEntry
	for _, e := range f.entries {
		if e.Visibility == visibility.Wire() {
			out = append(out, e)
		}
	}
	return out, f.err
}

func (f *fakeAdmin) DeleteDatabase(ctx context.Context, db string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.deleted = append(f.deleted, db)
	return "Database deleted", nil
}

func TestCatalogService_List(t *testing.T) {
	admin := &fakeAdmin{entries: []domain.CatalogEntry{
		{DBName: "sales", Visibility: "local"},
		{DBName: "census", Visibility: "global"},
	}}
	svc := NewCatalogService(admin, newTestManager(&fakeCatalog{}), nil)

	got, err := svc.List(context.Background(), domain.VisibilityPublic)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].DBName != "census" {
		t.Errorf("unexpected catalogs: %+v", got)
	}
}

func TestCatalogService_DeleteClosesOpenWorkspace(t *testing.T) {
	admin := &fakeAdmin{}
	m := newTestManager(&fakeCatalog{selected: []string{"orders"}})
	svc := NewCatalogService(admin, m, nil)
	ctx := context.Background()

	m.GetOrCreate("a").Open(ctx, "sales", domain.VisibilityPrivate)
	m.GetOrCreate("b").Open(ctx, "census", domain.VisibilityPrivate)

	msg, err := svc.Delete(ctx, "a", "sales")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if msg != "Database deleted" || len(admin.deleted) != 1 || admin.deleted[0] != "sales" {
		t.Errorf("unexpected delete: %q %v", msg, admin.deleted)
	}
	if _, ok := m.Get("a"); ok {
		t.Error("workspace with the deleted database open must be closed")
	}

	if _, err := svc.Delete(ctx, "b", "sales"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Get("b"); !ok {
		t.Error("workspace on another database must survive")
	}
}

func TestCatalogService_DeleteValidation(t *testing.T) {
	admin := &fakeAdmin{}
	svc := NewCatalogService(admin, newTestManager(&fakeCatalog{}), nil)

	_, err := svc.Delete(context.Background(), "a", "  ")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(admin.deleted) != 0 {
		t.Error("blank name must not reach the server")
	}

	admin.err = &domain.RemoteError{Op: "delete database", Status: 404, Message: "not found"}
	if _, err := svc.Delete(context.Background(), "a", "ghost"); err == nil {
		t.Error("expected remote error")
	}
}

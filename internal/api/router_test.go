package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/tablechat/internal/catalog"
	"github.com/liliang-cn/tablechat/internal/repository"
	"github.com/liliang-cn/tablechat/internal/service"
	"go.uber.org/zap"
)

// fakeUpstream is a minimal in-memory document/SQL API
type fakeUpstream struct {
	mu       sync.Mutex
	selected []string
	answer   string
	failChat bool
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Header.Get("Authorization") == "Bearer expired" {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Not authenticated"}`))
		return
	}

	q := r.URL.Query()
	switch r.URL.Path {
	case "/api/sql/tables":
		json.NewEncoder(w).Encode(map[string]any{"tables": []string{"orders", "users"}})
	case "/api/sql/selected-tables":
		json.NewEncoder(w).Encode(map[string]any{"selected_tables": f.selected})
	case "/api/sql/store-select-table":
		f.selected = append(f.selected, q.Get("table_name"))
		w.Write([]byte(`{"message":"ok"}`))
	case "/api/sql/remove-select-table":
		var kept []string
		for _, s := range f.selected {
			if s != q.Get("table_name") {
				kept = append(kept, s)
			}
		}
		f.selected = kept
		w.Write([]byte(`{"message":"ok"}`))
	case "/api/sql/table/preview":
		w.Write([]byte(`{"rows":[{"id":1,"total":9.5}]}`))
	case "/api/chat/query":
		if f.failChat {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"detail":"engine down"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"bot_answer": f.answer,
			"sources":    []any{},
			"charts":     map[string]any{"type": "bar", "data": map[string]any{"x": []string{"Q3"}, "y": []int{10}}},
		})
	case "/api/catalog/get_catalog":
		w.Write([]byte(`[{"_id":"1","db_name":"sales","visibility":"local"},{"_id":"2","db_name":"census","visibility":"global"}]`))
	case "/api/catalog/delete_database":
		w.Write([]byte(`{"message":"Database ` + q.Get("db_name") + ` deleted"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not Found"}`))
	}
}

type testEnv struct {
	router   *gin.Engine
	upstream *fakeUpstream
	sessions *service.WorkspaceManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	up := &fakeUpstream{answer: "<table><tr><th>quarter</th><th>revenue</th></tr><tr><td>Q3</td><td>10</td></tr></table>"}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	var sessions *service.WorkspaceManager
	client := catalog.NewClient(srv.URL, 5*time.Second, zap.NewNop(),
		catalog.WithUnauthorizedHook(func(id string) { sessions.Reset(id) }))
	sessions = service.NewWorkspaceManager(client, repository.NewMemoryHistory(), service.WorkspaceOptions{},
		service.SessionOptions{IdleTTL: time.Hour, CleanupInterval: time.Hour}, zap.NewNop())
	catalogService := service.NewCatalogService(client, sessions, zap.NewNop())

	return &testEnv{
		router:   SetupRouter(sessions, catalogService, zap.NewNop(), RouterConfig{AllowOrigins: []string{"*"}}),
		upstream: up,
		sessions: sessions,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("session-id", "browser-1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON %q", method, path, w.Body.String())
	}
	return w.Code, out
}

func notices(body map[string]any) []string {
	var out []string
	list, _ := body["notices"].([]any)
	for _, n := range list {
		out = append(out, n.(map[string]any)["message"].(string))
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestSessionHeaderRequired(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/workspace/state", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWorkspaceFlow(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/workspace/open", `{"db_name":"sales","visibility":"private"}`, "tok")
	if code != http.StatusOK {
		t.Fatalf("open = %d %v", code, body)
	}
	if n := notices(body); len(n) != 1 || n[0] != "Connected to sales" {
		t.Errorf("open notices = %v", n)
	}

	code, body = env.do(t, http.MethodPost, "/api/workspace/tables/select", `{"table_name":"orders"}`, "tok")
	if code != http.StatusOK {
		t.Fatalf("select = %d %v", code, body)
	}
	state := body["state"].(map[string]any)
	if state["active_table"] != "orders" {
		t.Errorf("active = %v", state["active_table"])
	}
	if n := notices(body); len(n) != 1 || n[0] != `Table "orders" added successfully` {
		t.Errorf("select notices = %v", n)
	}

	code, body = env.do(t, http.MethodPost, "/api/workspace/chat", `{"query":"total revenue last quarter"}`, "tok")
	if code != http.StatusOK {
		t.Fatalf("chat = %d %v", code, body)
	}
	reply := body["reply"].(map[string]any)
	segs := reply["segments"].([]any)
	if len(segs) != 1 || segs[0].(map[string]any)["kind"] != "table" {
		t.Errorf("segments = %v", segs)
	}
	if plots := reply["plots"].([]any); len(plots) != 1 {
		t.Errorf("plots = %v", plots)
	}

	code, body = env.do(t, http.MethodGet, "/api/workspace/history", "", "tok")
	if code != http.StatusOK {
		t.Fatalf("history = %d %v", code, body)
	}
	if msgs := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("history has %d messages, want 2", len(msgs))
	}

	code, body = env.do(t, http.MethodGet, "/api/workspace/tables/orders/preview?rows=1", "", "tok")
	if code != http.StatusOK {
		t.Fatalf("preview = %d %v", code, body)
	}
	cols := body["preview"].(map[string]any)["columns"].([]any)
	if len(cols) != 2 || cols[0] != "id" || cols[1] != "total" {
		t.Errorf("columns = %v", cols)
	}

	code, body = env.do(t, http.MethodDelete, "/api/workspace/tables/select/orders", "", "tok")
	if code != http.StatusOK {
		t.Fatalf("deselect = %d %v", code, body)
	}
	if active, ok := body["state"].(map[string]any)["active_table"]; ok && active != "" {
		t.Errorf("active after deselect = %v", active)
	}
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/workspace/open", `{"db_name":"sales"}`, "tok")

	code, body := env.do(t, http.MethodPost, "/api/workspace/chat", `{"query":"hi"}`, "tok")
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if body["error"] != "Please select a table to start the conversation" {
		t.Errorf("error = %v", body["error"])
	}

	code, _ = env.do(t, http.MethodPut, "/api/workspace/tables/active", `{"table_name":"ghost"}`, "tok")
	if code != http.StatusBadRequest {
		t.Errorf("set active on unselected table = %d, want 400", code)
	}

	code, _ = env.do(t, http.MethodPost, "/api/workspace/open", `{"db_name":"  "}`, "tok")
	if code != http.StatusBadRequest {
		t.Errorf("open without name = %d, want 400", code)
	}
}

func TestChatRemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.selected = []string{"orders"}
	env.upstream.failChat = true
	env.do(t, http.MethodPost, "/api/workspace/open", `{"db_name":"sales"}`, "tok")

	code, body := env.do(t, http.MethodPost, "/api/workspace/chat", `{"query":"hi"}`, "tok")
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
	reply := body["reply"].(map[string]any)
	if reply["is_error"] != true || reply["text"] != service.ErrorReply {
		t.Errorf("reply = %v", reply)
	}
	if n := notices(body); len(n) != 1 || n[0] != "Message failed to send" {
		t.Errorf("notices = %v", n)
	}
}

func TestUnauthorizedResetsSession(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.selected = []string{"orders"}
	env.do(t, http.MethodPost, "/api/workspace/open", `{"db_name":"sales"}`, "tok")

	code, body := env.do(t, http.MethodPost, "/api/workspace/chat", `{"query":"hi"}`, "expired")
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
	if body["redirect"] != "/login" || body["error"] != "unauthorized" {
		t.Errorf("body = %v", body)
	}
	if _, ok := env.sessions.Get("browser-1"); ok {
		t.Error("session must be reset after 401")
	}
}

func TestNoDatabaseOpen(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/workspace/tables/select", `{"table_name":"orders"}`, "tok")
	if code != http.StatusConflict {
		t.Errorf("status = %d, want 409", code)
	}
}

func TestCatalogs(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/catalogs?visibility=public", "", "tok")
	if code != http.StatusOK {
		t.Fatalf("list = %d %v", code, body)
	}
	list := body["catalogs"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["db_name"] != "census" {
		t.Errorf("catalogs = %v", list)
	}

	env.do(t, http.MethodPost, "/api/workspace/open", `{"db_name":"sales"}`, "tok")
	code, body = env.do(t, http.MethodDelete, "/api/catalogs/sales", "", "tok")
	if code != http.StatusOK || body["message"] != "Database sales deleted" {
		t.Fatalf("delete = %d %v", code, body)
	}
	if _, ok := env.sessions.Get("browser-1"); ok {
		t.Error("workspace on the deleted database must be closed")
	}
}

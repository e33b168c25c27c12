package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/tablechat/internal/domain"
	"go.uber.org/zap"
)

// Credentials identify the browser session a request is made for
type Credentials struct {
	Token     string
	SessionID string
}

type ctxKey int

const (
	credentialsKey ctxKey = iota
	traceIDKey
)

// WithCredentials attaches the caller's bearer token and session ID to ctx
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey, creds)
}

// CredentialsFrom returns the credentials attached to ctx, if any
func CredentialsFrom(ctx context.Context) Credentials {
	creds, _ := ctx.Value(credentialsKey).(Credentials)
	return creds
}

// WithTraceID attaches a per-context correlation token to ctx
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the correlation token attached to ctx, or ""
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

func traceIDFrom(ctx context.Context) string {
	if id := TraceID(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUnauthorizedHook registers the global session reset run on any 401
func WithUnauthorizedHook(fn func(sessionID string)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// Client talks to the remote document/SQL API
type Client struct {
	baseURL        string
	http           *http.Client
	logger         *zap.Logger
	onUnauthorized func(sessionID string)
}

// NewClient creates a new catalog client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListAvailable lists the tables of a database
func (c *Client) ListAvailable(ctx context.Context, db string, visibility domain.Visibility, fileType string) ([]domain.TableRef, error) {
	if fileType == "" {
		fileType = "sql"
	}
	q := url.Values{}
	q.Set("db_name", db)
	q.Set("visibility", visibility.Wire())
	q.Set("file_type", fileType)

	var out struct {
		Tables []domain.TableRef `json:"tables"`
	}
	if err := c.do(ctx, "list tables", http.MethodGet, "/api/sql/tables", q, nil, &out); err != nil {
		return nil, err
	}
	if out.Tables == nil {
		return []domain.TableRef{}, nil
	}
	return out.Tables, nil
}

// ListSelected lists the tables the user has added to their working set
func (c *Client) ListSelected(ctx context.Context, db string) ([]domain.TableRef, error) {
	q := url.Values{}
	q.Set("db_name", db)

	var out struct {
		Tables         []domain.TableRef `json:"tables"`
		SelectedTables []domain.TableRef `json:"selected_tables"`
	}
	if err := c.do(ctx, "list selected tables", http.MethodGet, "/api/sql/selected-tables", q, nil, &out); err != nil {
		return nil, err
	}
	switch {
	case out.Tables != nil:
		return out.Tables, nil
	case out.SelectedTables != nil:
		return out.SelectedTables, nil
	default:
		return []domain.TableRef{}, nil
	}
}

// AddSelected persists a table selection
func (c *Client) AddSelected(ctx context.Context, db, table string, visibility domain.Visibility) error {
	q := url.Values{}
	q.Set("db_name", db)
	q.Set("table_name", table)
	q.Set("visibility", visibility.Wire())
	return c.do(ctx, "store selected table", http.MethodPost, "/api/sql/store-select-table", q, nil, nil)
}

// RemoveSelected removes a table from the persisted selection
func (c *Client) RemoveSelected(ctx context.Context, db, table string) error {
	q := url.Values{}
	q.Set("db_name", db)
	q.Set("table_name", table)
	return c.do(ctx, "remove selected table", http.MethodDelete, "/api/sql/remove-select-table", q, nil, nil)
}

// RemoveManySelected removes several tables in one call. Servers without the
// bulk endpoint get one RemoveSelected per table instead.
func (c *Client) RemoveManySelected(ctx context.Context, db string, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	body := struct {
		DBName     string   `json:"db_name"`
		TableNames []string `json:"table_names"`
	}{DBName: db, TableNames: tables}

	err := c.do(ctx, "remove selected tables", http.MethodPost, "/api/sql/remove-select-tables", nil, body, nil)
	var remote *domain.RemoteError
	if !asRemote(err, &remote) || (remote.Status != http.StatusNotFound && remote.Status != http.StatusMethodNotAllowed) {
		return err
	}

	c.logger.Debug("bulk removal unsupported, removing one by one",
		zap.String("db_name", db), zap.Int("count", len(tables)))
	for _, t := range tables {
		if err := c.RemoveSelected(ctx, db, t); err != nil {
			return err
		}
	}
	return nil
}

// PreviewRows fetches the first rowCount rows of a table
func (c *Client) PreviewRows(ctx context.Context, db, table string, rowCount int, visibility domain.Visibility) (*domain.Preview, error) {
	if rowCount <= 0 {
		rowCount = 5
	}
	q := url.Values{}
	q.Set("db_name", db)
	q.Set("table_name", table)
	q.Set("row_number", fmt.Sprint(rowCount))
	q.Set("visibility", visibility.Wire())

	var out struct {
		Rows    []json.RawMessage `json:"rows"`
		Data    []json.RawMessage `json:"data"`
		Columns []string          `json:"columns"`
	}
	if err := c.do(ctx, "preview table", http.MethodGet, "/api/sql/table/preview", q, nil, &out); err != nil {
		return nil, err
	}

	raw := out.Rows
	if raw == nil {
		raw = out.Data
	}
	preview := &domain.Preview{
		TableName: table,
		Columns:   out.Columns,
		Rows:      make([]map[string]any, 0, len(raw)),
	}
	for i, r := range raw {
		row := map[string]any{}
		if err := json.Unmarshal(r, &row); err != nil {
			return nil, fmt.Errorf("preview table: decode row %d: %w", i, err)
		}
		preview.Rows = append(preview.Rows, row)
	}
	if len(preview.Columns) == 0 && len(raw) > 0 {
		cols, err := orderedKeys(raw[0])
		if err != nil {
			return nil, fmt.Errorf("preview table: %w", err)
		}
		preview.Columns = cols
	}
	if preview.Columns == nil {
		preview.Columns = []string{}
	}
	return preview, nil
}

// Query submits a chat query scoped to one table
func (c *Client) Query(ctx context.Context, req *domain.QueryRequest) (*domain.QueryResponse, error) {
	var out struct {
		BotAnswer string          `json:"bot_answer"`
		Sources   []domain.Source `json:"sources"`
		Charts    json.RawMessage `json:"charts"`
	}
	if err := c.do(ctx, "chat query", http.MethodPost, "/api/chat/query", nil, req, &out); err != nil {
		return nil, err
	}

	// A malformed chart never costs the text answer.
	charts, errs := domain.ParseCharts(out.Charts)
	for _, err := range errs {
		c.logger.Warn("dropping undecodable chart",
			zap.String("table", req.TableName), zap.Error(err))
	}
	return &domain.QueryResponse{
		BotAnswer: out.BotAnswer,
		Sources:   out.Sources,
		Charts:    charts,
	}, nil
}

// ListCatalogs lists uploaded databases with the given visibility
func (c *Client) ListCatalogs(ctx context.Context, visibility domain.Visibility) ([]domain.CatalogEntry, error) {
	var all []domain.CatalogEntry
	if err := c.do(ctx, "list catalogs", http.MethodGet, "/api/catalog/get_catalog", nil, nil, &all); err != nil {
		return nil, err
	}
	filtered := make([]domain.CatalogEntry, 0, len(all))
	for _, e := range all {
		if e.Visibility == visibility.Wire() {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// DeleteDatabase deletes an uploaded database and returns the server message
func (c *Client) DeleteDatabase(ctx context.Context, db string) (string, error) {
	q := url.Values{}
	q.Set("db_name", db)

	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, "delete database", http.MethodDelete, "/api/catalog/delete_database", q, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	creds := CredentialsFrom(ctx)
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	if creds.SessionID != "" {
		req.Header.Set("session-id", creds.SessionID)
	}
	req.Header.Set("trace-id", traceIDFrom(ctx))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("upstream request failed",
			zap.String("op", op), zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}

	c.logger.Debug("upstream request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := &domain.RemoteError{Op: op, Status: resp.StatusCode, Message: remoteMessage(data)}
		if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.logger.Info("upstream rejected session, resetting", zap.String("session_id", creds.SessionID))
			c.onUnauthorized(creds.SessionID)
		}
		return remote
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

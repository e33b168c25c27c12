package workspace

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/tablechat/internal/api/middleware"
	"github.com/liliang-cn/tablechat/internal/api/response"
	"github.com/liliang-cn/tablechat/internal/domain"
	"github.com/liliang-cn/tablechat/internal/render"
	"github.com/liliang-cn/tablechat/internal/service"
)

// Handler handles workspace API requests
type Handler struct {
	sessions *service.WorkspaceManager
}

// NewHandler creates a new workspace handler
func NewHandler(sessions *service.WorkspaceManager) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes registers workspace routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/open", h.Open)
	r.GET("/state", h.State)

	tables := r.Group("/tables")
	{
		tables.GET("/available", h.ListAvailable)
		tables.GET("/selected", h.ListSelected)
		tables.POST("/select", h.Select)
		tables.DELETE("/select/:table", h.Deselect)
		tables.POST("/deselect", h.DeselectMany)
		tables.PUT("/active", h.SetActive)
		tables.GET("/:table/preview", h.Preview)
	}
	r.GET("/preview", h.Preview)

	r.POST("/chat", h.Chat)
	r.GET("/history", h.History)
}

type openRequest struct {
	DBName     string `json:"db_name"`
	Visibility string `json:"visibility"`
}

type tableRequest struct {
	TableName string `json:"table_name"`
}

type tablesRequest struct {
	TableNames []string `json:"table_names"`
}

type chatRequest struct {
	Query string `json:"query"`
}

// messageView is a stored message plus its display forms
type messageView struct {
	domain.Message
	Segments []render.Segment `json:"segments,omitempty"`
	Plots    []render.Chart   `json:"plots,omitempty"`
}

func (h *Handler) workspace(c *gin.Context) *service.Workspace {
	return h.sessions.GetOrCreate(middleware.SessionID(c))
}

func bindJSON(c *gin.Context, ws *service.Workspace, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, domain.NewValidationError(domain.ErrInvalidRequest, "Invalid request body"), ws.DrainNotices())
		return false
	}
	return true
}

func (h *Handler) stateResponse(c *gin.Context, ws *service.Workspace) {
	response.OK(c, gin.H{"state": ws.State()}, ws.DrainNotices())
}

// Open switches the session to a database context
func (h *Handler) Open(c *gin.Context) {
	ws := h.workspace(c)
	var req openRequest
	if !bindJSON(c, ws, &req) {
		return
	}
	if err := ws.Open(c.Request.Context(), req.DBName, domain.ParseVisibility(req.Visibility)); err != nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}
	h.stateResponse(c, ws)
}

// State returns the session's workspace state
func (h *Handler) State(c *gin.Context) {
	h.stateResponse(c, h.workspace(c))
}

// ListAvailable returns the tables of the open database. With refresh=true
// the list is fetched again first.
func (h *Handler) ListAvailable(c *gin.Context) {
	ws := h.workspace(c)
	if c.Query("refresh") == "true" {
		if err := ws.RefreshAvailable(c.Request.Context()); err != nil {
			response.Error(c, err, ws.DrainNotices())
			return
		}
	}
	response.OK(c, gin.H{"tables": ws.State().Available}, ws.DrainNotices())
}

// ListSelected returns the selected tables and the active one
func (h *Handler) ListSelected(c *gin.Context) {
	ws := h.workspace(c)
	st := ws.State()
	response.OK(c, gin.H{"tables": st.Selected, "active_table": st.Active}, ws.DrainNotices())
}

// Select adds a table to the selection
func (h *Handler) Select(c *gin.Context) {
	ws := h.workspace(c)
	var req tableRequest
	if !bindJSON(c, ws, &req) {
		return
	}
	if err := ws.Select(c.Request.Context(), req.TableName); err != nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}
	h.stateResponse(c, ws)
}

// Deselect removes one table from the selection
func (h *Handler) Deselect(c *gin.Context) {
	ws := h.workspace(c)
	if err := ws.Deselect(c.Request.Context(), c.Param("table")); err != nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}
	h.stateResponse(c, ws)
}

// DeselectMany removes several tables from the selection
func (h *Handler) DeselectMany(c *gin.Context) {
	ws := h.workspace(c)
	var req tablesRequest
	if !bindJSON(c, ws, &req) {
		return
	}
	if err := ws.DeselectMany(c.Request.Context(), req.TableNames); err != nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}
	h.stateResponse(c, ws)
}

// SetActive makes a selected table the active one
func (h *Handler) SetActive(c *gin.Context) {
	ws := h.workspace(c)
	var req tableRequest
	if !bindJSON(c, ws, &req) {
		return
	}
	if err := ws.SetActive(req.TableName); err != nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}
	h.stateResponse(c, ws)
}

// Preview returns sample rows of a table
func (h *Handler) Preview(c *gin.Context) {
	ws := h.workspace(c)

	rows := 0
	if s := c.Query("rows"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			response.Error(c, domain.NewValidationError(domain.ErrInvalidRequest, "rows must be a positive number"), ws.DrainNotices())
			return
		}
		rows = n
	}

	preview, err := ws.Preview(c.Request.Context(), c.Param("table"), rows)
	if err != nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}
	response.OK(c, gin.H{"preview": preview}, ws.DrainNotices())
}

// Chat sends a question to the active table
func (h *Handler) Chat(c *gin.Context) {
	ws := h.workspace(c)
	var req chatRequest
	if !bindJSON(c, ws, &req) {
		return
	}

	ex, err := ws.Send(c.Request.Context(), req.Query)
	if ex == nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}

	opts := chartOptions(c)
	body := gin.H{
		"table":     ex.Table,
		"user":      view(ex.User, opts),
		"discarded": ex.Discarded,
	}
	if ex.Reply != nil {
		body["reply"] = view(*ex.Reply, opts)
	}
	if err != nil {
		response.ErrorWith(c, err, ws.DrainNotices(), body)
		return
	}
	response.OK(c, body, ws.DrainNotices())
}

// History returns a table's messages with their display forms. Without a
// table query parameter the active table is used.
func (h *Handler) History(c *gin.Context) {
	ws := h.workspace(c)
	table := c.Query("table")
	if table == "" {
		table = ws.ActiveTable()
	}

	msgs, err := ws.History(c.Request.Context(), table)
	if err != nil {
		response.Error(c, err, ws.DrainNotices())
		return
	}

	opts := chartOptions(c)
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, view(m, opts))
	}
	response.OK(c, gin.H{"table": table, "messages": views}, ws.DrainNotices())
}

func chartOptions(c *gin.Context) render.ChartOptions {
	return render.ChartOptions{Dark: c.Query("theme") == "dark"}
}

func view(m domain.Message, opts render.ChartOptions) messageView {
	v := messageView{Message: m}
	if m.Role == domain.RoleBot && !m.IsError {
		v.Segments = render.Render(m.Text)
		v.Plots = render.NormalizeCharts(m.Charts, opts)
	}
	return v
}

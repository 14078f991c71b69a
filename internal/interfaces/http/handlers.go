package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/budget-approvals/internal/application/port"
	"github.com/garyjia/budget-approvals/internal/application/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	approvalService service.ApprovalService
	projectService  service.ProjectService
	tiers           port.TierResolver
	health          HealthCheck
	logger          Logger
	now             func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	approvalService service.ApprovalService,
	projectService service.ProjectService,
	tiers port.TierResolver,
	health HealthCheck,
	logger Logger,
) *Handlers {
	return &Handlers{
		approvalService: approvalService,
		projectService:  projectService,
		tiers:           tiers,
		health:          health,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DecisionRequest is the body of approve, reject and revision calls.
type DecisionRequest struct {
	Role  string `json:"role"`
	Notes string `json:"notes"`
}

// ListProjectsRequest represents query parameters for listing projects
type ListProjectsRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: h.now().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{Success: false, Data: response, Error: err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: response})
}

// ListTiers handles GET /api/tiers
func (h *Handlers) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.tiers.Tiers()})
}

// CreateProject handles POST /api/projects
func (h *Handlers) CreateProject(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	var req service.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), req, actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: project})
}

// ListProjects handles GET /api/projects
func (h *Handlers) ListProjects(c *gin.Context) {
	var req ListProjectsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	projects, err := h.projectService.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: projects})
}

// GetProject handles GET /api/projects/:id
func (h *Handlers) GetProject(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	project, err := h.projectService.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: project})
}

// UpdateProject handles PATCH /api/projects/:id
func (h *Handlers) UpdateProject(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	var req service.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	project, err := h.projectService.Update(c.Request.Context(), id, req, actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: project})
}

// CompleteProject handles POST /api/projects/:id/complete
func (h *Handlers) CompleteProject(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	project, err := h.projectService.Complete(c.Request.Context(), id, actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: project})
}

// Submit handles POST /api/projects/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}
	actorID, ok := h.actor(c)
	if !ok {
		return
	}

	wf, err := h.approvalService.SubmitForApproval(c.Request.Context(), id, actorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: wf})
}

// Approve handles POST /api/projects/:id/approve. The role comes from the
// body or, failing that, the X-Actor-Role header.
func (h *Handlers) Approve(c *gin.Context) {
	id, actorID, req, ok := h.decision(c)
	if !ok {
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = strings.TrimSpace(c.GetHeader(HeaderActorRole))
	}
	if role == "" {
		h.badRequest(c, "approver role is required", nil)
		return
	}

	wf, err := h.approvalService.ApproveProject(c.Request.Context(), id, actorID, role, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// Reject handles POST /api/projects/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	id, actorID, req, ok := h.decision(c)
	if !ok {
		return
	}

	wf, err := h.approvalService.RejectProject(c.Request.Context(), id, actorID, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// RequestRevision handles POST /api/projects/:id/revision
func (h *Handlers) RequestRevision(c *gin.Context) {
	id, actorID, req, ok := h.decision(c)
	if !ok {
		return
	}

	wf, err := h.approvalService.RequestRevision(c.Request.Context(), id, actorID, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: wf})
}

// GetLedger handles GET /api/projects/:id/ledger
func (h *Handlers) GetLedger(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	entries, err := h.approvalService.GetLedger(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ExportLedger handles GET /api/projects/:id/ledger.xlsx
func (h *Handlers) ExportLedger(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	// Buffered so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.approvalService.ExportLedger(c.Request.Context(), id, &buf); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%d-ledger.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// GetVersions handles GET /api/projects/:id/versions
func (h *Handlers) GetVersions(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	versions, err := h.approvalService.GetVersions(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: versions})
}

// GetWorkflows handles GET /api/projects/:id/workflows
func (h *Handlers) GetWorkflows(c *gin.Context) {
	id, ok := h.projectID(c)
	if !ok {
		return
	}

	workflows, err := h.approvalService.GetWorkflows(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: workflows})
}

// PendingApprovals handles GET /api/approvals/pending?role=
func (h *Handlers) PendingApprovals(c *gin.Context) {
	role := strings.TrimSpace(c.Query("role"))
	if role == "" {
		role = strings.TrimSpace(c.GetHeader(HeaderActorRole))
	}
	if role == "" {
		h.badRequest(c, "role is required", nil)
		return
	}

	pending, err := h.approvalService.GetPendingApprovalsForRole(c.Request.Context(), role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: pending})
}

// OverdueApprovals handles GET /api/approvals/overdue. An optional "at"
// query parameter (RFC 3339) evaluates deadlines at another instant.
func (h *Handlers) OverdueApprovals(c *gin.Context) {
	at := h.now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.badRequest(c, "invalid at parameter, expected RFC 3339", err)
			return
		}
		at = parsed
	}

	overdue, err := h.approvalService.GetOverdue(c.Request.Context(), at)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: overdue})
}

func (h *Handlers) decision(c *gin.Context) (int64, string, DecisionRequest, bool) {
	var req DecisionRequest

	id, ok := h.projectID(c)
	if !ok {
		return 0, "", req, false
	}
	actorID, ok := h.actor(c)
	if !ok {
		return 0, "", req, false
	}

	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body", err)
			return 0, "", req, false
		}
	}
	return id, actorID, req, true
}

func (h *Handlers) projectID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid project ID", err)
		return 0, false
	}
	return id, true
}

func (h *Handlers) actor(c *gin.Context) (string, bool) {
	actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
	if actorID == "" {
		h.badRequest(c, HeaderActorID+" header is required", nil)
		return "", false
	}
	return actorID, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Error("Bad request", "path", c.Request.URL.Path, "message", msg, "error", err)
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// fail writes err with the status its kind maps to. Internal errors are
// logged and hidden from the caller.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

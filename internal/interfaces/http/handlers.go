package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/onboarding-workflow/internal/application/runner"
	"github.com/garyjia/onboarding-workflow/internal/domain/entity"
	"github.com/garyjia/onboarding-workflow/pkg/utils"
)

// Onboardings is the runner surface the API drives
type Onboardings interface {
	Start(ctx context.Context, opts runner.StartOptions) (*runner.Handle, error)
	Signal(ctx context.Context, id, name string) error
	Query(ctx context.Context, id, name string) (*entity.OnboardingState, error)
	Get(ctx context.Context, id string) (*entity.OnboardingInstance, error)
	List(ctx context.Context, limit, offset int) ([]*entity.OnboardingInstance, error)
	Transitions(ctx context.Context, id string) ([]entity.Transition, error)
}

// TaskReader looks up the follow-up task of an instance
type TaskReader interface {
	GetForInstance(ctx context.Context, instanceID string) (*entity.TrackedTask, error)
}

// MessageReader lists the emails sent for an instance
type MessageReader interface {
	ListByInstance(ctx context.Context, instanceID string) ([]*entity.SentMessage, error)
}

// ReportWriter renders the onboarding workbook
type ReportWriter interface {
	Write(ctx context.Context, w io.Writer) error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	onboardings Onboardings
	tasks       TaskReader
	messages    MessageReader
	report      ReportWriter
	logger      Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(onboardings Onboardings, logger Logger, opts ...Option) *Handlers {
	h := &Handlers{
		onboardings: onboardings,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
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

// StartRequest is the body of POST /api/v1/onboardings. State uses the same
// JSON shape the workflow reports from getWorkflowState.
type StartRequest struct {
	WorkflowID string                  `json:"workflowId"`
	State      *entity.OnboardingState `json:"state"`
}

// StartResponse returns the handle and the first state query
type StartResponse struct {
	WorkflowID string                  `json:"workflowId"`
	State      *entity.OnboardingState `json:"state,omitempty"`
}

// InstanceResponse represents an onboarding instance in API responses
type InstanceResponse struct {
	ID                 string                  `json:"id"`
	WorkflowName       string                  `json:"workflow_name"`
	TaskQueue          string                  `json:"task_queue"`
	EmployeeID         string                  `json:"employee_id,omitempty"`
	EmployeeEmail      string                  `json:"employee_email"`
	Status             string                  `json:"status"`
	Phase              string                  `json:"phase"`
	FormFilledSignaled bool                    `json:"form_filled_signaled"`
	Error              string                  `json:"error,omitempty"`
	State              *entity.OnboardingState `json:"state,omitempty"`
	StartedAt          string                  `json:"started_at"`
	CompletedAt        *string                 `json:"completed_at,omitempty"`
	UpdatedAt          string                  `json:"updated_at"`
}

// ListRequest represents query parameters for listing instances
type ListRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// StartOnboarding handles POST /api/v1/onboardings
func (h *Handlers) StartOnboarding(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid start request", "error", err)
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}
	if req.State == nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "state is required"})
		return
	}
	if req.WorkflowID != "" {
		if err := utils.ValidateInstanceID(req.WorkflowID); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	handle, err := h.onboardings.Start(ctx, runner.StartOptions{
		InstanceID: req.WorkflowID,
		State:      *req.State,
	})
	if err != nil {
		h.writeError(c, "Failed to start onboarding", err)
		return
	}

	state, err := h.onboardings.Query(ctx, handle.ID, runner.QueryWorkflowState)
	if err != nil {
		h.logger.Error("Failed to query new onboarding", "id", handle.ID, "error", err)
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    StartResponse{WorkflowID: handle.ID, State: state},
	})
}

// ListOnboardings handles GET /api/v1/onboardings
func (h *Handlers) ListOnboardings(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid query parameters"})
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	instances, err := h.onboardings.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.writeError(c, "Failed to list onboardings", err)
		return
	}

	out := make([]InstanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, toInstanceResponse(inst))
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// GetOnboarding handles GET /api/v1/onboardings/:id
func (h *Handlers) GetOnboarding(c *gin.Context) {
	inst, err := h.onboardings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get onboarding", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: toInstanceResponse(inst)})
}

// QueryState handles GET /api/v1/onboardings/:id/state. The query name
// defaults to getWorkflowState and may be overridden with ?name=.
func (h *Handlers) QueryState(c *gin.Context) {
	name := c.DefaultQuery("name", runner.QueryWorkflowState)

	state, err := h.onboardings.Query(c.Request.Context(), c.Param("id"), name)
	if err != nil {
		h.writeError(c, "Failed to query onboarding", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: state})
}

// GetHistory handles GET /api/v1/onboardings/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	transitions, err := h.onboardings.Transitions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get onboarding history", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: transitions})
}

// GetTask handles GET /api/v1/onboardings/:id/task
func (h *Handlers) GetTask(c *gin.Context) {
	if h.tasks == nil {
		c.JSON(http.StatusNotImplemented, Response{Success: false, Error: "task tracking is not enabled"})
		return
	}

	id := c.Param("id")
	if _, err := h.onboardings.Get(c.Request.Context(), id); err != nil {
		h.writeError(c, "Failed to get onboarding", err)
		return
	}

	task, err := h.tasks.GetForInstance(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to get follow-up task", err)
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "no follow-up task for onboarding"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: task})
}

// ListMessages handles GET /api/v1/onboardings/:id/messages
func (h *Handlers) ListMessages(c *gin.Context) {
	if h.messages == nil {
		c.JSON(http.StatusNotImplemented, Response{Success: false, Error: "message audit is not enabled"})
		return
	}

	id := c.Param("id")
	if _, err := h.onboardings.Get(c.Request.Context(), id); err != nil {
		h.writeError(c, "Failed to get onboarding", err)
		return
	}

	messages, err := h.messages.ListByInstance(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "Failed to list messages", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: messages})
}

// SendSignal handles POST /api/v1/onboardings/:id/signals/:signal
func (h *Handlers) SendSignal(c *gin.Context) {
	id := c.Param("id")
	signal := c.Param("signal")

	if err := h.onboardings.Signal(c.Request.Context(), id, signal); err != nil {
		h.writeError(c, "Failed to signal onboarding", err)
		return
	}

	h.logger.Info("Signal accepted", "id", id, "signal", signal)
	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    gin.H{"workflowId": id, "signal": signal},
	})
}

// DownloadReport handles GET /api/v1/reports/onboardings.xlsx
func (h *Handlers) DownloadReport(c *gin.Context) {
	if h.report == nil {
		c.JSON(http.StatusNotImplemented, Response{Success: false, Error: "reporting is not enabled"})
		return
	}

	filename := fmt.Sprintf("onboardings-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	if err := h.report.Write(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("Failed to write report", "error", err)
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to build report"})
		}
		return
	}
}

// writeError maps domain errors to HTTP statuses
func (h *Handlers) writeError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidConfiguration),
		errors.Is(err, runner.ErrUnknownSignal),
		errors.Is(err, runner.ErrUnknownQuery):
		return http.StatusBadRequest
	case errors.Is(err, runner.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrAlreadyStarted):
		return http.StatusConflict
	case errors.Is(err, runner.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toInstanceResponse(inst *entity.OnboardingInstance) InstanceResponse {
	resp := InstanceResponse{
		ID:                 inst.ID,
		WorkflowName:       inst.WorkflowName,
		TaskQueue:          inst.TaskQueue,
		EmployeeID:         inst.EmployeeID,
		EmployeeEmail:      inst.EmployeeEmail,
		Status:             string(inst.Status),
		Phase:              inst.Phase,
		FormFilledSignaled: inst.FormFilledSignaled,
		Error:              inst.Error,
		State:              inst.State,
		StartedAt:          inst.StartedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          inst.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if inst.CompletedAt != nil {
		completed := inst.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &completed
	}

	return resp
}

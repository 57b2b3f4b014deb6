package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/gateway/ws"
	"github.com/cartrita/cartrita/internal/workflow"
)

// WorkflowRequest is the JSON body for workflow create/update.
type WorkflowRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	WorkflowData json.RawMessage `json:"workflow_data"`
	IsActive     *bool           `json:"is_active,omitempty"`
}

// WorkflowResponse is the JSON shape of a workflow.
type WorkflowResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	WorkflowData json.RawMessage `json:"workflow_data"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func workflowResponse(wf *domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:           wf.ID.String(),
		Name:         wf.Name,
		Description:  wf.Description,
		WorkflowData: json.RawMessage(wf.WorkflowData),
		IsActive:     wf.IsActive,
		CreatedAt:    wf.CreatedAt,
		UpdatedAt:    wf.UpdatedAt,
	}
}

func (g *Gateway) handleWorkflowCreate(c *okapi.Context) error {
	var req WorkflowRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("name", req.Name); err != nil {
		return err
	}
	if len(req.WorkflowData) > 0 && !json.Valid(req.WorkflowData) {
		return apiv2.NewValidationError("workflow_data", "must be valid JSON")
	}

	now := time.Now().UTC()
	wf := &domain.Workflow{
		ID:           uuid.New(),
		UserID:       g.currentUser(c),
		Name:         req.Name,
		Description:  req.Description,
		WorkflowData: req.WorkflowData,
		IsActive:     req.IsActive == nil || *req.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := g.svc.Workflows.Create(c.Context(), wf); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(workflowResponse(wf)))
}

func (g *Gateway) handleWorkflowList(c *okapi.Context) error {
	offset, limit := pageParams(c)
	workflows, total, err := g.svc.Workflows.List(c.Context(), g.currentUser(c), offset, limit)
	if err != nil {
		return err
	}

	out := make([]WorkflowResponse, 0, len(workflows))
	for i := range workflows {
		out = append(out, workflowResponse(&workflows[i]))
	}
	return c.OK(g.fmt.Paginated(out, offset, limit, total))
}

func (g *Gateway) handleWorkflowGet(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	wf, err := g.svc.Workflows.Get(c.Context(), g.currentUser(c), id)
	if errors.Is(err, workflow.ErrNotFound) {
		return apiv2.NewNotFoundError("workflow")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(workflowResponse(wf)))
}

func (g *Gateway) handleWorkflowUpdate(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	var req WorkflowRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if len(req.WorkflowData) > 0 && !json.Valid(req.WorkflowData) {
		return apiv2.NewValidationError("workflow_data", "must be valid JSON")
	}

	wf, err := g.svc.Workflows.Get(c.Context(), g.currentUser(c), id)
	if errors.Is(err, workflow.ErrNotFound) {
		return apiv2.NewNotFoundError("workflow")
	}
	if err != nil {
		return err
	}

	if req.Name != "" {
		wf.Name = req.Name
	}
	if req.Description != "" {
		wf.Description = req.Description
	}
	if len(req.WorkflowData) > 0 {
		wf.WorkflowData = req.WorkflowData
	}
	if req.IsActive != nil {
		wf.IsActive = *req.IsActive
	}
	if err := g.svc.Workflows.Update(c.Context(), wf); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(workflowResponse(wf)))
}

func (g *Gateway) handleWorkflowDelete(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	err = g.svc.Workflows.Delete(c.Context(), g.currentUser(c), id)
	if errors.Is(err, workflow.ErrNotFound) {
		return apiv2.NewNotFoundError("workflow")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// ExecuteRequest is the JSON body for POST /workflows/{id}/execute.
type ExecuteRequest struct {
	Input json.RawMessage `json:"input,omitempty"`
}

// ExecutionResponse is the JSON shape of a workflow execution.
type ExecutionResponse struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	Status      string          `json:"status"`
	TriggeredBy string          `json:"triggered_by"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMS  int64           `json:"duration_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

func executionResponse(ex *domain.WorkflowExecution) ExecutionResponse {
	return ExecutionResponse{
		ID:          ex.ID.String(),
		WorkflowID:  ex.WorkflowID.String(),
		Status:      string(ex.Status),
		TriggeredBy: ex.TriggeredBy,
		Input:       json.RawMessage(ex.Input),
		Output:      json.RawMessage(ex.Output),
		Error:       ex.Error,
		StartedAt:   ex.StartedAt,
		CompletedAt: ex.CompletedAt,
		DurationMS:  ex.DurationMS,
		CreatedAt:   ex.CreatedAt,
	}
}

func (g *Gateway) handleWorkflowExecute(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}

	ex, err := g.svc.Engine.Submit(c.Context(), g.currentUser(c), id, "api", req.Input)
	if errors.Is(err, workflow.ErrNotFound) {
		return apiv2.NewNotFoundError("workflow")
	}
	if err != nil {
		return err
	}

	g.publish(ws.EventTaskCreated, executionResponse(ex))
	return c.JSON(http.StatusAccepted, g.fmt.Task(executionResponse(ex)))
}

// publish pushes an event to connected dashboards, if the hub is wired.
func (g *Gateway) publish(eventType string, payload any) {
	if g.svc.Events != nil {
		g.svc.Events.Publish(eventType, payload)
	}
}

func (g *Gateway) handleExecutionList(c *okapi.Context) error {
	offset, limit := pageParams(c)
	filter := workflow.ExecutionFilter{
		UserID:    g.currentUser(c),
		Status:    domain.ExecutionStatus(c.Query("status")),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Offset:    offset,
		Limit:     limit,
	}
	if raw := c.Query("workflow_id"); raw != "" {
		wfID, err := apiv2.ValidateUUID("workflow_id", raw)
		if err != nil {
			return err
		}
		filter.WorkflowID = wfID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return apiv2.NewValidationError("status", "unknown execution status")
	}

	executions, total, err := g.svc.Executions.List(c.Context(), filter)
	if err != nil {
		return err
	}

	out := make([]ExecutionResponse, 0, len(executions))
	for i := range executions {
		out = append(out, executionResponse(&executions[i]))
	}
	return c.OK(g.fmt.Paginated(out, offset, limit, total))
}

// execution loads an execution and checks ownership. Executions have no user
// scope in the store, so the check happens here.
func (g *Gateway) execution(c *okapi.Context) (*domain.WorkflowExecution, error) {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return nil, err
	}
	ex, err := g.svc.Executions.Get(c.Context(), id)
	if errors.Is(err, workflow.ErrNotFound) {
		return nil, apiv2.NewNotFoundError("execution")
	}
	if err != nil {
		return nil, err
	}
	if ex.UserID != g.currentUser(c) {
		return nil, apiv2.NewNotFoundError("execution")
	}
	return ex, nil
}

func (g *Gateway) handleExecutionGet(c *okapi.Context) error {
	ex, err := g.execution(c)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(executionResponse(ex)))
}

func (g *Gateway) handleExecutionCancel(c *okapi.Context) error {
	ex, err := g.execution(c)
	if err != nil {
		return err
	}

	ex, err = g.svc.Engine.Cancel(c.Context(), ex.ID)
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return apiv2.NewConflictError("execution is not cancellable in its current state")
	}
	if err != nil {
		return err
	}

	g.publish(ws.EventTaskUpdated, executionResponse(ex))
	return c.OK(g.fmt.Success(executionResponse(ex)))
}

func (g *Gateway) handleExecutionRetry(c *okapi.Context) error {
	ex, err := g.execution(c)
	if err != nil {
		return err
	}

	retried, err := g.svc.Engine.Retry(c.Context(), ex.ID)
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return apiv2.NewConflictError("only failed or cancelled executions can be retried")
	}
	if err != nil {
		return err
	}

	g.publish(ws.EventTaskCreated, executionResponse(retried))
	return c.JSON(http.StatusAccepted, g.fmt.Task(executionResponse(retried)))
}

func (g *Gateway) handleExecutionDelete(c *okapi.Context) error {
	ex, err := g.execution(c)
	if err != nil {
		return err
	}

	if ex.Status == domain.ExecutionRunning {
		return apiv2.NewConflictError("cannot delete a running execution")
	}
	if err := g.svc.Executions.Delete(c.Context(), ex.ID); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

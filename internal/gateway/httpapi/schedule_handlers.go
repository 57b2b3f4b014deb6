package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/scheduler"
	"github.com/cartrita/cartrita/internal/workflow"
)

// ScheduleRequest is the JSON body for schedule create/update.
type ScheduleRequest struct {
	WorkflowID     string     `json:"workflow_id"`
	Name           string     `json:"name"`
	ScheduleType   string     `json:"schedule_type"`
	CronExpression string     `json:"cron_expression,omitempty"`
	IntervalS      int64      `json:"interval_seconds,omitempty"`
	RunAt          *time.Time `json:"run_at,omitempty"`
	Priority       int        `json:"priority"`
	Enabled        *bool      `json:"enabled,omitempty"`
}

// ScheduleResponse is the JSON shape of a schedule.
type ScheduleResponse struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	Name           string     `json:"name"`
	ScheduleType   string     `json:"schedule_type"`
	CronExpression string     `json:"cron_expression,omitempty"`
	IntervalS      int64      `json:"interval_seconds,omitempty"`
	RunAt          *time.Time `json:"run_at,omitempty"`
	Priority       int        `json:"priority"`
	Enabled        bool       `json:"enabled"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     string     `json:"last_status,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func scheduleResponse(s *domain.WorkflowSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:             s.ID.String(),
		WorkflowID:     s.WorkflowID.String(),
		Name:           s.Name,
		ScheduleType:   string(s.ScheduleType),
		CronExpression: s.CronExpression,
		IntervalS:      int64(s.Interval / time.Second),
		RunAt:          s.RunAt,
		Priority:       s.Priority,
		Enabled:        s.Enabled,
		NextRunAt:      s.NextRunAt,
		LastRunAt:      s.LastRunAt,
		LastStatus:     string(s.LastStatus),
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
	}
}

// validateScheduleShape enforces the per-type required fields.
func validateScheduleShape(s *domain.WorkflowSchedule) error {
	if !s.ScheduleType.Valid() {
		return apiv2.NewValidationError("schedule_type", "unknown schedule type")
	}
	switch s.ScheduleType {
	case domain.ScheduleCron:
		if err := scheduler.ValidateCronExpression(s.CronExpression); err != nil {
			return apiv2.NewValidationError("cron_expression", err.Error())
		}
	case domain.ScheduleInterval:
		if s.Interval <= 0 {
			return apiv2.NewValidationError("interval_seconds", "must be positive")
		}
	case domain.ScheduleOnce:
		if s.RunAt == nil {
			return apiv2.NewValidationError("run_at", "required for once schedules")
		}
	}
	return nil
}

func (g *Gateway) handleScheduleCreate(c *okapi.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	workflowID, err := apiv2.ValidateUUID("workflow_id", req.WorkflowID)
	if err != nil {
		return err
	}
	if err := apiv2.ValidateRequired("name", req.Name); err != nil {
		return err
	}

	// The workflow lookup doubles as the ownership check.
	if _, err := g.svc.Workflows.Get(c.Context(), g.currentUser(c), workflowID); err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return apiv2.NewNotFoundError("workflow")
		}
		return err
	}

	now := time.Now().UTC()
	s := &domain.WorkflowSchedule{
		ID:             uuid.New(),
		WorkflowID:     workflowID,
		UserID:         g.currentUser(c),
		Name:           req.Name,
		ScheduleType:   domain.ScheduleType(req.ScheduleType),
		CronExpression: req.CronExpression,
		Interval:       time.Duration(req.IntervalS) * time.Second,
		RunAt:          req.RunAt,
		Priority:       req.Priority,
		Enabled:        req.Enabled == nil || *req.Enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := validateScheduleShape(s); err != nil {
		return err
	}
	s.NextRunAt = g.svc.Poller.NextRun(s, now)

	if err := g.svc.Schedules.Create(c.Context(), s); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, g.fmt.Success(scheduleResponse(s)))
}

func (g *Gateway) handleScheduleList(c *okapi.Context) error {
	schedules, err := g.svc.Schedules.List(c.Context(), g.currentUser(c))
	if err != nil {
		return err
	}

	out := make([]ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		out = append(out, scheduleResponse(&schedules[i]))
	}
	return c.OK(g.fmt.Collection(out, len(out)))
}

// schedule loads a schedule and checks ownership.
func (g *Gateway) schedule(c *okapi.Context) (*domain.WorkflowSchedule, error) {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return nil, err
	}
	s, err := g.svc.Schedules.Get(c.Context(), id)
	if errors.Is(err, scheduler.ErrNotFound) {
		return nil, apiv2.NewNotFoundError("schedule")
	}
	if err != nil {
		return nil, err
	}
	if s.UserID != g.currentUser(c) {
		return nil, apiv2.NewNotFoundError("schedule")
	}
	return s, nil
}

func (g *Gateway) handleScheduleGet(c *okapi.Context) error {
	s, err := g.schedule(c)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(scheduleResponse(s)))
}

func (g *Gateway) handleScheduleUpdate(c *okapi.Context) error {
	s, err := g.schedule(c)
	if err != nil {
		return err
	}

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}

	if req.Name != "" {
		s.Name = req.Name
	}
	if req.ScheduleType != "" {
		s.ScheduleType = domain.ScheduleType(req.ScheduleType)
	}
	if req.CronExpression != "" {
		s.CronExpression = req.CronExpression
	}
	if req.IntervalS > 0 {
		s.Interval = time.Duration(req.IntervalS) * time.Second
	}
	if req.RunAt != nil {
		s.RunAt = req.RunAt
	}
	s.Priority = req.Priority
	if req.Enabled != nil {
		s.Enabled = *req.Enabled
	}
	if err := validateScheduleShape(s); err != nil {
		return err
	}
	s.NextRunAt = g.svc.Poller.NextRun(s, time.Now().UTC())

	if err := g.svc.Schedules.Update(c.Context(), s); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(scheduleResponse(s)))
}

func (g *Gateway) handleScheduleDelete(c *okapi.Context) error {
	s, err := g.schedule(c)
	if err != nil {
		return err
	}
	if err := g.svc.Schedules.Delete(c.Context(), s.ID); err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// ScheduleExecutionResponse is one historical run of a schedule.
type ScheduleExecutionResponse struct {
	ID          string     `json:"id"`
	ScheduleID  string     `json:"schedule_id"`
	ExecutionID string     `json:"execution_id,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
}

func (g *Gateway) handleScheduleExecutions(c *okapi.Context) error {
	s, err := g.schedule(c)
	if err != nil {
		return err
	}

	limit := queryInt(c, "limit", 50)
	executions, err := g.svc.History.ListExecutions(c.Context(), s.ID, limit)
	if err != nil {
		return err
	}

	out := make([]ScheduleExecutionResponse, 0, len(executions))
	for i := range executions {
		sx := &executions[i]
		resp := ScheduleExecutionResponse{
			ID:          sx.ID.String(),
			ScheduleID:  sx.ScheduleID.String(),
			Status:      string(sx.Status),
			StartedAt:   sx.StartedAt,
			CompletedAt: sx.CompletedAt,
			Error:       sx.Error,
			DurationMS:  sx.DurationMS,
		}
		if sx.ExecutionID != uuid.Nil {
			resp.ExecutionID = sx.ExecutionID.String()
		}
		out = append(out, resp)
	}
	return c.OK(g.fmt.Collection(out, len(out)))
}

func (g *Gateway) handleScheduleStatistics(c *okapi.Context) error {
	s, err := g.schedule(c)
	if err != nil {
		return err
	}

	stats, err := g.svc.History.Statistics(c.Context(), s.ID)
	if errors.Is(err, scheduler.ErrNotFound) {
		return apiv2.NewNotFoundError("schedule statistics")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(stats))
}

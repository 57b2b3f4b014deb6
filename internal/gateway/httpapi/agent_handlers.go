package httpapi

import (
	"errors"
	"net/http"

	"github.com/jkaninda/okapi"

	"github.com/cartrita/cartrita/internal/agents"
	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/gateway/ws"
	"github.com/cartrita/cartrita/internal/workflow"
)

func (g *Gateway) handleAgentRoleCall(c *okapi.Context) error {
	list := g.svc.Registry.RoleCall(c.Context())
	return c.OK(g.fmt.Collection(list, len(list)))
}

func (g *Gateway) handleAgentCapabilities(c *okapi.Context) error {
	caps := g.svc.Registry.Capabilities(c.Context())
	return c.OK(g.fmt.Success(caps))
}

func (g *Gateway) handleAgentConfigGet(c *okapi.Context) error {
	cfg, err := g.svc.Registry.Config(c.Context(), c.Param("id"))
	if errors.Is(err, agents.ErrNotFound) {
		return apiv2.NewNotFoundError("agent")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(cfg))
}

func (g *Gateway) handleAgentConfigSet(c *okapi.Context) error {
	var cfg map[string]any
	if err := c.Bind(&cfg); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}

	id := c.Param("id")
	if err := g.svc.Registry.SetConfig(c.Context(), id, cfg); err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return apiv2.NewNotFoundError("agent")
		}
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"agent_id": id, "status": "updated"}))
}

func (g *Gateway) handleToolList(c *okapi.Context) error {
	tools := g.svc.Catalog.List(c.Context())
	return c.OK(g.fmt.Collection(tools, len(tools)))
}

// ToolToggleResponse reports the tool's state after a toggle.
type ToolToggleResponse struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (g *Gateway) handleToolToggle(c *okapi.Context) error {
	name := c.Param("name")
	enabled, err := g.svc.Catalog.Toggle(c.Context(), name)
	if errors.Is(err, agents.ErrNotFound) {
		return apiv2.NewNotFoundError("tool")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(ToolToggleResponse{Name: name, Enabled: enabled}))
}

func taskFilterFromQuery(c *okapi.Context) agents.TaskFilter {
	return agents.TaskFilter{
		Status:    c.Query("status"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Limit:     queryInt(c, "limit", 0),
	}
}

func (g *Gateway) handleTaskList(c *okapi.Context) error {
	filter := taskFilterFromQuery(c)
	if filter.Status != "" && !domain.ExecutionStatus(filter.Status).Valid() {
		return apiv2.NewValidationError("status", "unknown execution status")
	}

	tasks, total, err := g.svc.Tasks.List(c.Context(), filter)
	if err != nil {
		return err
	}

	out := make([]ExecutionResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, executionResponse(&tasks[i]))
	}
	return c.OK(g.fmt.Paginated(out, 0, filter.Limit, total))
}

func (g *Gateway) handleTaskCancel(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	task, err := g.svc.Tasks.Cancel(c.Context(), id)
	if errors.Is(err, workflow.ErrNotFound) {
		return apiv2.NewNotFoundError("task")
	}
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return apiv2.NewConflictError("task is not cancellable in its current state")
	}
	if err != nil {
		return err
	}

	g.publish(ws.EventTaskUpdated, executionResponse(task))
	return c.OK(g.fmt.Task(executionResponse(task)))
}

func (g *Gateway) handleTaskRetry(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	task, err := g.svc.Tasks.Retry(c.Context(), id)
	if errors.Is(err, workflow.ErrNotFound) {
		return apiv2.NewNotFoundError("task")
	}
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return apiv2.NewConflictError("only failed or cancelled tasks can be retried")
	}
	if err != nil {
		return err
	}

	g.publish(ws.EventTaskCreated, executionResponse(task))
	return c.JSON(http.StatusAccepted, g.fmt.Task(executionResponse(task)))
}

func (g *Gateway) handleTaskDelete(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	err = g.svc.Tasks.Delete(c.Context(), id)
	if errors.Is(err, workflow.ErrNotFound) {
		return apiv2.NewNotFoundError("task")
	}
	if errors.Is(err, workflow.ErrInvalidTransition) {
		return apiv2.NewConflictError("cannot delete a running task")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

func (g *Gateway) handleTaskExport(c *okapi.Context) error {
	format := c.Query("format")
	if format == "" {
		format = agents.ExportJSON
	}
	if err := apiv2.ValidateEnum("format", format, agents.ExportCSV, agents.ExportJSON); err != nil {
		return err
	}

	data, contentType, err := g.svc.Tasks.Export(c.Context(), format, taskFilterFromQuery(c))
	if err != nil {
		return err
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", contentType)
	resp.Header().Set("Content-Disposition", `attachment; filename="tasks.`+format+`"`)
	resp.WriteHeader(http.StatusOK)
	_, err = resp.Write(data)
	return err
}

func (g *Gateway) handleAgentMetrics(c *okapi.Context) error {
	summaries, err := g.svc.Exporter.Summary(c.Query("agent_id"))
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Collection(summaries, len(summaries)))
}

func (g *Gateway) handleAgentMetricsExport(c *okapi.Context) error {
	data, err := g.svc.Exporter.Export()
	if err != nil {
		return err
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "application/json")
	resp.Header().Set("Content-Disposition", `attachment; filename="agent-metrics.json"`)
	resp.WriteHeader(http.StatusOK)
	_, err = resp.Write(data)
	return err
}

func (g *Gateway) handleSystemStatus(c *okapi.Context) error {
	status, err := g.svc.Status.Status(c.Context())
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(status))
}

package agents

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/workflow"
)

func seedRegistry() *Registry {
	r := NewRegistry()
	r.Register(Agent{ID: "researcher", Name: "Researcher", Role: "knowledge", Capabilities: []string{"search", "summarize"}})
	r.Register(Agent{ID: "scheduler", Name: "Scheduler", Role: "automation", Capabilities: []string{"cron", "workflows"}})
	return r
}

func TestRoleCallSortedAndOfflineDetection(t *testing.T) {
	ctx := context.Background()
	r := seedRegistry()

	agents := r.RoleCall(ctx)
	if len(agents) != 2 {
		t.Fatalf("role call returned %d agents", len(agents))
	}
	if agents[0].Name != "Researcher" || agents[1].Name != "Scheduler" {
		t.Error("role call not sorted by name")
	}
	for _, a := range agents {
		if a.Status != StatusIdle {
			t.Errorf("%s status = %q, want idle default", a.ID, a.Status)
		}
	}
}

func TestHeartbeatAndStaleness(t *testing.T) {
	ctx := context.Background()
	r := seedRegistry()

	if err := r.Heartbeat(ctx, "researcher", StatusActive); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := r.Heartbeat(ctx, "ghost", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown agent heartbeat: got %v, want ErrNotFound", err)
	}

	// Move the registry clock past the offline window.
	base := r.now()
	r.now = func() time.Time { return base.Add(3 * offlineAfter) }

	for _, a := range r.RoleCall(ctx) {
		if a.Status != StatusOffline {
			t.Errorf("%s status = %q, want offline after stale heartbeat", a.ID, a.Status)
		}
	}
}

func TestCapabilitiesUnion(t *testing.T) {
	ctx := context.Background()
	r := seedRegistry()
	r.Register(Agent{ID: "archivist", Name: "Archivist", Capabilities: []string{"search"}})

	caps := r.Capabilities(ctx)
	if got := caps["search"]; len(got) != 2 || got[0] != "archivist" || got[1] != "researcher" {
		t.Errorf("search providers = %v", got)
	}
	if got := caps["cron"]; len(got) != 1 || got[0] != "scheduler" {
		t.Errorf("cron providers = %v", got)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := seedRegistry()

	if err := r.SetConfig(ctx, "researcher", map[string]any{"max_results": 25}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	cfg, err := r.Config(ctx, "researcher")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if cfg["max_results"] != 25 {
		t.Errorf("config = %v", cfg)
	}

	// Returned map is a copy.
	cfg["max_results"] = 999
	again, _ := r.Config(ctx, "researcher")
	if again["max_results"] != 25 {
		t.Error("config map not copied on read")
	}

	if _, err := r.Config(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown agent config: got %v", err)
	}
}

func TestCatalogToggle(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog(
		Tool{Name: "web_search", Category: "research", Enabled: true},
		Tool{Name: "shell", Category: "system", Enabled: false},
	)

	on, err := c.Toggle(ctx, "shell")
	if err != nil || !on {
		t.Fatalf("toggle shell: %v %v", on, err)
	}
	if !c.Enabled(ctx, "shell") {
		t.Error("shell should be enabled after toggle")
	}

	off, _ := c.Toggle(ctx, "web_search")
	if off {
		t.Error("web_search should be disabled after toggle")
	}

	if _, err := c.Toggle(ctx, "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown tool toggle: got %v", err)
	}

	list := c.List(ctx)
	if len(list) != 2 || list[0].Name != "shell" || list[1].Name != "web_search" {
		t.Errorf("list = %v", list)
	}
}

func taskViewFixture(t *testing.T) (*TaskView, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	wfStore := workflow.NewInMemoryStore()
	exStore := workflow.NewInMemoryExecutionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := workflow.NewEngine(wfStore, exStore, logger)

	userID := uuid.New()
	wf := &domain.Workflow{ID: uuid.New(), UserID: userID, Name: "sync", IsActive: true}
	if err := wfStore.Create(ctx, wf); err != nil {
		t.Fatalf("seed workflow: %v", err)
	}

	var failedID uuid.UUID
	for i := 0; i < 4; i++ {
		ex, err := engine.Submit(ctx, userID, wf.ID, "api", nil)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := engine.Start(ctx, ex.ID); err != nil {
			t.Fatalf("start: %v", err)
		}
		if i == 0 {
			if _, err := engine.Fail(ctx, ex.ID, "boom"); err != nil {
				t.Fatalf("fail: %v", err)
			}
			failedID = ex.ID
		} else {
			if _, err := engine.Complete(ctx, ex.ID, nil); err != nil {
				t.Fatalf("complete: %v", err)
			}
		}
	}
	return NewTaskView(engine, exStore), failedID
}

func TestTaskViewListAndActions(t *testing.T) {
	ctx := context.Background()
	view, failedID := taskViewFixture(t)

	failed, _, err := view.List(ctx, TaskFilter{Status: "failed"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != failedID {
		t.Fatalf("failed filter returned %d rows", len(failed))
	}

	if _, _, err := view.List(ctx, TaskFilter{Status: "sideways"}); err == nil {
		t.Error("invalid status filter accepted")
	}

	clone, err := view.Retry(ctx, failedID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if clone.Status != domain.ExecutionPending {
		t.Errorf("retry clone status = %s", clone.Status)
	}

	if err := view.Delete(ctx, failedID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := view.List(ctx, TaskFilter{Status: "failed"}); err != nil {
		t.Fatalf("list after delete: %v", err)
	}
}

func TestTaskExport(t *testing.T) {
	ctx := context.Background()
	view, _ := taskViewFixture(t)

	data, contentType, err := view.Export(ctx, ExportJSON, TaskFilter{})
	if err != nil {
		t.Fatalf("json export: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("export is not valid json: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("json export rows = %d, want 4", len(rows))
	}

	csvData, contentType, err := view.Export(ctx, ExportCSV, TaskFilter{})
	if err != nil {
		t.Fatalf("csv export: %v", err)
	}
	if contentType != "text/csv" {
		t.Errorf("content type = %q", contentType)
	}
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	if len(lines) != 5 {
		t.Errorf("csv lines = %d, want header + 4 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,workflow_id,status") {
		t.Errorf("csv header = %q", lines[0])
	}

	if _, _, err := view.Export(ctx, "xml", TaskFilter{}); err == nil {
		t.Error("unsupported format accepted")
	}
}

func TestMetricsSummaryAndExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	if m == nil {
		t.Fatal("metrics nil with live registry")
	}
	if NewMetrics(nil) != nil {
		t.Error("nil registry must produce nil metrics")
	}

	m.TasksProcessed.WithLabelValues("researcher", "completed").Add(5)
	m.TasksProcessed.WithLabelValues("researcher", "failed").Add(1)
	m.TasksProcessed.WithLabelValues("scheduler", "completed").Add(2)
	m.TaskDuration.WithLabelValues("researcher").Observe(2)
	m.TaskDuration.WithLabelValues("researcher").Observe(4)

	exp := NewExporter(reg)

	all, err := exp.Summary("")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("summary rows = %d, want 2", len(all))
	}
	res := all[0]
	if res.AgentID != "researcher" {
		t.Fatalf("first row = %q, want researcher (sorted)", res.AgentID)
	}
	if res.TasksCompleted != 5 || res.TasksFailed != 1 {
		t.Errorf("researcher counts = %v/%v", res.TasksCompleted, res.TasksFailed)
	}
	if res.AvgDurationSec != 3 {
		t.Errorf("researcher avg duration = %v, want 3", res.AvgDurationSec)
	}

	one, _ := exp.Summary("scheduler")
	if len(one) != 1 || one[0].TasksCompleted != 2 {
		t.Errorf("filtered summary = %+v", one)
	}

	data, err := exp.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(string(data), "cartrita_agents_tasks_processed_total") {
		t.Error("export missing task counter family")
	}
	var families []map[string]any
	if err := json.Unmarshal(data, &families); err != nil {
		t.Fatalf("export is not valid json: %v", err)
	}
}

func TestSystemStatus(t *testing.T) {
	ctx := context.Background()
	r := seedRegistry()
	_ = r.Heartbeat(ctx, "researcher", StatusActive)

	reporter := NewStatusReporter(r, nil, "1.4.2")
	st, err := reporter.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Healthy {
		t.Error("system with live agents should be healthy")
	}
	if st.AgentsTotal != 2 || st.AgentsActive != 1 {
		t.Errorf("counts = total %d active %d", st.AgentsTotal, st.AgentsActive)
	}
	if st.Version != "1.4.2" {
		t.Errorf("version = %q", st.Version)
	}
}

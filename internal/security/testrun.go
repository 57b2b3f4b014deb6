package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// TestRunStore persists security test runs, their results, and findings.
type TestRunStore interface {
	CreateRun(ctx context.Context, run *domain.SecurityTestRun) error
	UpdateRun(ctx context.Context, run *domain.SecurityTestRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*domain.SecurityTestRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.SecurityTestRun, error)
	AddResult(ctx context.Context, result *domain.SecurityTestResult) error
	ListResults(ctx context.Context, runID uuid.UUID) ([]domain.SecurityTestResult, error)
	AddVulnerability(ctx context.Context, vuln *domain.SecurityVulnerability) error
	ListVulnerabilities(ctx context.Context, resultID uuid.UUID) ([]domain.SecurityVulnerability, error)
}

// Finding is a vulnerability reported by a check.
type Finding struct {
	Severity    domain.Severity
	Title       string
	Description string
	Remediation string
}

// CheckFunc performs one security check. A non-nil error or any finding with
// severity high or critical marks the check failed.
type CheckFunc func(ctx context.Context) (findings []Finding, err error)

// Check is a named security check registered on the runner.
type Check struct {
	Name string
	Run  CheckFunc
}

// TestRunner executes the registered checks as one run. A panicking or
// failing check is recorded and does not stop the rest of the suite.
type TestRunner struct {
	store  TestRunStore
	checks []Check
	logger *slog.Logger
	now    func() time.Time
}

// NewTestRunner creates a TestRunner.
func NewTestRunner(store TestRunStore, logger *slog.Logger) *TestRunner {
	return &TestRunner{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Register adds a check to the suite.
func (r *TestRunner) Register(name string, fn CheckFunc) {
	r.checks = append(r.checks, Check{Name: name, Run: fn})
}

// Run executes every registered check and persists the outcome.
// The run itself completes even when individual checks fail.
func (r *TestRunner) Run(ctx context.Context, triggeredBy string) (*domain.SecurityTestRun, error) {
	started := r.now()
	run := &domain.SecurityTestRun{
		ID:          uuid.New(),
		TriggeredBy: triggeredBy,
		Status:      domain.ExecutionRunning,
		StartedAt:   started,
		CreatedAt:   started,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating test run: %w", err)
	}

	for _, check := range r.checks {
		r.runCheck(ctx, run.ID, check)
	}

	completed := r.now()
	run.Status = domain.ExecutionCompleted
	run.CompletedAt = &completed
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("finalizing test run: %w", err)
	}

	r.logger.InfoContext(ctx, "security test run finished",
		slog.String("run_id", run.ID.String()),
		slog.Int("checks", len(r.checks)),
		slog.String("duration", completed.Sub(started).String()),
	)
	return run, nil
}

func (r *TestRunner) runCheck(ctx context.Context, runID uuid.UUID, check Check) {
	started := r.now()
	var findings []Finding
	var checkErr error

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				checkErr = fmt.Errorf("check panicked: %v", rec)
			}
		}()
		findings, checkErr = check.Run(ctx)
	}()

	result := &domain.SecurityTestResult{
		ID:       uuid.New(),
		RunID:    runID,
		TestName: check.Name,
		Passed:   checkErr == nil,
		Duration: r.now().Sub(started),
	}
	if checkErr != nil {
		result.Message = checkErr.Error()
	}
	for _, f := range findings {
		if f.Severity == domain.SeverityHigh || f.Severity == domain.SeverityCritical {
			result.Passed = false
			if result.Message == "" {
				result.Message = f.Title
			}
		}
	}

	if err := r.store.AddResult(ctx, result); err != nil {
		r.logger.ErrorContext(ctx, "recording test result failed",
			slog.String("check", check.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, f := range findings {
		vuln := &domain.SecurityVulnerability{
			ID:          uuid.New(),
			ResultID:    result.ID,
			Severity:    f.Severity,
			Title:       f.Title,
			Description: f.Description,
			Remediation: f.Remediation,
			CreatedAt:   r.now(),
		}
		if err := r.store.AddVulnerability(ctx, vuln); err != nil {
			r.logger.ErrorContext(ctx, "recording vulnerability failed",
				slog.String("check", check.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

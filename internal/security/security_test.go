package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRBACDefaultDeny(t *testing.T) {
	ctx := context.Background()
	roles := NewInMemoryRoleStore()
	rbac := NewRBAC(roles, discardLogger())
	userID := uuid.New()

	// No roles at all.
	if err := rbac.Can(ctx, userID, "workflows.read"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("no roles: got %v, want ErrPermissionDenied", err)
	}

	_ = roles.Create(ctx, &domain.Role{
		ID:          uuid.New(),
		Name:        "viewer",
		Permissions: []string{"workflows.read", "knowledge.read"},
	})
	_ = roles.Assign(ctx, userID, "viewer")

	if err := rbac.Can(ctx, userID, "workflows.read"); err != nil {
		t.Errorf("granted permission denied: %v", err)
	}
	// Not in the role, no wildcards.
	if err := rbac.Can(ctx, userID, "workflows.delete"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("ungranted permission: got %v, want ErrPermissionDenied", err)
	}
}

func TestRBACAnyRoleGrants(t *testing.T) {
	ctx := context.Background()
	roles := NewInMemoryRoleStore()
	rbac := NewRBAC(roles, discardLogger())
	userID := uuid.New()

	_ = roles.Create(ctx, &domain.Role{ID: uuid.New(), Name: "viewer", Permissions: []string{"workflows.read"}})
	_ = roles.Create(ctx, &domain.Role{ID: uuid.New(), Name: "operator", Permissions: []string{"workflows.execute"}})
	_ = roles.Assign(ctx, userID, "viewer")
	_ = roles.Assign(ctx, userID, "operator")

	if err := rbac.Can(ctx, userID, "workflows.execute"); err != nil {
		t.Errorf("permission from second role denied: %v", err)
	}
}

func testAuthenticator(ttl time.Duration) (*Authenticator, *InMemorySessionStore) {
	sessions := NewInMemorySessionStore()
	credentials := NewInMemoryCredentialStore()
	return NewAuthenticator([]byte("test-signing-secret"), ttl, sessions, credentials), sessions
}

func TestLoginAndVerify(t *testing.T) {
	ctx := context.Background()
	auth, _ := testAuthenticator(time.Hour)
	userID := uuid.New()

	if err := auth.SetPassword(ctx, userID, "correct horse battery"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	if _, _, err := auth.Login(ctx, userID, "wrong", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}

	token, session, err := auth.Login(ctx, userID, "correct horse battery", "cli/1.0", "203.0.113.7")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.TokenID == "" {
		t.Error("session missing token id")
	}

	gotUser, gotSession, err := auth.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if gotUser != userID || gotSession.ID != session.ID {
		t.Error("verify returned the wrong identity")
	}
}

func TestRevokedSessionRejected(t *testing.T) {
	ctx := context.Background()
	auth, _ := testAuthenticator(time.Hour)
	userID := uuid.New()
	_ = auth.SetPassword(ctx, userID, "pw")
	token, session, err := auth.Login(ctx, userID, "pw", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := auth.Revoke(ctx, session.TokenID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// The JWT itself is still within its lifetime; the blacklist must win.
	if _, _, err := auth.Verify(ctx, token); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("revoked session: got %v, want ErrSessionRevoked", err)
	}
}

func TestForgedTokenRejected(t *testing.T) {
	ctx := context.Background()
	auth, _ := testAuthenticator(time.Hour)
	other := NewAuthenticator([]byte("different-secret"), time.Hour, NewInMemorySessionStore(), NewInMemoryCredentialStore())

	userID := uuid.New()
	_ = other.SetPassword(ctx, userID, "pw")
	forged, _, err := other.Login(ctx, userID, "pw", "", "")
	if err != nil {
		t.Fatalf("login on other issuer: %v", err)
	}

	if _, _, err := auth.Verify(ctx, forged); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("token signed with another secret: got %v", err)
	}
}

func TestExpiredSessionCleanup(t *testing.T) {
	ctx := context.Background()
	sessions := NewInMemorySessionStore()
	now := time.Now().UTC()

	_ = sessions.Create(ctx, &domain.Session{ID: uuid.New(), TokenID: "old", ExpiresAt: now.Add(-time.Hour)})
	_ = sessions.Create(ctx, &domain.Session{ID: uuid.New(), TokenID: "live", ExpiresAt: now.Add(time.Hour)})

	removed, err := sessions.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := sessions.GetByTokenID(ctx, "live"); err != nil {
		t.Error("live session removed by cleanup")
	}
}

func TestMaskingStrategies(t *testing.T) {
	if got := Mask(StrategyRedact, "secret@example.com"); got != "[REDACTED]" {
		t.Errorf("redact = %q", got)
	}

	h1 := Mask(StrategyHash, "secret@example.com")
	h2 := Mask(StrategyHash, "secret@example.com")
	if h1 != h2 {
		t.Error("hash strategy must be deterministic")
	}
	if h1 == "secret@example.com" || len(h1) != 16 {
		t.Errorf("hash = %q", h1)
	}

	if got := Mask(StrategyPartial, "4111111111111111"); got != "41************11" {
		t.Errorf("partial = %q", got)
	}
	if got := Mask(StrategyPartial, "abc"); got != "***" {
		t.Errorf("partial short = %q", got)
	}
}

func TestMaskingRuleUniqueness(t *testing.T) {
	ctx := context.Background()
	rules := NewInMemoryMaskingRuleStore()

	first := &domain.MaskingRule{ID: uuid.New(), TableName: "users", Column: "email", Strategy: StrategyPartial, Enabled: true}
	if err := rules.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &domain.MaskingRule{ID: uuid.New(), TableName: "Users", Column: "EMAIL", Strategy: StrategyRedact, Enabled: true}
	if err := rules.Create(ctx, dup); !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("duplicate (table,column): got %v, want ErrDuplicateRule", err)
	}

	bad := &domain.MaskingRule{ID: uuid.New(), TableName: "users", Column: "phone", Strategy: "scramble"}
	if err := rules.Create(ctx, bad); err == nil {
		t.Error("unknown strategy accepted")
	}
}

func TestMaskerApply(t *testing.T) {
	ctx := context.Background()
	rules := NewInMemoryMaskingRuleStore()
	masker := NewMasker(rules)

	_ = rules.Create(ctx, &domain.MaskingRule{
		ID: uuid.New(), TableName: "users", Column: "email", Strategy: StrategyRedact, Enabled: true,
	})

	got, err := masker.Apply(ctx, "users", "email", "a@b.com")
	if err != nil || got != "[REDACTED]" {
		t.Errorf("ruled column = %q, %v", got, err)
	}

	// No rule: value passes through.
	got, err = masker.Apply(ctx, "users", "display_name", "Ada")
	if err != nil || got != "Ada" {
		t.Errorf("unruled column = %q, %v", got, err)
	}
}

func TestAuditorDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryAuditStore()
	auditor := NewAuditor(store, discardLogger())
	userID := uuid.New()

	err := auditor.Log(ctx, &domain.AuditEvent{
		UserID:   userID,
		Action:   "workflow.delete",
		Resource: "workflows/abc",
		Result:   "success",
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	events, _ := store.List(ctx, userID, 10)
	if len(events) != 1 {
		t.Fatalf("stored %d events", len(events))
	}
	ev := events[0]
	if ev.ID == uuid.Nil || ev.CreatedAt.IsZero() {
		t.Error("id/created_at not assigned")
	}
	if ev.Severity != domain.SeverityInfo {
		t.Errorf("default severity = %s, want info", ev.Severity)
	}
}

func TestTestRunnerIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryTestRunStore()
	runner := NewTestRunner(store, discardLogger())

	runner.Register("headers_present", func(context.Context) ([]Finding, error) {
		return nil, nil
	})
	runner.Register("weak_password_policy", func(context.Context) ([]Finding, error) {
		return []Finding{{
			Severity:    domain.SeverityHigh,
			Title:       "password minimum length below 12",
			Remediation: "raise the minimum to 12 characters",
		}}, nil
	})
	runner.Register("panicky_probe", func(context.Context) ([]Finding, error) {
		panic("probe exploded")
	})

	run, err := runner.Run(ctx, "manual")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != domain.ExecutionCompleted || run.CompletedAt == nil {
		t.Errorf("run status = %s, want completed", run.Status)
	}

	results, _ := store.ListResults(ctx, run.ID)
	if len(results) != 3 {
		t.Fatalf("recorded %d results, want 3", len(results))
	}
	byName := map[string]domain.SecurityTestResult{}
	for _, r := range results {
		byName[r.TestName] = r
	}
	if !byName["headers_present"].Passed {
		t.Error("passing check marked failed")
	}
	weak := byName["weak_password_policy"]
	if weak.Passed {
		t.Error("check with a high finding must fail")
	}
	vulns, _ := store.ListVulnerabilities(ctx, weak.ID)
	if len(vulns) != 1 || vulns[0].Severity != domain.SeverityHigh {
		t.Errorf("vulnerabilities = %+v", vulns)
	}
	panicked := byName["panicky_probe"]
	if panicked.Passed || panicked.Message == "" {
		t.Error("panicking check must record a failure message")
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/security"
)

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type roleRepo struct {
	db *gorm.DB
}

func (r *roleRepo) Create(ctx context.Context, role *domain.Role) error {
	m := toRoleModel(role)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating role: %w", err)
	}
	return nil
}

func (r *roleRepo) Get(ctx context.Context, name string) (*domain.Role, error) {
	var m RoleModel
	err := r.db.WithContext(ctx).First(&m, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, security.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting role %s: %w", name, err)
	}
	return toRoleDomain(&m), nil
}

func (r *roleRepo) List(ctx context.Context) ([]domain.Role, error) {
	var models []RoleModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}

	roles := make([]domain.Role, 0, len(models))
	for i := range models {
		roles = append(roles, *toRoleDomain(&models[i]))
	}
	return roles, nil
}

func (r *roleRepo) Update(ctx context.Context, role *domain.Role) error {
	m := toRoleModel(role)
	res := r.db.WithContext(ctx).Model(&RoleModel{}).
		Where("name = ?", role.Name).
		Updates(map[string]any{
			"description": m.Description,
			"permissions": m.Permissions,
		})
	if res.Error != nil {
		return fmt.Errorf("updating role %s: %w", role.Name, res.Error)
	}
	if res.RowsAffected == 0 {
		return security.ErrNotFound
	}
	return nil
}

func (r *roleRepo) Delete(ctx context.Context, name string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m RoleModel
		err := tx.First(&m, "name = ?", name).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return security.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&UserRoleModel{}, "role_id = ?", m.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&RoleModel{}, "id = ?", m.ID).Error
	})
	if errors.Is(err, security.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("deleting role %s: %w", name, err)
	}
	return nil
}

func (r *roleRepo) RolesForUser(ctx context.Context, userID uuid.UUID) ([]domain.Role, error) {
	var models []RoleModel
	err := r.db.WithContext(ctx).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing roles for user %s: %w", userID, err)
	}

	roles := make([]domain.Role, 0, len(models))
	for i := range models {
		roles = append(roles, *toRoleDomain(&models[i]))
	}
	return roles, nil
}

func (r *roleRepo) Assign(ctx context.Context, userID uuid.UUID, roleName string) error {
	var m RoleModel
	err := r.db.WithContext(ctx).First(&m, "name = ?", roleName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return security.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("resolving role %s: %w", roleName, err)
	}

	link := UserRoleModel{UserID: userID, RoleID: m.ID}
	err = r.db.WithContext(ctx).Create(&link).Error
	if isUniqueViolation(err) {
		// Already assigned; assignment is idempotent.
		return nil
	}
	if err != nil {
		return fmt.Errorf("assigning role %s to user %s: %w", roleName, userID, err)
	}
	return nil
}

func (r *roleRepo) Unassign(ctx context.Context, userID uuid.UUID, roleName string) error {
	var m RoleModel
	err := r.db.WithContext(ctx).First(&m, "name = ?", roleName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return security.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("resolving role %s: %w", roleName, err)
	}

	res := r.db.WithContext(ctx).
		Delete(&UserRoleModel{}, "user_id = ? AND role_id = ?", userID, m.ID)
	if res.Error != nil {
		return fmt.Errorf("unassigning role %s from user %s: %w", roleName, userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return security.ErrNotFound
	}
	return nil
}

type sessionRepo struct {
	db *gorm.DB
}

func (r *sessionRepo) Create(ctx context.Context, s *domain.Session) error {
	m := toSessionModel(s)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByTokenID(ctx context.Context, tokenID string) (*domain.Session, error) {
	var m SessionModel
	err := r.db.WithContext(ctx).First(&m, "token_id = ?", tokenID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, security.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session by token: %w", err)
	}
	return toSessionDomain(&m), nil
}

func (r *sessionRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	var models []SessionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing sessions for user %s: %w", userID, err)
	}

	sessions := make([]domain.Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, *toSessionDomain(&models[i]))
	}
	return sessions, nil
}

func (r *sessionRepo) Revoke(ctx context.Context, tokenID string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&SessionModel{}).
		Where("token_id = ? AND revoked_at IS NULL", tokenID).
		Update("revoked_at", at)
	if res.Error != nil {
		return fmt.Errorf("revoking session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return security.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&SessionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

type auditRepo struct {
	db *gorm.DB
}

func (r *auditRepo) Append(ctx context.Context, ev *domain.AuditEvent) error {
	m := toAuditModel(ev)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AuditEvent, error) {
	q := r.db.WithContext(ctx).Model(&AuditEventModel{}).Order("created_at DESC")
	if userID != uuid.Nil {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []AuditEventModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}

	events := make([]domain.AuditEvent, 0, len(models))
	for i := range models {
		events = append(events, toAuditDomain(&models[i]))
	}
	return events, nil
}

type maskingRuleRepo struct {
	db *gorm.DB
}

func (r *maskingRuleRepo) Create(ctx context.Context, rule *domain.MaskingRule) error {
	m := toMaskingRuleModel(rule)
	err := r.db.WithContext(ctx).Create(&m).Error
	if isUniqueViolation(err) {
		return security.ErrDuplicateRule
	}
	if err != nil {
		return fmt.Errorf("creating masking rule: %w", err)
	}
	return nil
}

func (r *maskingRuleRepo) List(ctx context.Context) ([]domain.MaskingRule, error) {
	var models []MaskingRuleModel
	err := r.db.WithContext(ctx).Order("table_name ASC, column_name ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing masking rules: %w", err)
	}

	rules := make([]domain.MaskingRule, 0, len(models))
	for i := range models {
		rules = append(rules, toMaskingRuleDomain(&models[i]))
	}
	return rules, nil
}

func (r *maskingRuleRepo) Update(ctx context.Context, rule *domain.MaskingRule) error {
	res := r.db.WithContext(ctx).Model(&MaskingRuleModel{}).
		Where("table_name = ? AND column_name = ?", rule.TableName, rule.Column).
		Updates(map[string]any{
			"strategy": rule.Strategy,
			"enabled":  rule.Enabled,
		})
	if res.Error != nil {
		return fmt.Errorf("updating masking rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return security.ErrNotFound
	}
	return nil
}

func (r *maskingRuleRepo) Delete(ctx context.Context, table, column string) error {
	res := r.db.WithContext(ctx).
		Delete(&MaskingRuleModel{}, "table_name = ? AND column_name = ?", table, column)
	if res.Error != nil {
		return fmt.Errorf("deleting masking rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return security.ErrNotFound
	}
	return nil
}

func (r *maskingRuleRepo) Lookup(ctx context.Context, table, column string) (*domain.MaskingRule, error) {
	var m MaskingRuleModel
	err := r.db.WithContext(ctx).
		First(&m, "table_name = ? AND column_name = ? AND enabled", table, column).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, security.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up masking rule: %w", err)
	}
	rule := toMaskingRuleDomain(&m)
	return &rule, nil
}

type testRunRepo struct {
	db *gorm.DB
}

func (r *testRunRepo) CreateRun(ctx context.Context, run *domain.SecurityTestRun) error {
	m := toTestRunModel(run)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating test run: %w", err)
	}
	return nil
}

func (r *testRunRepo) UpdateRun(ctx context.Context, run *domain.SecurityTestRun) error {
	m := toTestRunModel(run)
	res := r.db.WithContext(ctx).Model(&SecurityTestRunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":       m.Status,
			"completed_at": m.CompletedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("updating test run %s: %w", run.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return security.ErrNotFound
	}
	return nil
}

func (r *testRunRepo) GetRun(ctx context.Context, id uuid.UUID) (*domain.SecurityTestRun, error) {
	var m SecurityTestRunModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, security.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting test run %s: %w", id, err)
	}
	return toTestRunDomain(&m), nil
}

func (r *testRunRepo) ListRuns(ctx context.Context, limit int) ([]domain.SecurityTestRun, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []SecurityTestRunModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing test runs: %w", err)
	}

	runs := make([]domain.SecurityTestRun, 0, len(models))
	for i := range models {
		runs = append(runs, *toTestRunDomain(&models[i]))
	}
	return runs, nil
}

func (r *testRunRepo) AddResult(ctx context.Context, result *domain.SecurityTestResult) error {
	m := toTestResultModel(result)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("adding test result: %w", err)
	}
	return nil
}

func (r *testRunRepo) ListResults(ctx context.Context, runID uuid.UUID) ([]domain.SecurityTestResult, error) {
	var models []SecurityTestResultModel
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("test_name ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing test results: %w", err)
	}

	results := make([]domain.SecurityTestResult, 0, len(models))
	for i := range models {
		results = append(results, toTestResultDomain(&models[i]))
	}
	return results, nil
}

func (r *testRunRepo) AddVulnerability(ctx context.Context, vuln *domain.SecurityVulnerability) error {
	m := toVulnerabilityModel(vuln)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("adding vulnerability: %w", err)
	}
	return nil
}

func (r *testRunRepo) ListVulnerabilities(ctx context.Context, resultID uuid.UUID) ([]domain.SecurityVulnerability, error) {
	var models []SecurityVulnerabilityModel
	err := r.db.WithContext(ctx).
		Where("result_id = ?", resultID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing vulnerabilities: %w", err)
	}

	vulns := make([]domain.SecurityVulnerability, 0, len(models))
	for i := range models {
		vulns = append(vulns, toVulnerabilityDomain(&models[i]))
	}
	return vulns, nil
}

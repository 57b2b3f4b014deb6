package httpapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jkaninda/okapi"

	"github.com/cartrita/cartrita/internal/apiv2"
	"github.com/cartrita/cartrita/internal/domain"
	"github.com/cartrita/cartrita/internal/security"
	"github.com/cartrita/cartrita/internal/storage/postgres"
)

// --- Auth ---

// LoginRequest is the JSON body for POST /api/v2/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (g *Gateway) handleLogin(c *okapi.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("email", req.Email); err != nil {
		return err
	}
	if err := apiv2.ValidateRequired("password", req.Password); err != nil {
		return err
	}

	user, err := g.svc.Users.GetByEmail(c.Context(), req.Email)
	if errors.Is(err, postgres.ErrNotFound) {
		// Same response as a bad password so emails cannot be probed.
		return apiv2.NewUnauthorizedError("invalid credentials")
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		return apiv2.NewForbiddenError("account disabled")
	}

	token, session, err := g.svc.Auth.Login(c.Context(),
		user.ID, req.Password, c.Header("User-Agent"), clientIP(c))
	if err != nil {
		if errors.Is(err, security.ErrInvalidCredentials) {
			return apiv2.NewUnauthorizedError("invalid credentials")
		}
		return err
	}

	g.audit(c, user.ID, "auth.login", "session", "success", nil)

	return c.OK(g.fmt.Success(LoginResponse{
		Token:     token,
		UserID:    user.ID.String(),
		ExpiresAt: session.ExpiresAt,
	}))
}

func (g *Gateway) handleLogout(c *okapi.Context) error {
	tokenID := c.GetString("tokenID")
	if err := g.svc.Auth.Revoke(c.Context(), tokenID); err != nil {
		return err
	}
	g.audit(c, g.currentUser(c), "auth.logout", "session", "success", nil)
	return c.OK(g.fmt.Success(map[string]string{"status": "logged out"}))
}

// SessionResponse is one session row in the session listing.
type SessionResponse struct {
	ID        string     `json:"id"`
	UserAgent string     `json:"user_agent,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (g *Gateway) handleSessionList(c *okapi.Context) error {
	sessions, err := g.svc.Sessions.ListForUser(c.Context(), g.currentUser(c))
	if err != nil {
		return err
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionResponse{
			ID:        s.ID.String(),
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			RevokedAt: s.RevokedAt,
		})
	}
	return c.OK(g.fmt.Collection(out, len(out)))
}

// --- Users ---

// UserRequest is the JSON body for user create/update.
type UserRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password,omitempty"` // Create only.
	IsActive    *bool  `json:"is_active,omitempty"`
}

// UserResponse is the JSON shape of a user.
type UserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func userResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}

func (g *Gateway) handleUserCreate(c *okapi.Context) error {
	if err := g.require(c, "users.manage"); err != nil {
		return err
	}

	var req UserRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("email", req.Email); err != nil {
		return err
	}
	if err := apiv2.ValidateRequired("password", req.Password); err != nil {
		return err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:          uuid.New(),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.svc.Users.Create(c.Context(), user); err != nil {
		return err
	}
	if err := g.svc.Auth.SetPassword(c.Context(), user.ID, req.Password); err != nil {
		return err
	}

	g.audit(c, g.currentUser(c), "users.create", "user:"+user.ID.String(), "success", nil)
	return c.JSON(http.StatusCreated, g.fmt.Success(userResponse(user)))
}

func (g *Gateway) handleUserList(c *okapi.Context) error {
	if err := g.require(c, "users.manage"); err != nil {
		return err
	}

	offset, limit := pageParams(c)
	users, total, err := g.svc.Users.List(c.Context(), offset, limit)
	if err != nil {
		return err
	}

	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, userResponse(&users[i]))
	}
	return c.OK(g.fmt.Paginated(out, offset, limit, total))
}

func (g *Gateway) handleUserGet(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}
	// Users may read themselves; anything else needs the manage permission.
	if id != g.currentUser(c) {
		if err := g.require(c, "users.manage"); err != nil {
			return err
		}
	}

	user, err := g.svc.Users.Get(c.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		return apiv2.NewNotFoundError("user")
	}
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(userResponse(user)))
}

func (g *Gateway) handleUserUpdate(c *okapi.Context) error {
	if err := g.require(c, "users.manage"); err != nil {
		return err
	}
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	var req UserRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}

	user, err := g.svc.Users.Get(c.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		return apiv2.NewNotFoundError("user")
	}
	if err != nil {
		return err
	}

	if req.Email != "" {
		user.Email = req.Email
	}
	if req.DisplayName != "" {
		user.DisplayName = req.DisplayName
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if err := g.svc.Users.Update(c.Context(), user); err != nil {
		return err
	}

	g.audit(c, g.currentUser(c), "users.update", "user:"+id.String(), "success", nil)
	return c.OK(g.fmt.Success(userResponse(user)))
}

func (g *Gateway) handleUserDelete(c *okapi.Context) error {
	if err := g.require(c, "users.manage"); err != nil {
		return err
	}
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	if err := g.svc.Users.Delete(c.Context(), id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return apiv2.NewNotFoundError("user")
		}
		return err
	}

	g.audit(c, g.currentUser(c), "users.delete", "user:"+id.String(), "success", nil)
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// --- Roles ---

// RoleRequest is the JSON body for role create/update.
type RoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// RoleAssignRequest names the user for role assignment.
type RoleAssignRequest struct {
	UserID string `json:"user_id"`
}

func (g *Gateway) handleRoleCreate(c *okapi.Context) error {
	if err := g.require(c, "roles.manage"); err != nil {
		return err
	}

	var req RoleRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("name", req.Name); err != nil {
		return err
	}

	now := time.Now().UTC()
	role := &domain.Role{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.svc.Roles.Create(c.Context(), role); err != nil {
		return err
	}

	g.audit(c, g.currentUser(c), "roles.create", "role:"+req.Name, "success", nil)
	return c.JSON(http.StatusCreated, g.fmt.Success(role))
}

func (g *Gateway) handleRoleList(c *okapi.Context) error {
	roles, err := g.svc.Roles.List(c.Context())
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Collection(roles, len(roles)))
}

func (g *Gateway) handleRoleUpdate(c *okapi.Context) error {
	if err := g.require(c, "roles.manage"); err != nil {
		return err
	}

	var req RoleRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}

	role, err := g.svc.Roles.Get(c.Context(), c.Param("name"))
	if errors.Is(err, security.ErrNotFound) {
		return apiv2.NewNotFoundError("role")
	}
	if err != nil {
		return err
	}

	role.Description = req.Description
	role.Permissions = req.Permissions
	if err := g.svc.Roles.Update(c.Context(), role); err != nil {
		return err
	}

	g.audit(c, g.currentUser(c), "roles.update", "role:"+role.Name, "success", nil)
	return c.OK(g.fmt.Success(role))
}

func (g *Gateway) handleRoleDelete(c *okapi.Context) error {
	if err := g.require(c, "roles.manage"); err != nil {
		return err
	}

	name := c.Param("name")
	if err := g.svc.Roles.Delete(c.Context(), name); err != nil {
		if errors.Is(err, security.ErrNotFound) {
			return apiv2.NewNotFoundError("role")
		}
		return err
	}

	g.audit(c, g.currentUser(c), "roles.delete", "role:"+name, "success", nil)
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

func (g *Gateway) handleRoleAssign(c *okapi.Context) error {
	if err := g.require(c, "roles.manage"); err != nil {
		return err
	}

	var req RoleAssignRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	userID, err := apiv2.ValidateUUID("user_id", req.UserID)
	if err != nil {
		return err
	}

	name := c.Param("name")
	if err := g.svc.Roles.Assign(c.Context(), userID, name); err != nil {
		if errors.Is(err, security.ErrNotFound) {
			return apiv2.NewNotFoundError("role")
		}
		return err
	}

	g.audit(c, g.currentUser(c), "roles.assign", "role:"+name, "success",
		map[string]any{"user_id": req.UserID})
	return c.OK(g.fmt.Success(map[string]string{"status": "assigned"}))
}

func (g *Gateway) handleRoleUnassign(c *okapi.Context) error {
	if err := g.require(c, "roles.manage"); err != nil {
		return err
	}

	var req RoleAssignRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	userID, err := apiv2.ValidateUUID("user_id", req.UserID)
	if err != nil {
		return err
	}

	name := c.Param("name")
	if err := g.svc.Roles.Unassign(c.Context(), userID, name); err != nil {
		if errors.Is(err, security.ErrNotFound) {
			return apiv2.NewNotFoundError("role")
		}
		return err
	}

	g.audit(c, g.currentUser(c), "roles.unassign", "role:"+name, "success",
		map[string]any{"user_id": req.UserID})
	return c.OK(g.fmt.Success(map[string]string{"status": "unassigned"}))
}

// --- Audit log ---

func (g *Gateway) handleAuditList(c *okapi.Context) error {
	if err := g.require(c, "audit.read"); err != nil {
		return err
	}

	userID := uuid.Nil
	if raw := c.Query("user_id"); raw != "" {
		id, err := apiv2.ValidateUUID("user_id", raw)
		if err != nil {
			return err
		}
		userID = id
	}
	limit := queryInt(c, "limit", 100)

	events, err := g.svc.Audit.List(c.Context(), userID, limit)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Collection(events, len(events)))
}

// --- Masking rules ---

// MaskingRuleRequest is the JSON body for masking rule endpoints.
type MaskingRuleRequest struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	Strategy string `json:"strategy"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

func (g *Gateway) handleMaskingRuleCreate(c *okapi.Context) error {
	if err := g.require(c, "security.manage"); err != nil {
		return err
	}

	var req MaskingRuleRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := apiv2.ValidateRequired("table", req.Table); err != nil {
		return err
	}
	if err := apiv2.ValidateRequired("column", req.Column); err != nil {
		return err
	}
	if err := security.ValidateStrategy(req.Strategy); err != nil {
		return apiv2.NewValidationError("strategy", err.Error())
	}

	now := time.Now().UTC()
	rule := &domain.MaskingRule{
		ID:        uuid.New(),
		TableName: req.Table,
		Column:    req.Column,
		Strategy:  req.Strategy,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.svc.MaskingRules.Create(c.Context(), rule); err != nil {
		if errors.Is(err, security.ErrDuplicateRule) {
			return apiv2.NewConflictError("masking rule already exists for table/column")
		}
		return err
	}

	g.audit(c, g.currentUser(c), "masking.create", req.Table+"."+req.Column, "success", nil)
	return c.JSON(http.StatusCreated, g.fmt.Success(rule))
}

func (g *Gateway) handleMaskingRuleList(c *okapi.Context) error {
	rules, err := g.svc.MaskingRules.List(c.Context())
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Collection(rules, len(rules)))
}

func (g *Gateway) handleMaskingRuleUpdate(c *okapi.Context) error {
	if err := g.require(c, "security.manage"); err != nil {
		return err
	}

	var req MaskingRuleRequest
	if err := c.Bind(&req); err != nil {
		return apiv2.NewValidationError("body", "invalid request body")
	}
	if err := security.ValidateStrategy(req.Strategy); err != nil {
		return apiv2.NewValidationError("strategy", err.Error())
	}

	rule := &domain.MaskingRule{
		TableName: req.Table,
		Column:    req.Column,
		Strategy:  req.Strategy,
		Enabled:   req.Enabled == nil || *req.Enabled,
	}
	if err := g.svc.MaskingRules.Update(c.Context(), rule); err != nil {
		if errors.Is(err, security.ErrNotFound) {
			return apiv2.NewNotFoundError("masking rule")
		}
		return err
	}

	g.audit(c, g.currentUser(c), "masking.update", req.Table+"."+req.Column, "success", nil)
	return c.OK(g.fmt.Success(rule))
}

func (g *Gateway) handleMaskingRuleDelete(c *okapi.Context) error {
	if err := g.require(c, "security.manage"); err != nil {
		return err
	}

	table, column := c.Query("table"), c.Query("column")
	if err := apiv2.ValidateRequired("table", table); err != nil {
		return err
	}
	if err := apiv2.ValidateRequired("column", column); err != nil {
		return err
	}

	if err := g.svc.MaskingRules.Delete(c.Context(), table, column); err != nil {
		if errors.Is(err, security.ErrNotFound) {
			return apiv2.NewNotFoundError("masking rule")
		}
		return err
	}

	g.audit(c, g.currentUser(c), "masking.delete", table+"."+column, "success", nil)
	return c.OK(g.fmt.Success(map[string]string{"status": "deleted"}))
}

// --- Security test runs ---

func (g *Gateway) handleTestRunStart(c *okapi.Context) error {
	if err := g.require(c, "security.manage"); err != nil {
		return err
	}

	run, err := g.svc.TestRunner.Run(c.Context(), g.currentUser(c).String())
	if err != nil {
		return err
	}

	g.audit(c, g.currentUser(c), "security.test_run", "run:"+run.ID.String(),
		string(run.Status), nil)
	return c.JSON(http.StatusCreated, g.fmt.Success(run))
}

func (g *Gateway) handleTestRunList(c *okapi.Context) error {
	limit := queryInt(c, "limit", 20)
	runs, err := g.svc.TestRuns.ListRuns(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Collection(runs, len(runs)))
}

// TestRunDetail is a run with its per-check results.
type TestRunDetail struct {
	Run     *domain.SecurityTestRun     `json:"run"`
	Results []domain.SecurityTestResult `json:"results"`
}

func (g *Gateway) handleTestRunGet(c *okapi.Context) error {
	id, err := apiv2.ValidateUUID("id", c.Param("id"))
	if err != nil {
		return err
	}

	run, err := g.svc.TestRuns.GetRun(c.Context(), id)
	if errors.Is(err, security.ErrNotFound) {
		return apiv2.NewNotFoundError("test run")
	}
	if err != nil {
		return err
	}

	results, err := g.svc.TestRuns.ListResults(c.Context(), id)
	if err != nil {
		return err
	}
	return c.OK(g.fmt.Success(TestRunDetail{Run: run, Results: results}))
}

// --- Shared helpers ---

// require enforces an RBAC permission for the current user.
func (g *Gateway) require(c *okapi.Context, permission string) error {
	if g.svc.RBAC == nil {
		return nil
	}
	err := g.svc.RBAC.Can(c.Context(), g.currentUser(c), permission)
	if errors.Is(err, security.ErrPermissionDenied) {
		return apiv2.NewForbiddenError("permission denied: " + permission)
	}
	return err
}

// clientIP prefers the first X-Forwarded-For hop set by the reverse proxy,
// falling back to the connection's remote address.
func clientIP(c *okapi.Context) string {
	if fwd := c.Header("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		return c.Request().RemoteAddr
	}
	return host
}

// audit records the action; failures are logged, never surfaced to clients.
func (g *Gateway) audit(c *okapi.Context, userID uuid.UUID, action, resource, result string, params map[string]any) {
	if g.svc.Auditor == nil {
		return
	}
	err := g.svc.Auditor.Log(c.Context(), &domain.AuditEvent{
		CorrelationID: c.GetString("requestID"),
		UserID:        userID,
		Action:        action,
		Resource:      resource,
		Parameters:    params,
		Result:        result,
		Severity:      domain.SeverityInfo,
		IPAddress:     clientIP(c),
	})
	if err != nil {
		g.logger.Warn("audit write failed",
			slog.String("action", action), slog.String("error", err.Error()))
	}
}

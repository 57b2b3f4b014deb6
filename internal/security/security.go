// Package security implements default-deny RBAC, session authentication,
// audit logging, data masking, and the self-test runner.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cartrita/cartrita/internal/domain"
)

// Sentinel errors for security enforcement.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrDuplicateRule      = errors.New("masking rule already exists for table/column")
	ErrNotFound           = errors.New("not found")
)

// RoleStore is the persistence interface for roles and assignments.
type RoleStore interface {
	Create(ctx context.Context, role *domain.Role) error
	Get(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	Update(ctx context.Context, role *domain.Role) error
	Delete(ctx context.Context, name string) error
	// RolesForUser returns every role assigned to the user.
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]domain.Role, error)
	Assign(ctx context.Context, userID uuid.UUID, roleName string) error
	Unassign(ctx context.Context, userID uuid.UUID, roleName string) error
}

// RBAC enforces role-based access control with default-deny semantics.
// A user may hold several roles; a permission granted by any of them passes.
type RBAC struct {
	roles  RoleStore
	logger *slog.Logger
}

// NewRBAC creates an RBAC enforcer.
func NewRBAC(roles RoleStore, logger *slog.Logger) *RBAC {
	return &RBAC{roles: roles, logger: logger}
}

// Can returns nil if any of the user's roles explicitly grants the permission.
// Default-deny: no roles or a missing permission means denied. No wildcards.
func (r *RBAC) Can(ctx context.Context, userID uuid.UUID, permission string) error {
	roles, err := r.roles.RolesForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolving roles for %s: %w", userID, err)
	}
	if len(roles) == 0 {
		r.logger.WarnContext(ctx, "permission denied: no roles assigned",
			slog.String("user_id", userID.String()),
			slog.String("permission", permission),
		)
		return fmt.Errorf("%w: user %s has no assigned roles", ErrPermissionDenied, userID)
	}

	for _, role := range roles {
		for _, p := range role.Permissions {
			if p == permission {
				return nil
			}
		}
	}

	r.logger.WarnContext(ctx, "permission denied: not granted by any role",
		slog.String("user_id", userID.String()),
		slog.String("permission", permission),
	)
	return fmt.Errorf("%w: %q not granted to user %s", ErrPermissionDenied, permission, userID)
}

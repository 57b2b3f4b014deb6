package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cartrita/cartrita/internal/domain"
)

// ErrNotFound is returned for lookups that match no row.
var ErrNotFound = errors.New("not found")

type userRepo struct {
	db *gorm.DB
}

func (r *userRepo) Create(ctx context.Context, u *domain.User) error {
	m := toUserModel(u)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *userRepo) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var m UserModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", id, err)
	}
	return toUserDomain(&m), nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var m UserModel
	err := r.db.WithContext(ctx).First(&m, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return toUserDomain(&m), nil
}

func (r *userRepo) List(ctx context.Context, offset, limit int) ([]domain.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&UserModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	var models []UserModel
	q := r.db.WithContext(ctx).Order("created_at ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}

	users := make([]domain.User, 0, len(models))
	for i := range models {
		users = append(users, *toUserDomain(&models[i]))
	}
	return users, total, nil
}

func (r *userRepo) Update(ctx context.Context, u *domain.User) error {
	m := toUserModel(u)
	res := r.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", u.ID).Updates(map[string]any{
		"email":        m.Email,
		"display_name": m.DisplayName,
		"is_active":    m.IsActive,
	})
	if res.Error != nil {
		return fmt.Errorf("updating user %s: %w", u.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&UserModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type credentialRepo struct {
	db *gorm.DB
}

func (r *credentialRepo) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash []byte) error {
	m := UserCredentialModel{UserID: userID, PasswordHash: hash}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Assign(map[string]any{"password_hash": hash}).
		FirstOrCreate(&m).Error
	if err != nil {
		return fmt.Errorf("setting password hash: %w", err)
	}
	return nil
}

func (r *credentialRepo) PasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	var m UserCredentialModel
	err := r.db.WithContext(ctx).First(&m, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting password hash: %w", err)
	}
	return m.PasswordHash, nil
}

package postgres

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserScope restricts a query to rows owned by the user. uuid.Nil means no
// restriction; admin listings pass it deliberately.
func UserScope(userID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID == uuid.Nil {
			return db
		}
		return db.Where("user_id = ?", userID)
	}
}

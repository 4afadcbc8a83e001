package repository

import (
	"github.com/yourusername/fasalrakshak-api/internal/domain/entity"
)

// UserRepository defines persistence for accounts. The OTP challenge fields
// live on the user record, so challenge mutations go through Update.
type UserRepository interface {
	Create(user *entity.User) error
	GetByID(id uint) (*entity.User, error)
	GetByEmail(email string) (*entity.User, error)
	Update(user *entity.User) error
	// UpdateFields updates the named columns without touching the password.
	UpdateFields(userID uint, updates map[string]interface{}) error
}

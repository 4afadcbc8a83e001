package entity

import (
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents an account in the system. The OTP challenge lives in
// nullable fields on the same record: a new issuance overwrites the previous
// one, and a successful verification clears all of them.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Email    string `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Password string `gorm:"size:100;not null" json:"-"`
	Role     string `gorm:"size:20;not null;default:'farmer'" json:"role"` // "farmer" or "admin"

	IsVerified bool `gorm:"not null;default:false" json:"is_verified"`

	// OTP challenge state, empty until a challenge is issued.
	OTPHash        string     `gorm:"size:64" json:"-"`
	OTPSalt        string     `gorm:"size:64" json:"-"`
	OTPExpiresAt   *time.Time `json:"-"`
	OTPAttempts    int        `gorm:"not null;default:0" json:"-"`
	OTPResendCount int        `gorm:"not null;default:0" json:"-"`

	// Last email delivery failure, kept for diagnostics only.
	LastDeliveryError string `gorm:"size:255;default:''" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName sets the table name for GORM.
func (User) TableName() string {
	return "users"
}

// BeforeSave hashes the password unless it is already a bcrypt hash.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if len(u.Password) > 0 && !strings.HasPrefix(u.Password, "$2a$") &&
		!strings.HasPrefix(u.Password, "$2b$") && !strings.HasPrefix(u.Password, "$2y$") {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[User.BeforeSave] Failed to hash password for email=%s: %v", u.Email, err)
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// CheckPassword reports whether the supplied password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// HasChallenge reports whether an OTP challenge is currently attached.
func (u *User) HasChallenge() bool {
	return u.OTPHash != "" && u.OTPExpiresAt != nil
}

// ChallengeExpired reports whether the attached challenge is past its expiry.
func (u *User) ChallengeExpired(now time.Time) bool {
	return u.OTPExpiresAt != nil && now.After(*u.OTPExpiresAt)
}

// ClearChallenge wipes all OTP challenge state. Called on successful
// verification and on expiry detection.
func (u *User) ClearChallenge() {
	u.OTPHash = ""
	u.OTPSalt = ""
	u.OTPExpiresAt = nil
	u.OTPAttempts = 0
	u.OTPResendCount = 0
}

package entity

import (
	"time"
)

// Account is the aggregate root for the account domain.
// PasswordHash holds the one-way verifier of the password (hex SHA-256);
// it is never serialized to callers and never logged.
type Account struct {
	ID                string    `json:"id"`
	LoginID           string    `json:"login_id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	PasswordChangedAt time.Time `json:"password_changed_at"`
	Plan              string    `json:"plan"`
	MemberSince       string    `json:"member_since"`
	IsActive          bool      `json:"is_active"`
	LastLoginAt       time.Time `json:"last_login_at"`
	TasksCompleted    int       `json:"tasks_completed"`
	HoursSaved        int       `json:"hours_saved"`
	SuccessRate       int       `json:"success_rate"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Sanitized returns a copy safe to hand to callers: the stored verifier is
// stripped out.
func (a *Account) Sanitized() *Account {
	cp := *a
	cp.PasswordHash = ""
	return &cp
}

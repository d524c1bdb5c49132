package repository

import (
	"context"
	"errors"

	"github.com/controlhq/account-service/internal/domain/entity"
)

// ErrNotFound is returned by lookups when no account matches.
var ErrNotFound = errors.New("not found")

// AccountRepository defines the interface for account persistence.
// Implementations map the entity onto whatever document shape the backing
// store uses.
type AccountRepository interface {
	Create(ctx context.Context, a *entity.Account) error
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	GetByLoginID(ctx context.Context, loginID string) (*entity.Account, error)
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLastLogin(ctx context.Context, id string) error
}

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/controlhq/account-service/internal/domain/entity"
	"github.com/controlhq/account-service/internal/domain/repository"
)

const accountsCollection = "accounts"

// AccountRepository stores accounts as documents in the accounts collection.
// The document shape carries the password verifier under password_hash; the
// entity deliberately excludes it from its own JSON form, so the two are
// mapped explicitly here.
type AccountRepository struct {
	store repository.DocumentStore
}

func NewAccountRepository(store repository.DocumentStore) *AccountRepository {
	return &AccountRepository{store: store}
}

type accountDoc struct {
	ID                string    `json:"id"`
	LoginID           string    `json:"login_id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"password_hash"`
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

func toDoc(a *entity.Account) accountDoc {
	return accountDoc{
		ID:                a.ID,
		LoginID:           a.LoginID,
		Name:              a.Name,
		Email:             a.Email,
		PasswordHash:      a.PasswordHash,
		PasswordChangedAt: a.PasswordChangedAt,
		Plan:              a.Plan,
		MemberSince:       a.MemberSince,
		IsActive:          a.IsActive,
		LastLoginAt:       a.LastLoginAt,
		TasksCompleted:    a.TasksCompleted,
		HoursSaved:        a.HoursSaved,
		SuccessRate:       a.SuccessRate,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toEntity(d accountDoc) *entity.Account {
	return &entity.Account{
		ID:                d.ID,
		LoginID:           d.LoginID,
		Name:              d.Name,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		PasswordChangedAt: d.PasswordChangedAt,
		Plan:              d.Plan,
		MemberSince:       d.MemberSince,
		IsActive:          d.IsActive,
		LastLoginAt:       d.LastLoginAt,
		TasksCompleted:    d.TasksCompleted,
		HoursSaved:        d.HoursSaved,
		SuccessRate:       d.SuccessRate,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

func decodeAccount(raw json.RawMessage) (*entity.Account, error) {
	var d accountDoc
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return toEntity(d), nil
}

// Create persists a new account. The store assigns the id when the entity
// carries none; timestamps are set here.
func (r *AccountRepository) Create(ctx context.Context, a *entity.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	doc := toDoc(a)
	id, err := r.store.Put(ctx, accountsCollection, a.ID, doc)
	if err != nil {
		return err
	}
	a.ID = id

	if doc.ID != id {
		// the document must carry its own id for field queries
		return r.store.Update(ctx, accountsCollection, id, map[string]any{"id": id})
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	raw, err := r.store.GetByID(ctx, accountsCollection, id)
	if err != nil {
		return nil, err
	}
	return decodeAccount(raw)
}

func (r *AccountRepository) GetByLoginID(ctx context.Context, loginID string) (*entity.Account, error) {
	return r.getByField(ctx, "login_id", loginID)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	return r.getByField(ctx, "email", email)
}

func (r *AccountRepository) getByField(ctx context.Context, field, value string) (*entity.Account, error) {
	docs, err := r.store.QueryByField(ctx, accountsCollection, field, value)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, repository.ErrNotFound
	}
	return decodeAccount(docs[0])
}

// UpdatePassword replaces the stored verifier and stamps the change time.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC()
	return r.store.Update(ctx, accountsCollection, id, map[string]any{
		"password_hash":       passwordHash,
		"password_changed_at": now,
		"updated_at":          now,
	})
}

// TouchLastLogin records a successful authentication.
func (r *AccountRepository) TouchLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.store.Update(ctx, accountsCollection, id, map[string]any{
		"last_login_at": now,
		"updated_at":    now,
	})
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

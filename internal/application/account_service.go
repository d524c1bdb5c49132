package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/controlhq/account-service/internal/domain/entity"
	repo "github.com/controlhq/account-service/internal/domain/repository"
	"github.com/controlhq/account-service/pkg/helpers"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords; callers must not be able to tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrCurrentPassword    = errors.New("current password incorrect")
	ErrEmailTaken         = errors.New("email already registered")
	ErrLoginIDExhausted   = errors.New("login id generation exhausted")
)

// ValidationError reports a malformed input, resolved before any store call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// matches the basic local@domain.tld shape; anything stricter belongs to the
// mail system, not here
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 8

type Service struct {
	Repo            repo.AccountRepository
	Redis           *redis.Client
	Logger          *logrus.Logger
	ES              *elasticsearch.Client
	ESAccountsIndex string
	CacheTTL        time.Duration
	LoginIDAttempts int
}

func NewService(r repo.AccountRepository, rdb *redis.Client, logger *logrus.Logger, es *elasticsearch.Client, esAccountsIndex string, cacheTTL time.Duration, loginIDAttempts int) *Service {
	if loginIDAttempts <= 0 {
		loginIDAttempts = 5
	}
	return &Service{
		Repo:            r,
		Redis:           rdb,
		Logger:          logger,
		ES:              es,
		ESAccountsIndex: esAccountsIndex,
		CacheTTL:        cacheTTL,
		LoginIDAttempts: loginIDAttempts,
	}
}

func profileKey(id string) string {
	return "account:profile:" + id
}

type SignUpInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	Plan            string
}

type SignUpResult struct {
	AccountID      string `json:"account_id"`
	LoginID        string `json:"login_id"`
	LoginIDDisplay string `json:"login_id_display"`
}

// SignUp creates an account: validates input, generates a unique login ID,
// derives the password verifier and writes the record with zeroed counters.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*SignUpResult, error) {
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	plan := strings.TrimSpace(in.Plan)

	switch {
	case firstName == "":
		return nil, invalid("first_name", "is required")
	case lastName == "":
		return nil, invalid("last_name", "is required")
	case email == "":
		return nil, invalid("email", "is required")
	case in.Password == "":
		return nil, invalid("password", "is required")
	case in.ConfirmPassword == "":
		return nil, invalid("confirm_password", "is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, invalid("password", fmt.Sprintf("must be at least %d characters long", minPasswordLength))
	}
	if in.Password != in.ConfirmPassword {
		return nil, invalid("confirm_password", "does not match password")
	}
	if !emailPattern.MatchString(email) {
		return nil, invalid("email", "must be a valid email address")
	}
	if plan == "" {
		plan = "Free"
	}

	switch _, err := s.Repo.GetByEmail(ctx, email); {
	case err == nil:
		return nil, ErrEmailTaken
	case !errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("email lookup: %w", err)
	}

	loginID, err := s.generateLoginID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &entity.Account{
		LoginID:           loginID,
		Name:              firstName + " " + lastName,
		Email:             email,
		PasswordHash:      helpers.ComputeVerifier(in.Password),
		PasswordChangedAt: now,
		Plan:              plan,
		MemberSince:       now.Format("Jan 2006"),
		IsActive:          true,
	}
	if err := s.Repo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.indexAccount(ctx, account)

	return &SignUpResult{
		AccountID:      account.ID,
		LoginID:        account.LoginID,
		LoginIDDisplay: helpers.FormatLoginID(account.LoginID),
	}, nil
}

// generateLoginID draws fresh IDs until one is free in the store, giving up
// after the configured attempt budget. Generation alone is not unique; only
// the store check makes it so.
func (s *Service) generateLoginID(ctx context.Context) (string, error) {
	for i := 0; i < s.LoginIDAttempts; i++ {
		id, err := helpers.GenerateLoginID()
		if err != nil {
			return "", err
		}
		_, err = s.Repo.GetByLoginID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("login id lookup: %w", err)
		}
		// taken, try again
	}
	return "", ErrLoginIDExhausted
}

// Authenticate resolves the identifier (email when it contains '@', login ID
// otherwise), checks the password against the stored verifier and touches the
// last-login marker. The returned record is sanitized.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*entity.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		account *entity.Account
		err     error
	)
	if strings.Contains(identifier, "@") {
		account, err = s.Repo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		loginID, nerr := helpers.NormalizeLoginID(identifier)
		if nerr != nil {
			return nil, ErrInvalidCredentials
		}
		account, err = s.Repo.GetByLoginID(ctx, loginID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	if !account.IsActive {
		return nil, ErrAccountDeactivated
	}
	if !helpers.VerifyPassword(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.Repo.TouchLastLogin(ctx, account.ID); err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", account.ID).Warn("last-login touch failed")
		}
	} else {
		account.LastLoginAt = time.Now().UTC()
	}

	sanitized := account.Sanitized()
	s.cacheProfile(ctx, sanitized)
	return sanitized, nil
}

// ChangePassword re-verifies the current password before replacing the
// stored verifier. A wrong current password leaves the record untouched.
func (s *Service) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, confirmNewPassword string) error {
	if strings.TrimSpace(accountID) == "" {
		return invalid("account_id", "is required")
	}
	if currentPassword == "" {
		return invalid("current_password", "is required")
	}
	if len(newPassword) < minPasswordLength {
		return invalid("new_password", fmt.Sprintf("must be at least %d characters long", minPasswordLength))
	}
	if newPassword != confirmNewPassword {
		return invalid("confirm_new_password", "does not match new password")
	}

	account, err := s.Repo.GetByID(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("account lookup: %w", err)
	}
	if !account.IsActive {
		return ErrAccountDeactivated
	}
	if !helpers.VerifyPassword(currentPassword, account.PasswordHash) {
		return ErrCurrentPassword
	}

	if err := s.Repo.UpdatePassword(ctx, account.ID, helpers.ComputeVerifier(newPassword)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.dropProfile(ctx, account.ID)
	// keep the index copy in step with the timestamps the store just wrote
	now := time.Now().UTC()
	account.PasswordChangedAt = now
	account.UpdatedAt = now
	s.indexAccount(ctx, account)
	return nil
}

// GetAccount returns the sanitized record for the dashboard, serving from the
// Redis cache when possible.
func (s *Service) GetAccount(ctx context.Context, id string) (*entity.Account, error) {
	if s.Redis != nil {
		var cached entity.Account
		ok, err := helpers.RedisGetJSON(ctx, s.Redis, profileKey(id), &cached)
		if err != nil && s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", id).Warn("profile cache read failed")
		}
		if ok {
			return &cached, nil
		}
	}

	account, err := s.Repo.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account lookup: %w", err)
	}

	sanitized := account.Sanitized()
	s.cacheProfile(ctx, sanitized)
	return sanitized, nil
}

func (s *Service) cacheProfile(ctx context.Context, a *entity.Account) {
	if s.Redis == nil || s.CacheTTL <= 0 {
		return
	}
	if err := helpers.RedisSetJSON(ctx, s.Redis, profileKey(a.ID), a, s.CacheTTL); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("account_id", a.ID).Warn("profile cache write failed")
	}
}

func (s *Service) dropProfile(ctx context.Context, id string) {
	if s.Redis == nil {
		return
	}
	if err := helpers.RedisDel(ctx, s.Redis, profileKey(id)); err != nil && s.Logger != nil {
		s.Logger.WithError(err).WithField("account_id", id).Warn("profile cache invalidation failed")
	}
}

// indexAccount pushes the sanitized account into Elasticsearch, best effort.
// The verifier never reaches the index.
func (s *Service) indexAccount(ctx context.Context, a *entity.Account) {
	if s.ES == nil || s.ESAccountsIndex == "" {
		return
	}
	doc := map[string]any{
		"id":           a.ID,
		"login_id":     a.LoginID,
		"email":        a.Email,
		"name":         a.Name,
		"plan":         a.Plan,
		"is_active":    a.IsActive,
		"member_since": a.MemberSince,
		"created_at":   a.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   a.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: s.ESAccountsIndex, DocumentID: a.ID, Body: strings.NewReader(string(b)), Refresh: "false"}

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := req.Do(c, s.ES)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).WithField("account_id", a.ID).Warn("es index failed")
		}
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && s.Logger != nil {
		s.Logger.WithField("status", res.Status()).WithField("account_id", a.ID).Warn("es index response error")
	}
}

// SearchAccounts runs a multi_match over name, email and login_id. Returns
// empty results when search is not configured.
func (s *Service) SearchAccounts(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.ES == nil || s.ESAccountsIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "name", "login_id"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := s.ES.Search(
		s.ES.Search.WithContext(c),
		s.ES.Search.WithIndex(s.ESAccountsIndex),
		s.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

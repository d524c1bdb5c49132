package application

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/controlhq/account-service/internal/domain/entity"
	repo "github.com/controlhq/account-service/internal/domain/repository"
	"github.com/controlhq/account-service/pkg/helpers"
)

// ---- fake repository ----

type fakeRepo struct {
	mu       sync.Mutex
	accounts map[string]*entity.Account

	// pretend the first n generated login IDs are already taken
	loginIDCollisions int

	createErr error
	lookupErr error
	touchErr  error
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{accounts: map[string]*entity.Account{}}
}

func (f *fakeRepo) Create(_ context.Context, a *entity.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	f.accounts[a.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetByLoginID(_ context.Context, loginID string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.loginIDCollisions > 0 {
		f.loginIDCollisions--
		return &entity.Account{LoginID: loginID}, nil
	}
	for _, a := range f.accounts {
		if a.LoginID == loginID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) GetByEmail(_ context.Context, email string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, a := range f.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.PasswordChangedAt = time.Now().UTC()
	return nil
}

func (f *fakeRepo) TouchLastLogin(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.LastLoginAt = time.Now().UTC()
	return nil
}

var _ repo.AccountRepository = (*fakeRepo)(nil)

// ---- helpers ----

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestService(f *fakeRepo) *Service {
	return NewService(f, nil, quietLogger(), nil, "", 0, 5)
}

func validSignup() SignUpInput {
	return SignUpInput{
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "jane@x.com",
		Password:        "Secret1!",
		ConfirmPassword: "Secret1!",
		Plan:            "Free Plan",
	}
}

// ---- signup ----

func TestSignUp_Success(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)

	res, err := svc.SignUp(context.Background(), validSignup())
	require.NoError(t, err)
	require.NotEmpty(t, res.AccountID)
	require.Len(t, res.LoginID, helpers.LoginIDLength)
	require.Equal(t, helpers.FormatLoginID(res.LoginID), res.LoginIDDisplay)

	stored, err := f.GetByID(context.Background(), res.AccountID)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", stored.Name)
	require.Equal(t, "jane@x.com", stored.Email)
	require.Equal(t, "Free Plan", stored.Plan)
	require.True(t, stored.IsActive)
	require.Zero(t, stored.TasksCompleted)
	require.Zero(t, stored.HoursSaved)
	require.Zero(t, stored.SuccessRate)
	require.NotEmpty(t, stored.MemberSince)

	// stored verifier is a one-way hash, never the plaintext
	require.NotEqual(t, "Secret1!", stored.PasswordHash)
	require.Equal(t, helpers.ComputeVerifier("Secret1!"), stored.PasswordHash)
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignUpInput)
	}{
		{"missing first name", func(in *SignUpInput) { in.FirstName = " " }},
		{"missing last name", func(in *SignUpInput) { in.LastName = "" }},
		{"missing email", func(in *SignUpInput) { in.Email = "" }},
		{"missing password", func(in *SignUpInput) { in.Password = "" }},
		{"password of 7 fails", func(in *SignUpInput) { in.Password = "Secret1"; in.ConfirmPassword = "Secret1" }},
		{"confirmation mismatch", func(in *SignUpInput) { in.ConfirmPassword = "Secret2!" }},
		{"bad email shape", func(in *SignUpInput) { in.Email = "jane@x" }},
		{"email with spaces", func(in *SignUpInput) { in.Email = "ja ne@x.com" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeRepo()
			svc := newTestService(f)
			in := validSignup()
			tt.mutate(&in)

			_, err := svc.SignUp(context.Background(), in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Empty(t, f.accounts, "validation failures must not reach the store")
		})
	}
}

func TestSignUp_PasswordOfEightPassesLengthCheck(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	in := validSignup()
	in.Password = "12345678"
	in.ConfirmPassword = "12345678"

	_, err := svc.SignUp(context.Background(), in)
	require.NoError(t, err)
}

func TestSignUp_EmailTaken(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)

	_, err := svc.SignUp(context.Background(), validSignup())
	require.NoError(t, err)

	_, err = svc.SignUp(context.Background(), validSignup())
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignUp_DefaultsPlan(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	in := validSignup()
	in.Plan = ""

	res, err := svc.SignUp(context.Background(), in)
	require.NoError(t, err)
	stored, err := f.GetByID(context.Background(), res.AccountID)
	require.NoError(t, err)
	require.Equal(t, "Free", stored.Plan)
}

func TestSignUp_LoginIDCollisionRetry(t *testing.T) {
	f := newFakeRepo()
	f.loginIDCollisions = 3
	svc := newTestService(f)

	res, err := svc.SignUp(context.Background(), validSignup())
	require.NoError(t, err)
	require.Len(t, res.LoginID, helpers.LoginIDLength)
}

func TestSignUp_LoginIDExhausted(t *testing.T) {
	f := newFakeRepo()
	f.loginIDCollisions = 5 // every attempt collides
	svc := newTestService(f)

	_, err := svc.SignUp(context.Background(), validSignup())
	require.ErrorIs(t, err, ErrLoginIDExhausted)
}

// ---- authenticate ----

func signUpAccount(t *testing.T, svc *Service) *SignUpResult {
	t.Helper()
	res, err := svc.SignUp(context.Background(), validSignup())
	require.NoError(t, err)
	return res
}

func TestAuthenticate_ByLoginID(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	account, err := svc.Authenticate(context.Background(), res.LoginID, "Secret1!")
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", account.Name)
	require.Empty(t, account.PasswordHash, "verifier must never be returned")
	require.False(t, account.LastLoginAt.IsZero(), "last login must be touched")
}

func TestAuthenticate_AcceptsDisplayForm(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	// hyphenated lowercase input normalizes to the canonical id
	account, err := svc.Authenticate(context.Background(),
		" "+helpers.FormatLoginID(res.LoginID)+" ", "Secret1!")
	require.NoError(t, err)
	require.Equal(t, res.LoginID, account.LoginID)
}

func TestAuthenticate_ByEmail(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	signUpAccount(t, svc)

	account, err := svc.Authenticate(context.Background(), "Jane@X.com", "Secret1!")
	require.NoError(t, err)
	require.Equal(t, "jane@x.com", account.Email)
}

func TestAuthenticate_WrongPasswordAndUnknownIDIndistinguishable(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	_, errWrongPassword := svc.Authenticate(context.Background(), res.LoginID, "wrong")

	unknown := "B2CDEF6GH8J2"
	if unknown == res.LoginID {
		unknown = "C2DEFG6HJ8K2"
	}
	_, errUnknownID := svc.Authenticate(context.Background(), unknown, "Secret1!")

	require.ErrorIs(t, errWrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, errUnknownID, ErrInvalidCredentials)
	require.Equal(t, errWrongPassword, errUnknownID)
}

func TestAuthenticate_MalformedIdentifier(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	signUpAccount(t, svc)

	_, err := svc.Authenticate(context.Background(), "not-a-login-id!", "Secret1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_DeactivatedAccount(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	f.mu.Lock()
	f.accounts[res.AccountID].IsActive = false
	f.mu.Unlock()

	_, err := svc.Authenticate(context.Background(), res.LoginID, "Secret1!")
	require.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestAuthenticate_TouchFailureDoesNotFailLogin(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)
	f.touchErr = errors.New("store down")

	account, err := svc.Authenticate(context.Background(), res.LoginID, "Secret1!")
	require.NoError(t, err)
	require.NotNil(t, account)
}

// ---- change password ----

func TestChangePassword_WrongCurrentLeavesVerifierUntouched(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	err := svc.ChangePassword(context.Background(), res.AccountID, "wrong", "NewPass1!", "NewPass1!")
	require.ErrorIs(t, err, ErrCurrentPassword)

	// re-authenticating with the old password still works
	_, err = svc.Authenticate(context.Background(), res.LoginID, "Secret1!")
	require.NoError(t, err)
}

func TestChangePassword_Success(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	err := svc.ChangePassword(context.Background(), res.AccountID, "Secret1!", "NewPass1!", "NewPass1!")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), res.LoginID, "NewPass1!")
	require.NoError(t, err)
	_, err = svc.Authenticate(context.Background(), res.LoginID, "Secret1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword_Validation(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	var verr *ValidationError

	err := svc.ChangePassword(context.Background(), res.AccountID, "Secret1!", "short7!", "short7!")
	require.ErrorAs(t, err, &verr)

	err = svc.ChangePassword(context.Background(), res.AccountID, "Secret1!", "NewPass1!", "Different1!")
	require.ErrorAs(t, err, &verr)

	err = svc.ChangePassword(context.Background(), res.AccountID, "", "NewPass1!", "NewPass1!")
	require.ErrorAs(t, err, &verr)
}

func TestChangePassword_UnknownAccount(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)

	err := svc.ChangePassword(context.Background(), uuid.NewString(), "Secret1!", "NewPass1!", "NewPass1!")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestChangePassword_DeactivatedAccount(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)

	f.mu.Lock()
	f.accounts[res.AccountID].IsActive = false
	f.mu.Unlock()

	err := svc.ChangePassword(context.Background(), res.AccountID, "Secret1!", "NewPass1!", "NewPass1!")
	require.ErrorIs(t, err, ErrAccountDeactivated)
}

// ---- store failures ----

func TestSignUp_StoreWriteFailureWrapped(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	f.createErr = errors.New("connection refused")

	_, err := svc.SignUp(context.Background(), validSignup())
	require.ErrorIs(t, err, f.createErr)

	// a store outage is neither a validation problem nor a credential one
	var verr *ValidationError
	require.False(t, errors.As(err, &verr))
	require.NotErrorIs(t, err, ErrEmailTaken)
}

func TestAuthenticate_StoreFailureIsNotInvalidCredentials(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)
	f.lookupErr = errors.New("i/o timeout")

	_, err := svc.Authenticate(context.Background(), res.LoginID, "Secret1!")
	require.ErrorIs(t, err, f.lookupErr)
	require.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword_StoreUpdateFailureWrapped(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	res := signUpAccount(t, svc)
	f.updateErr = errors.New("connection reset")

	err := svc.ChangePassword(context.Background(), res.AccountID, "Secret1!", "NewPass1!", "NewPass1!")
	require.ErrorIs(t, err, f.updateErr)
	require.NotErrorIs(t, err, ErrCurrentPassword)

	// the verifier was never replaced, the old password still works
	f.updateErr = nil
	_, err = svc.Authenticate(context.Background(), res.LoginID, "Secret1!")
	require.NoError(t, err)
}

// ---- search indexing ----

// fakeES captures every document the service indexes.
type fakeES struct {
	mu   sync.Mutex
	docs []map[string]any
}

func (f *fakeES) captured() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.docs...)
}

func newIndexedService(t *testing.T, f *fakeRepo) (*Service, *fakeES) {
	t.Helper()
	capture := &fakeES{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			var doc map[string]any
			if err := json.NewDecoder(r.Body).Decode(&doc); err == nil {
				capture.mu.Lock()
				capture.docs = append(capture.docs, doc)
				capture.mu.Unlock()
			}
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	svc := NewService(f, nil, quietLogger(), es, "accounts", 0, 5)
	return svc, capture
}

func TestSignUp_IndexNeverContainsVerifier(t *testing.T) {
	f := newFakeRepo()
	svc, capture := newIndexedService(t, f)

	signUpAccount(t, svc)

	docs := capture.captured()
	require.Len(t, docs, 1)
	require.NotContains(t, docs[0], "password_hash")
	require.Equal(t, "jane@x.com", docs[0]["email"])
	require.Len(t, docs[0]["login_id"], helpers.LoginIDLength)
}

func TestChangePassword_ReindexesWithFreshTimestamp(t *testing.T) {
	f := newFakeRepo()
	svc, capture := newIndexedService(t, f)
	res := signUpAccount(t, svc)

	before := time.Now().UTC()
	err := svc.ChangePassword(context.Background(), res.AccountID, "Secret1!", "NewPass1!", "NewPass1!")
	require.NoError(t, err)

	docs := capture.captured()
	require.Len(t, docs, 2) // signup + password change

	reindexed := docs[1]
	require.NotContains(t, reindexed, "password_hash")
	updatedAt, perr := time.Parse(time.RFC3339Nano, reindexed["updated_at"].(string))
	require.NoError(t, perr)
	require.False(t, updatedAt.Before(before), "reindexed copy must carry the change-time update stamp")
}

// ---- dashboard reads & cache ----

func newCachedService(t *testing.T, f *fakeRepo) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := NewService(f, rdb, quietLogger(), nil, "", 10*time.Minute, 5)
	return svc, mr
}

func TestGetAccount_CachesSanitizedRecord(t *testing.T) {
	f := newFakeRepo()
	svc, mr := newCachedService(t, f)
	res := signUpAccount(t, svc)

	first, err := svc.GetAccount(context.Background(), res.AccountID)
	require.NoError(t, err)
	require.Empty(t, first.PasswordHash)
	require.True(t, mr.Exists("account:profile:"+res.AccountID))

	// cache serves the second read even when the store record moves on
	f.mu.Lock()
	f.accounts[res.AccountID].Name = "Renamed Elsewhere"
	f.mu.Unlock()

	second, err := svc.GetAccount(context.Background(), res.AccountID)
	require.NoError(t, err)
	require.Equal(t, first.Name, second.Name)
}

func TestChangePassword_DropsCachedProfile(t *testing.T) {
	f := newFakeRepo()
	svc, mr := newCachedService(t, f)
	res := signUpAccount(t, svc)

	_, err := svc.GetAccount(context.Background(), res.AccountID)
	require.NoError(t, err)
	require.True(t, mr.Exists("account:profile:"+res.AccountID))

	err = svc.ChangePassword(context.Background(), res.AccountID, "Secret1!", "NewPass1!", "NewPass1!")
	require.NoError(t, err)
	require.False(t, mr.Exists("account:profile:"+res.AccountID))
}

func TestGetAccount_Unknown(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)

	_, err := svc.GetAccount(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, ErrAccountNotFound)
}

// ---- end to end ----

func TestLifecycle_EndToEnd(t *testing.T) {
	f := newFakeRepo()
	svc := newTestService(f)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, SignUpInput{
		FirstName:       "Jane",
		LastName:        "Doe",
		Email:           "jane@x.com",
		Password:        "Secret1!",
		ConfirmPassword: "Secret1!",
		Plan:            "Free",
	})
	require.NoError(t, err)
	require.Len(t, res.LoginID, 12)

	account, err := svc.Authenticate(ctx, res.LoginID, "Secret1!")
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", account.Name)

	_, err = svc.Authenticate(ctx, res.LoginID, "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, res.AccountID, "Secret1!", "NewPass1!", "NewPass1!")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, res.LoginID, "NewPass1!")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, res.LoginID, "Secret1!")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

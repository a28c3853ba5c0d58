package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/linklite/apiserver/internal/auth"
	"github.com/linklite/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister_Success(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, tokens := newTestAuthService(t, repo, nil)

	res, err := svc.Register(context.Background(), RegisterRequest{
		Name:     " Ann ",
		Email:    "ann@x.com",
		Password: "secret123",
		Bio:      strPtr("hi there"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "Ann", res.User.Name)
	assert.Equal(t, "ann@x.com", res.User.Email)
	require.NotNil(t, res.User.Bio)
	assert.Equal(t, "hi there", *res.User.Bio)
	assert.Nil(t, res.User.Avatar)

	subject, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, subject)

	stored, err := repo.GetByEmail(context.Background(), "ann@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")))

	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), stored.PasswordHash)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, _ := newTestAuthService(t, repo, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Name: "Other Ann", Email: "ann@x.com", Password: "different"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, repo.count())
}

func TestRegister_EmailIsCaseSensitive(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, _ := newTestAuthService(t, repo, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterRequest{Name: "Ann", Email: "Ann@x.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.count())
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  RegisterRequest
		msg  string
	}{
		{name: "missing name", req: RegisterRequest{Email: "a@x.com", Password: "p"}, msg: "name is required"},
		{name: "blank name", req: RegisterRequest{Name: "   ", Email: "a@x.com", Password: "p"}, msg: "name is required"},
		{name: "missing email", req: RegisterRequest{Name: "A", Password: "p"}, msg: "email is required"},
		{name: "missing password", req: RegisterRequest{Name: "A", Email: "a@x.com"}, msg: "password is required"},
		{name: "bad email", req: RegisterRequest{Name: "A", Email: "not-an-email", Password: "p"}, msg: "email is invalid"},
		{name: "display-name email", req: RegisterRequest{Name: "A", Email: "A <a@x.com>", Password: "p"}, msg: "email is invalid"},
		{name: "long password", req: RegisterRequest{Name: "A", Email: "a@x.com", Password: strings.Repeat("p", 73)}, msg: "password must be at most 72 bytes"},
		{name: "long avatar", req: RegisterRequest{Name: "A", Email: "a@x.com", Password: "p", Avatar: strPtr(strings.Repeat("a", 501))}, msg: "avatar must be at most 500 characters"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryUserRepo()
			svc, _ := newTestAuthService(t, repo, nil)

			_, err := svc.Register(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.msg, verr.Message)
			assert.Zero(t, repo.count())
		})
	}
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, _ := newTestAuthService(t, repo, nil)

	const callers = 2
	var barrier sync.WaitGroup
	barrier.Add(callers)
	repo.lookupBarrier = &barrier

	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), RegisterRequest{
				Name:     "Ann",
				Email:    "ann@x.com",
				Password: "secret123",
			})
		}(i)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, ErrConflict):
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, 1, repo.count())
}

func TestRegister_TokenFailureKeepsNoAccount(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := NewAuthService(repo, auth.NewPasswordHasher(bcrypt.MinCost), failingIssuer{}, nil, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.ErrorIs(t, err, auth.ErrTokenSigning)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Zero(t, repo.count())
}

func TestRegister_StoreFailure(t *testing.T) {
	repo := newMemoryUserRepo()
	repo.lookupErr = errDBDown
	svc, _ := newTestAuthService(t, repo, nil)

	_, err := svc.Register(context.Background(), RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.ErrorIs(t, err, errDBDown)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestRegister_PublishesEvent(t *testing.T) {
	repo := newMemoryUserRepo()
	pub := &recordingPublisher{}
	svc, _ := newTestAuthService(t, repo, NewAccountEvents(pub, "linklite.users", nil))

	res, err := svc.Register(context.Background(), RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)

	msgs := pub.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "linklite.users", msgs[0].channel)
	assert.Equal(t, string(types.AccountRegistered), msgs[0].attrs["type"])

	var event types.AccountEvent
	require.NoError(t, json.Unmarshal(msgs[0].data, &event))
	assert.Equal(t, types.AccountRegistered, event.Type)
	assert.Equal(t, res.User.ID, event.UserID)
	assert.NotContains(t, string(msgs[0].data), "secret123")
}

func TestRegister_PublishFailureDoesNotFailRequest(t *testing.T) {
	repo := newMemoryUserRepo()
	pub := &recordingPublisher{err: errDBDown}
	svc, _ := newTestAuthService(t, repo, NewAccountEvents(pub, "linklite.users", nil))

	_, err := svc.Register(context.Background(), RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.count())
}

func TestLogin_Success(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, tokens := newTestAuthService(t, repo, nil)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, LoginRequest{Email: " ann@x.com ", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, registered.User, res.User)

	subject, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, subject)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, _ := newTestAuthService(t, repo, nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "secret123"})
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, LoginRequest{Email: "ann@x.com", Password: "wrong"})
	_, unknownEmail := svc.Login(ctx, LoginRequest{Email: "nobody@x.com", Password: "secret123"})

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_Validation(t *testing.T) {
	repo := newMemoryUserRepo()
	svc, _ := newTestAuthService(t, repo, nil)

	for _, req := range []LoginRequest{
		{Email: "", Password: "secret123"},
		{Email: "ann@x.com", Password: ""},
		{Email: "   ", Password: "x"},
	} {
		_, err := svc.Login(context.Background(), req)
		require.ErrorIs(t, err, ErrValidation)
	}
}

func TestLogin_StoreFailure(t *testing.T) {
	repo := newMemoryUserRepo()
	repo.lookupErr = errDBDown
	svc, _ := newTestAuthService(t, repo, nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ann@x.com", Password: "secret123"})
	require.ErrorIs(t, err, errDBDown)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/linklite/apiserver/internal/store"
	"github.com/linklite/apiserver/types"
	"go.uber.org/zap"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// PasswordHasher hashes passwords for storage and checks candidates against them.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenIssuer signs a bearer token for a subject.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// RegisterRequest is the input of the registration flow.
type RegisterRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

// LoginRequest is the input of the login flow.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by successful registration and login.
type AuthResult struct {
	User  types.Identity `json:"user"`
	Token string         `json:"token"`
}

// AuthService implements registration and login.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	events *AccountEvents
	logger *zap.Logger

	// dummyHash is compared against when the email is unknown so that both
	// login failure branches pay for one bcrypt comparison.
	dummyHash string
}

func NewAuthService(
	users UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	events *AccountEvents,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, err := hasher.Hash("linklite-login-placeholder")
	if err != nil {
		logger.Warn("could not prepare placeholder hash", zap.Error(err))
	}
	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		events:    events,
		logger:    logger,
		dummyHash: dummy,
	}
}

// Register creates an account and returns its identity with a fresh token.
// Either all of hash, insert and token issuance succeed or no account is kept.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Bio = trimOptional(req.Bio)
	req.Avatar = trimOptional(req.Avatar)
	if err := req.validate(); err != nil {
		return AuthResult{}, err
	}

	// The unique constraint is the real guard; this only avoids hashing for
	// the common duplicate case.
	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return AuthResult{}, ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("check existing user: %w", err)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	var token string
	user, err := s.users.Create(ctx, types.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hashed,
		Bio:          req.Bio,
		Avatar:       req.Avatar,
	}, func(created types.User) error {
		issued, err := s.tokens.Issue(created.ID)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		token = issued
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return AuthResult{}, ErrConflict
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	s.events.announce(ctx, types.AccountRegistered, user)

	return AuthResult{User: user.Identity(), Token: token}, nil
}

// Login checks the credentials and returns the identity with a fresh token.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return AuthResult{}, invalidf("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Verify(req.Password, s.dummyHash)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	return AuthResult{User: user.Identity(), Token: token}, nil
}

func (r RegisterRequest) validate() error {
	switch {
	case r.Name == "":
		return invalidf("name is required")
	case r.Email == "":
		return invalidf("email is required")
	case r.Password == "":
		return invalidf("password is required")
	}

	if len(r.Name) > maxNameLength {
		return invalidf("name must be at most %d characters", maxNameLength)
	}
	if len(r.Email) > maxEmailLength {
		return invalidf("email must be at most %d characters", maxEmailLength)
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return invalidf("email is invalid")
	}
	if len(r.Password) > maxPasswordBytes {
		return invalidf("password must be at most %d bytes", maxPasswordBytes)
	}
	if r.Avatar != nil && len(*r.Avatar) > maxAvatarLength {
		return invalidf("avatar must be at most %d characters", maxAvatarLength)
	}
	return nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	return optionalText(*value)
}

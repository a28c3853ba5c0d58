package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/linklite/apiserver/internal/auth"
	"github.com/linklite/apiserver/internal/store"
	"github.com/linklite/apiserver/types"
)

// TokenVerifier checks a bearer token and returns the subject it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserLookup is the read side of the credential store needed per request.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (types.User, error)
}

// IdentityResolver turns an Authorization header into the caller's identity.
// It keeps no mutable state and is safe for concurrent use.
type IdentityResolver struct {
	users  UserLookup
	tokens TokenVerifier
}

func NewIdentityResolver(users UserLookup, tokens TokenVerifier) *IdentityResolver {
	return &IdentityResolver{users: users, tokens: tokens}
}

// Resolve authenticates the header value. It fails with ErrMissingToken when no
// bearer token is present and with ErrInvalidToken when the token is bad,
// expired, or names an account that no longer exists. Other errors come from
// the store.
func (r *IdentityResolver) Resolve(ctx context.Context, header string) (types.Identity, error) {
	raw, ok := auth.ParseBearer(header)
	if !ok {
		return types.Identity{}, ErrMissingToken
	}

	subject, err := r.tokens.Verify(raw)
	if err != nil {
		return types.Identity{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(subject); err != nil {
		return types.Identity{}, ErrInvalidToken
	}

	user, err := r.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, ErrInvalidToken
		}
		return types.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	// Built from the stored record so profile edits after issuance show up.
	return user.Identity(), nil
}

// ResolveOptional is Resolve for routes that also serve anonymous callers: a
// missing or rejected token yields a nil identity instead of an error.
func (r *IdentityResolver) ResolveOptional(ctx context.Context, header string) (*types.Identity, error) {
	identity, err := r.Resolve(ctx, header)
	if err != nil {
		if errors.Is(err, ErrMissingToken) || errors.Is(err, ErrInvalidToken) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/linklite/apiserver/internal/auth"
	"github.com/linklite/apiserver/internal/store"
	"github.com/linklite/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// memoryUserRepo mimics the users table, including the unique email constraint.
type memoryUserRepo struct {
	mu      sync.Mutex
	byID    map[string]types.User
	byEmail map[string]string

	// lookupBarrier, when set, holds every GetByEmail caller until all
	// expected callers have arrived.
	lookupBarrier *sync.WaitGroup

	lookupErr error
	getErr    error
	updateErr error
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		byID:    make(map[string]types.User),
		byEmail: make(map[string]string),
	}
}

func (m *memoryUserRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	if m.getErr != nil {
		return types.User{}, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	if m.lookupBarrier != nil {
		m.lookupBarrier.Done()
		m.lookupBarrier.Wait()
	}
	if m.lookupErr != nil {
		return types.User{}, m.lookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user types.User, beforeCommit func(types.User) error) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[user.Email]; exists {
		return types.User{}, store.ErrConflict
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	if beforeCommit != nil {
		if err := beforeCommit(user); err != nil {
			return types.User{}, err
		}
	}
	m.byID[user.ID] = user
	m.byEmail[user.Email] = user.ID
	return user, nil
}

func (m *memoryUserRepo) UpdateProfile(ctx context.Context, user types.User) (types.User, error) {
	if m.updateErr != nil {
		return types.User{}, m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.byID[user.ID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	current.Name = user.Name
	current.Bio = user.Bio
	current.Avatar = user.Avatar
	current.UpdatedAt = time.Now()
	m.byID[user.ID] = current
	return current, nil
}

func (m *memoryUserRepo) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.byID[id]; ok {
		delete(m.byEmail, user.Email)
		delete(m.byID, id)
	}
}

func (m *memoryUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type failingIssuer struct{}

func (failingIssuer) Issue(string) (string, error) {
	return "", auth.ErrTokenSigning
}

type publishedMessage struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (p *recordingPublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

var errDBDown = errors.New("db down")

func newTokenManager(t *testing.T) *auth.TokenManager {
	t.Helper()
	m, err := auth.NewTokenManager(testSecret, time.Hour)
	require.NoError(t, err)
	return m
}

func newTestAuthService(t *testing.T, repo *memoryUserRepo, events *AccountEvents) (*AuthService, *auth.TokenManager) {
	t.Helper()
	tokens := newTokenManager(t)
	return NewAuthService(repo, auth.NewPasswordHasher(bcrypt.MinCost), tokens, events, nil), tokens
}

func strPtr(s string) *string {
	return &s
}

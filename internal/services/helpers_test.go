package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tasklist/apiserver/internal/password"
	"github.com/tasklist/apiserver/internal/store"
	"github.com/tasklist/apiserver/internal/token"
	"github.com/tasklist/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	repo   *store.MemoryUserRepository
	hasher *password.Hasher
	codec  *token.Codec
	events *recordingPublisher
	vault  *recordingArchive
	auth   *AuthService
	users  *UserService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, store.NewMemoryUserRepository(), opts...)
}

func newFixtureWithRepo(t *testing.T, repo *store.MemoryUserRepository, opts ...Option) *fixture {
	t.Helper()

	hasher, err := password.NewHasher(bcrypt.MinCost, 4)
	require.NoError(t, err)
	codec, err := token.NewCodec("test-secret", time.Hour, "accounts")
	require.NoError(t, err)

	f := &fixture{
		repo:   repo,
		hasher: hasher,
		codec:  codec,
		events: &recordingPublisher{},
		vault:  &recordingArchive{objects: map[string][]byte{}},
	}
	opts = append([]Option{WithEventPublisher(f.events), WithArchive(f.vault)}, opts...)
	f.auth = NewAuthService(repo, hasher, codec, opts...)
	f.users = NewUserService(repo, hasher, opts...)
	return f
}

func (f *fixture) register(t *testing.T, username, pass string) types.User {
	t.Helper()
	user, err := f.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Name:     "Name of " + username,
		Password: pass,
		Email:    username + "@example.com",
	})
	require.NoError(t, err)
	return user
}

func identityOf(user types.User) Identity {
	return Identity{UserID: user.ID, Username: user.Username}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.AccountEvent
	attrs  []map[string]string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	var event types.AccountEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	if event.Type != channel {
		return "", errors.New("event published on the wrong channel")
	}
	p.events = append(p.events, event)
	p.attrs = append(p.attrs, attrs)
	return event.ID, nil
}

func (p *recordingPublisher) snapshot() []types.AccountEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.AccountEvent(nil), p.events...)
}

type recordingArchive struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func (a *recordingArchive) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if a.err != nil {
		return a.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	if a.contentTypes == nil {
		a.contentTypes = map[string]string{}
	}
	a.contentTypes[key] = contentType
	return nil
}

// failingRepo returns err from every call.
type failingRepo struct {
	err error
}

func (r failingRepo) GetByUsername(context.Context, string) (types.User, error) {
	return types.User{}, r.err
}

func (r failingRepo) Create(context.Context, types.User) (types.User, error) {
	return types.User{}, r.err
}

func (r failingRepo) Update(context.Context, string, types.UserPatch) (bool, error) {
	return false, r.err
}

func (r failingRepo) Delete(context.Context, string) (bool, error) {
	return false, r.err
}

// blockingRepo never answers before the caller's deadline.
type blockingRepo struct {
	failingRepo
}

func (blockingRepo) GetByUsername(ctx context.Context, _ string) (types.User, error) {
	<-ctx.Done()
	return types.User{}, ctx.Err()
}

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tasklist/apiserver/internal/store"
	"github.com/tasklist/apiserver/internal/token"
	"github.com/tasklist/apiserver/types"
)

// RegisterInput carries the fields needed to create an account.
type RegisterInput struct {
	Username string `validate:"required"`
	Name     string `validate:"required"`
	Password string `validate:"required,min=6,maxbytes=72"`
	Email    string `validate:"required,email"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Identity is the account a verified token was issued to.
type Identity struct {
	UserID   int64
	Username string
}

// AuthService implements registration, login and token authorization.
type AuthService struct {
	repo   UserRepository
	hasher PasswordHasher
	tokens TokenCodec
	options
}

func NewAuthService(repo UserRepository, hasher PasswordHasher, tokens TokenCodec, opts ...Option) *AuthService {
	return &AuthService{
		repo:    repo,
		hasher:  hasher,
		tokens:  tokens,
		options: newOptions(opts),
	}
}

// Register creates a new account. The username pre-check only produces a
// friendlier error; the store's unique constraint decides races.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return types.User{}, validationError(err)
	}

	storeCtx, cancel := s.storeContext(ctx)
	_, err := s.repo.GetByUsername(storeCtx, in.Username)
	cancel()
	switch {
	case err == nil:
		return types.User{}, newError(KindAlreadyExists, "username already exists", nil)
	case !errors.Is(err, store.ErrNotFound):
		return types.User{}, s.storeFailure(ctx, "lookup user", err)
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return types.User{}, s.internal(ctx, "hash password", err)
	}

	storeCtx, cancel = s.storeContext(ctx)
	defer cancel()
	user, err := s.repo.Create(storeCtx, types.User{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	})
	if err != nil {
		return types.User{}, s.storeFailure(ctx, "create user", err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)
	s.publish(ctx, types.AccountRegistered, user)
	return user, nil
}

// Login verifies credentials and issues a bearer token. An unknown username
// and a wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, invalidInput("username and password are required")
	}

	storeCtx, cancel := s.storeContext(ctx)
	user, err := s.repo.GetByUsername(storeCtx, username)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if err := s.hasher.VerifyDummy(ctx, password); err != nil {
				s.log.WarnContext(ctx, "dummy password check failed", "error", err)
			}
			return Session{}, errInvalidCredentials()
		}
		return Session{}, s.storeFailure(ctx, "lookup user", err)
	}

	ok, err := s.hasher.Verify(ctx, user.PasswordHash, password)
	if err != nil {
		return Session{}, s.internal(ctx, "verify password", err)
	}
	if !ok {
		return Session{}, errInvalidCredentials()
	}

	signed, expiresAt, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return Session{}, s.internal(ctx, "issue token", err)
	}
	return Session{Token: signed, ExpiresAt: expiresAt}, nil
}

// Authorize verifies a presented bearer token and returns the account it
// was issued to. The reason for a rejection is logged, never returned.
func (s *AuthService) Authorize(ctx context.Context, presented string) (Identity, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return Identity{}, errUnauthenticated(nil)
	}

	claims, err := s.tokens.Verify(presented)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrExpired) {
			reason = "expired"
		}
		s.log.DebugContext(ctx, "token rejected", "reason", reason, "error", err)
		return Identity{}, errUnauthenticated(err)
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

func errInvalidCredentials() error {
	return newError(KindInvalidCredentials, "invalid username or password", nil)
}

func errUnauthenticated(cause error) error {
	return newError(KindUnauthenticated, "invalid or missing token", cause)
}

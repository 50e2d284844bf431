package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tasklist/apiserver/internal/logging"
	"github.com/tasklist/apiserver/internal/store"
	"github.com/tasklist/apiserver/internal/token"
	"github.com/tasklist/apiserver/types"
)

const (
	defaultStoreTimeout = 5 * time.Second
	sideEffectTimeout   = 10 * time.Second
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, username string, patch types.UserPatch) (bool, error)
	Delete(ctx context.Context, username string) (bool, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, hash, plain string) (bool, error)
	VerifyDummy(ctx context.Context, plain string) error
}

// TokenCodec issues and verifies bearer tokens.
type TokenCodec interface {
	Issue(userID int64, username string) (string, time.Time, error)
	Verify(tokenString string) (token.Claims, error)
}

// EventPublisher publishes account lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Archiver stores snapshots of deleted accounts.
type Archiver interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Option configures a service.
type Option func(*options)

type options struct {
	log          *slog.Logger
	storeTimeout time.Duration
	events       EventPublisher
	archive      Archiver
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithStoreTimeout bounds every store call. Exceeding it surfaces as
// KindStoreUnavailable.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.storeTimeout = d
		}
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(o *options) { o.events = p }
}

func WithArchive(a Archiver) Option {
	return func(o *options) { o.archive = a }
}

func newOptions(opts []Option) options {
	o := options{
		log:          logging.Discard(),
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.storeTimeout)
}

// storeFailure maps a store error onto the service taxonomy. Unknown errors
// are logged and reported as KindStoreUnavailable without their detail.
func (o options) storeFailure(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotFound, "user not found", err)
	case errors.Is(err, store.ErrDuplicateKey):
		return newError(KindAlreadyExists, "username already exists", err)
	case errors.Is(err, store.ErrEmptyUsername):
		return newError(KindInvalidInput, "username is required", err)
	}

	message := "storage unavailable"
	if errors.Is(err, context.DeadlineExceeded) {
		message = "storage timed out"
	}
	o.log.ErrorContext(ctx, "store call failed", "op", op, "error", err)
	return newError(KindStoreUnavailable, message, err)
}

func (o options) internal(ctx context.Context, op string, err error) error {
	o.log.ErrorContext(ctx, "operation failed", "op", op, "error", err)
	return newError(KindInternal, "internal error", err)
}

// publish sends an account event after the store change is committed.
// Failures are logged; the caller's operation has already succeeded.
func (o options) publish(ctx context.Context, eventType string, user types.User) {
	if o.events == nil {
		return
	}

	event := types.AccountEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		o.log.ErrorContext(ctx, "marshal account event", "type", eventType, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	attrs := map[string]string{"event_id": event.ID, "type": eventType}
	if _, err := o.events.Publish(pubCtx, eventType, data, attrs); err != nil {
		o.log.WarnContext(ctx, "publish account event", "type", eventType, "user_id", user.ID, "error", err)
	}
}

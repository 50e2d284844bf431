package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tasklist/apiserver/types"
)

// UpdateProfileInput lists the profile fields a caller may change. Nil
// fields are left untouched.
type UpdateProfileInput struct {
	Name     *string
	Email    *string
	Password *string
}

// UserService encapsulates profile use-cases for an authenticated user.
// The username always comes from a verified token, never from the request.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	options
}

func NewUserService(repo UserRepository, hasher PasswordHasher, opts ...Option) *UserService {
	return &UserService{
		repo:    repo,
		hasher:  hasher,
		options: newOptions(opts),
	}
}

// GetProfile returns the profile of the account who identifies.
func (s *UserService) GetProfile(ctx context.Context, who Identity) (types.Profile, error) {
	user, err := s.owner(ctx, who)
	if err != nil {
		return types.Profile{}, err
	}
	return user.Profile(), nil
}

// UpdateProfile applies the supplied fields in one store write. A new
// password is hashed before the write.
func (s *UserService) UpdateProfile(ctx context.Context, who Identity, in UpdateProfileInput) error {
	var patch types.UserPatch

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateField("name", name, "required"); err != nil {
			return err
		}
		patch.Name = &name
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := validateField("email", email, "required,email"); err != nil {
			return err
		}
		patch.Email = &email
	}
	if in.Password != nil {
		if err := validateField("password", *in.Password, passwordTag()); err != nil {
			return err
		}
	}
	if patch.Empty() && in.Password == nil {
		return invalidInput("at least one of name, email or password is required")
	}

	if _, err := s.owner(ctx, who); err != nil {
		return err
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(ctx, *in.Password)
		if err != nil {
			return s.internal(ctx, "hash password", err)
		}
		patch.PasswordHash = &hash
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	changed, err := s.repo.Update(storeCtx, who.Username, patch)
	if err != nil {
		return s.storeFailure(ctx, "update profile", err)
	}
	if !changed {
		return errAccountGone()
	}
	return nil
}

// DeleteProfile removes the account. Archiving the profile and publishing
// the deletion event happen after the delete and never fail the call.
func (s *UserService) DeleteProfile(ctx context.Context, who Identity) error {
	user, err := s.owner(ctx, who)
	if err != nil {
		return err
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	removed, err := s.repo.Delete(storeCtx, who.Username)
	if err != nil {
		return s.storeFailure(ctx, "delete user", err)
	}
	if !removed {
		return errAccountGone()
	}

	s.log.InfoContext(ctx, "user deleted", "user_id", user.ID)
	s.archiveProfile(ctx, user)
	s.publish(ctx, types.AccountDeleted, user)
	return nil
}

// owner loads the account behind who. A username that now belongs to a
// different account than the one the token was issued to is NotFound.
func (s *UserService) owner(ctx context.Context, who Identity) (types.User, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.repo.GetByUsername(storeCtx, who.Username)
	if err != nil {
		return types.User{}, s.storeFailure(ctx, "get user", err)
	}
	if user.ID != who.UserID {
		s.log.InfoContext(ctx, "token issued to a deleted account", "user_id", who.UserID, "current_id", user.ID)
		return types.User{}, errAccountGone()
	}
	return user, nil
}

func errAccountGone() error {
	return newError(KindNotFound, "user not found", nil)
}

// ArchiveKey is the object key under which a deleted account is archived.
func ArchiveKey(userID int64) string {
	return fmt.Sprintf("deleted-accounts/%d.json", userID)
}

type archivedProfile struct {
	types.Profile
	CreatedAt time.Time `json:"created_at"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (s *UserService) archiveProfile(ctx context.Context, user types.User) {
	if s.archive == nil {
		return
	}

	data, err := json.Marshal(archivedProfile{
		Profile:   user.Profile(),
		CreatedAt: user.CreatedAt,
		DeletedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "marshal archived profile", "user_id", user.ID, "error", err)
		return
	}

	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := s.archive.Put(putCtx, ArchiveKey(user.ID), bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		s.log.WarnContext(ctx, "archive deleted profile", "user_id", user.ID, "error", err)
	}
}

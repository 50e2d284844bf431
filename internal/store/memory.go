package store

import (
	"context"
	"sync"
	"time"

	"github.com/tasklist/apiserver/types"
)

// MemoryUserRepository keeps users in process memory. It honours the same
// contract as the SQL repositories and is meant for local runs and tests.
type MemoryUserRepository struct {
	mu     sync.Mutex
	users  map[string]types.User
	lastID int64
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]types.User)}
}

func (r *MemoryUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	if username == "" {
		return types.User{}, ErrEmptyUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[username]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if err := ctx.Err(); err != nil {
		return types.User{}, err
	}
	if user.Username == "" {
		return types.User{}, ErrEmptyUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.Username]; exists {
		return types.User{}, ErrDuplicateKey
	}

	r.lastID++
	now := time.Now().UTC()
	user.ID = r.lastID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.Username] = user
	return user, nil
}

func (r *MemoryUserRepository) Update(ctx context.Context, username string, patch types.UserPatch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if username == "" {
		return false, ErrEmptyUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[username]
	if !ok {
		return false, nil
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[username] = user
	return true, nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if username == "" {
		return false, ErrEmptyUsername
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[username]; !ok {
		return false, nil
	}
	delete(r.users, username)
	return true, nil
}

// Len returns the number of stored users.
func (r *MemoryUserRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

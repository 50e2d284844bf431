package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tasklist/apiserver/types"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteUserRepository handles persistence for users in SQLite.
// Timestamps are stored as unix milliseconds.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if username == "" {
		return types.User{}, ErrEmptyUsername
	}

	const query = `
		SELECT id, username, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE username = ?`
	var (
		user      types.User
		createdAt int64
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("select user: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

func (r *SQLiteUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.Username == "" {
		return types.User{}, ErrEmptyUsername
	}

	now := time.Now().UTC()
	user.CreatedAt = fromMillis(toMillis(now))
	user.UpdatedAt = user.CreatedAt

	const query = `
		INSERT INTO users (username, name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Username,
		user.Name,
		user.Email,
		user.PasswordHash,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return types.User{}, ErrDuplicateKey
		}
		return types.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return types.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = id
	return user, nil
}

func (r *SQLiteUserRepository) Update(ctx context.Context, username string, patch types.UserPatch) (bool, error) {
	if username == "" {
		return false, ErrEmptyUsername
	}

	query, args := buildUserUpdate(username, patch, time.Now().UTC(), func(int) string {
		return "?"
	}, func(t time.Time) any { return toMillis(t) })
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteUserRepository) Delete(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, ErrEmptyUsername
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return affected > 0, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

package types

import "time"

// User represents a registered account.
// It contains identity, contact details, the stored credential and audit
// metadata.
type User struct {
	// ID is the unique identifier of the user. It is assigned by the store
	// and never reused.
	ID int64 `json:"id" db:"id"`

	// Username is the unique login name chosen by the user. It is
	// case-sensitive and cannot be changed after registration.
	Username string `json:"username" db:"username"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the caller-facing view of a user.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// Profile returns the caller-facing view of u.
func (u User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
	}
}

// UserPatch describes a partial update of a user. Nil fields keep their
// stored value.
type UserPatch struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.PasswordHash == nil
}

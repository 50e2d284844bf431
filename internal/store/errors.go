package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey is returned when a write violates a uniqueness constraint.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrEmptyUsername is returned when a lookup or write is attempted without a username.
var ErrEmptyUsername = errors.New("username is required")

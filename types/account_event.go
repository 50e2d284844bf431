package types

import "time"

const (
	// AccountRegistered is published after a new account is persisted.
	AccountRegistered = "account.registered"

	// AccountDeleted is published after an account is removed.
	AccountDeleted = "account.deleted"
)

// AccountEvent is the payload published on account lifecycle channels.
// It never carries credentials.
type AccountEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	OccurredAt time.Time `json:"occurred_at"`
}

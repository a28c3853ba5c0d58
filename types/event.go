package types

import "time"

// AccountEventType names the kind of account change being announced.
type AccountEventType string

const (
	// AccountRegistered is emitted once a new account has been stored.
	AccountRegistered AccountEventType = "user.registered"

	// AccountUpdated is emitted after a profile edit has been stored.
	AccountUpdated AccountEventType = "user.updated"
)

// AccountEvent is the payload published to the message queue when an
// account changes. It never carries credentials.
type AccountEvent struct {
	Type       AccountEventType `json:"type"`
	UserID     string           `json:"user_id"`
	Name       string           `json:"name"`
	OccurredAt time.Time        `json:"occurred_at"`
}

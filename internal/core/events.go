package core

import "time"

// EventOp names a change to a user's ledger.
type EventOp string

const (
	EventCreated EventOp = "transaction.created"
	EventDeleted EventOp = "transaction.deleted"
)

// TransactionEvent announces a committed change so that mirrors can follow.
type TransactionEvent struct {
	Op          EventOp     `json:"op"`
	UserID      string      `json:"user_id"`
	Transaction Transaction `json:"transaction"`
	Timestamp   time.Time   `json:"timestamp"`
}

package amqp

import (
	"encoding/json"
	"errors"
	"fmt"

	"bilancio/internal/core"
)

var ErrInvalidEvent = errors.New("invalid transaction event")

// EncodeEvent converts the event to its JSON message body.
func EncodeEvent(ev core.TransactionEvent) ([]byte, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

// DecodeEvent parses a message body produced by EncodeEvent.
func DecodeEvent(data []byte) (core.TransactionEvent, error) {
	var ev core.TransactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.TransactionEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := validateEvent(ev); err != nil {
		return core.TransactionEvent{}, err
	}
	return ev, nil
}

func validateEvent(ev core.TransactionEvent) error {
	switch {
	case ev.Op != core.EventCreated && ev.Op != core.EventDeleted:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidEvent, ev.Op)
	case ev.UserID == "":
		return fmt.Errorf("%w: missing user id", ErrInvalidEvent)
	case ev.Transaction.ID == "":
		return fmt.Errorf("%w: missing transaction id", ErrInvalidEvent)
	}
	return nil
}

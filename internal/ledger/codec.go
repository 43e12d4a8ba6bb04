package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/kv"
)

// KeyPrefix is prepended to the user identity to form the storage key.
const KeyPrefix = "expense_tracker_transactions_"

// StorageKey returns the key under which user's transactions are persisted.
func StorageKey(user string) string {
	return KeyPrefix + user
}

// Users lists the identities that have persisted transactions in store.
func Users(ctx context.Context, store kv.Lister) ([]string, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list", Key: KeyPrefix + "*", Err: err}
	}
	var users []string
	for _, k := range keys {
		if user, ok := strings.CutPrefix(k, KeyPrefix); ok && user != "" {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Encode serialises records to the persisted JSON array form.
func Encode(records []core.Transaction) (string, error) {
	if records == nil {
		records = []core.Transaction{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode transactions: %w", err)
	}
	return string(data), nil
}

// Decode parses the persisted form. A blank value decodes to an empty list.
func Decode(value string) ([]core.Transaction, error) {
	if strings.TrimSpace(value) == "" {
		return []core.Transaction{}, nil
	}
	var records []core.Transaction
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	if records == nil {
		records = []core.Transaction{}
	}
	return records, nil
}

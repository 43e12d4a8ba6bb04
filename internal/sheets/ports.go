// Package sheets defines the outbound ports of the spreadsheet mirror.
package sheets

import (
	"context"
	"errors"

	"bilancio/internal/core"
)

// ErrRowNotFound is returned when a transaction has no row in the mirror.
var ErrRowNotFound = errors.New("transaction row not found")

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// AppendTransaction adds a row for tx. Appending an id that is
		// already mirrored returns the existing row reference.
		AppendTransaction(ctx context.Context, userID string, tx core.Transaction) (rowRef string, err error)
	}

	TransactionDeleter interface {
		DeleteTransaction(ctx context.Context, tx core.Transaction) error
	}

	Mirror interface {
		TransactionWriter
		TransactionDeleter
	}

	// BatchWriter is implemented by mirrors that can append many rows of
	// one user at once, skipping the ones already present.
	BatchWriter interface {
		AppendTransactions(ctx context.Context, userID string, txs []core.Transaction) (appended int, err error)
	}
)

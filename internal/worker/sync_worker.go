package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/sheets"
)

// TransactionSource loads a user's committed transactions.
type TransactionSource interface {
	Transactions(ctx context.Context, user string) ([]core.Transaction, error)
}

// SyncWorker mirrors ledger changes into a spreadsheet.
type SyncWorker struct {
	mirror      sheets.Mirror
	logger      *log.Logger
	concurrency int
}

func NewSyncWorker(mirror sheets.Mirror, concurrency int, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SyncWorker{
		mirror:      mirror,
		logger:      logger.WithComponent(log.ComponentWorker),
		concurrency: concurrency,
	}
}

// HandleEvent applies a single ledger event to the mirror. Returning an error
// asks the broker to redeliver the event.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev core.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing transaction event",
		"op", ev.Op,
		log.FieldUserID, ev.UserID,
		log.FieldTransactionID, ev.Transaction.ID)

	switch ev.Op {
	case core.EventCreated:
		ref, err := w.mirror.AppendTransaction(ctx, ev.UserID, ev.Transaction)
		if err != nil {
			return fmt.Errorf("append to mirror: %w", err)
		}
		w.logger.InfoContext(ctx, "Successfully synced transaction",
			log.FieldTransactionID, ev.Transaction.ID,
			"sheets_ref", ref,
			log.FieldAmountCents, ev.Transaction.Amount.Cents)
		return nil

	case core.EventDeleted:
		err := w.mirror.DeleteTransaction(ctx, ev.Transaction)
		if errors.Is(err, sheets.ErrRowNotFound) {
			w.logger.WarnContext(ctx, "Transaction not present in mirror, nothing to delete",
				log.FieldTransactionID, ev.Transaction.ID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete from mirror: %w", err)
		}
		w.logger.InfoContext(ctx, "Successfully deleted transaction", log.FieldTransactionID, ev.Transaction.ID)
		return nil

	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event", "op", ev.Op)
		return nil
	}
}

// StartupSync appends every stored transaction of users to the mirror. Rows
// already present are left alone, so running it repeatedly is harmless. It
// recovers from events lost while the worker was down.
func (w *SyncWorker) StartupSync(ctx context.Context, source TransactionSource, users []string) error {
	var synced, failed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, user := range users {
		g.Go(func() error {
			records, err := source.Transactions(ctx, user)
			if err != nil {
				return fmt.Errorf("load transactions of %s: %w", user, err)
			}
			if bw, ok := w.mirror.(sheets.BatchWriter); ok {
				n, err := bw.AppendTransactions(ctx, user, records)
				synced.Add(int64(n))
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					w.logger.ErrorContext(ctx, "Failed to sync transactions during startup",
						log.FieldUserID, user,
						log.FieldError, err)
					failed.Add(1)
				}
				return nil
			}
			for _, tx := range records {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, err := w.mirror.AppendTransaction(ctx, user, tx); err != nil {
					w.logger.ErrorContext(ctx, "Failed to sync transaction during startup",
						log.FieldUserID, user,
						log.FieldTransactionID, tx.ID,
						log.FieldError, err)
					failed.Add(1)
					continue
				}
				synced.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	w.logger.InfoContext(ctx, "Startup sync completed",
		"users", len(users),
		"synced", synced.Load(),
		"errors", failed.Load())
	return err
}

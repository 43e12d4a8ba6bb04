package ledger

import (
	"context"
	"fmt"
	"io"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/filter"
	"bilancio/internal/log"
	"bilancio/internal/stats"
)

// EventPublisher forwards committed changes to downstream consumers.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev core.TransactionEvent) error
}

// Service orchestrates ledger operations across user sessions and the
// event publisher. Publishing is best effort: a change that reached storage
// is never reported as failed because its event could not be sent.
type Service struct {
	sessions  *Registry
	publisher EventPublisher
	now       func() time.Time
	logger    *log.Logger
}

func NewService(sessions *Registry, publisher EventPublisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default(log.ComponentLedger)
	}
	return &Service{
		sessions:  sessions,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentLedger),
	}
}

// Create adds a transaction to user's ledger and publishes a created event.
func (s *Service) Create(ctx context.Context, user string, in core.NewTransaction) (core.Transaction, error) {
	store, err := s.sessions.Session(ctx, user)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := store.Add(ctx, in)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, core.EventCreated, user, tx)
	return tx, nil
}

// Delete removes every transaction with id from user's ledger and publishes
// one deleted event per removed record.
func (s *Service) Delete(ctx context.Context, user, id string) (bool, error) {
	store, err := s.sessions.Session(ctx, user)
	if err != nil {
		return false, err
	}
	removed, err := store.Extract(ctx, id)
	if err != nil {
		return false, err
	}
	for _, tx := range removed {
		s.publish(ctx, core.EventDeleted, user, tx)
	}
	return len(removed) > 0, nil
}

// Transactions returns user's full list, most recent first.
func (s *Service) Transactions(ctx context.Context, user string) ([]core.Transaction, error) {
	store, err := s.sessions.Session(ctx, user)
	if err != nil {
		return nil, err
	}
	return store.Transactions(), nil
}

// List returns the transactions of user matching spec.
func (s *Service) List(ctx context.Context, user string, spec filter.Spec) ([]core.Transaction, error) {
	records, err := s.Transactions(ctx, user)
	if err != nil {
		return nil, err
	}
	return filter.Apply(records, spec), nil
}

// Report computes the statistics of user's full list for the given day.
func (s *Service) Report(ctx context.Context, user string, today core.Date, limit int) (stats.Report, error) {
	records, err := s.Transactions(ctx, user)
	if err != nil {
		return stats.Report{}, err
	}
	return stats.Analyze(records, today, limit), nil
}

// Taxonomy returns the categories accepted for user.
func (s *Service) Taxonomy(ctx context.Context, user string) (*core.Taxonomy, error) {
	store, err := s.sessions.Session(ctx, user)
	if err != nil {
		return nil, err
	}
	return store.Taxonomy(), nil
}

func (s *Service) publish(ctx context.Context, op core.EventOp, user string, tx core.Transaction) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No event publisher configured, skipping event", "op", op)
		return
	}
	ev := core.TransactionEvent{Op: op, UserID: user, Transaction: tx, Timestamp: s.now().UTC()}
	if err := s.publisher.PublishTransactionEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.NewFields().WithUser(user).WithOperation(log.OpPublish).WithError(err).
				WithTransaction(tx.ID, tx.Type.String(), tx.Amount.Cents, tx.Category).ToSlice()...)
	}
}

// Close closes the publisher when it holds resources.
func (s *Service) Close() error {
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close publisher: %w", err)
		}
	}
	return nil
}

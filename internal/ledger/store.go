// Package ledger owns a user's transaction list and its persistence.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/kv"
	"bilancio/internal/log"
)

// ErrNoUser is returned where a user identity is mandatory.
var ErrNoUser = errors.New("no user identity")

// StorageError wraps a failure of the underlying key-value store.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store is the in-memory transaction list of a single user, most recent
// first, written back to a kv.Store after every mutation. Add and Extract
// start from the persisted list, so two stores of the same user sharing a
// lock never overwrite each other's writes.
type Store struct {
	mu      *sync.Mutex
	user    string
	kv      kv.Store
	now     func() time.Time
	ids     IDGenerator
	tax     *core.Taxonomy
	logger  *log.Logger
	records []core.Transaction
}

// Option configures a Store.
type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDs(ids IDGenerator) Option {
	return func(s *Store) { s.ids = ids }
}

// WithTaxonomy sets the categories Add accepts. A nil taxonomy accepts any category.
func WithTaxonomy(tax *core.Taxonomy) Option {
	return func(s *Store) { s.tax = tax }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// withLock makes the store serialise on mu, shared with other stores of the same user.
func withLock(mu *sync.Mutex) Option {
	return func(s *Store) { s.mu = mu }
}

// New returns an empty store for user. Call Load to read persisted records.
func New(user string, store kv.Store, opts ...Option) *Store {
	s := &Store{
		mu:      &sync.Mutex{},
		user:    user,
		kv:      store,
		now:     time.Now,
		tax:     core.DefaultTaxonomy(),
		records: []core.Transaction{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = NewULIDs()
	}
	if s.logger == nil {
		s.logger = log.Default(log.ComponentLedger)
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger).With(log.FieldUserID, user)
	return s
}

func (s *Store) User() string {
	return s.user
}

func (s *Store) Taxonomy() *core.Taxonomy {
	return s.tax
}

// Load replaces the in-memory list with the persisted one. Without a user
// identity, or when nothing has been persisted yet, the list is empty.
func (s *Store) Load(ctx context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == "" {
		s.records = []core.Transaction{}
		return []core.Transaction{}, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Transactions loaded", log.FieldCount, len(s.records))
	return slices.Clone(s.records), nil
}

// refreshLocked replaces the list with the persisted one. Without a user
// identity nothing is persisted and the list is left alone.
func (s *Store) refreshLocked(ctx context.Context) error {
	if s.user == "" {
		return nil
	}
	key := StorageKey(s.user)
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return &StorageError{Op: log.OpLoad, Key: key, Err: err}
	}
	records := []core.Transaction{}
	if ok {
		records, err = Decode(value)
		if err != nil {
			return &StorageError{Op: log.OpLoad, Key: key, Err: err}
		}
	}
	s.records = records
	return nil
}

// Add validates in, stamps it with an id and the current time, puts it at
// the front of the persisted list and writes it back. On a validation or
// write error the list is unchanged.
func (s *Store) Add(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	tx, err := in.Parse(s.tax)
	if err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		return core.Transaction{}, err
	}
	now := s.now()
	tx.ID, err = s.ids.NewID(now)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Timestamp = now.UTC().Truncate(time.Millisecond)

	prev := s.records
	s.records = append([]core.Transaction{tx}, prev...)
	if err := s.saveLocked(ctx); err != nil {
		s.records = prev
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction added",
		log.NewFields().WithTransaction(tx.ID, tx.Type.String(), tx.Amount.Cents, tx.Category).ToSlice()...)
	return tx, nil
}

// Remove deletes every record with id and reports whether any existed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := s.Extract(ctx, id)
	return len(removed) > 0, err
}

// Extract deletes every record with id and returns the deleted records.
// An unknown id is not an error. On a persistence failure nothing is removed.
func (s *Store) Extract(ctx context.Context, id string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}
	kept := make([]core.Transaction, 0, len(s.records))
	var removed []core.Transaction
	for _, tx := range s.records {
		if tx.ID == id {
			removed = append(removed, tx)
			continue
		}
		kept = append(kept, tx)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	prev := s.records
	s.records = kept
	if err := s.saveLocked(ctx); err != nil {
		s.records = prev
		return nil, err
	}

	s.logger.InfoContext(ctx, "Transaction removed", log.FieldTransactionID, id, log.FieldCount, len(removed))
	return removed, nil
}

// Save writes the current list. It does nothing without a user identity.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	if s.user == "" {
		return nil
	}
	key := StorageKey(s.user)
	value, err := Encode(s.records)
	if err != nil {
		return &StorageError{Op: log.OpSave, Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		return &StorageError{Op: log.OpSave, Key: key, Err: err}
	}
	return nil
}

// Transactions returns a copy of the list in store order.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

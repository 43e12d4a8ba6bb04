package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/filter"
	"bilancio/internal/kv/memory"
	"bilancio/internal/log"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.TransactionEvent
	err    error
	closed bool
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, ev core.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

type countingKV struct {
	*memory.Store
	mu   sync.Mutex
	gets int
}

func (c *countingKV) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Store.Get(ctx, key)
}

func newTestService(pub EventPublisher) (*Service, *countingKV) {
	backend := &countingKV{Store: memory.New()}
	reg := NewRegistry(backend, 16, time.Hour,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(log.Discard()))
	return NewService(reg, pub, log.Discard()), backend
}

func TestRegistryLoadsOncePerUser(t *testing.T) {
	ctx := context.Background()
	backend := &countingKV{Store: memory.New()}
	reg := NewRegistry(backend, 16, time.Hour, WithLogger(log.Discard()))

	var wg sync.WaitGroup
	stores := make([]*Store, 8)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Session(ctx, "alice")
			assert.NoError(t, err)
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range stores {
		assert.Same(t, stores[0], s)
	}
	assert.Equal(t, 1, backend.gets)
	assert.Equal(t, 1, reg.Active())

	reg.Evict("alice")
	_, err := reg.Session(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.gets)
}

func TestRegistryEvictedSessionKeepsWrites(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	reg := NewRegistry(backend, 1, time.Hour, WithLogger(log.Discard()))

	s1, err := reg.Session(ctx, "alice")
	require.NoError(t, err)
	_, err = reg.Session(ctx, "bob")
	require.NoError(t, err)
	s2, err := reg.Session(ctx, "alice")
	require.NoError(t, err)
	require.NotSame(t, s1, s2)

	a, err := s1.Add(ctx, groceries())
	require.NoError(t, err)
	b, err := s2.Add(ctx, core.NewTransaction{Type: "income", Title: "Salary", Amount: "2500", Category: "salary", Date: "2025-02-01"})
	require.NoError(t, err)

	fresh := New("alice", backend, WithLogger(log.Discard()))
	persisted, err := fresh.Load(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, b.ID, persisted[0].ID)
	assert.Equal(t, a.ID, persisted[1].ID)

	removed, err := s1.Remove(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	persisted, err = fresh.Load(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, a.ID, persisted[0].ID)
}

func TestRegistrySessionTTLSlidesOnUse(t *testing.T) {
	ctx := context.Background()
	now := fixedNow
	reg := NewRegistry(memory.New(), 4, time.Minute, WithLogger(log.Discard()))
	reg.sessions.WithClock(func() time.Time { return now })

	first, err := reg.Session(ctx, "alice")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		now = now.Add(50 * time.Second)
		s, err := reg.Session(ctx, "alice")
		require.NoError(t, err)
		assert.Same(t, first, s)
	}

	now = now.Add(2 * time.Minute)
	s, err := reg.Session(ctx, "alice")
	require.NoError(t, err)
	assert.NotSame(t, first, s)
}

func TestRegistryConcurrentAddsAcrossEvictions(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	reg := NewRegistry(backend, 1, time.Hour, WithLogger(log.Discard()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := "alice"
			if i%2 == 1 {
				user = "bob"
			}
			s, err := reg.Session(ctx, user)
			if !assert.NoError(t, err) {
				return
			}
			_, err = s.Add(ctx, groceries())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, user := range []string{"alice", "bob"} {
		records, err := New(user, backend, WithLogger(log.Discard())).Load(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 10, user)
	}
}

func TestRegistryRequiresUser(t *testing.T) {
	reg := NewRegistry(memory.New(), 4, time.Hour)
	_, err := reg.Session(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestServiceCreatePublishes(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	tx, err := svc.Create(ctx, "alice", groceries())
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, core.EventCreated, pub.events[0].Op)
	assert.Equal(t, "alice", pub.events[0].UserID)
	assert.Equal(t, tx.ID, pub.events[0].Transaction.ID)
}

func TestServiceCreateIgnoresPublishFailure(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newTestService(pub)

	_, err := svc.Create(ctx, "alice", groceries())
	require.NoError(t, err)

	records, err := svc.Transactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestServiceCreateValidationPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	bad := groceries()
	bad.Date = ""
	_, err := svc.Create(context.Background(), "alice", bad)
	assert.ErrorIs(t, err, core.ErrMissingField)
	assert.Empty(t, pub.events)
}

func TestServiceDelete(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)

	tx, err := svc.Create(ctx, "alice", groceries())
	require.NoError(t, err)

	ok, err := svc.Delete(ctx, "alice", "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, pub.events, 1)

	ok, err = svc.Delete(ctx, "alice", tx.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, pub.events, 2)
	assert.Equal(t, core.EventDeleted, pub.events[1].Op)
	assert.Equal(t, tx, pub.events[1].Transaction)
}

func TestServiceListAndReport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil)

	inputs := []core.NewTransaction{
		{Type: "expense", Title: "Rent", Amount: "100", Category: "utilities", Date: "2025-01-05"},
		{Type: "expense", Title: "Lunch", Amount: "50", Category: "food", Date: "2025-02-10"},
		{Type: "income", Title: "Pay", Amount: "500", Category: "salary", Date: "2025-02-10"},
	}
	for _, in := range inputs {
		_, err := svc.Create(ctx, "alice", in)
		require.NoError(t, err)
	}

	food, err := svc.List(ctx, "alice", filter.Spec{Category: "food"})
	require.NoError(t, err)
	require.Len(t, food, 1)
	assert.Equal(t, "Lunch", food[0].Title)

	report, err := svc.Report(ctx, "alice", core.NewDate(2025, 2, 10), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TodaysCount)
	assert.Equal(t, core.Money{Cents: 7500}, report.MonthlyAverage)
	assert.Equal(t, core.Money{Cents: 5000}, report.MonthExpenses)

	other, err := svc.Transactions(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)

	tax, err := svc.Taxonomy(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, tax.Allows(core.Expense, "food"))
}

func TestServiceClose(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newTestService(pub)
	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)

	bare, _ := newTestService(nil)
	assert.NoError(t, bare.Close())
}

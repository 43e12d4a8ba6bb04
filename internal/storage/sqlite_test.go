package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
)

func newTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "bilancio.db")
	s, err := NewSQLiteStore(path, log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSQLiteStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "a", "one"))
	require.NoError(t, s.Set(ctx, "a", "two"))
	require.NoError(t, s.Set(ctx, "b", ""))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	v, ok, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)
	require.NoError(t, s.Set(ctx, "k", "persisted"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, log.Discard())
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", v)

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestSQLiteStoreBacksLedger(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	store := ledger.New("alice", s, ledger.WithLogger(log.Discard()))
	tx, err := store.Add(ctx, core.NewTransaction{Type: "expense", Title: "Bus", Amount: "2.20", Category: "transport", Date: "2025-03-01"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path, log.Discard())
	require.NoError(t, err)
	defer reopened.Close()

	fresh := ledger.New("alice", reopened, ledger.WithLogger(log.Discard()))
	records, err := fresh.Load(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, tx.ID, records[0].ID)
	assert.Equal(t, core.Money{Cents: 220}, records[0].Amount)
}

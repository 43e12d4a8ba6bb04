package ledger

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
	"bilancio/internal/kv/memory"
)

func TestCodecRoundTrip(t *testing.T) {
	records := []core.Transaction{
		{
			ID: "01JK0000000000000000000002", Type: core.Income, Title: "Salary \"Feb\"", Amount: core.Money{Cents: 250000},
			Category: "salary", Date: core.NewDate(2025, 2, 1), Notes: "",
			Timestamp: time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			ID: "01JK0000000000000000000001", Type: core.Expense, Title: "Café", Amount: core.Money{Cents: 350},
			Category: "food", Date: core.NewDate(2025, 1, 31), Notes: "with, commas\nand lines",
			Timestamp: time.Date(2025, 1, 31, 17, 45, 12, 345000000, time.UTC),
		},
	}

	value, err := Encode(records)
	require.NoError(t, err)

	decoded, err := Decode(value)
	require.NoError(t, err)
	require.Len(t, decoded, len(records))
	for i := range records {
		assert.Equal(t, records[i].ID, decoded[i].ID)
		assert.Equal(t, records[i].Type, decoded[i].Type)
		assert.Equal(t, records[i].Title, decoded[i].Title)
		assert.Equal(t, records[i].Amount, decoded[i].Amount)
		assert.Equal(t, records[i].Category, decoded[i].Category)
		assert.True(t, records[i].Date.Equal(decoded[i].Date.Time))
		assert.Equal(t, records[i].Notes, decoded[i].Notes)
		assert.True(t, records[i].Timestamp.Equal(decoded[i].Timestamp))
	}
}

func TestEncodeEmpty(t *testing.T) {
	value, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", value)
}

func TestDecodeEdgeCases(t *testing.T) {
	records, err := Decode("")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	records, err = Decode("null")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = Decode(`[{"amount": "lots"}]`)
	assert.Error(t, err)
}

func TestDecodeAcceptsNumericAmounts(t *testing.T) {
	records, err := Decode(`[{"id":"1","type":"expense","title":"t","amount":12.5,"category":"food","date":"2025-01-02","notes":"","timestamp":"2025-01-02T10:00:00.000Z"}]`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1250), records[0].Amount.Cents)
}

func TestULIDsAreUniqueAndOrdered(t *testing.T) {
	gen := NewULIDsFrom(bytes.NewReader(bytes.Repeat([]byte{7}, 4096)))
	now := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	seen := make(map[string]struct{})
	var ids []string
	for i := 0; i < 100; i++ {
		id, err := gen.NewID(now)
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Set(ctx, StorageKey("bob"), "[]"))
	require.NoError(t, store.Set(ctx, StorageKey("alice"), "[]"))
	require.NoError(t, store.Set(ctx, KeyPrefix, "[]"))
	require.NoError(t, store.Set(ctx, "unrelated", "x"))

	users, err := Users(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

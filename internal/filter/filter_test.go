package filter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func tx(id string, typ core.Type, category string, cents int64, date core.Date) core.Transaction {
	return core.Transaction{ID: id, Type: typ, Title: id, Category: category, Amount: core.Money{Cents: cents}, Date: date}
}

func datePtr(y, m, d int) *core.Date {
	v := core.NewDate(y, m, d)
	return &v
}

func moneyPtr(cents int64) *core.Money {
	return &core.Money{Cents: cents}
}

func sample() []core.Transaction {
	return []core.Transaction{
		tx("a", core.Expense, "food", 1200, core.NewDate(2025, 3, 10)),
		tx("b", core.Income, "salary", 300000, core.NewDate(2025, 3, 1)),
		tx("c", core.Expense, "food", 4500, core.NewDate(2025, 2, 20)),
		tx("d", core.Expense, "transport", 250, core.NewDate(2025, 2, 1)),
	}
}

func ids(records []core.Transaction) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestApplyEmptySpecIsIdentity(t *testing.T) {
	records := sample()
	assert.Equal(t, records, Apply(records, Spec{}))
	assert.True(t, Spec{}.IsEmpty())
}

func TestApply(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		want []string
	}{
		{"category", Spec{Category: "food"}, []string{"a", "c"}},
		{"from inclusive", Spec{From: datePtr(2025, 3, 1)}, []string{"a", "b"}},
		{"to inclusive", Spec{To: datePtr(2025, 2, 20)}, []string{"c", "d"}},
		{"date window", Spec{From: datePtr(2025, 2, 15), To: datePtr(2025, 3, 5)}, []string{"b", "c"}},
		{"min inclusive", Spec{Min: moneyPtr(4500)}, []string{"b", "c"}},
		{"max inclusive", Spec{Max: moneyPtr(1200)}, []string{"a", "d"}},
		{"conjunction", Spec{Category: "food", Min: moneyPtr(2000), To: datePtr(2025, 2, 28)}, []string{"c"}},
		{"nothing matches", Spec{Category: "healthcare"}, []string{}},
		{"inverted window", Spec{From: datePtr(2025, 3, 31), To: datePtr(2025, 1, 1)}, []string{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Apply(sample(), tc.spec)
			assert.Equal(t, tc.want, ids(got))
			for _, r := range got {
				assert.True(t, tc.spec.Match(r))
			}
		})
	}
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	records := sample()
	_ = Apply(records, Spec{Category: "transport"})
	assert.Equal(t, sample(), records)
}

func TestParseSpec(t *testing.T) {
	q := url.Values{
		"category": {"food"},
		"from":     {"2025-01-01"},
		"to":       {"2025-01-31"},
		"min":      {"0"},
		"max":      {"12,50"},
	}
	spec := ParseSpec(q)

	assert.Equal(t, "food", spec.Category)
	require.NotNil(t, spec.From)
	assert.Equal(t, core.NewDate(2025, 1, 1), *spec.From)
	require.NotNil(t, spec.To)
	assert.Equal(t, core.NewDate(2025, 1, 31), *spec.To)
	require.NotNil(t, spec.Min)
	assert.Equal(t, int64(0), spec.Min.Cents)
	require.NotNil(t, spec.Max)
	assert.Equal(t, int64(1250), spec.Max.Cents)
}

func TestParseSpecZeroMaxIsUnbounded(t *testing.T) {
	for _, v := range []string{"0", "0.00", "0,0"} {
		spec := ParseSpec(url.Values{"max": {v}})
		assert.Nil(t, spec.Max, "max=%s", v)
		assert.True(t, spec.IsEmpty(), "max=%s", v)
	}

	records := []core.Transaction{
		{ID: "a", Type: core.Expense, Amount: core.Money{Cents: 500}, Category: "food", Date: core.NewDate(2025, 1, 1)},
		{ID: "b", Type: core.Income, Amount: core.Money{Cents: 120000}, Category: "salary", Date: core.NewDate(2025, 1, 2)},
	}
	assert.Len(t, Apply(records, ParseSpec(url.Values{"min": {"0"}, "max": {"0"}})), 2)
}

func TestParseSpecIgnoresGarbage(t *testing.T) {
	spec := ParseSpec(url.Values{"from": {"yesterday"}, "min": {"cheap"}, "max": {"-4"}})
	assert.True(t, spec.IsEmpty())
}

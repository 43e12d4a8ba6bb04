// Package filter narrows a transaction list to the records matching a
// conjunction of optional predicates.
package filter

import (
	"net/url"
	"strings"

	"bilancio/internal/core"
)

// Spec holds the optional constraints of a filtered view. An empty Category
// and nil bounds mean "no constraint"; Spec{} matches every record.
type Spec struct {
	Category string
	From     *core.Date
	To       *core.Date
	Min      *core.Money
	Max      *core.Money
}

// IsEmpty reports whether the spec constrains nothing.
func (s Spec) IsEmpty() bool {
	return s.Category == "" && s.From == nil && s.To == nil && s.Min == nil && s.Max == nil
}

// Match reports whether tx satisfies every present constraint. Date and
// amount bounds are inclusive.
func (s Spec) Match(tx core.Transaction) bool {
	if s.Category != "" && tx.Category != s.Category {
		return false
	}
	if s.From != nil && tx.Date.Before(s.From.Time) {
		return false
	}
	if s.To != nil && tx.Date.After(s.To.Time) {
		return false
	}
	if s.Min != nil && tx.Amount.Cents < s.Min.Cents {
		return false
	}
	if s.Max != nil && tx.Amount.Cents > s.Max.Cents {
		return false
	}
	return true
}

// Apply returns the records matching spec, in input order. The input slice
// is never modified.
func Apply(records []core.Transaction, spec Spec) []core.Transaction {
	out := make([]core.Transaction, 0, len(records))
	for _, tx := range records {
		if spec.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// ParseSpec builds a Spec from the query parameters category, from, to, min
// and max. Values that do not parse are treated as absent.
func ParseSpec(q url.Values) Spec {
	var s Spec
	s.Category = strings.TrimSpace(q.Get("category"))

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			s.From = &d
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			s.To = &d
		}
	}
	s.Min = parseBound(q.Get("min"), true)
	s.Max = parseBound(q.Get("max"), false)
	return s
}

// parseBound reads an amount bound. A zero minimum is kept; a zero maximum
// means no upper bound, like an empty one.
func parseBound(v string, lower bool) *core.Money {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if strings.Trim(strings.ReplaceAll(v, ",", "."), "0.") == "" {
		if !lower {
			return nil
		}
		return &core.Money{}
	}
	m, err := core.ParseMoney(v)
	if err != nil {
		return nil
	}
	return &m
}

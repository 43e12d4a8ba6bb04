// Package stats computes the derived figures shown next to a transaction list.
//
// Every function is pure: it reads the records it is given and takes the
// reference date explicitly, so results never depend on the wall clock.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// DefaultBreakdownLimit is the number of months MonthlyBreakdown keeps when
// no positive limit is given.
const DefaultBreakdownLimit = 12

// MonthTotal is one row of the monthly expense breakdown.
type MonthTotal struct {
	Key   core.MonthKey `json:"month"`
	Label string        `json:"month_name"`
	Year  int           `json:"year"`
	Total core.Money    `json:"amount"`
	Count int           `json:"count"`
}

// Summary is the all-time overview. Balance is negative when expenses
// exceed income.
type Summary struct {
	Income   core.Money `json:"income"`
	Expenses core.Money `json:"expenses"`
	Balance  core.Money `json:"balance"`
}

// TodaysCount counts records of any type dated today.
func TodaysCount(records []core.Transaction, today core.Date) int {
	n := 0
	for _, tx := range records {
		if tx.Date.SameDay(today) {
			n++
		}
	}
	return n
}

// TodaysExpenseTotal sums the expenses dated today.
func TodaysExpenseTotal(records []core.Transaction, today core.Date) core.Money {
	var total core.Money
	for _, tx := range records {
		if tx.IsExpense() && tx.Date.SameDay(today) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// CurrentMonthExpenseTotal sums the expenses in the calendar month of ref.
func CurrentMonthExpenseTotal(records []core.Transaction, ref core.Date) core.Money {
	month := ref.MonthKey()
	var total core.Money
	for _, tx := range records {
		if tx.IsExpense() && month.Contains(tx.Date) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// MonthlyAverageExpense returns the mean of the per-month expense sums,
// rounded half-up to cents. Months without expenses do not count. The result
// is zero when there are no expenses at all.
func MonthlyAverageExpense(records []core.Transaction) core.Money {
	groups := groupExpenses(records)
	if len(groups) == 0 {
		return core.Money{}
	}
	var sum int64
	for _, g := range groups {
		sum += g.Total.Cents
	}
	mean := decimal.New(sum, -2).Div(decimal.NewFromInt(int64(len(groups))))
	return core.MoneyFromDecimal(mean)
}

// MonthlyBreakdown groups expenses by calendar month, most recent month
// first, and keeps at most limit groups. A limit <= 0 means
// DefaultBreakdownLimit.
func MonthlyBreakdown(records []core.Transaction, limit int) []MonthTotal {
	if limit <= 0 {
		limit = DefaultBreakdownLimit
	}
	groups := groupExpenses(records)
	out := make([]MonthTotal, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[j].Key.Before(out[i].Key)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TodaysTransactions returns the records dated today in their input order.
func TodaysTransactions(records []core.Transaction, today core.Date) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, tx := range records {
		if tx.Date.SameDay(today) {
			out = append(out, tx)
		}
	}
	return out
}

// Totals sums income and expenses over every record.
func Totals(records []core.Transaction) Summary {
	var s Summary
	for _, tx := range records {
		switch tx.Type {
		case core.Income:
			s.Income = s.Income.Add(tx.Amount)
		case core.Expense:
			s.Expenses = s.Expenses.Add(tx.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expenses)
	return s
}

func groupExpenses(records []core.Transaction) map[core.MonthKey]*MonthTotal {
	groups := make(map[core.MonthKey]*MonthTotal)
	for _, tx := range records {
		if !tx.IsExpense() {
			continue
		}
		key := tx.Date.MonthKey()
		g, ok := groups[key]
		if !ok {
			g = &MonthTotal{Key: key, Label: key.Label(), Year: key.Year}
			groups[key] = g
		}
		g.Total = g.Total.Add(tx.Amount)
		g.Count++
	}
	return groups
}

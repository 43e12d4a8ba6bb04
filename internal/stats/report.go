package stats

import "bilancio/internal/core"

// Report bundles every statistic for one reference date.
type Report struct {
	Today              core.Date          `json:"today"`
	TodaysCount        int                `json:"todays_count"`
	TodaysExpenses     core.Money         `json:"todays_expenses"`
	MonthExpenses      core.Money         `json:"month_expenses"`
	MonthlyAverage     core.Money         `json:"monthly_average"`
	Totals             Summary            `json:"totals"`
	Months             []MonthTotal       `json:"months"`
	TodaysTransactions []core.Transaction `json:"todays_transactions"`
}

// Analyze computes a Report over records. The breakdown keeps at most
// limit months, see MonthlyBreakdown.
func Analyze(records []core.Transaction, today core.Date, limit int) Report {
	return Report{
		Today:              today,
		TodaysCount:        TodaysCount(records, today),
		TodaysExpenses:     TodaysExpenseTotal(records, today),
		MonthExpenses:      CurrentMonthExpenseTotal(records, today),
		MonthlyAverage:     MonthlyAverageExpense(records),
		Totals:             Totals(records),
		Months:             MonthlyBreakdown(records, limit),
		TodaysTransactions: TodaysTransactions(records, today),
	}
}

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bilancio/internal/cli"
	"bilancio/internal/core"
	"bilancio/internal/stats"
)

func (a *app) statsCmd() *cobra.Command {
	var (
		today string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show spending statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref := a.today()
			if today != "" {
				d, err := core.ParseDate(today)
				if err != nil {
					return err
				}
				ref = d
			}

			l, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer l.Close()

			report, err := l.Service.Report(cmd.Context(), a.user, ref, limit)
			if err != nil {
				return userErr(err)
			}

			out := cmd.OutOrStdout()
			summary := strings.Join([]string{
				fmt.Sprintf("Transactions today:  %d", report.TodaysCount),
				fmt.Sprintf("Spent today:         %s", report.TodaysExpenses),
				fmt.Sprintf("Spent this month:    %s", report.MonthExpenses),
				fmt.Sprintf("Monthly average:     %s", report.MonthlyAverage),
				"",
				fmt.Sprintf("Total income:        %s", cli.IncomeStyle.Render(report.Totals.Income.String())),
				fmt.Sprintf("Total expenses:      %s", cli.ExpenseStyle.Render(report.Totals.Expenses.String())),
				fmt.Sprintf("Balance:             %s", balance(report.Totals.Balance)),
			}, "\n")
			fmt.Fprintln(out, cli.RenderBox("Summary for "+report.Today.String(), summary))

			if len(report.Months) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, cli.FormatTitle("Expenses by month"))
				t := cli.NewTable(out, "Month", "Amount", "Count")
				for _, m := range report.Months {
					t.Row(fmt.Sprintf("%s %d", m.Label, m.Year), m.Total.String(), fmt.Sprint(m.Count))
				}
				_ = t.Flush()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&today, "today", "", "reference date as YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&limit, "limit", stats.DefaultBreakdownLimit, "months in the breakdown")
	return cmd
}

func balance(m core.Money) string {
	if m.Cents < 0 {
		return cli.ExpenseStyle.Render(m.String())
	}
	return cli.IncomeStyle.Render(m.String())
}

func (a *app) categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the categories accepted per transaction type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			for _, typ := range []core.Type{core.Income, core.Expense} {
				fmt.Fprintln(out, cli.FormatTitle(string(typ)))
				for _, c := range l.Taxonomy.For(typ) {
					fmt.Fprintln(out, "  "+c)
				}
			}
			return nil
		},
	}
}

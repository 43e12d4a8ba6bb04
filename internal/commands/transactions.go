package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"bilancio/internal/cli"
	"bilancio/internal/core"
	"bilancio/internal/export"
	"bilancio/internal/filter"
)

func (a *app) addCmd() *cobra.Command {
	var in core.NewTransaction

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an income or expense",
		Example: `  bilancio add -u alice --type expense --title Lunch --amount 12.50 --category food
  bilancio add -u alice --type income --title Salary --amount 2000 --category salary --date 2025-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Date == "" {
				in.Date = a.today().String()
			}
			l, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer l.Close()

			tx, err := l.Service.Create(cmd.Context(), a.user, in)
			if err != nil {
				return userErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Recorded %s %s %s (%s) on %s",
				tx.Type, tx.Title, tx.Amount, tx.Category, tx.Date)))
			fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("id "+tx.ID))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&in.Type, "type", "t", "expense", "income or expense")
	f.StringVar(&in.Title, "title", "", "short description")
	f.StringVarP(&in.Amount, "amount", "a", "", "positive amount, e.g. 12.50")
	f.StringVarP(&in.Category, "category", "c", "", "category allowed for the type")
	f.StringVarP(&in.Date, "date", "d", "", "date as YYYY-MM-DD (default today)")
	f.StringVarP(&in.Notes, "notes", "n", "", "free-form notes")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	var (
		category, from, to, minAmount, maxAmount string
		asJSON                                   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List transactions, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec := filter.ParseSpec(url.Values{
				"category": {category},
				"from":     {from},
				"to":       {to},
				"min":      {minAmount},
				"max":      {maxAmount},
			})

			l, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer l.Close()

			records, err := l.Service.List(cmd.Context(), a.user, spec)
			if err != nil {
				return userErr(err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No transactions found."))
				return nil
			}
			renderTransactions(out, records)
			fmt.Fprintf(out, "\n%d transaction(s)\n", len(records))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&category, "category", "c", "", "only this category")
	f.StringVar(&from, "from", "", "earliest date, inclusive")
	f.StringVar(&to, "to", "", "latest date, inclusive")
	f.StringVar(&minAmount, "min", "", "smallest amount, inclusive")
	f.StringVar(&maxAmount, "max", "", "largest amount, inclusive")
	f.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func renderTransactions(out io.Writer, records []core.Transaction) {
	t := cli.NewTable(out, "Date", "Type", "Title", "Category", "Amount", "ID")
	for _, tx := range records {
		amount := cli.ExpenseStyle.Render("-" + tx.Amount.String())
		if tx.IsIncome() {
			amount = cli.IncomeStyle.Render("+" + tx.Amount.String())
		}
		t.Row(tx.Date.String(), string(tx.Type), tx.Title, tx.Category, amount, tx.ID)
	}
	_ = t.Flush()
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a transaction by id",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer l.Close()

			removed, err := l.Service.Delete(cmd.Context(), a.user, args[0])
			if err != nil {
				return userErr(err)
			}
			if !removed {
				return fmt.Errorf("transaction %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted "+args[0]))
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every transaction as CSV",
		Long: `Writes the full ledger as CSV, most recent first. Without --output the file
is named expense-tracker-YYYY-MM-DD.csv after today's date; use "-" for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer l.Close()

			records, err := l.Service.Transactions(cmd.Context(), a.user)
			if err != nil {
				return userErr(err)
			}
			if len(records) == 0 {
				return export.ErrNothingToExport
			}

			if output == "-" {
				return export.WriteCSV(cmd.OutOrStdout(), records)
			}
			if output == "" {
				output = export.Filename(a.today())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := export.WriteCSV(f, records); err != nil {
				return errors.Join(err, f.Close())
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close export file: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d transaction(s) to %s", len(records), output)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", `destination file, "-" for stdout`)
	return cmd
}

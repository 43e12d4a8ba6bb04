// Package export renders a transaction list as a CSV download.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"bilancio/internal/core"
)

// Header is the first line of every export.
const Header = "Date,Type,Title,Category,Amount,Notes"

var ErrNothingToExport = errors.New("no transactions to export")

// Filename returns the download name for an export taken on day.
func Filename(day core.Date) string {
	return fmt.Sprintf("expense-tracker-%s.csv", day)
}

// WriteCSV writes records in the order given, one line each. Title and notes
// are always quoted; the other columns only when they contain a delimiter.
func WriteCSV(w io.Writer, records []core.Transaction) error {
	if len(records) == 0 {
		return ErrNothingToExport
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(Header)
	for _, tx := range records {
		bw.WriteByte('\n')
		fields := []string{
			field(tx.Date.String()),
			field(string(tx.Type)),
			quote(tx.Title),
			field(tx.Category),
			tx.Amount.String(),
			quote(tx.Notes),
		}
		bw.WriteString(strings.Join(fields, ","))
	}
	bw.WriteByte('\n')
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func field(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}

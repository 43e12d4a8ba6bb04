package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bilancio/internal/core"
)

func TestWriteCSV(t *testing.T) {
	records := []core.Transaction{
		{Type: core.Income, Title: "Salary", Amount: core.Money{Cents: 250000}, Category: "salary", Date: core.NewDate(2025, 2, 1)},
		{Type: core.Expense, Title: `Book "Go"`, Amount: core.Money{Cents: 1999}, Category: "shopping", Date: core.NewDate(2025, 1, 31), Notes: "gift, for Ann"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	want := "Date,Type,Title,Category,Amount,Notes\n" +
		`2025-02-01,income,"Salary",salary,2500.00,""` + "\n" +
		`2025-01-31,expense,"Book ""Go""",shopping,19.99,"gift, for Ann"` + "\n"
	assert.Equal(t, want, buf.String())

	// The output is valid CSV for standard readers.
	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"2025-01-31", "expense", `Book "Go"`, "shopping", "19.99", "gift, for Ann"}, rows[2])
}

func TestWriteCSVQuotesCategoryWithComma(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []core.Transaction{
		{Type: core.Expense, Title: "x", Amount: core.Money{Cents: 1}, Category: "food, drinks", Date: core.NewDate(2025, 1, 1)},
	}))
	assert.Contains(t, buf.String(), `"food, drinks"`)
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteCSV(&buf, nil), ErrNothingToExport)
	assert.Zero(t, buf.Len())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "expense-tracker-2025-03-09.csv", Filename(core.NewDate(2025, 3, 9)))
}

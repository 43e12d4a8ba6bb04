package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  Type = "income"
	Expense Type = "expense"
)

// DateLayout is the calendar date format used on every boundary.
const DateLayout = "2006-01-02"

type (
	Type string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID        string    `json:"id"`
		Type      Type      `json:"type"`
		Title     string    `json:"title"`
		Amount    Money     `json:"amount"`
		Category  string    `json:"category"`
		Date      Date      `json:"date"`
		Notes     string    `json:"notes"`
		Timestamp time.Time `json:"timestamp"`
	}

	// NewTransaction is the raw user input for a transaction, before validation.
	NewTransaction struct {
		Type     string `json:"type"`
		Title    string `json:"title"`
		Amount   string `json:"amount"`
		Category string `json:"category"`
		Date     string `json:"date"`
		Notes    string `json:"notes"`
	}
)

var (
	ErrMissingField    = errors.New("please fill in all required fields")
	ErrInvalidAmount   = errors.New("amount must be a number greater than 0")
	ErrInvalidType     = errors.New("type must be income or expense")
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrUnknownCategory = errors.New("unknown category for transaction type")
)

// ValidationError reports the first input field that failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (t Type) Valid() bool {
	return t == Income || t == Expense
}

func (t Type) String() string {
	return string(t)
}

// ParseType normalises s and checks it names a known transaction type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrInvalidType
	}
	return t, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MonthKey returns the calendar month the date falls in.
func (d Date) MonthKey() MonthKey {
	return MonthKey{Year: d.Year(), Month: d.Month()}
}

// SameDay compares calendar dates, ignoring any time component.
func (d Date) SameDay(o Date) bool {
	return d.Year() == o.Year() && d.Month() == o.Month() && d.Day() == o.Day()
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse validates the input against the taxonomy and returns the transaction
// it describes. ID and Timestamp are left for the store to assign.
// A nil taxonomy skips the category membership check.
func (n NewTransaction) Parse(tax *Taxonomy) (Transaction, error) {
	required := []struct{ field, value string }{
		{"type", n.Type},
		{"title", n.Title},
		{"amount", n.Amount},
		{"category", n.Category},
		{"date", n.Date},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return Transaction{}, invalid(r.field, ErrMissingField)
		}
	}

	typ, err := ParseType(n.Type)
	if err != nil {
		return Transaction{}, invalid("type", err)
	}
	amount, err := ParseMoney(n.Amount)
	if err != nil {
		return Transaction{}, invalid("amount", err)
	}
	date, err := ParseDate(n.Date)
	if err != nil {
		return Transaction{}, invalid("date", ErrInvalidDate)
	}
	category := strings.TrimSpace(n.Category)
	if tax != nil && !tax.Allows(typ, category) {
		return Transaction{}, invalid("category", ErrUnknownCategory)
	}

	return Transaction{
		Type:     typ,
		Title:    strings.TrimSpace(n.Title),
		Amount:   amount,
		Category: category,
		Date:     date,
		Notes:    strings.TrimSpace(n.Notes),
	}, nil
}

func (n NewTransaction) Validate(tax *Taxonomy) error {
	_, err := n.Parse(tax)
	return err
}

func (t Transaction) IsExpense() bool {
	return t.Type == Expense
}

func (t Transaction) IsIncome() bool {
	return t.Type == Income
}

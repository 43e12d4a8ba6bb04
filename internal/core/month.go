package core

import (
	"fmt"
	"time"
)

// MonthKey identifies a calendar month. Keys order chronologically through
// Before; their string form is only for display and map keys.
type MonthKey struct {
	Year  int
	Month time.Month
}

func (k MonthKey) Before(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

// String returns the zero-padded "YYYY-MM" form.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k MonthKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Label returns the English month name.
func (k MonthKey) Label() string {
	return k.Month.String()
}

// Contains reports whether d falls inside the month.
func (k MonthKey) Contains(d Date) bool {
	return d.Year() == k.Year && d.Month() == k.Month
}

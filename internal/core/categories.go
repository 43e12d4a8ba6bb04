package core

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Taxonomy lists the categories a user may pick for each transaction type.
type Taxonomy struct {
	Income  []string `yaml:"income" json:"income"`
	Expense []string `yaml:"expense" json:"expense"`
}

// DefaultTaxonomy returns the built-in category lists.
func DefaultTaxonomy() *Taxonomy {
	return &Taxonomy{
		Income:  []string{"salary", "freelance", "investment", "business", "other"},
		Expense: []string{"food", "transport", "entertainment", "utilities", "shopping", "healthcare", "other"},
	}
}

// LoadTaxonomy reads a YAML categories file:
//
//	income: [salary, freelance]
//	expense: [food, rent]
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ParseTaxonomy(data)
}

func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	t.Income = dedupe(t.Income)
	t.Expense = dedupe(t.Expense)
	if len(t.Income) == 0 || len(t.Expense) == 0 {
		return nil, errors.New("categories file must list at least one income and one expense category")
	}
	return &t, nil
}

// For returns the categories of the given type.
func (t *Taxonomy) For(typ Type) []string {
	switch typ {
	case Income:
		return slices.Clone(t.Income)
	case Expense:
		return slices.Clone(t.Expense)
	default:
		return nil
	}
}

func (t *Taxonomy) Allows(typ Type, category string) bool {
	switch typ {
	case Income:
		return slices.Contains(t.Income, category)
	case Expense:
		return slices.Contains(t.Expense, category)
	default:
		return false
	}
}

// dedupe trims entries and drops blanks and repeats, preserving input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Describe synthesizes a human-readable description for a rule that has none
// configured, e.g. "$1.00 and 5% per item and $10.00 base rate and free
// shipping and using code SAVE10". Discounts are stored as negative amounts
// but displayed as positive magnitudes.
func Describe(rule *Rule) string {
	var clauses []string

	if !rule.PerItemDiscount.IsZero() || !rule.PercentDiscount.IsZero() {
		var parts []string
		if !rule.PerItemDiscount.IsZero() {
			parts = append(parts, formatAmount(rule.PerItemDiscount.Neg()))
		}
		if !rule.PercentDiscount.IsZero() {
			parts = append(parts, formatPercent(rule.PercentDiscount.Neg()))
		}
		clauses = append(clauses, strings.Join(parts, " and ")+" per item")
	}

	if !rule.BaseDiscount.IsZero() {
		clauses = append(clauses, formatAmount(rule.BaseDiscount.Neg())+" base rate")
	}

	if rule.FreeShipping {
		clauses = append(clauses, "free shipping")
	}

	if rule.Code != nil && *rule.Code != "" {
		clauses = append(clauses, "using code "+strings.ToUpper(*rule.Code))
	}

	return strings.Join(clauses, " and ")
}

func formatAmount(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// formatPercent renders a fractional value as a percentage, without
// trailing zeros: 0.05 -> "5%", 0.125 -> "12.5%".
func formatPercent(d decimal.Decimal) string {
	return d.Shift(2).String() + "%"
}

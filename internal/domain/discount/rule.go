package discount

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promo/internal/domain/order"
)

// AdjustmentType tags every record produced by the adjuster.
const AdjustmentType = "Discount"

// Rule is a configured promotional rule. Discount amounts are signed: a
// negative BaseDiscount, PerItemDiscount or PercentDiscount reduces the
// order total. PercentDiscount is fractional (-0.10 means 10% off).
type Rule struct {
	ID          string
	Name        string
	Description string

	// Code is the coupon code that activates the rule. Nil means the rule
	// applies without any code.
	Code *string

	Enabled        bool
	SortOrder      int
	StopProcessing bool

	DateFrom *time.Time
	DateTo   *time.Time

	// PerEmailLimit caps how many historical orders per customer email may
	// use this rule's code. Zero means unlimited.
	PerEmailLimit int

	// PurchaseQty is the minimum matching quantity required.
	// MaxPurchaseQty, when positive, is the maximum allowed.
	PurchaseQty    int
	MaxPurchaseQty int

	// PurchaseTotal is the minimum matching subtotal required.
	PurchaseTotal decimal.Decimal

	BaseDiscount    decimal.Decimal
	PerItemDiscount decimal.Decimal
	PercentDiscount decimal.Decimal

	FreeShipping bool

	// ProductIDs and Categories scope which line items the rule matches.
	// Both empty means the rule matches every line item.
	ProductIDs []string
	Categories []string
}

// Adjustment is a computed, signed monetary delta applied to an order,
// together with the line items it affected.
type Adjustment struct {
	Type        string
	Name        string
	OrderID     string
	Description string
	Amount      decimal.Decimal
	LineItemIDs []string
}

// Catalog supplies the ordered list of enabled rules applicable to a coupon
// code: rules whose code equals couponCode or whose code is unset, sorted by
// sort order with a stable tie-break.
type Catalog interface {
	ListEnabled(ctx context.Context, couponCode string) ([]Rule, error)
}

// Matcher decides whether a line item satisfies a rule's product and
// category conditions.
type Matcher interface {
	Matches(item *order.LineItem, rule *Rule) bool
}

// Rounder rounds an amount to the active currency's minor unit.
type Rounder func(decimal.Decimal) decimal.Decimal

// RoundToCent is the default Rounder: two decimal places, half away from
// zero.
func RoundToCent(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

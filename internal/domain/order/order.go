package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the aggregate root for a purchase in progress. BaseDiscount and
// BaseShippingCost are order-level amounts that sit outside any single line
// item; both are mutated in place by the discount adjuster during a pricing
// pass.
type Order struct {
	ID               string
	Email            string
	CouponCode       string
	BaseDiscount     decimal.Decimal
	BaseShippingCost decimal.Decimal
	CreatedAt        time.Time
}

// LineItem is one product line on an order. Discount is signed: a negative
// value reduces the line total. The adjuster mutates Discount and
// ShippingCost in place.
type LineItem struct {
	ID           string
	ProductID    string
	Category     string
	Qty          int
	SalePrice    decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
}

// Subtotal returns qty times the sale price rounded to the currency minor
// unit. The sale price is rounded before multiplication so the subtotal is
// always an exact multiple of the displayed unit price.
func (li *LineItem) Subtotal() decimal.Decimal {
	return li.SalePrice.Round(2).Mul(decimal.NewFromInt(int64(li.Qty)))
}

// Total returns the line's subtotal with its discount and shipping applied.
func (li *LineItem) Total() decimal.Decimal {
	return li.Subtotal().Add(li.Discount).Add(li.ShippingCost)
}

// ItemTotal sums the line totals for the given items.
func ItemTotal(items []*LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(li.Total())
	}
	return sum
}

// Total returns the order grand total: line totals plus the order-level base
// shipping and base discount, floored at zero.
func (o *Order) Total(items []*LineItem) decimal.Decimal {
	total := ItemTotal(items).Add(o.BaseShippingCost).Add(o.BaseDiscount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// History provides lookup of a customer's previous orders. The adjuster uses
// it to count historical uses of a coupon code per email address.
type History interface {
	FindByEmail(ctx context.Context, email string) ([]Order, error)
}

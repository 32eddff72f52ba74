package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promo/internal/domain/order"
)

// Adjuster evaluates discount rules against an order and applies their
// monetary effects.
//
// Adjust mutates its arguments in place: line item Discount and ShippingCost
// fields, and the order's BaseDiscount, BaseShippingCost and CouponCode.
// Callers own serialization; the adjuster holds no locks and a pass is only
// idempotent against a freshly reset order snapshot.
type Adjuster struct {
	catalog Catalog
	history order.History
	matcher Matcher
	round   Rounder
	now     func() time.Time
}

// AdjusterOption customizes an Adjuster.
type AdjusterOption func(*Adjuster)

// WithRounder overrides the currency rounding function.
func WithRounder(r Rounder) AdjusterOption {
	return func(a *Adjuster) { a.round = r }
}

// WithClock overrides the time source used for date-window checks.
func WithClock(now func() time.Time) AdjusterOption {
	return func(a *Adjuster) { a.now = now }
}

// NewAdjuster creates an Adjuster with explicit collaborator dependencies.
func NewAdjuster(catalog Catalog, history order.History, matcher Matcher, opts ...AdjusterOption) *Adjuster {
	a := &Adjuster{
		catalog: catalog,
		history: history,
		matcher: matcher,
		round:   RoundToCent,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Adjust runs one full adjustment pass: it fetches the applicable rules for
// the order's coupon code and applies them in catalog order. A rule with
// StopProcessing set terminates the pass once it produces an adjustment.
// With no line items it returns an empty slice and touches nothing.
func (a *Adjuster) Adjust(ctx context.Context, o *order.Order, items []*order.LineItem) ([]Adjustment, error) {
	if len(items) == 0 {
		return []Adjustment{}, nil
	}

	rules, err := a.catalog.ListEnabled(ctx, o.CouponCode)
	if err != nil {
		return nil, errors.Wrap(err, "list discounts")
	}

	adjustments := make([]Adjustment, 0, len(rules))
	for i := range rules {
		adj, err := a.tryApply(ctx, o, items, &rules[i])
		if err != nil {
			return nil, err
		}
		if adj == nil {
			continue
		}
		adjustments = append(adjustments, *adj)

		if rules[i].StopProcessing {
			break
		}
	}

	return adjustments, nil
}

// tryApply evaluates a single rule. A nil adjustment means the rule does not
// apply; that is a normal negative result, not a failure.
func (a *Adjuster) tryApply(ctx context.Context, o *order.Order, items []*order.LineItem, rule *Rule) (*Adjustment, error) {
	// Coupon usage gate. A coupon can land in an anonymous cart before the
	// customer enters an email, so the per-email limit is enforced here and
	// the code is stripped from the order once the limit is exhausted. This
	// runs before every other gate on purpose: the code is invalidated even
	// when the rule would have been rejected further down anyway.
	if rule.Code != nil && o.CouponCode == *rule.Code && rule.PerEmailLimit > 0 && o.Email != "" {
		previous, err := a.history.FindByEmail(ctx, o.Email)
		if err != nil {
			return nil, errors.Wrap(err, "load order history")
		}

		used := 0
		for i := range previous {
			if previous[i].CouponCode == *rule.Code {
				used++
			}
		}

		if used >= rule.PerEmailLimit {
			o.CouponCode = ""
			return nil, nil
		}
	}

	now := a.now()
	if rule.DateFrom != nil && now.Before(*rule.DateFrom) {
		return nil, nil
	}
	if rule.DateTo != nil && now.After(*rule.DateTo) {
		return nil, nil
	}

	matchingQty := 0
	matchingTotal := decimal.Zero
	matching := make(map[string]struct{}, len(items))
	for _, item := range items {
		if a.matcher.Matches(item, rule) {
			matching[item.ID] = struct{}{}
			matchingQty += item.Qty
			matchingTotal = matchingTotal.Add(item.Subtotal())
		}
	}

	if matchingQty == 0 {
		return nil, nil
	}
	if rule.MaxPurchaseQty > 0 && matchingQty > rule.MaxPurchaseQty {
		return nil, nil
	}
	if matchingQty < rule.PurchaseQty {
		return nil, nil
	}
	if matchingTotal.LessThan(rule.PurchaseTotal) {
		return nil, nil
	}

	amount := rule.BaseDiscount
	shippingRemoved := decimal.Zero
	affected := make([]string, 0, len(matching))

	for _, item := range items {
		if _, ok := matching[item.ID]; !ok {
			continue
		}

		// Each per-item and percentage amount is rounded before it is
		// accumulated, never after summing, so rounding never drifts across
		// many line items.
		perItem := a.round(rule.PerItemDiscount.Mul(decimal.NewFromInt(int64(item.Qty))))
		percent := a.round(rule.PercentDiscount.Mul(item.Subtotal()))

		amount = amount.Add(perItem).Add(percent)
		item.Discount = item.Discount.Add(perItem).Add(percent)

		// A line's discount never exceeds its subtotal. Clamp it and give
		// the clamped-off difference back to the running amount so the
		// adjustment reflects what was actually granted.
		if item.Discount.Neg().GreaterThan(item.Subtotal()) {
			diff := item.Discount.Neg().Sub(item.Subtotal())
			item.Discount = item.Subtotal().Neg()
			amount = amount.Add(diff)
		}

		affected = append(affected, item.ID)

		if rule.FreeShipping {
			shippingRemoved = shippingRemoved.Add(item.ShippingCost)
			item.ShippingCost = decimal.Zero
		}
	}

	if rule.FreeShipping {
		shippingRemoved = shippingRemoved.Add(o.BaseShippingCost)
		o.BaseShippingCost = decimal.Zero
	}

	// The order-level base discount accumulates whether or not an
	// adjustment record ends up being produced.
	o.BaseDiscount = o.BaseDiscount.Add(rule.BaseDiscount)

	if amount.IsZero() && shippingRemoved.IsZero() {
		return nil, nil
	}

	description := rule.Description
	if description == "" {
		description = Describe(rule)
	}

	// Shipping removal is itself a discount, so it further decreases the
	// signed amount.
	return &Adjustment{
		Type:        AdjustmentType,
		Name:        rule.Name,
		OrderID:     o.ID,
		Description: description,
		Amount:      amount.Sub(shippingRemoved),
		LineItemIDs: affected,
	}, nil
}

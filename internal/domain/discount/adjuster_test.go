package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-promo/internal/domain/order"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

type stubCatalog struct {
	rules []Rule
	err   error
}

func (s stubCatalog) ListEnabled(_ context.Context, _ string) ([]Rule, error) {
	return s.rules, s.err
}

type stubHistory struct {
	orders []order.Order
	err    error
}

func (s stubHistory) FindByEmail(_ context.Context, _ string) ([]order.Order, error) {
	return s.orders, s.err
}

func newTestAdjuster(catalog Catalog, history order.History, opts ...AdjusterOption) *Adjuster {
	return NewAdjuster(catalog, history, ScopeMatcher{}, opts...)
}

func lineItem(id string, qty int, salePrice string) *order.LineItem {
	return &order.LineItem{
		ID:        id,
		ProductID: "prod-" + id,
		Qty:       qty,
		SalePrice: d(salePrice),
	}
}

func TestAdjustEmptyItems(t *testing.T) {
	a := newTestAdjuster(
		stubCatalog{rules: []Rule{{Name: "anything", PercentDiscount: d("-0.5")}}},
		stubHistory{},
	)

	o := &order.Order{ID: "o1", CouponCode: "SAVE"}
	adjs, err := a.Adjust(context.Background(), o, nil)

	require.NoError(t, err)
	assert.Empty(t, adjs)
	assert.Equal(t, "SAVE", o.CouponCode)
	assert.True(t, o.BaseDiscount.IsZero())
}

func TestAdjustCatalogError(t *testing.T) {
	a := newTestAdjuster(stubCatalog{err: errors.New("db down")}, stubHistory{})

	_, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", 1, "10")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list discounts")
}

func TestAdjustPercentScenario(t *testing.T) {
	// Coupon SAVE10, one line qty=2 subtotal=$20, 10% off: the line discount
	// becomes -$2.00 and the adjustment amount is -$2.00.
	rule := Rule{
		Name:            "10% off",
		Code:            strPtr("SAVE10"),
		PercentDiscount: d("-0.10"),
		PurchaseQty:     1,
	}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	o := &order.Order{ID: "o1", CouponCode: "SAVE10"}
	item := lineItem("l1", 2, "10")

	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{item})
	require.NoError(t, err)
	require.Len(t, adjs, 1)

	assert.Equal(t, AdjustmentType, adjs[0].Type)
	assert.Equal(t, "10% off", adjs[0].Name)
	assert.Equal(t, "o1", adjs[0].OrderID)
	assert.True(t, adjs[0].Amount.Equal(d("-2")), "amount = %s", adjs[0].Amount)
	assert.Equal(t, []string{"l1"}, adjs[0].LineItemIDs)
	assert.True(t, item.Discount.Equal(d("-2")), "line discount = %s", item.Discount)
}

func TestAdjustStopProcessing(t *testing.T) {
	rules := []Rule{
		{Name: "first", PercentDiscount: d("-0.10"), StopProcessing: true},
		{Name: "second", PercentDiscount: d("-0.20")},
	}
	a := newTestAdjuster(stubCatalog{rules: rules}, stubHistory{})

	o := &order.Order{ID: "o1"}
	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{lineItem("l1", 1, "100")})

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, "first", adjs[0].Name)
}

func TestAdjustStopProcessingOnlyAfterApply(t *testing.T) {
	// A stop-processing rule that does not apply must not terminate the pass.
	future := time.Now().Add(24 * time.Hour)
	rules := []Rule{
		{Name: "inactive", PercentDiscount: d("-0.50"), StopProcessing: true, DateFrom: timePtr(future)},
		{Name: "active", PercentDiscount: d("-0.10")},
	}
	a := newTestAdjuster(stubCatalog{rules: rules}, stubHistory{})

	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", 1, "100")})

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, "active", adjs[0].Name)
}

func TestAdjustMultipleRulesInOrder(t *testing.T) {
	rules := []Rule{
		{Name: "A", PercentDiscount: d("-0.10")},
		{Name: "B", PercentDiscount: d("-0.05")},
	}
	a := newTestAdjuster(stubCatalog{rules: rules}, stubHistory{})

	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", 1, "100")})

	require.NoError(t, err)
	require.Len(t, adjs, 2)
	assert.Equal(t, "A", adjs[0].Name)
	assert.Equal(t, "B", adjs[1].Name)
	assert.True(t, adjs[0].Amount.Equal(d("-10")))
	assert.True(t, adjs[1].Amount.Equal(d("-5")))
}

func TestAdjustDiscountClampedToSubtotal(t *testing.T) {
	// $15 off a $10 line: the line keeps -$10 and the adjustment reflects
	// the clamped amount, not the theoretical one.
	rule := Rule{Name: "big flat", PerItemDiscount: d("-15")}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	item := lineItem("l1", 1, "10")
	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{item})

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.True(t, item.Discount.Equal(d("-10")), "line discount = %s", item.Discount)
	assert.True(t, adjs[0].Amount.Equal(d("-10")), "amount = %s", adjs[0].Amount)
}

func TestAdjustClampAccountsForPriorDiscounts(t *testing.T) {
	// Two rules stacking on the same line: the second is clamped to whatever
	// room the first one left.
	rules := []Rule{
		{Name: "first", PerItemDiscount: d("-8")},
		{Name: "second", PerItemDiscount: d("-8")},
	}
	a := newTestAdjuster(stubCatalog{rules: rules}, stubHistory{})

	item := lineItem("l1", 1, "10")
	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{item})

	require.NoError(t, err)
	require.Len(t, adjs, 2)
	assert.True(t, item.Discount.Equal(d("-10")))
	assert.True(t, adjs[0].Amount.Equal(d("-8")))
	assert.True(t, adjs[1].Amount.Equal(d("-2")), "amount = %s", adjs[1].Amount)
}

func TestAdjustFreeShipping(t *testing.T) {
	rule := Rule{Name: "ship free", FreeShipping: true}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	o := &order.Order{ID: "o1", BaseShippingCost: d("5")}
	item := lineItem("l1", 1, "10")
	item.ShippingCost = d("3")

	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{item})

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.True(t, item.ShippingCost.IsZero())
	assert.True(t, o.BaseShippingCost.IsZero())
	assert.True(t, adjs[0].Amount.Equal(d("-8")), "amount = %s", adjs[0].Amount)
}

func TestAdjustPerEmailLimitClearsCoupon(t *testing.T) {
	rule := Rule{
		Name:            "limited",
		Code:            strPtr("ONCE"),
		PerEmailLimit:   1,
		PercentDiscount: d("-0.10"),
	}
	history := stubHistory{orders: []order.Order{
		{ID: "old1", CouponCode: "ONCE"},
		{ID: "old2", CouponCode: "OTHER"},
	}}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, history)

	o := &order.Order{ID: "o1", Email: "repeat@example.com", CouponCode: "ONCE"}
	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{lineItem("l1", 1, "10")})

	require.NoError(t, err)
	assert.Empty(t, adjs)
	assert.Empty(t, o.CouponCode, "coupon code must be cleared once the limit is exhausted")
}

func TestAdjustPerEmailLimitUnderLimit(t *testing.T) {
	rule := Rule{
		Name:            "limited",
		Code:            strPtr("TWICE"),
		PerEmailLimit:   2,
		PercentDiscount: d("-0.10"),
	}
	history := stubHistory{orders: []order.Order{{ID: "old1", CouponCode: "TWICE"}}}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, history)

	o := &order.Order{ID: "o1", Email: "repeat@example.com", CouponCode: "TWICE"}
	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{lineItem("l1", 1, "10")})

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, "TWICE", o.CouponCode)
}

func TestAdjustCouponClearedEvenWhenRuleWouldFailLater(t *testing.T) {
	// Long-standing quirk kept on purpose: the usage gate runs before the
	// date window, so an exhausted coupon is stripped even though the rule
	// is not currently active.
	future := time.Now().Add(24 * time.Hour)
	rule := Rule{
		Name:            "expired limited",
		Code:            strPtr("GONE"),
		PerEmailLimit:   1,
		DateFrom:        timePtr(future),
		PercentDiscount: d("-0.10"),
	}
	history := stubHistory{orders: []order.Order{{ID: "old1", CouponCode: "GONE"}}}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, history)

	o := &order.Order{ID: "o1", Email: "repeat@example.com", CouponCode: "GONE"}
	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{lineItem("l1", 1, "10")})

	require.NoError(t, err)
	assert.Empty(t, adjs)
	assert.Empty(t, o.CouponCode)
}

func TestAdjustDateWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tests := []struct {
		name      string
		from, to  *time.Time
		wantApply bool
	}{
		{name: "no window", wantApply: true},
		{name: "inside window", from: timePtr(now.Add(-time.Hour)), to: timePtr(now.Add(time.Hour)), wantApply: true},
		{name: "before dateFrom", from: timePtr(now.Add(time.Hour)), wantApply: false},
		{name: "after dateTo", to: timePtr(now.Add(-time.Hour)), wantApply: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := Rule{Name: "windowed", PercentDiscount: d("-0.10"), DateFrom: tt.from, DateTo: tt.to}
			a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{}, WithClock(clock))

			adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", 1, "10")})
			require.NoError(t, err)

			if tt.wantApply {
				assert.Len(t, adjs, 1)
			} else {
				assert.Empty(t, adjs)
			}
		})
	}
}

func TestAdjustQuantityThresholds(t *testing.T) {
	tests := []struct {
		name      string
		rule      Rule
		qty       int
		wantApply bool
	}{
		{name: "below purchaseQty", rule: Rule{PurchaseQty: 3, PercentDiscount: d("-0.10")}, qty: 2},
		{name: "meets purchaseQty", rule: Rule{PurchaseQty: 3, PercentDiscount: d("-0.10")}, qty: 3, wantApply: true},
		{name: "above maxPurchaseQty", rule: Rule{MaxPurchaseQty: 2, PercentDiscount: d("-0.10")}, qty: 3},
		{name: "at maxPurchaseQty", rule: Rule{MaxPurchaseQty: 3, PercentDiscount: d("-0.10")}, qty: 3, wantApply: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rule.Name = tt.name
			a := newTestAdjuster(stubCatalog{rules: []Rule{tt.rule}}, stubHistory{})

			adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", tt.qty, "10")})
			require.NoError(t, err)

			if tt.wantApply {
				assert.Len(t, adjs, 1)
			} else {
				assert.Empty(t, adjs)
			}
		})
	}
}

func TestAdjustPurchaseTotalThreshold(t *testing.T) {
	rule := Rule{Name: "min spend", PurchaseTotal: d("50"), PercentDiscount: d("-0.10")}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", 1, "49.99")})
	require.NoError(t, err)
	assert.Empty(t, adjs)

	adjs, err = a.Adjust(context.Background(), &order.Order{ID: "o2"}, []*order.LineItem{lineItem("l1", 1, "50")})
	require.NoError(t, err)
	assert.Len(t, adjs, 1)
}

func TestAdjustScopedRuleSkipsNonMatchingLines(t *testing.T) {
	rule := Rule{
		Name:            "beverages only",
		Categories:      []string{"beverages"},
		PercentDiscount: d("-0.50"),
	}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	matched := &order.LineItem{ID: "l1", ProductID: "p1", Category: "beverages", Qty: 1, SalePrice: d("4")}
	other := &order.LineItem{ID: "l2", ProductID: "p2", Category: "snacks", Qty: 1, SalePrice: d("6")}

	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{matched, other})

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, []string{"l1"}, adjs[0].LineItemIDs)
	assert.True(t, adjs[0].Amount.Equal(d("-2")))
	assert.True(t, other.Discount.IsZero())
}

func TestAdjustNoMatchingLines(t *testing.T) {
	rule := Rule{Name: "scoped", ProductIDs: []string{"nope"}, PercentDiscount: d("-0.50")}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", 1, "10")})
	require.NoError(t, err)
	assert.Empty(t, adjs)
}

func TestAdjustBaseDiscountAccumulatesOnOrder(t *testing.T) {
	rule := Rule{Name: "flat", BaseDiscount: d("-5")}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	o := &order.Order{ID: "o1"}
	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{lineItem("l1", 1, "10")})

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.True(t, o.BaseDiscount.Equal(d("-5")))
	assert.True(t, adjs[0].Amount.Equal(d("-5")))
}

func TestAdjustZeroAmountProducesNoRecord(t *testing.T) {
	// All gates pass but the rule grants nothing.
	rule := Rule{Name: "noop"}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	o := &order.Order{ID: "o1"}
	adjs, err := a.Adjust(context.Background(), o, []*order.LineItem{lineItem("l1", 1, "10")})

	require.NoError(t, err)
	assert.Empty(t, adjs)
	assert.True(t, o.BaseDiscount.IsZero())
}

func TestAdjustRoundsPerLineBeforeAccumulating(t *testing.T) {
	// 10% of $1.05 is $0.105, rounded half away from zero to $0.11 on each
	// line. Rounding after summing would give -0.21; per-line rounding gives
	// -0.22.
	rule := Rule{Name: "10% off", PercentDiscount: d("-0.10")}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{})

	items := []*order.LineItem{lineItem("l1", 1, "1.05"), lineItem("l2", 1, "1.05")}
	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, items)

	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.True(t, adjs[0].Amount.Equal(d("-0.22")), "amount = %s", adjs[0].Amount)
}

func TestAdjustHistoryError(t *testing.T) {
	rule := Rule{Name: "limited", Code: strPtr("ONCE"), PerEmailLimit: 1, PercentDiscount: d("-0.10")}
	a := newTestAdjuster(stubCatalog{rules: []Rule{rule}}, stubHistory{err: errors.New("db down")})

	o := &order.Order{ID: "o1", Email: "x@example.com", CouponCode: "ONCE"}
	_, err := a.Adjust(context.Background(), o, []*order.LineItem{lineItem("l1", 1, "10")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "order history")
}

func TestAdjustUsesConfiguredDescription(t *testing.T) {
	rules := []Rule{
		{Name: "custom", Description: "Spring sale", PercentDiscount: d("-0.10")},
		{Name: "fallback", Code: strPtr("save5"), PerItemDiscount: d("-5")},
	}
	a := newTestAdjuster(stubCatalog{rules: rules}, stubHistory{})

	adjs, err := a.Adjust(context.Background(), &order.Order{ID: "o1"}, []*order.LineItem{lineItem("l1", 1, "100")})

	require.NoError(t, err)
	require.Len(t, adjs, 2)
	assert.Equal(t, "Spring sale", adjs[0].Description)
	assert.Equal(t, "$5.00 per item and using code SAVE5", adjs[1].Description)
}

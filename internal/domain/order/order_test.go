package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestLineItemSubtotal(t *testing.T) {
	tests := []struct {
		name      string
		qty       int
		salePrice string
		want      string
	}{
		{name: "simple", qty: 2, salePrice: "10", want: "20"},
		{name: "price rounded before multiplying", qty: 3, salePrice: "9.999", want: "30"},
		{name: "zero qty", qty: 0, salePrice: "10", want: "0"},
		{name: "cents", qty: 3, salePrice: "9.99", want: "29.97"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			li := &LineItem{Qty: tt.qty, SalePrice: d(tt.salePrice)}
			assert.True(t, li.Subtotal().Equal(d(tt.want)), "subtotal = %s", li.Subtotal())
		})
	}
}

func TestLineItemTotal(t *testing.T) {
	li := &LineItem{Qty: 2, SalePrice: d("10"), Discount: d("-3"), ShippingCost: d("1.50")}
	assert.True(t, li.Total().Equal(d("18.50")), "total = %s", li.Total())
}

func TestOrderTotal(t *testing.T) {
	o := &Order{BaseDiscount: d("-5"), BaseShippingCost: d("4")}
	items := []*LineItem{
		{Qty: 1, SalePrice: d("10"), Discount: d("-2")},
		{Qty: 2, SalePrice: d("3"), ShippingCost: d("1")},
	}
	// 8 + 7 + 4 - 5 = 14
	assert.True(t, o.Total(items).Equal(d("14")), "total = %s", o.Total(items))
}

func TestOrderTotalFlooredAtZero(t *testing.T) {
	o := &Order{BaseDiscount: d("-100")}
	items := []*LineItem{{Qty: 1, SalePrice: d("10")}}
	assert.True(t, o.Total(items).IsZero())
}

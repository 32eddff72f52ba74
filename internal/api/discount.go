package api

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-promo/internal/domain/discount"
)

func (h *Handler) handleListDiscounts(w http.ResponseWriter, r *http.Request) {
	rules, err := h.discounts.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list discounts", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range rules {
			encodeRule(e, &rules[i])
		}
		e.ArrEnd()
	})
}

func encodeRule(e *jx.Encoder, rule *discount.Rule) {
	e.ObjStart()

	e.FieldStart("id")
	e.Str(rule.ID)
	e.FieldStart("name")
	e.Str(rule.Name)

	description := rule.Description
	if description == "" {
		description = discount.Describe(rule)
	}
	e.FieldStart("description")
	e.Str(description)

	e.FieldStart("code")
	if rule.Code != nil {
		e.Str(*rule.Code)
	} else {
		e.Null()
	}

	e.FieldStart("enabled")
	e.Bool(rule.Enabled)
	e.FieldStart("sortOrder")
	e.Int(rule.SortOrder)
	e.FieldStart("stopProcessing")
	e.Bool(rule.StopProcessing)

	e.FieldStart("dateFrom")
	if rule.DateFrom != nil {
		e.Str(rule.DateFrom.UTC().Format("2006-01-02T15:04:05Z07:00"))
	} else {
		e.Null()
	}
	e.FieldStart("dateTo")
	if rule.DateTo != nil {
		e.Str(rule.DateTo.UTC().Format("2006-01-02T15:04:05Z07:00"))
	} else {
		e.Null()
	}

	e.FieldStart("perEmailLimit")
	e.Int(rule.PerEmailLimit)
	e.FieldStart("purchaseQty")
	e.Int(rule.PurchaseQty)
	e.FieldStart("maxPurchaseQty")
	e.Int(rule.MaxPurchaseQty)
	e.FieldStart("purchaseTotal")
	e.Str(rule.PurchaseTotal.StringFixed(2))

	e.FieldStart("baseDiscount")
	e.Str(rule.BaseDiscount.StringFixed(2))
	e.FieldStart("perItemDiscount")
	e.Str(rule.PerItemDiscount.StringFixed(2))
	e.FieldStart("percentDiscount")
	e.Str(rule.PercentDiscount.String())
	e.FieldStart("freeShipping")
	e.Bool(rule.FreeShipping)

	e.FieldStart("productIds")
	e.ArrStart()
	for _, id := range rule.ProductIDs {
		e.Str(id)
	}
	e.ArrEnd()
	e.FieldStart("categories")
	e.ArrStart()
	for _, c := range rule.Categories {
		e.Str(c)
	}
	e.ArrEnd()

	e.ObjEnd()
}

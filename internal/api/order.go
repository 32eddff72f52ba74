package api

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-promo/internal/domain/pricing"
)

// maxRequestBody caps order request bodies at 1 MiB.
const maxRequestBody = 1 << 20

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	h.priceAndRespond(w, r, h.pricer.PriceOrder, http.StatusOK)
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	h.priceAndRespond(w, r, h.pricer.PlaceOrder, http.StatusCreated)
}

func (h *Handler) priceAndRespond(
	w http.ResponseWriter,
	r *http.Request,
	price func(ctx context.Context, req pricing.Request) (*pricing.Quote, error),
	okStatus int,
) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "cannot read request body")
		return
	}

	req, err := decodeOrderRequest(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}

	quote, err := price(r.Context(), req)
	if err != nil {
		h.respondPricingError(w, r, err)
		return
	}

	writeJSON(w, r, okStatus, func(e *jx.Encoder) {
		encodeQuote(e, quote)
	})
}

func (h *Handler) respondPricingError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidQty  *pricing.InvalidQuantityError
		notFound    *pricing.ProductNotFoundError
		unavailable *pricing.ProductUnavailableError
	)
	switch {
	case errors.Is(err, pricing.ErrEmptyItems):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalidQty), errors.As(err, &notFound), errors.As(err, &unavailable):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		zctx.From(r.Context()).Error("price order", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeOrderRequest parses an order/quote request body.
func decodeOrderRequest(data []byte) (pricing.Request, error) {
	var req pricing.Request
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "email":
			v, err := d.Str()
			req.Email = v
			return err
		case "couponCode":
			v, err := d.Str()
			req.CouponCode = v
			return err
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var item pricing.RequestItem
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "productId":
						v, err := d.Str()
						item.ProductID = v
						return err
					case "quantity":
						v, err := d.Int()
						item.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

// encodeQuote writes the full pricing result: order-level amounts, line
// items, and adjustment records.
func encodeQuote(e *jx.Encoder, q *pricing.Quote) {
	e.ObjStart()

	e.FieldStart("id")
	e.Str(q.Order.ID)
	e.FieldStart("couponCode")
	e.Str(q.Order.CouponCode)
	e.FieldStart("baseDiscount")
	e.Str(q.Order.BaseDiscount.StringFixed(2))
	e.FieldStart("baseShippingCost")
	e.Str(q.Order.BaseShippingCost.StringFixed(2))
	e.FieldStart("total")
	e.Str(q.Total.StringFixed(2))

	e.FieldStart("items")
	e.ArrStart()
	for _, li := range q.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(li.ID)
		e.FieldStart("productId")
		e.Str(li.ProductID)
		e.FieldStart("quantity")
		e.Int(li.Qty)
		e.FieldStart("salePrice")
		e.Str(li.SalePrice.StringFixed(2))
		e.FieldStart("subtotal")
		e.Str(li.Subtotal().StringFixed(2))
		e.FieldStart("discount")
		e.Str(li.Discount.StringFixed(2))
		e.FieldStart("shippingCost")
		e.Str(li.ShippingCost.StringFixed(2))
		e.FieldStart("total")
		e.Str(li.Total().StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("adjustments")
	e.ArrStart()
	for i := range q.Adjustments {
		adj := &q.Adjustments[i]
		e.ObjStart()
		e.FieldStart("type")
		e.Str(adj.Type)
		e.FieldStart("name")
		e.Str(adj.Name)
		e.FieldStart("description")
		e.Str(adj.Description)
		e.FieldStart("amount")
		e.Str(adj.Amount.StringFixed(2))
		e.FieldStart("lineItemIds")
		e.ArrStart()
		for _, id := range adj.LineItemIDs {
			e.Str(id)
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()

	e.ObjEnd()
}

// Package api exposes the pricing service over HTTP with hand-written
// JSON encoding.
package api

import (
	"context"
	"net/http"

	"github.com/xenking/storefront-promo/internal/domain/auth"
	"github.com/xenking/storefront-promo/internal/domain/discount"
	"github.com/xenking/storefront-promo/internal/domain/pricing"
	"github.com/xenking/storefront-promo/internal/domain/product"
)

// DiscountLister provides the full rule listing for the admin endpoint.
type DiscountLister interface {
	List(ctx context.Context) ([]discount.Rule, error)
}

// Pricer prices and places orders.
type Pricer interface {
	PriceOrder(ctx context.Context, req pricing.Request) (*pricing.Quote, error)
	PlaceOrder(ctx context.Context, req pricing.Request) (*pricing.Quote, error)
}

// Handler serves the JSON API.
type Handler struct {
	products  product.Repository
	discounts DiscountLister
	pricer    Pricer
	apikeys   auth.Repository
	pepper    []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	discounts DiscountLister,
	pricer Pricer,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		products:  products,
		discounts: discounts,
		pricer:    pricer,
		apikeys:   apikeys,
		pepper:    pepper,
	}
}

// Register mounts all API routes on the given mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.handleListProducts)
	mux.HandleFunc("GET /api/discounts", h.requireAPIKey(h.handleListDiscounts))
	mux.HandleFunc("POST /api/quotes", h.handleQuote)
	mux.HandleFunc("POST /api/orders", h.requireAPIKey(h.handlePlaceOrder))
}

package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promo/internal/domain/discount"
	"github.com/xenking/storefront-promo/internal/domain/order"
	"github.com/xenking/storefront-promo/internal/domain/product"
)

// Sentinel errors for request validation.
var ErrEmptyItems = fmt.Errorf("items required")

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// ProductUnavailableError indicates a product exists but cannot currently be
// purchased.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is not available for purchase", e.ProductID)
}

// Adjuster runs a discount adjustment pass over an order.
type Adjuster interface {
	Adjust(ctx context.Context, o *order.Order, items []*order.LineItem) ([]discount.Adjustment, error)
}

// OrderStore persists a priced order with its line items and adjustments.
type OrderStore interface {
	Create(ctx context.Context, o *order.Order, items []*order.LineItem, adjs []discount.Adjustment) error
}

// AvailabilityPolicy decides whether a product may be purchased. The default
// policy uses the product's availableForPurchase flag.
type AvailabilityPolicy func(p product.Product) bool

func defaultAvailability(p product.Product) bool {
	return p.AvailableForPurchase
}

// ShippingRates holds the flat shipping amounts applied before discounts.
type ShippingRates struct {
	// Base is charged once per order.
	Base decimal.Decimal
	// PerItem is charged on every line item.
	PerItem decimal.Decimal
}

// Request holds the input for pricing or placing an order.
type Request struct {
	Email      string
	CouponCode string
	Items      []RequestItem
}

// RequestItem is one requested product line.
type RequestItem struct {
	ProductID string
	Quantity  int
}

// Quote is the result of a pricing pass. Order and Items carry the mutated
// monetary state; CouponCode on the order may have been cleared by the
// adjuster when a usage limit was exhausted.
type Quote struct {
	Order       *order.Order
	Items       []*order.LineItem
	Adjustments []discount.Adjustment
	Products    []product.Product
	Total       decimal.Decimal
}

// Service prices and places orders.
type Service struct {
	products  product.Repository
	adjuster  Adjuster
	orders    OrderStore
	available AvailabilityPolicy
	shipping  ShippingRates
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithAvailabilityPolicy overrides the product availability check.
func WithAvailabilityPolicy(p AvailabilityPolicy) ServiceOption {
	return func(s *Service) { s.available = p }
}

// WithShippingRates sets the flat shipping amounts.
func WithShippingRates(r ShippingRates) ServiceOption {
	return func(s *Service) { s.shipping = r }
}

// NewService creates a pricing Service with the required domain dependencies.
func NewService(products product.Repository, adjuster Adjuster, orders OrderStore, opts ...ServiceOption) *Service {
	s := &Service{
		products:  products,
		adjuster:  adjuster,
		orders:    orders,
		available: defaultAvailability,
		shipping:  ShippingRates{Base: decimal.Zero, PerItem: decimal.Zero},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PriceOrder builds an order snapshot from the request, runs the discount
// adjustment pass over it, and returns the priced quote without persisting
// anything.
func (s *Service) PriceOrder(ctx context.Context, req Request) (*Quote, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	o := &order.Order{
		ID:               uuid.New().String(),
		Email:            req.Email,
		CouponCode:       req.CouponCode,
		BaseDiscount:     decimal.Zero,
		BaseShippingCost: s.shipping.Base,
	}

	products := make([]product.Product, 0, len(req.Items))
	items := make([]*order.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if !s.available(p) {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
		products = append(products, p)
		items = append(items, &order.LineItem{
			ID:           uuid.New().String(),
			ProductID:    p.ID,
			Category:     p.Category,
			Qty:          item.Quantity,
			SalePrice:    p.Price,
			Discount:     decimal.Zero,
			ShippingCost: s.shipping.PerItem,
		})
	}

	adjustments, err := s.adjuster.Adjust(ctx, o, items)
	if err != nil {
		return nil, errors.Wrap(err, "adjust order")
	}

	return &Quote{
		Order:       o,
		Items:       items,
		Adjustments: adjustments,
		Products:    products,
		Total:       o.Total(items),
	}, nil
}

// PlaceOrder prices the order and persists it together with its line items
// and adjustment records.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Quote, error) {
	quote, err := s.PriceOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, quote.Order, quote.Items, quote.Adjustments); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return quote, nil
}

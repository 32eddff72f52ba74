package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront-promo/internal/domain/discount"
	"github.com/xenking/storefront-promo/internal/domain/order"
	"github.com/xenking/storefront-promo/internal/domain/pricing"
)

const (
	createOrderSQL = `INSERT INTO orders (id, email, coupon_code, base_discount, base_shipping_cost, total)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createLineItemSQL = `INSERT INTO order_line_items (id, order_id, product_id, category, qty, sale_price, discount, shipping_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	createAdjustmentSQL = `INSERT INTO order_adjustments (id, order_id, type, name, description, amount, line_item_ids)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)`

	findOrdersByEmailSQL = `SELECT id, email, coupon_code, base_discount, base_shipping_cost, created_at
		FROM orders WHERE email = $1 ORDER BY created_at`
)

var (
	_ pricing.OrderStore = (*OrderRepository)(nil)
	_ order.History      = (*OrderRepository)(nil)
)

// OrderRepository persists orders and serves the order history lookups used
// by the coupon per-email limit.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its line items, and its adjustment records in a
// single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, items []*order.LineItem, adjs []discount.Adjustment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, o.Email, o.CouponCode, o.BaseDiscount, o.BaseShippingCost, o.Total(items),
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, li := range items {
		_, err = tx.Exec(ctx, createLineItemSQL,
			li.ID, o.ID, li.ProductID, li.Category, li.Qty, li.SalePrice, li.Discount, li.ShippingCost,
		)
		if err != nil {
			return fmt.Errorf("creating line item %q: %w", li.ID, err)
		}
	}

	for _, adj := range adjs {
		lineIDs, err := json.Marshal(adj.LineItemIDs)
		if err != nil {
			return fmt.Errorf("marshaling affected line items: %w", err)
		}
		if _, err := tx.Exec(ctx, createAdjustmentSQL,
			o.ID, adj.Type, adj.Name, adj.Description, adj.Amount, lineIDs,
		); err != nil {
			return fmt.Errorf("creating adjustment %q: %w", adj.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// FindByEmail returns all orders placed with the given email, oldest first.
func (r *OrderRepository) FindByEmail(ctx context.Context, email string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, findOrdersByEmailSQL, email)
	if err != nil {
		return nil, fmt.Errorf("finding orders by email: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		var o order.Order
		err := row.Scan(&o.ID, &o.Email, &o.CouponCode, &o.BaseDiscount, &o.BaseShippingCost, &o.CreatedAt)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("finding orders by email: %w", err)
	}
	return orders, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promo/internal/domain/discount"
)

const (
	discountColumns = `id, name, description, code, enabled, sort_order, stop_processing,
		date_from, date_to, per_email_limit, purchase_qty, max_purchase_qty,
		purchase_total, base_discount, per_item_discount, percent_discount, free_shipping`

	listEnabledDiscountsSQL = `SELECT ` + discountColumns + `
		FROM discounts
		WHERE (code = $1 OR code IS NULL) AND enabled = TRUE
		ORDER BY sort_order, id`

	listAllDiscountsSQL = `SELECT ` + discountColumns + `
		FROM discounts
		ORDER BY sort_order, id`

	listDiscountProductsSQL = `SELECT discount_id, product_id
		FROM discount_products WHERE discount_id = ANY($1)`

	listDiscountCategoriesSQL = `SELECT discount_id, category
		FROM discount_categories WHERE discount_id = ANY($1)`
)

var _ discount.Catalog = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Catalog backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// ListEnabled returns the enabled rules applicable to the given coupon code
// (rules with that exact code plus rules without any code), ordered by sort
// order with the rule id as a stable tie-break. Product and category scopes
// are loaded in two follow-up queries.
func (r *DiscountRepository) ListEnabled(ctx context.Context, couponCode string) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, listEnabledDiscountsSQL, couponCode)
	if err != nil {
		return nil, fmt.Errorf("listing enabled discounts: %w", err)
	}

	rules, err := pgx.CollectRows(rows, scanDiscountRule)
	if err != nil {
		return nil, fmt.Errorf("listing enabled discounts: %w", err)
	}

	if err := r.loadScopes(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// List returns every configured rule regardless of enabled state, for the
// admin listing endpoint.
func (r *DiscountRepository) List(ctx context.Context) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, listAllDiscountsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}

	rules, err := pgx.CollectRows(rows, scanDiscountRule)
	if err != nil {
		return nil, fmt.Errorf("listing discounts: %w", err)
	}

	if err := r.loadScopes(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *DiscountRepository) loadScopes(ctx context.Context, rules []discount.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	byID := make(map[string]*discount.Rule, len(rules))
	ids := make([]string, len(rules))
	for i := range rules {
		byID[rules[i].ID] = &rules[i]
		ids[i] = rules[i].ID
	}

	rows, err := r.pool.Query(ctx, listDiscountProductsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing discount products: %w", err)
	}
	type scopeRow struct {
		discountID string
		value      string
	}
	productRows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (scopeRow, error) {
		var sr scopeRow
		err := row.Scan(&sr.discountID, &sr.value)
		return sr, err
	})
	if err != nil {
		return fmt.Errorf("listing discount products: %w", err)
	}
	for _, sr := range productRows {
		if rule, ok := byID[sr.discountID]; ok {
			rule.ProductIDs = append(rule.ProductIDs, sr.value)
		}
	}

	rows, err = r.pool.Query(ctx, listDiscountCategoriesSQL, ids)
	if err != nil {
		return fmt.Errorf("listing discount categories: %w", err)
	}
	categoryRows, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (scopeRow, error) {
		var sr scopeRow
		err := row.Scan(&sr.discountID, &sr.value)
		return sr, err
	})
	if err != nil {
		return fmt.Errorf("listing discount categories: %w", err)
	}
	for _, sr := range categoryRows {
		if rule, ok := byID[sr.discountID]; ok {
			rule.Categories = append(rule.Categories, sr.value)
		}
	}

	return nil
}

func scanDiscountRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		rule          discount.Rule
		code          *string
		dateFrom      *time.Time
		dateTo        *time.Time
		purchaseTotal decimal.Decimal
		base          decimal.Decimal
		perItem       decimal.Decimal
		percent       decimal.Decimal
	)
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &code, &rule.Enabled,
		&rule.SortOrder, &rule.StopProcessing, &dateFrom, &dateTo,
		&rule.PerEmailLimit, &rule.PurchaseQty, &rule.MaxPurchaseQty,
		&purchaseTotal, &base, &perItem, &percent, &rule.FreeShipping,
	)
	rule.Code = code
	rule.DateFrom = dateFrom
	rule.DateTo = dateTo
	rule.PurchaseTotal = purchaseTotal
	rule.BaseDiscount = base
	rule.PerItemDiscount = perItem
	rule.PercentDiscount = percent
	return rule, err
}

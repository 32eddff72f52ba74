// Command seed-db loads a product catalog, a starter set of discount rules,
// and a default API key into the database. It is idempotent and safe to rerun.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-promo/internal/domain/auth"
	"github.com/xenking/storefront-promo/internal/repository"
)

type productJSON struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
	Available *bool           `json:"availableForPurchase"`
}

// seedRule is one discount rule to register. Amounts follow the adjustment
// sign convention: negative values reduce the order total.
type seedRule struct {
	id           string
	name         string
	code         string
	sortOrder    int
	stopAfter    bool
	emailLimit   int
	purchaseQty  int
	purchaseTot  string
	base         string
	perItem      string
	percent      string
	freeShipping bool
	categories   []string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, price, category, available_for_purchase)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	name                   = EXCLUDED.name,
	price                  = EXCLUDED.price,
	category               = EXCLUDED.category,
	available_for_purchase = EXCLUDED.available_for_purchase
`

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		available := true
		if p.Available != nil {
			available = *p.Available
		}
		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Price, p.Category, available,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

var seedRules = []seedRule{
	{
		// Automatic sale, no coupon needed.
		id:         "seed-summer-sale",
		name:       "Summer sale: 10% off drinks",
		sortOrder:  10,
		percent:    "-0.10",
		categories: []string{"drinks"},
	},
	{
		id:          "seed-happyhours",
		name:        "HAPPYHOURS",
		code:        "HAPPYHOURS",
		sortOrder:   20,
		percent:     "-0.18",
		purchaseQty: 1,
	},
	{
		id:         "seed-welcome5",
		name:       "WELCOME5",
		code:       "WELCOME5",
		sortOrder:  20,
		base:       "-5",
		emailLimit: 1,
	},
	{
		id:           "seed-freeship50",
		name:         "FREESHIP50",
		code:         "FREESHIP50",
		sortOrder:    30,
		purchaseTot:  "50",
		freeShipping: true,
		stopAfter:    true,
	},
}

const insertSeedRuleSQL = `
INSERT INTO discounts (
	id, name, code, enabled, sort_order, stop_processing,
	per_email_limit, purchase_qty, purchase_total,
	base_discount, per_item_discount, percent_discount, free_shipping
) VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	name              = EXCLUDED.name,
	code              = EXCLUDED.code,
	enabled           = TRUE,
	sort_order        = EXCLUDED.sort_order,
	stop_processing   = EXCLUDED.stop_processing,
	per_email_limit   = EXCLUDED.per_email_limit,
	purchase_qty      = EXCLUDED.purchase_qty,
	purchase_total    = EXCLUDED.purchase_total,
	base_discount     = EXCLUDED.base_discount,
	per_item_discount = EXCLUDED.per_item_discount,
	percent_discount  = EXCLUDED.percent_discount,
	free_shipping     = EXCLUDED.free_shipping
`

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding discount rules", slog.Int("count", len(seedRules)))

	for _, r := range seedRules {
		var code *string
		if r.code != "" {
			code = &r.code
		}

		base, err := parseAmount(r.base)
		if err != nil {
			return errors.Wrapf(err, "rule %s", r.name)
		}
		perItem, err := parseAmount(r.perItem)
		if err != nil {
			return errors.Wrapf(err, "rule %s", r.name)
		}
		percent, err := parseAmount(r.percent)
		if err != nil {
			return errors.Wrapf(err, "rule %s", r.name)
		}
		purchaseTotal, err := parseAmount(r.purchaseTot)
		if err != nil {
			return errors.Wrapf(err, "rule %s", r.name)
		}

		if _, err := pool.Exec(ctx, insertSeedRuleSQL,
			r.id, r.name, code, r.sortOrder, r.stopAfter,
			r.emailLimit, r.purchaseQty, purchaseTotal,
			base, perItem, percent, r.freeShipping,
		); err != nil {
			return errors.Wrapf(err, "upsert rule %s", r.name)
		}

		for _, cat := range r.categories {
			if _, err := pool.Exec(ctx,
				`INSERT INTO discount_categories (discount_id, category) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				r.id, cat,
			); err != nil {
				return errors.Wrapf(err, "scope rule %s to category %s", r.name, cat)
			}
		}

		slog.Info("upserted rule", slog.String("name", r.name))
	}

	return nil
}

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, scopes, active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (id) DO UPDATE SET
	key_hash = EXCLUDED.key_hash,
	name     = EXCLUDED.name,
	scopes   = EXCLUDED.scopes,
	active   = TRUE
`

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	keyHash := auth.HashKey(apiKey, []byte(pepper))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default test key", []string{"create_order"},
	); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"))

	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

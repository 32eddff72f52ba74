// Command discount-ingest loads bulk promo code dumps and registers a
// coupon-gated discount rule for every code that is considered valid.
//
// The dumps are large gzip files of one code per line. A code is valid when
// it appears in at least two of the three files, so the tool streams each
// file twice: pass 1 builds one bloom filter per file, pass 2 re-streams and
// checks every code against the other files' filters. Codes that survive are
// upserted into the discounts table with a rule template.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-promo/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	progressEvery = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

// ruleTemplate is the discount rule registered for a known promo code.
// Monetary fields follow the adjustment sign convention: discounts are
// negative amounts, percent is a negative fraction of the line subtotal.
type ruleTemplate struct {
	name         string
	percent      string
	perItem      string
	base         string
	freeShipping bool
	purchaseQty  int
	emailLimit   int
	sortOrder    int
}

var codeRules = map[string]ruleTemplate{
	"BIRTHDAY": {name: "Birthday treat", base: "-10", emailLimit: 1, sortOrder: 10},
	"BULKBUYS": {name: "Bulk order discount", percent: "-0.15", purchaseQty: 5, sortOrder: 20},
	"FIFTYOFF": {name: "Half price order", percent: "-0.50", sortOrder: 20},
	"SIXTYOFF": {name: "60% off order", percent: "-0.60", sortOrder: 20},
	"FREESHIP": {name: "Free shipping", freeShipping: true, sortOrder: 30},
	"GNULINUX": {name: "Open source discount", percent: "-0.15", sortOrder: 20},
	"OVER9000": {name: "$9 off your order", base: "-9", sortOrder: 10},
	"HAPPYHRS": {name: "Happy Hours", percent: "-0.18", sortOrder: 20},
}

var defaultRule = ruleTemplate{
	name:      "Valid promo code",
	percent:   "-0.10",
	sortOrder: 100,
}

// fileResult holds candidate codes found in a single file during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("discount ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: find candidate codes appearing in 2+ files.
	slog.Info("pass 2: finding candidate codes")

	validCodes, err := findValidCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find valid codes")
	}

	slog.Info("valid codes found", slog.Int("count", len(validCodes)))

	if len(validCodes) == 0 {
		slog.Info("no valid codes to register")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := registerDiscounts(ctx, pool, validCodes); err != nil {
		return errors.Wrap(err, "register discounts")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each file and checks codes against OTHER files'
// bloom filters. A code is valid if it appears in 2 or more files.
func findValidCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	// Keep codes appearing in 2+ files.
	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			valid = append(valid, code)
		}
	}

	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("codes", count),
				)
			}

			// Check if this code appears in any OTHER file's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					candidates[code] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

const upsertDiscountSQL = `
INSERT INTO discounts (
	name, code, enabled, sort_order,
	per_email_limit, purchase_qty,
	base_discount, per_item_discount, percent_discount, free_shipping
) VALUES ($1, $2, TRUE, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (code) WHERE code IS NOT NULL DO UPDATE SET
	name              = EXCLUDED.name,
	enabled           = TRUE,
	sort_order        = EXCLUDED.sort_order,
	per_email_limit   = EXCLUDED.per_email_limit,
	purchase_qty      = EXCLUDED.purchase_qty,
	base_discount     = EXCLUDED.base_discount,
	per_item_discount = EXCLUDED.per_item_discount,
	percent_discount  = EXCLUDED.percent_discount,
	free_shipping     = EXCLUDED.free_shipping
`

// registerDiscounts upserts one coupon-gated rule per valid code.
func registerDiscounts(ctx context.Context, pool *pgxpool.Pool, codes []string) error {
	slog.Info("registering discount rules", slog.Int("count", len(codes)))

	for i, code := range codes {
		tpl, ok := codeRules[code]
		if !ok {
			tpl = defaultRule
		}

		percent, err := parseAmount(tpl.percent)
		if err != nil {
			return errors.Wrapf(err, "parse percent for code %s", code)
		}
		perItem, err := parseAmount(tpl.perItem)
		if err != nil {
			return errors.Wrapf(err, "parse per-item amount for code %s", code)
		}
		base, err := parseAmount(tpl.base)
		if err != nil {
			return errors.Wrapf(err, "parse base amount for code %s", code)
		}

		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			tpl.name, code, tpl.sortOrder,
			tpl.emailLimit, tpl.purchaseQty,
			base, perItem, percent, tpl.freeShipping,
		); err != nil {
			return errors.Wrapf(err, "upsert discount for code %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

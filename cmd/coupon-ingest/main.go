// Command coupon-ingest loads partner coupon feeds into the coupons table.
//
// Each feed is a gzip-compressed text file with one code per line. A code is
// imported only when at least -min-sources feeds list it.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/offer-checkout/internal/domain/coupon"
	"github.com/xenking/offer-checkout/internal/repository"
)

const defaultBatchSize = 500

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		pattern     = flag.String("feeds", "data/couponbase*.gz", "glob of gzip coupon feeds")
		minSources  = flag.Int("min-sources", 2, "number of feeds that must list a code")
		capacity    = flag.Uint("capacity", 1_000_000, "expected codes per feed")
		fpr         = flag.Float64("fpr", 0.001, "bloom filter false positive rate")
		batchSize   = flag.Int("batch-size", defaultBatchSize, "coupons per upsert batch")
		dryRun      = flag.Bool("dry-run", false, "report codes without writing them")
	)
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, lg, config{
		DatabaseURL: *databaseURL,
		Pattern:     *pattern,
		BatchSize:   *batchSize,
		DryRun:      *dryRun,
		Options:     options{MinSources: *minSources, Capacity: *capacity, FPR: *fpr},
	}); err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
}

type config struct {
	DatabaseURL string
	Pattern     string
	BatchSize   int
	DryRun      bool
	Options     options
}

// batchWriter stores coupon rules.
type batchWriter interface {
	UpsertBatch(ctx context.Context, rules []coupon.Rule) error
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	files, err := filepath.Glob(cfg.Pattern)
	if err != nil {
		return errors.Wrap(err, "glob feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no feeds match %q", cfg.Pattern)
	}

	rules, err := collect(ctx, lg, files, cfg.Options)
	if err != nil {
		return err
	}
	lg.Info("Coupons collected",
		zap.Int("feeds", len(files)),
		zap.Int("coupons", len(rules)),
		zap.Int("min_sources", cfg.Options.MinSources),
	)
	if cfg.DryRun {
		for _, r := range rules {
			lg.Info("Coupon", zap.String("code", r.Code), zap.String("description", r.Description))
		}
		return nil
	}

	if cfg.DatabaseURL == "" {
		return errors.New("database url is required")
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return err
	}

	n, err := writeBatches(ctx, repository.NewCouponRepository(pool), rules, cfg.BatchSize)
	if err != nil {
		return errors.Wrapf(err, "write coupons (%d written)", n)
	}
	lg.Info("Coupons written", zap.Int("count", n))
	return nil
}

// writeBatches upserts rules in chunks of size and returns how many were
// written.
func writeBatches(ctx context.Context, w batchWriter, rules []coupon.Rule, size int) (int, error) {
	if size <= 0 {
		size = defaultBatchSize
	}
	written := 0
	for start := 0; start < len(rules); start += size {
		end := min(start+size, len(rules))
		if err := w.UpsertBatch(ctx, rules[start:end]); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		opts        options
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzipped coupon CSV files")
	flag.StringVar(&pattern, "pattern", "*.csv.gz", "file name pattern inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&opts.expectedCodes, "expected-codes", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.IntVar(&opts.batchSize, "batch-size", 500, "coupons per upsert batch")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "parse and report without writing")
	flag.Parse()

	lg := zap.Must(zap.NewProduction())
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !opts.dryRun {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, filepath.Join(dataDir, pattern), databaseURL, opts); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed")
}

func run(ctx context.Context, lg *zap.Logger, glob, databaseURL string, opts options) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %s", glob)
	}

	var sink upserter = discard{}
	if !opts.dryRun {
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()
		sink = postgres.NewCouponRepository(postgres.NewStore(pool))
	}

	imp := &importer{lg: lg, sink: sink, opts: opts}
	report, err := imp.Run(ctx, files)
	if err != nil {
		return err
	}
	lg.Info("Import summary",
		zap.Int("files", len(files)),
		zap.Int("upserted", report.Upserted),
		zap.Int("invalid", report.Invalid),
		zap.Int("duplicates", len(report.Duplicates)),
	)
	return nil
}

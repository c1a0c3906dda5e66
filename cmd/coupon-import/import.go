package main

import (
	"context"
	"encoding/csv"
	"io"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/platter/internal/catalog"
	"github.com/xenking/platter/internal/domain/coupon"
)

const (
	bloomFPR = 0.001
	maxFiles = bits.UintSize
)

type options struct {
	expectedCodes uint
	batchSize     int
	dryRun        bool
}

type upserter interface {
	UpsertMany(ctx context.Context, rules []coupon.Rule) error
}

type discard struct{}

func (discard) UpsertMany(context.Context, []coupon.Rule) error { return nil }

// Duplicate is a code present in more than one file. The first file in name
// order keeps it.
type Duplicate struct {
	Code  string
	Files []string
}

// Report summarizes an import.
type Report struct {
	Upserted   int
	Invalid    int
	Duplicates []Duplicate
}

type importer struct {
	lg   *zap.Logger
	sink upserter
	opts options
}

// Run imports files in three streaming passes: build a bloom filter per file,
// confirm cross-file duplicates among bloom hits, then upsert every code from
// the first file that holds it.
func (imp *importer) Run(ctx context.Context, files []string) (*Report, error) {
	if len(files) > maxFiles {
		return nil, errors.Errorf("at most %d files per import, got %d", maxFiles, len(files))
	}
	files = append([]string(nil), files...)
	sort.Strings(files)

	imp.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, invalid, err := imp.buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	imp.lg.Info("Pass 2: confirming duplicates")
	owners, err := imp.findDuplicates(ctx, files, filters)
	if err != nil {
		return nil, errors.Wrap(err, "find duplicates")
	}
	report := &Report{Invalid: invalid, Duplicates: duplicates(files, owners)}
	for _, d := range report.Duplicates {
		imp.lg.Warn("Duplicate coupon code",
			zap.String("code", d.Code),
			zap.Strings("files", d.Files),
			zap.String("kept", d.Files[0]),
		)
	}

	imp.lg.Info("Pass 3: upserting coupons")
	if report.Upserted, err = imp.upsert(ctx, files, owners); err != nil {
		return nil, errors.Wrap(err, "upsert coupons")
	}
	return report, nil
}

func (imp *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, int, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	invalid := make([]int, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(imp.opts.expectedCodes, bloomFPR)
			var count int
			err := streamCoupons(ctx, path, func(line int, rule coupon.Rule, err error) error {
				if err != nil {
					invalid[i]++
					imp.lg.Warn("Invalid coupon row",
						zap.String("file", path),
						zap.Int("line", line),
						zap.Error(err),
					)
					return nil
				}
				filter.AddString(rule.Code)
				count++
				return nil
			})
			if err != nil {
				return err
			}
			imp.lg.Info("Pass 1 complete", zap.String("file", path), zap.Int("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	total := 0
	for _, n := range invalid {
		total += n
	}
	return filters, total, nil
}

// findDuplicates returns, for every code found in two or more files, a
// bitmask of the files holding it. A file only marks its own bit, so bloom
// false positives never survive the merge.
func (imp *importer) findDuplicates(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]uint, error) {
	results := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			err := streamCoupons(ctx, path, func(_ int, rule coupon.Rule, err error) error {
				if err != nil {
					return nil
				}
				for j, f := range filters {
					if j != i && f.TestString(rule.Code) {
						candidates[rule.Code] |= fileBit
						break
					}
				}
				return nil
			})
			results[i] = candidates
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r {
			merged[code] |= mask
		}
	}
	for code, mask := range merged {
		if bits.OnesCount(mask) < 2 {
			delete(merged, code)
		}
	}
	return merged, nil
}

func duplicates(files []string, owners map[string]uint) []Duplicate {
	out := make([]Duplicate, 0, len(owners))
	for code, mask := range owners {
		d := Duplicate{Code: code}
		for i := range files {
			if mask&(1<<uint(i)) != 0 {
				d.Files = append(d.Files, files[i])
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (imp *importer) upsert(ctx context.Context, files []string, owners map[string]uint) (int, error) {
	counts := make([]int, len(files))
	batchSize := max(imp.opts.batchSize, 1)

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			batch := make([]coupon.Rule, 0, batchSize)
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := imp.sink.UpsertMany(ctx, batch); err != nil {
					return errors.Wrapf(err, "upsert batch from %s", path)
				}
				counts[i] += len(batch)
				batch = batch[:0]
				return nil
			}

			err := streamCoupons(ctx, path, func(_ int, rule coupon.Rule, err error) error {
				if err != nil {
					return nil
				}
				if mask, dup := owners[rule.Code]; dup && bits.TrailingZeros(mask) != i {
					return nil
				}
				batch = append(batch, rule)
				if len(batch) == batchSize {
					return flush()
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := flush(); err != nil {
				return err
			}
			imp.lg.Info("Pass 3 complete", zap.String("file", path), zap.Int("upserted", counts[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// streamCoupons reads the gzipped CSV at path and calls fn for each data row
// with the parsed rule or the row's validation error. The first row is a
// header: code, discount_type and discount_amount are required; description,
// minimum_order_amount, max_discount, valid_from, valid_until and usage_limit
// are optional. Line numbers count the header as line 1.
func streamCoupons(ctx context.Context, path string, fn func(line int, rule coupon.Rule, err error) error) error {
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

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return errors.Wrapf(err, "read header of %s", path)
	}
	index, err := columnIndex(header)
	if err != nil {
		return errors.Wrap(err, path)
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		rule, err := parseRecord(rec, index)
		if err := fn(line, rule, err); err != nil {
			return err
		}
	}
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range []string{"code", "discount_type", "discount_amount"} {
		if _, ok := index[c]; !ok {
			return nil, errors.Errorf("missing column %q", c)
		}
	}
	return index, nil
}

// parseRecord maps one CSV row onto a validated coupon rule. Empty optional
// fields leave the rule open on that side.
func parseRecord(rec []string, index map[string]int) (coupon.Rule, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	c := catalog.Coupon{
		Code:        field("code"),
		Description: field("description"),
		Type:        field("discount_type"),
	}
	var err error
	if c.Value, err = decimal.NewFromString(field("discount_amount")); err != nil {
		return coupon.Rule{}, errors.Wrap(err, "discount_amount")
	}
	if v := field("minimum_order_amount"); v != "" {
		if c.MinimumOrderAmount, err = decimal.NewFromString(v); err != nil {
			return coupon.Rule{}, errors.Wrap(err, "minimum_order_amount")
		}
	}
	if v := field("max_discount"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return coupon.Rule{}, errors.Wrap(err, "max_discount")
		}
		c.MaxDiscount = &d
	}
	if c.ValidFrom, err = optTime(field("valid_from")); err != nil {
		return coupon.Rule{}, errors.Wrap(err, "valid_from")
	}
	if c.ValidUntil, err = optTime(field("valid_until")); err != nil {
		return coupon.Rule{}, errors.Wrap(err, "valid_until")
	}
	if v := field("usage_limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return coupon.Rule{}, errors.Wrap(err, "usage_limit")
		}
		c.UsageLimit = &n
	}
	return c.Rule()
}

func optTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

package main

import (
	"bufio"
	"context"
	"math/bits"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/offer-checkout/internal/domain/coupon"
)

const (
	// maxFeeds is bounded by the width of the per-code source mask.
	maxFeeds = 64
)

var errMalformed = errors.New("malformed coupon line")

// defaultRule applies to bare codes without explicit terms.
var defaultRule = coupon.Rule{
	DiscountType: coupon.DiscountPercentage,
	Value:        decimal.NewFromInt(10),
	Description:  "Partner promo: 10% off",
}

// parseLine reads one feed line:
//
//	CODE
//	CODE,percentage|fixed,VALUE[,MIN_SUBTOTAL[,VALID_UNTIL]]
//
// Blank lines and lines starting with # are skipped (ok == false). explicit
// reports whether the line carried its own terms.
func parseLine(line string) (rule coupon.Rule, explicit, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return coupon.Rule{}, false, false, nil
	}

	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	code := strings.ToUpper(fields[0])
	if !coupon.ValidCode(code) {
		return coupon.Rule{}, false, false, errors.Wrapf(errMalformed, "code %q", fields[0])
	}
	if len(fields) == 1 {
		rule = defaultRule
		rule.Code = code
		return rule, false, true, nil
	}
	if len(fields) < 3 || len(fields) > 5 {
		return coupon.Rule{}, false, false, errors.Wrapf(errMalformed, "%d fields", len(fields))
	}

	rule = coupon.Rule{Code: code, MinSubtotal: decimal.Zero}
	switch t := coupon.DiscountType(strings.ToLower(fields[1])); t {
	case coupon.DiscountPercentage, coupon.DiscountFixed:
		rule.DiscountType = t
	default:
		return coupon.Rule{}, false, false, errors.Wrapf(errMalformed, "discount type %q", fields[1])
	}
	if rule.Value, err = decimal.NewFromString(fields[2]); err != nil || !rule.Value.IsPositive() {
		return coupon.Rule{}, false, false, errors.Wrapf(errMalformed, "value %q", fields[2])
	}
	if rule.DiscountType == coupon.DiscountPercentage && rule.Value.GreaterThan(decimal.NewFromInt(100)) {
		return coupon.Rule{}, false, false, errors.Wrapf(errMalformed, "percentage %s above 100", rule.Value)
	}
	if len(fields) > 3 && fields[3] != "" {
		if rule.MinSubtotal, err = decimal.NewFromString(fields[3]); err != nil {
			return coupon.Rule{}, false, false, errors.Wrapf(errMalformed, "min subtotal %q", fields[3])
		}
	}
	if len(fields) > 4 && fields[4] != "" {
		until, err := time.Parse(time.DateOnly, fields[4])
		if err != nil {
			return coupon.Rule{}, false, false, errors.Wrapf(errMalformed, "valid until %q", fields[4])
		}
		// Valid through the end of that day.
		until = until.Add(24*time.Hour - time.Second)
		rule.ValidUntil = &until
	}
	rule.Description = describe(rule)
	return rule, true, true, nil
}

func describe(r coupon.Rule) string {
	if r.DiscountType == coupon.DiscountFixed {
		return "Partner promo: " + r.Value.StringFixed(2) + " off"
	}
	return "Partner promo: " + r.Value.String() + "% off"
}

// options tunes collect.
type options struct {
	// MinSources is how many distinct feeds must list a code.
	MinSources int
	// Capacity and FPR size the per-feed bloom filters.
	Capacity uint
	FPR      float64
}

type candidate struct {
	rule     coupon.Rule
	explicit bool
	// source is the lowest feed index that supplied rule.
	source int
	mask   uint64
}

// collect returns the rules of codes listed by at least MinSources feeds,
// sorted by code. Membership in other feeds is pre-screened with one bloom
// filter per feed; exact cross-feed counts come from the merged masks, so
// bloom false positives never promote a code.
func collect(ctx context.Context, lg *zap.Logger, files []string, opts options) ([]coupon.Rule, error) {
	if len(files) == 0 {
		return nil, errors.New("no feed files")
	}
	if len(files) > maxFeeds {
		return nil, errors.Errorf("at most %d feeds, got %d", maxFeeds, len(files))
	}
	if opts.MinSources < 1 {
		opts.MinSources = 1
	}
	if opts.MinSources > len(files) {
		return nil, errors.Errorf("min sources %d exceeds %d feeds", opts.MinSources, len(files))
	}

	var filters []*bloom.BloomFilter
	if opts.MinSources > 1 {
		var err error
		if filters, err = buildFilters(ctx, lg, files, opts); err != nil {
			return nil, errors.Wrap(err, "build bloom filters")
		}
	}

	perFile := make([]map[string]candidate, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found, err := scanCandidates(gctx, i, path, filters, opts.MinSources)
			if err != nil {
				return errors.Wrapf(err, "scan feed %s", path)
			}
			lg.Info("Feed scanned", zap.String("file", path), zap.Int("candidates", len(found)))
			perFile[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]candidate)
	for _, found := range perFile {
		for code, c := range found {
			prev, ok := merged[code]
			if !ok {
				merged[code] = c
				continue
			}
			prev.mask |= c.mask
			if c.explicit && (!prev.explicit || c.source < prev.source) {
				prev.rule, prev.explicit, prev.source = c.rule, true, c.source
			}
			merged[code] = prev
		}
	}

	var out []coupon.Rule
	for _, c := range merged {
		if bits.OnesCount64(c.mask) >= opts.MinSources {
			out = append(out, c.rule)
		}
	}
	slices.SortFunc(out, func(a, b coupon.Rule) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func buildFilters(ctx context.Context, lg *zap.Logger, files []string, opts options) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.Capacity, opts.FPR)
			var n int
			err := streamFeed(ctx, path, func(line string) error {
				rule, _, ok, err := parseLine(line)
				if err != nil || !ok {
					return nil // reported in the scan pass
				}
				filter.AddString(rule.Code)
				n++
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "index feed %s", path)
			}
			lg.Info("Feed indexed", zap.String("file", path), zap.Int("codes", n))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scanCandidates keeps the codes of feed idx that may appear in at least
// minSources-1 other feeds.
func scanCandidates(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter, minSources int) (map[string]candidate, error) {
	found := make(map[string]candidate)
	bit := uint64(1) << uint(idx)
	lineNo := 0
	err := streamFeed(ctx, path, func(line string) error {
		lineNo++
		rule, explicit, ok, err := parseLine(line)
		if err != nil {
			return errors.Wrapf(err, "line %d", lineNo)
		}
		if !ok {
			return nil
		}
		if _, seen := found[rule.Code]; seen {
			return nil
		}
		others := 0
		for j, f := range filters {
			if j != idx && f.TestString(rule.Code) {
				others++
			}
		}
		if others+1 < minSources {
			return nil
		}
		found[rule.Code] = candidate{rule: rule, explicit: explicit, source: idx, mask: bit}
		return nil
	})
	return found, err
}

// streamFeed calls fn for every line of a gzip-compressed feed.
func streamFeed(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "scan")
}

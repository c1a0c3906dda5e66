// Package analytics computes read-only rollups over persisted orders.
//
// By default cancelled orders are left out of every figure. Set
// Config.IncludeCancelled to count every order regardless of status.
package analytics

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPopularLimit = 10
	MaxPopularLimit     = 100
)

// RestaurantStats summarizes the orders of one restaurant.
type RestaurantStats struct {
	OrderCount        int
	AverageOrderValue decimal.Decimal
	TotalRevenue      decimal.Decimal
}

// UserStats summarizes the orders of one user.
type UserStats struct {
	TotalOrders       int
	TotalSpent        decimal.Decimal
	AverageOrderValue decimal.Decimal
}

// PopularItem is a menu item ranked by ordered quantity.
type PopularItem struct {
	MenuItemID string
	Name       string
	Quantity   int
	OrderCount int
}

// RestaurantReport combines stats and the most popular items.
type RestaurantReport struct {
	RestaurantStats
	PopularItems []PopularItem
}

// Aggregator answers analytics queries.
type Aggregator interface {
	RestaurantStats(ctx context.Context, restaurantID string) (*RestaurantStats, error)
	UserStats(ctx context.Context, userID string) (*UserStats, error)
	PopularItems(ctx context.Context, restaurantID string, limit int) ([]PopularItem, error)
}

// Filter selects orders by restaurant or user. Empty fields match anything.
type Filter struct {
	RestaurantID string
	UserID       string
	// IncludeCancelled also matches orders in the cancelled status.
	IncludeCancelled bool
}

// ItemLine is one order line as seen by PopularItems.
type ItemLine struct {
	OrderID    string
	MenuItemID string
	Name       string
	Quantity   int
}

// OrderSource streams order data matching a Filter.
type OrderSource interface {
	ScanFinalAmounts(ctx context.Context, f Filter, fn func(amount decimal.Decimal) error) error
	// ScanItemLines ignores f.UserID.
	ScanItemLines(ctx context.Context, f Filter, fn func(l ItemLine) error) error
}

var _ Aggregator = (*ScanAggregator)(nil)

// Config of ScanAggregator.
type Config struct {
	// IncludeCancelled counts cancelled orders in every figure.
	IncludeCancelled bool
}

// ScanAggregator computes every figure at query time from an OrderSource.
type ScanAggregator struct {
	src OrderSource
	cfg Config
}

// NewScanAggregator returns a ScanAggregator reading from src.
func NewScanAggregator(src OrderSource, cfg Config) *ScanAggregator {
	return &ScanAggregator{src: src, cfg: cfg}
}

func (a *ScanAggregator) filter(f Filter) Filter {
	f.IncludeCancelled = a.cfg.IncludeCancelled
	return f
}

type summary struct {
	count int
	sum   decimal.Decimal
}

func (s summary) average() decimal.Decimal {
	if s.count == 0 {
		return decimal.Zero
	}
	return s.sum.Div(decimal.NewFromInt(int64(s.count))).Round(2)
}

func (a *ScanAggregator) summarize(ctx context.Context, f Filter) (summary, error) {
	s := summary{sum: decimal.Zero}
	err := a.src.ScanFinalAmounts(ctx, a.filter(f), func(amount decimal.Decimal) error {
		s.count++
		s.sum = s.sum.Add(amount)
		return nil
	})
	return s, err
}

func (a *ScanAggregator) RestaurantStats(ctx context.Context, restaurantID string) (*RestaurantStats, error) {
	s, err := a.summarize(ctx, Filter{RestaurantID: restaurantID})
	if err != nil {
		return nil, errors.Wrap(err, "scan restaurant orders")
	}
	return &RestaurantStats{
		OrderCount:        s.count,
		AverageOrderValue: s.average(),
		TotalRevenue:      s.sum,
	}, nil
}

func (a *ScanAggregator) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	s, err := a.summarize(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "scan user orders")
	}
	return &UserStats{
		TotalOrders:       s.count,
		TotalSpent:        s.sum,
		AverageOrderValue: s.average(),
	}, nil
}

// PopularItems ranks items by total quantity, then by the number of orders
// containing them. limit is clamped to [1, MaxPopularLimit], with
// DefaultPopularLimit for non-positive values.
func (a *ScanAggregator) PopularItems(ctx context.Context, restaurantID string, limit int) ([]PopularItem, error) {
	limit = clampLimit(limit)

	type acc struct {
		item   PopularItem
		orders map[string]struct{}
	}
	byItem := map[string]*acc{}
	err := a.src.ScanItemLines(ctx, a.filter(Filter{RestaurantID: restaurantID}), func(l ItemLine) error {
		e, ok := byItem[l.MenuItemID]
		if !ok {
			e = &acc{item: PopularItem{MenuItemID: l.MenuItemID, Name: l.Name}, orders: map[string]struct{}{}}
			byItem[l.MenuItemID] = e
		}
		e.item.Quantity += l.Quantity
		e.orders[l.OrderID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan order items")
	}

	out := make([]PopularItem, 0, len(byItem))
	for _, e := range byItem {
		e.item.OrderCount = len(e.orders)
		out = append(out, e.item)
	}
	slices.SortFunc(out, func(x, y PopularItem) int {
		return cmp.Or(
			cmp.Compare(y.Quantity, x.Quantity),
			cmp.Compare(y.OrderCount, x.OrderCount),
			cmp.Compare(x.MenuItemID, y.MenuItemID),
		)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPopularLimit
	case limit > MaxPopularLimit:
		return MaxPopularLimit
	default:
		return limit
	}
}

// Report fetches stats and popular items for restaurantID concurrently.
func Report(ctx context.Context, a Aggregator, restaurantID string, limit int) (*RestaurantReport, error) {
	var (
		stats   *RestaurantStats
		popular []PopularItem
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = a.RestaurantStats(ctx, restaurantID)
		return err
	})
	g.Go(func() (err error) {
		popular, err = a.PopularItems(ctx, restaurantID, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &RestaurantReport{RestaurantStats: *stats, PopularItems: popular}, nil
}

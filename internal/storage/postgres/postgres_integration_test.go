//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/platter/internal/catalog"
	"github.com/xenking/platter/internal/domain/analytics"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/order"
	"github.com/xenking/platter/internal/storage/postgres"
)

type StoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	store     *postgres.Store
	orders    *order.Service
	delivery  *delivery.Service
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("platter"),
		tcpostgres.WithUsername("platter"),
		tcpostgres.WithPassword("platter"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.pool, err = postgres.NewPool(ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(postgres.RunMigrations(ctx, s.pool))

	s.store = postgres.NewStore(s.pool)
	s.orders = order.NewService(s.store.OrderTransactor(), order.Config{TaxRate: decimal.RequireFromString("0.05")})
	s.delivery = delivery.NewService(s.store.DeliveryTransactor(), nil)
}

func (s *StoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *StoreSuite) SetupTest() {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `TRUNCATE deliveries, order_status_events, order_items, orders, coupons,
		customization_options, customization_groups, menu_items, restaurants, delivery_persons, users CASCADE`)
	s.Require().NoError(err)

	c, err := catalog.ReadFile("../../../db/seed/catalog.json")
	s.Require().NoError(err)
	s.Require().NoError(postgres.Seed(ctx, s.store, c))
}

func (s *StoreSuite) putCoupon(code string, value string, limit int) {
	l := limit
	s.Require().NoError(postgres.NewCouponRepository(s.store).Upsert(context.Background(), &coupon.Rule{
		Code:       code,
		Type:       coupon.DiscountFixed,
		Value:      decimal.RequireFromString(value),
		UsageLimit: &l,
		Active:     true,
	}))
}

func (s *StoreSuite) usage(code string) int {
	rule, err := postgres.NewCouponRepository(s.store).FindByCode(context.Background(), code)
	s.Require().NoError(err)
	return rule.UsageCount
}

func margherita(code string) order.CreateRequest {
	return order.CreateRequest{
		UserID:       "u-customer-1",
		RestaurantID: "r-pizza-forno",
		Items: []order.LineRequest{
			{MenuItemID: "i-margherita", Quantity: 1, Customizations: []string{"o-size-large"}},
			{MenuItemID: "i-garlic-bread", Quantity: 2},
		},
		DeliveryAddress: "12 MG Road",
		CouponCode:      code,
		PaymentMethod:   "upi",
	}
}

func (s *StoreSuite) TestCreateAndGet() {
	ctx := context.Background()

	created, err := s.orders.Create(ctx, margherita("TENOFF"))
	s.Require().NoError(err)

	got, err := s.orders.Get(ctx, created.ID)
	s.Require().NoError(err)

	// 419 + 2*149 = 717; tax 35.85; discount capped at 40.
	s.True(decimal.RequireFromString("717").Equal(got.TotalAmount))
	s.True(decimal.RequireFromString("35.85").Equal(got.Taxes))
	s.True(decimal.RequireFromString("40").Equal(got.DiscountAmount))
	s.True(decimal.RequireFromString("761.85").Equal(got.FinalAmount))
	s.Equal("TENOFF", got.CouponCode)
	s.Require().Len(got.Items, 2)
	s.Equal("i-margherita", got.Items[0].MenuItemID)
	s.Require().Len(got.Items[0].Customizations, 1)
	s.Equal("o-size-large", got.Items[0].Customizations[0].OptionID)
	s.Equal(1, s.usage("TENOFF"))

	_, err = s.orders.Get(ctx, "missing")
	s.ErrorIs(err, order.ErrOrderNotFound)
}

func (s *StoreSuite) TestConcurrentReservations() {
	const limit = 3
	s.putCoupon("LIMITED", "10", limit)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for range 2 * limit {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.orders.Create(context.Background(), margherita("LIMITED"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, coupon.ErrCouponExhausted):
				exhausted++
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(limit, succeeded)
	s.Equal(limit, exhausted)
	s.Equal(limit, s.usage("LIMITED"))
}

func (s *StoreSuite) TestCancelReleasesCoupon() {
	ctx := context.Background()
	s.putCoupon("ONCE", "20", 1)

	o, err := s.orders.Create(ctx, margherita("ONCE"))
	s.Require().NoError(err)
	s.Equal(1, s.usage("ONCE"))

	_, err = s.orders.Create(ctx, margherita("ONCE"))
	s.ErrorIs(err, coupon.ErrCouponExhausted)

	_, err = s.orders.Transition(ctx, o.ID, order.StatusConfirmed, "u-owner-1")
	s.Require().NoError(err)
	cancelled, err := s.orders.Cancel(ctx, o.ID, "kitchen closed", "u-owner-1")
	s.Require().NoError(err)
	s.Equal(order.StatusCancelled, cancelled.Status)
	s.Equal(3, cancelled.Version)
	s.Equal(0, s.usage("ONCE"))

	events, err := s.orders.History(ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal("kitchen closed", events[2].Reason)

	d, err := s.delivery.GetByOrder(ctx, o.ID)
	s.Require().NoError(err)
	s.True(d.OrderCancelled)
	_, err = s.delivery.Assign(ctx, d.ID, "c-asha")
	s.ErrorIs(err, delivery.ErrOrderCancelled)
}

func (s *StoreSuite) TestDeliveryFlow() {
	ctx := context.Background()

	o, err := s.orders.Create(ctx, margherita(""))
	s.Require().NoError(err)
	_, err = s.orders.Transition(ctx, o.ID, order.StatusConfirmed, "u-owner-1")
	s.Require().NoError(err)

	d, err := s.delivery.GetByOrder(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(delivery.StatusAwaitingAssignment, d.Status)

	d, err = s.delivery.Assign(ctx, d.ID, "c-asha")
	s.Require().NoError(err)
	s.Equal(delivery.StatusAssigned, d.Status)

	_, err = s.delivery.Assign(ctx, d.ID, "c-ravi")
	s.ErrorIs(err, errs.ErrIllegalTransition)

	t0 := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	upd, err := s.delivery.RecordLocation(ctx, d.ID, delivery.Location{Lat: 12.97, Lng: 77.59, RecordedAt: t0})
	s.Require().NoError(err)
	s.False(upd.Stale)

	upd, err = s.delivery.RecordLocation(ctx, d.ID, delivery.Location{Lat: 12.96, Lng: 77.58, RecordedAt: t0.Add(-time.Minute)})
	s.Require().NoError(err)
	s.True(upd.Stale)
	s.Require().NotNil(upd.Delivery.Location)
	s.InDelta(12.96, upd.Delivery.Location.Lat, 1e-9)

	d, err = s.delivery.AdvanceStatus(ctx, d.ID, delivery.StatusPickedUp)
	s.Require().NoError(err)
	s.NotNil(d.PickupTime)
	d, err = s.delivery.AdvanceStatus(ctx, d.ID, delivery.StatusDelivered)
	s.Require().NoError(err)
	s.NotNil(d.DeliveryTime)

	var available bool
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT is_available FROM delivery_persons WHERE id = 'c-asha'`).Scan(&available))
	s.True(available)
}

func (s *StoreSuite) TestCancelFreesCourier() {
	ctx := context.Background()

	o, err := s.orders.Create(ctx, margherita(""))
	s.Require().NoError(err)
	_, err = s.orders.Transition(ctx, o.ID, order.StatusConfirmed, "u-owner-1")
	s.Require().NoError(err)
	d, err := s.delivery.GetByOrder(ctx, o.ID)
	s.Require().NoError(err)
	_, err = s.delivery.Assign(ctx, d.ID, "c-asha")
	s.Require().NoError(err)

	_, err = s.orders.Cancel(ctx, o.ID, "customer left", "u-customer-1")
	s.Require().NoError(err)

	var available bool
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT is_available FROM delivery_persons WHERE id = 'c-asha'`).Scan(&available))
	s.True(available)
}

func (s *StoreSuite) TestListOrders() {
	ctx := context.Background()

	var ids []string
	for range 3 {
		o, err := s.orders.Create(ctx, margherita(""))
		s.Require().NoError(err)
		ids = append(ids, o.ID)
	}

	page, err := s.orders.List(ctx, order.ListFilter{UserID: "u-customer-1", Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(ids[2], page[0].ID)
	s.Equal(ids[1], page[1].ID)
	s.Require().Len(page[0].Items, 2)
	s.Equal("i-margherita", page[0].Items[0].MenuItemID)
	s.Require().Len(page[0].Items[0].Customizations, 1)

	page, err = s.orders.List(ctx, order.ListFilter{RestaurantID: "r-pizza-forno", Offset: 2})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(ids[0], page[0].ID)

	page, err = s.orders.List(ctx, order.ListFilter{RestaurantID: "r-dosa-corner"})
	s.Require().NoError(err)
	s.Empty(page)

	_, err = s.orders.Transition(ctx, ids[0], order.StatusConfirmed, "u-owner-2")
	s.Require().NoError(err)
	d, err := s.delivery.GetByOrder(ctx, ids[0])
	s.Require().NoError(err)
	_, err = s.delivery.Assign(ctx, d.ID, "c-ravi")
	s.Require().NoError(err)

	assigned, err := s.delivery.ListByCourier(ctx, "c-ravi")
	s.Require().NoError(err)
	s.Require().Len(assigned, 1)
	s.Equal(ids[0], assigned[0].OrderID)

	_, err = s.delivery.ListByCourier(ctx, "c-nope")
	s.ErrorIs(err, delivery.ErrCourierNotFound)

	rest, err := s.orders.Restaurant(ctx, "r-pizza-forno")
	s.Require().NoError(err)
	s.Equal("u-owner-2", rest.OwnerID)
	courier, err := s.delivery.Courier(ctx, "c-asha")
	s.Require().NoError(err)
	s.Equal("u-courier-1", courier.UserID)
}

func (s *StoreSuite) TestAnalytics() {
	ctx := context.Background()
	agg := analytics.NewScanAggregator(postgres.NewAnalyticsSource(s.store), analytics.Config{})

	first, err := s.orders.Create(ctx, margherita(""))
	s.Require().NoError(err)
	_, err = s.orders.Create(ctx, margherita(""))
	s.Require().NoError(err)
	cancelled, err := s.orders.Create(ctx, margherita(""))
	s.Require().NoError(err)
	_, err = s.orders.Cancel(ctx, cancelled.ID, "", "u-customer-1")
	s.Require().NoError(err)

	report, err := analytics.Report(ctx, agg, "r-pizza-forno", 0)
	s.Require().NoError(err)
	s.Equal(2, report.OrderCount)
	s.True(first.FinalAmount.Mul(decimal.NewFromInt(2)).Equal(report.TotalRevenue))
	s.True(first.FinalAmount.Equal(report.AverageOrderValue))
	s.Require().Len(report.PopularItems, 2)
	s.Equal("i-garlic-bread", report.PopularItems[0].MenuItemID)
	s.Equal(4, report.PopularItems[0].Quantity)

	user, err := agg.UserStats(ctx, "u-customer-1")
	s.Require().NoError(err)
	s.Equal(2, user.TotalOrders)

	all := analytics.NewScanAggregator(postgres.NewAnalyticsSource(s.store), analytics.Config{IncludeCancelled: true})
	report, err = analytics.Report(ctx, all, "r-pizza-forno", 0)
	s.Require().NoError(err)
	s.Equal(3, report.OrderCount)
	s.True(first.FinalAmount.Mul(decimal.NewFromInt(3)).Equal(report.TotalRevenue))
	s.Equal(6, report.PopularItems[0].Quantity)

	empty, err := agg.RestaurantStats(ctx, "r-dosa-corner")
	s.Require().NoError(err)
	s.Equal(0, empty.OrderCount)
	s.True(empty.AverageOrderValue.IsZero())
}

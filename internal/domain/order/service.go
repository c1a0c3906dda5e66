package order

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/menu"
	"github.com/xenking/platter/internal/domain/pricing"
)

// BelowMinimumError is returned when the items total is below the
// restaurant's minimum order.
type BelowMinimumError struct {
	Minimum decimal.Decimal
	Total   decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return "order total " + e.Total.StringFixed(2) + " is below restaurant minimum " + e.Minimum.StringFixed(2)
}

func (e *BelowMinimumError) Is(target error) bool {
	return target == errs.ErrValidation
}

// LineRequest is one requested line of a new order.
type LineRequest struct {
	MenuItemID     string
	Quantity       int
	Customizations []string
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	UserID              string
	RestaurantID        string
	Items               []LineRequest
	DeliveryAddress     string
	CouponCode          string
	PaymentMethod       string
	SpecialInstructions string
}

func (r *CreateRequest) validate() error {
	switch {
	case r.UserID == "":
		return errs.Validation("user_id", "is required")
	case r.RestaurantID == "":
		return errs.Validation("restaurant_id", "is required")
	case strings.TrimSpace(r.DeliveryAddress) == "":
		return errs.Validation("delivery_address", "is required")
	case len(r.Items) == 0:
		return errs.Validation("items", "at least one item is required")
	}
	for i, it := range r.Items {
		if it.MenuItemID == "" {
			return errs.Validation("items["+strconv.Itoa(i)+"].menu_item_id", "is required")
		}
		if it.Quantity < 1 {
			return errs.Validation("items["+strconv.Itoa(i)+"].quantity", "must be at least 1")
		}
	}
	return nil
}

// Config holds pricing parameters that are not stored per restaurant.
type Config struct {
	TaxRate decimal.Decimal
}

// Service implements the order lifecycle.
type Service struct {
	tx      Transactor
	taxRate decimal.Decimal
	now     func() time.Time
}

// NewService creates an order Service.
func NewService(tx Transactor, cfg Config) *Service {
	return &Service{tx: tx, taxRate: cfg.TaxRate, now: time.Now}
}

// Create prices and persists a new order in status created. Catalog lookup,
// coupon reservation and the inserts share one transaction, so a failure at
// any step leaves no order and no consumed coupon use behind.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		sel := make([]menu.Selection, len(req.Items))
		for i, it := range req.Items {
			sel[i] = menu.Selection{ItemID: it.MenuItemID, OptionIDs: it.Customizations}
		}
		restaurant, resolved, err := menu.Resolve(ctx, tx.Menu(), req.RestaurantID, sel)
		if err != nil {
			return err
		}

		lines := make([]pricing.Line, len(resolved))
		subtotal := decimal.Zero
		for i, rl := range resolved {
			lines[i] = pricing.Line{Quantity: req.Items[i].Quantity, UnitPrice: rl.UnitPrice}
			subtotal = subtotal.Add(lines[i].Total())
		}
		if subtotal.LessThan(restaurant.MinimumOrder) {
			return &BelowMinimumError{Minimum: restaurant.MinimumOrder, Total: subtotal}
		}

		now := s.now()
		engine := pricing.NewEngine(coupon.NewLedger(tx.Coupons()))
		priced, err := engine.ComputeTotal(ctx, pricing.Request{
			Lines:       lines,
			DeliveryFee: restaurant.DeliveryFee,
			TaxRate:     s.taxRate,
			CouponCode:  req.CouponCode,
			Now:         now,
		})
		if err != nil {
			return err
		}

		o = newOrder(req, resolved, lines, priced, now)
		if err := tx.Orders().Create(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		return tx.Orders().AppendEvent(ctx, Event{
			OrderID: o.ID,
			To:      StatusCreated,
			Actor:   req.UserID,
			At:      now,
		})
	})
	if err != nil {
		if errors.Is(err, pricing.ErrInvalidPricing) {
			zctx.From(ctx).Error("Pricing produced a negative total",
				zap.String("restaurant_id", req.RestaurantID),
				zap.String("coupon", req.CouponCode),
				zap.Error(err),
			)
		}
		return nil, err
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.Stringer("final_amount", o.FinalAmount),
	)
	return o, nil
}

func newOrder(req CreateRequest, resolved []menu.ResolvedLine, lines []pricing.Line, p *pricing.PricedOrder, now time.Time) *Order {
	items := make([]Item, len(resolved))
	for i, rl := range resolved {
		custom := make([]Customization, len(rl.Options))
		for j, opt := range rl.Options {
			custom[j] = Customization{OptionID: opt.ID, Name: opt.Name, PriceAddition: opt.PriceAddition}
		}
		items[i] = Item{
			MenuItemID:     rl.Item.ID,
			Name:           rl.Item.Name,
			Quantity:       lines[i].Quantity,
			UnitPrice:      rl.UnitPrice,
			Customizations: custom,
			LineTotal:      lines[i].Total(),
		}
	}

	return &Order{
		ID:                  uuid.New().String(),
		UserID:              req.UserID,
		RestaurantID:        req.RestaurantID,
		Items:               items,
		TotalAmount:         p.TotalAmount,
		DeliveryFee:         p.DeliveryFee,
		Taxes:               p.Taxes,
		DiscountAmount:      p.DiscountAmount,
		FinalAmount:         p.FinalAmount,
		CouponCode:          req.CouponCode,
		PaymentMethod:       req.PaymentMethod,
		PaymentStatus:       PaymentPending,
		Status:              StatusCreated,
		DeliveryAddress:     req.DeliveryAddress,
		SpecialInstructions: req.SpecialInstructions,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Get returns the order with id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		o, err = tx.Orders().Get(ctx, id)
		return err
	})
	return o, err
}

// List returns a page of orders matching f, newest first. A zero limit
// means DefaultListLimit; larger limits are capped at MaxListLimit.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	switch {
	case f.Limit < 0:
		return nil, errs.Validation("limit", "must not be negative")
	case f.Offset < 0:
		return nil, errs.Validation("offset", "must not be negative")
	case f.Limit == 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}

	var orders []Order
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		orders, err = tx.Orders().List(ctx, f)
		return err
	})
	return orders, err
}

// Restaurant returns the restaurant with id.
func (s *Service) Restaurant(ctx context.Context, id string) (*menu.Restaurant, error) {
	var r *menu.Restaurant
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) (err error) {
		r, err = tx.Menu().GetRestaurant(ctx, id)
		return err
	})
	return r, err
}

// History returns the status events of the order with id, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]Event, error) {
	var events []Event
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Orders().Get(ctx, id); err != nil {
			return err
		}
		var err error
		events, err = tx.Orders().Events(ctx, id)
		return err
	})
	return events, err
}

// Transition moves the order to target on behalf of actor.
//
// Confirming an order creates its delivery. Cancelling an order that holds a
// coupon gives the coupon use back. Both happen in the same transaction as
// the status change.
func (s *Service) Transition(ctx context.Context, id string, target Status, actor string) (*Order, error) {
	return s.transition(ctx, id, target, actor, "")
}

// Cancel moves the order to StatusCancelled and records reason.
func (s *Service) Cancel(ctx context.Context, id, reason, actor string) (*Order, error) {
	return s.transition(ctx, id, StatusCancelled, actor, reason)
}

func (s *Service) transition(ctx context.Context, id string, target Status, actor, reason string) (*Order, error) {
	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, id)
		if err != nil {
			return err
		}

		from := o.Status
		if !from.CanTransition(target) {
			return &errs.IllegalTransitionError{Entity: "order", From: string(from), To: string(target)}
		}

		now := s.now()
		expected := o.Version
		o.Status = target
		o.Version++
		o.UpdatedAt = now
		if target == StatusCancelled {
			o.CancelReason = reason
		}

		ok, err := tx.Orders().UpdateStatus(ctx, o, expected)
		if err != nil {
			return errors.Wrap(err, "update order status")
		}
		if !ok {
			if _, err := tx.Orders().Get(ctx, id); err != nil {
				return err
			}
			return errors.Wrapf(errs.ErrConflict, "order %s changed since version %d", id, expected)
		}

		switch target {
		case StatusConfirmed:
			if _, err := delivery.CreateForOrder(ctx, tx.Deliveries(), o.ID, now); err != nil {
				return err
			}
		case StatusCancelled:
			if o.CouponCode != "" {
				if err := coupon.NewLedger(tx.Coupons()).Release(ctx, o.CouponCode); err != nil {
					return err
				}
			}
			courierID, err := delivery.ReleaseCourier(ctx, tx.Deliveries(), tx.Couriers(), o.ID)
			if err != nil {
				return err
			}
			if courierID != "" {
				zctx.From(ctx).Info("Courier released",
					zap.String("order_id", o.ID),
					zap.String("courier_id", courierID),
				)
			}
		}

		return tx.Orders().AppendEvent(ctx, Event{
			OrderID: o.ID,
			From:    from,
			To:      target,
			Actor:   actor,
			Reason:  reason,
			At:      now,
		})
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", id),
		zap.Stringer("status", target),
		zap.String("actor", actor),
	)
	return o, nil
}

// Package catalog reads the seed catalog: users, restaurants with their
// menus, couriers and coupons.
package catalog

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/menu"
)

type Catalog struct {
	Users       []User       `json:"users"`
	Restaurants []Restaurant `json:"restaurants"`
	Couriers    []Courier    `json:"couriers"`
	Coupons     []Coupon     `json:"coupons"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type Restaurant struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Cuisine      string          `json:"cuisine"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	MinimumOrder decimal.Decimal `json:"minimum_order"`
	Inactive     bool            `json:"inactive"`
	OwnerID      string          `json:"owner_id"`
	Items        []Item          `json:"items"`
}

type Item struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Unavailable bool            `json:"unavailable"`
	Groups      []Group         `json:"groups"`
}

type Group struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Options  []Option `json:"options"`
}

type Option struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	PriceAddition decimal.Decimal `json:"price_addition"`
	Unavailable   bool            `json:"unavailable"`
}

type Courier struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Phone   string          `json:"phone"`
	Vehicle string          `json:"vehicle"`
	Rating  decimal.Decimal `json:"rating"`
	UserID  string          `json:"user_id"`
}

type Coupon struct {
	Code               string           `json:"code"`
	Description        string           `json:"description"`
	Type               string           `json:"discount_type"`
	Value              decimal.Decimal  `json:"discount_amount"`
	MinimumOrderAmount decimal.Decimal  `json:"minimum_order_amount"`
	MaxDiscount        *decimal.Decimal `json:"max_discount"`
	ValidFrom          *time.Time       `json:"valid_from"`
	ValidUntil         *time.Time       `json:"valid_until"`
	UsageLimit         *int             `json:"usage_limit"`
}

// Rule converts c to a validated coupon rule.
func (c Coupon) Rule() (coupon.Rule, error) {
	r := coupon.Rule{
		Code:               c.Code,
		Description:        c.Description,
		Type:               coupon.DiscountType(c.Type),
		Value:              c.Value,
		MinimumOrderAmount: c.MinimumOrderAmount,
		MaxDiscount:        c.MaxDiscount,
		ValidFrom:          c.ValidFrom,
		ValidUntil:         c.ValidUntil,
		UsageLimit:         c.UsageLimit,
		Active:             true,
	}
	if err := r.Validate(); err != nil {
		return coupon.Rule{}, errors.Wrapf(err, "coupon %q", c.Code)
	}
	return r, nil
}

// Menu flattens r into the domain catalog types.
func (r Restaurant) Menu() (menu.Restaurant, []menu.Item, []menu.Option) {
	rest := menu.Restaurant{
		ID:           r.ID,
		Name:         r.Name,
		DeliveryFee:  r.DeliveryFee,
		MinimumOrder: r.MinimumOrder,
		IsActive:     !r.Inactive,
		OwnerID:      r.OwnerID,
	}
	var (
		items   []menu.Item
		options []menu.Option
	)
	for _, it := range r.Items {
		mi := menu.Item{
			ID:           it.ID,
			RestaurantID: r.ID,
			Name:         it.Name,
			Price:        it.Price,
			IsAvailable:  !it.Unavailable,
		}
		for _, g := range it.Groups {
			mi.GroupIDs = append(mi.GroupIDs, g.ID)
			for _, o := range g.Options {
				options = append(options, menu.Option{
					ID:            o.ID,
					GroupID:       g.ID,
					Name:          o.Name,
					PriceAddition: o.PriceAddition,
					IsAvailable:   !o.Unavailable,
				})
			}
		}
		items = append(items, mi)
	}
	return rest, items, options
}

// Courier converts c to the domain type. Couriers start available.
func (c Courier) Courier() delivery.Courier {
	return delivery.Courier{
		ID:            c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Vehicle:       c.Vehicle,
		Available:     true,
		AverageRating: c.Rating,
		UserID:        c.UserID,
	}
}

// Read decodes a catalog from r and validates every coupon in it.
func Read(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	for _, cp := range c.Coupons {
		if _, err := cp.Rule(); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// ReadFile reads the catalog at path.
func ReadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Writer receives catalog entries. *memory.Store implements it.
type Writer interface {
	PutRestaurant(r menu.Restaurant)
	PutItem(it menu.Item)
	PutOption(o menu.Option)
	PutCoupon(rule coupon.Rule)
	PutCourier(c delivery.Courier)
}

// Apply writes every entry of c to w.
func (c *Catalog) Apply(w Writer) error {
	for _, r := range c.Restaurants {
		rest, items, options := r.Menu()
		w.PutRestaurant(rest)
		for _, it := range items {
			w.PutItem(it)
		}
		for _, o := range options {
			w.PutOption(o)
		}
	}
	for _, cr := range c.Couriers {
		w.PutCourier(cr.Courier())
	}
	for _, cp := range c.Coupons {
		rule, err := cp.Rule()
		if err != nil {
			return err
		}
		w.PutCoupon(rule)
	}
	return nil
}

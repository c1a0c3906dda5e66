// Package menu is the read side of the restaurant catalog used when pricing
// an order: restaurants, their menu items and customization options.
package menu

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrRestaurantNotFound is returned for unknown or inactive restaurants.
var ErrRestaurantNotFound = errors.New("restaurant not found")

// ItemNotFoundError indicates a requested menu item does not exist, belongs
// to another restaurant, or is not available.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("menu item %s not found", e.ItemID)
}

// OptionNotFoundError indicates a customization option does not exist, is
// unavailable, or does not belong to the item it was chosen for.
type OptionNotFoundError struct {
	ItemID   string
	OptionID string
}

func (e *OptionNotFoundError) Error() string {
	return fmt.Sprintf("customization option %s not available for item %s", e.OptionID, e.ItemID)
}

// Restaurant carries the fields pricing and access checks need.
type Restaurant struct {
	ID           string
	Name         string
	DeliveryFee  decimal.Decimal
	MinimumOrder decimal.Decimal
	IsActive     bool
	// OwnerID is the user id of the owning account, empty if unowned.
	OwnerID string
}

// Item is a menu item with its customization groups.
type Item struct {
	ID           string
	RestaurantID string
	Name         string
	Price        decimal.Decimal
	IsAvailable  bool
	// GroupIDs lists the customization groups offered for this item.
	GroupIDs []string
}

// Option is one choice inside a customization group.
type Option struct {
	ID            string
	GroupID       string
	Name          string
	PriceAddition decimal.Decimal
	IsAvailable   bool
}

// Repository defines read operations for the catalog.
type Repository interface {
	GetRestaurant(ctx context.Context, id string) (*Restaurant, error)
	// GetItems returns the items found among ids; missing ids are omitted.
	GetItems(ctx context.Context, ids []string) ([]Item, error)
	// GetOptions returns the options found among ids; missing ids are omitted.
	GetOptions(ctx context.Context, ids []string) ([]Option, error)
}

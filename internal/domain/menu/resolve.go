package menu

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Selection is a customer's pick of an item with chosen option ids.
type Selection struct {
	ItemID    string
	OptionIDs []string
}

// ResolvedLine is a Selection priced against the catalog.
type ResolvedLine struct {
	Item      Item
	Options   []Option
	UnitPrice decimal.Decimal
}

// Resolve prices every selection for restaurantID. Items and options are
// fetched in one batch each. The unit price is the item price plus the price
// additions of the chosen options.
func Resolve(ctx context.Context, repo Repository, restaurantID string, sel []Selection) (*Restaurant, []ResolvedLine, error) {
	r, err := repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, nil, err
	}
	if !r.IsActive {
		return nil, nil, ErrRestaurantNotFound
	}

	var itemIDs, optionIDs []string
	for _, s := range sel {
		itemIDs = append(itemIDs, s.ItemID)
		optionIDs = append(optionIDs, s.OptionIDs...)
	}

	items, err := repo.GetItems(ctx, itemIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "get menu items")
	}
	byItem := make(map[string]Item, len(items))
	for _, it := range items {
		byItem[it.ID] = it
	}

	byOption := map[string]Option{}
	if len(optionIDs) > 0 {
		opts, err := repo.GetOptions(ctx, optionIDs)
		if err != nil {
			return nil, nil, errors.Wrap(err, "get customization options")
		}
		for _, o := range opts {
			byOption[o.ID] = o
		}
	}

	lines := make([]ResolvedLine, len(sel))
	for i, s := range sel {
		it, ok := byItem[s.ItemID]
		if !ok || it.RestaurantID != restaurantID || !it.IsAvailable {
			return nil, nil, &ItemNotFoundError{ItemID: s.ItemID}
		}

		unit := it.Price
		chosen := make([]Option, 0, len(s.OptionIDs))
		for _, id := range s.OptionIDs {
			o, ok := byOption[id]
			if !ok || !o.IsAvailable || !slices.Contains(it.GroupIDs, o.GroupID) {
				return nil, nil, &OptionNotFoundError{ItemID: it.ID, OptionID: id}
			}
			unit = unit.Add(o.PriceAddition)
			chosen = append(chosen, o)
		}

		lines[i] = ResolvedLine{Item: it, Options: chosen, UnitPrice: unit}
	}
	return r, lines, nil
}

// Package valuation derives a market value for untradeable items from a
// related tradeable item's price, for the handful of items whose drop value
// the game client cannot report directly.
package valuation

import (
	"context"
	"strings"
)

// PriceLookup resolves an item name's current GE price (high price), used
// as the building block for every synthetic-value formula below.
type PriceLookup func(ctx context.Context, itemName string) (price int64, ok bool)

// mokhaiotlClothFloor is the floor value when its component prices are
// unavailable.
const mokhaiotlClothFloor = 5_000_000

// TrueValue applies the synthetic-value table to itemName, falling back to
// providedValue when the item isn't covered or a component price is
// unavailable, except Mokhaiotl cloth, whose documented fallback is a
// fixed floor rather than the caller's declared value.
func TrueValue(ctx context.Context, lookup PriceLookup, itemName string, providedValue int64) int64 {
	lower := strings.ToLower(itemName)

	switch {
	case strings.Contains(lower, "vestige"):
		ring := strings.Replace(lower, "vestige", "ring", 1)
		ringPrice, ringOK := lookup(ctx, ring)
		ingotPrice, ingotOK := lookup(ctx, "Chromium ingot")
		if ringOK && ingotOK {
			return ringPrice - ingotPrice*3
		}
		return providedValue

	case lower == "bludgeon axon" || lower == "bludgeon claw" || lower == "bludgeon spine":
		if v, ok := lookup(ctx, "Abyssal bludgeon"); ok {
			return v / 3
		}
		return providedValue
	case strings.Contains(lower, "bludgeon"):
		return providedValue

	case lower == "hydra's eye" || lower == "hydra's fang" || lower == "hydra's heart":
		if v, ok := lookup(ctx, "Brimstone ring"); ok {
			return v / 3
		}
		return providedValue

	case strings.Contains(lower, "noxious") && containsAny(lower, "point", "blade", "pommel"):
		if v, ok := lookup(ctx, "Noxious halberd"); ok {
			return v / 3
		}
		return providedValue
	case strings.Contains(lower, "noxious"):
		return providedValue

	case lower == "araxyte fang":
		rancour, rancourOK := lookup(ctx, "Amulet of rancour")
		torture, tortureOK := lookup(ctx, "Amulet of torture")
		if rancourOK && tortureOK {
			return rancour - torture
		}
		return providedValue

	case lower == "mokhaiotl cloth":
		gauntlets, gauntletsOK := lookup(ctx, "Confliction gauntlets")
		bracelet, braceletOK := lookup(ctx, "Tormented bracelet")
		tear, tearOK := lookup(ctx, "Demon tear")
		if gauntletsOK && braceletOK && tearOK {
			return gauntlets - bracelet - tear*10000
		}
		return mokhaiotlClothFloor

	default:
		return providedValue
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

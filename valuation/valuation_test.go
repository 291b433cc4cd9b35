package valuation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(prices map[string]int64) PriceLookup {
	return func(ctx context.Context, itemName string) (int64, bool) {
		v, ok := prices[itemName]
		return v, ok
	}
}

func TestTrueValueVestige(t *testing.T) {
	lookup := lookupFrom(map[string]int64{
		"ultor ring":     300_000_000,
		"Chromium ingot": 50_000_000,
	})
	got := TrueValue(context.Background(), lookup, "Ultor vestige", 1)
	assert.Equal(t, int64(150_000_000), got)
}

func TestTrueValueBludgeonPieces(t *testing.T) {
	lookup := lookupFrom(map[string]int64{"Abyssal bludgeon": 9_000_000})
	for _, piece := range []string{"Bludgeon axon", "Bludgeon claw", "Bludgeon spine"} {
		assert.Equal(t, int64(3_000_000), TrueValue(context.Background(), lookup, piece, 1))
	}
}

func TestTrueValueAraxyteFang(t *testing.T) {
	lookup := lookupFrom(map[string]int64{
		"Amulet of rancour": 90_000_000,
		"Amulet of torture": 12_000_000,
	})
	assert.Equal(t, int64(78_000_000), TrueValue(context.Background(), lookup, "Araxyte fang", 1))
}

func TestTrueValueMokhaiotlCloth(t *testing.T) {
	lookup := lookupFrom(map[string]int64{
		"Confliction gauntlets": 200_000_000,
		"Tormented bracelet":    15_000_000,
		"Demon tear":            2_000,
	})
	assert.Equal(t, int64(165_000_000), TrueValue(context.Background(), lookup, "Mokhaiotl cloth", 1))
}

func TestTrueValueMokhaiotlClothFloor(t *testing.T) {
	// Missing component prices fall back to the fixed floor, not the
	// caller's declared value.
	got := TrueValue(context.Background(), lookupFrom(nil), "Mokhaiotl cloth", 123)
	assert.Equal(t, int64(5_000_000), got)
}

func TestTrueValueUncoveredItemKeepsDeclaredValue(t *testing.T) {
	got := TrueValue(context.Background(), lookupFrom(nil), "Dragon med helm", 60_000)
	assert.Equal(t, int64(60_000), got)
}

func TestTrueValueUnavailablePriceKeepsDeclaredValue(t *testing.T) {
	got := TrueValue(context.Background(), lookupFrom(nil), "Ultor vestige", 42)
	assert.Equal(t, int64(42), got)
}

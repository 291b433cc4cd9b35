package processors

import (
	"testing"

	"droptracker-ingest/models"

	"github.com/stretchr/testify/assert"
)

func TestDropQualifiesUnitValueThreshold(t *testing.T) {
	cfg := GroupConfig{models.ConfigMinValueToNotify: "1000000"}

	assert.True(t, dropQualifies(cfg, 1_000_000, 1_000_000, false))
	assert.True(t, dropQualifies(cfg, 5_000_000, 5_000_000, false))
	assert.False(t, dropQualifies(cfg, 999_999, 999_999, false))
}

func TestDropQualifiesStackedValue(t *testing.T) {
	cfg := GroupConfig{
		models.ConfigMinValueToNotify:  "1000000",
		models.ConfigSendStacksOfItems: "true",
	}
	// 100 x 50k crosses only as a stack.
	assert.True(t, dropQualifies(cfg, 50_000, 5_000_000, false))

	cfg[models.ConfigSendStacksOfItems] = "false"
	assert.False(t, dropQualifies(cfg, 50_000, 5_000_000, false))
}

func TestDropQualifiesDefaultThreshold(t *testing.T) {
	cfg := GroupConfig{}
	assert.False(t, dropQualifies(cfg, 1_000_000, 1_000_000, false))
	assert.True(t, dropQualifies(cfg, models.DefaultMinValueToNotify, models.DefaultMinValueToNotify, false))
}

func TestDropQualifiesImageGate(t *testing.T) {
	cfg := GroupConfig{
		models.ConfigMinValueToNotify: "0",
		models.ConfigOnlyImages:       "true",
	}
	assert.False(t, dropQualifies(cfg, 10_000_000, 10_000_000, false))
	assert.True(t, dropQualifies(cfg, 10_000_000, 10_000_000, true))
}

func TestCAQualifiesTierGate(t *testing.T) {
	cfg := GroupConfig{
		models.ConfigNotifyCAs:         "true",
		models.ConfigMinCATierToNotify: "elite",
	}

	for _, tier := range []string{"easy", "medium", "hard"} {
		assert.False(t, caQualifies(cfg, tier, true), tier)
	}
	for _, tier := range []string{"elite", "master", "grandmaster"} {
		assert.True(t, caQualifies(cfg, tier, true), tier)
	}
}

func TestCAQualifiesDisabledTierGate(t *testing.T) {
	cfg := GroupConfig{
		models.ConfigNotifyCAs:         "true",
		models.ConfigMinCATierToNotify: "disabled",
	}
	assert.True(t, caQualifies(cfg, "easy", true))
}

func TestCAQualifiesRequiresNotifyCAs(t *testing.T) {
	cfg := GroupConfig{models.ConfigMinCATierToNotify: "easy"}
	assert.False(t, caQualifies(cfg, "grandmaster", true))
}

func TestBoolGate(t *testing.T) {
	cfg := GroupConfig{models.ConfigNotifyPBs: "1"}
	assert.True(t, boolGate(cfg, models.ConfigNotifyPBs, false))
	assert.False(t, boolGate(cfg, models.ConfigNotifyPets, false))

	cfg[models.ConfigOnlyImages] = "true"
	assert.False(t, boolGate(cfg, models.ConfigNotifyPBs, false))
	assert.True(t, boolGate(cfg, models.ConfigNotifyPBs, true))
}

func TestGroupConfigInt(t *testing.T) {
	cfg := GroupConfig{"number_of_pbs_to_display": "7", "bad": "x"}
	assert.Equal(t, int64(7), cfg.Int("number_of_pbs_to_display", 3))
	assert.Equal(t, int64(3), cfg.Int("bad", 3))
	assert.Equal(t, int64(3), cfg.Int("missing", 3))
}

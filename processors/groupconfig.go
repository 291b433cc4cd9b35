package processors

import (
	"context"
	"strconv"

	"droptracker-ingest/models"
	"droptracker-ingest/normalize"
)

// GroupConfig is one group's key/value configuration, loaded per submission.
// Values are raw strings; typed access goes through
// Bool/Int with the GLOSSARY's tri-state coercion.
type GroupConfig map[string]string

func (s *Service) groupConfig(ctx context.Context, groupID uint) (GroupConfig, error) {
	var rows []models.GroupConfiguration
	if err := s.DB.WithContext(ctx).Where("group_id = ?", groupID).Find(&rows).Error; err != nil {
		return nil, err
	}
	cfg := make(GroupConfig, len(rows))
	for _, row := range rows {
		cfg[row.Key] = row.Value
	}
	return cfg, nil
}

func (c GroupConfig) Bool(key string) bool {
	return normalize.IsTruthy(c[key])
}

func (c GroupConfig) Int(key string, fallback int64) int64 {
	raw, ok := c[key]
	if !ok || raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// imagesOK applies only_send_messages_with_images: a group configured that
// way suppresses any notification lacking an attachment.
func (c GroupConfig) imagesOK(hasImage bool) bool {
	if c.Bool(models.ConfigOnlyImages) && !hasImage {
		return false
	}
	return true
}

// dropQualifies is the drop notification gate: unit value crosses the
// threshold, or stacked value does when send_stacks_of_items is on.
func dropQualifies(cfg GroupConfig, unitValue, dropValue int64, hasImage bool) bool {
	if !cfg.imagesOK(hasImage) {
		return false
	}
	min := cfg.Int(models.ConfigMinValueToNotify, models.DefaultMinValueToNotify)
	if unitValue >= min {
		return true
	}
	return cfg.Bool(models.ConfigSendStacksOfItems) && dropValue >= min
}

// caTierIndex maps a tier name to its position in the ordered tier list;
// unknown tiers return -1.
func caTierIndex(tier string) int {
	for i, t := range models.CombatAchievementTiers {
		if t == tier {
			return i
		}
	}
	return -1
}

// caQualifies: notify_cas must be on, and the task
// tier must rank at or above min_ca_tier_to_notify ("disabled" skips the
// tier comparison entirely).
func caQualifies(cfg GroupConfig, tier string, hasImage bool) bool {
	if !cfg.Bool(models.ConfigNotifyCAs) || !cfg.imagesOK(hasImage) {
		return false
	}
	minTier, ok := cfg[models.ConfigMinCATierToNotify]
	if !ok || minTier == "" || minTier == "disabled" {
		return true
	}
	minIdx := caTierIndex(minTier)
	if minIdx < 0 {
		return true
	}
	return caTierIndex(tier) >= minIdx
}

// boolGate covers the simple notify_pbs / notify_clogs / notify_pets gates.
func boolGate(cfg GroupConfig, key string, hasImage bool) bool {
	return cfg.Bool(key) && cfg.imagesOK(hasImage)
}

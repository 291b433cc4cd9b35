// models/notifications.go
package models

import "time"

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationQueue is a durable pending-notification record. Unique on
// (Kind, PlayerID, GroupID, Payload), enforced here by a DB unique index
// and short-circuited in-process by notifications.Queue's hash dedup.
type NotificationQueue struct {
	ID          string             `json:"id" gorm:"primaryKey;size:36"`
	Kind        string             `json:"kind" gorm:"uniqueIndex:notif_identity;not null"`
	PlayerID    uint               `json:"player_id" gorm:"uniqueIndex:notif_identity;not null"`
	GroupID     *uint              `json:"group_id,omitempty" gorm:"uniqueIndex:notif_identity"`
	Payload     string             `json:"payload" gorm:"uniqueIndex:notif_identity;type:text"`
	Status      NotificationStatus `json:"status" gorm:"default:pending"`
	CreatedAt   time.Time          `json:"created_at" gorm:"autoCreateTime"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func (NotificationQueue) TableName() string { return "notification_queue" }

// DM notification kinds, gated by the owning User's per-kind preference.
const (
	KindDMDrop       = "dm_drop"
	KindDMClog       = "dm_clog"
	KindDMPB         = "dm_pb"
	KindDMCA         = "dm_ca"
	KindDMPet        = "dm_pet"
	KindDMNameChange = "dm_name_change"

	KindDrop       = "drop"
	KindPB         = "pb"
	KindCA         = "ca"
	KindClog       = "clog"
	KindPet        = "pet"
	KindNameChange = "name_change"
	KindNewItem    = "new_item"
	KindNewNPC     = "new_npc"

	KindGroupMemberAdded   = "group_member_added"
	KindGroupMemberRemoved = "group_member_removed"
)

// GroupConfiguration stores typed-as-string key/value pairs for a Group, per
// the gating table. Values use tri-state truthy coercion (normalize.Truthy).
type GroupConfiguration struct {
	GroupID uint   `json:"group_id" gorm:"primaryKey"`
	Key     string `json:"key" gorm:"primaryKey;size:64"`
	Value   string `json:"value" gorm:"type:text"`
}

func (GroupConfiguration) TableName() string { return "group_configurations" }

// Recognized GroupConfiguration keys.
const (
	ConfigMinValueToNotify       = "minimum_value_to_notify"
	ConfigSendStacksOfItems      = "send_stacks_of_items"
	ConfigNotifyPBs              = "notify_pbs"
	ConfigNotifyClogs            = "notify_clogs"
	ConfigNotifyCAs              = "notify_cas"
	ConfigNotifyPets             = "notify_pets"
	ConfigNotifyLevels           = "notify_levels"
	ConfigLevelMinimum           = "level_minimum_for_notifications"
	ConfigOnlyImages             = "only_send_messages_with_images"
	ConfigMinCATierToNotify      = "min_ca_tier_to_notify"
	ConfigPBsToDisplay           = "number_of_pbs_to_display"
	ConfigChannelIDToSendLogs    = "channel_id_to_send_logs"
	ConfigWelcomeMessage         = "welcome_message"
	ConfigLatestNews             = "latest_news"
	ConfigPointsGPPerPoint       = "dt_points_gp_per_point"
	ConfigInstantBoard           = "instant_board"
)

const DefaultMinValueToNotify = 2_500_000
const DefaultPointsGPPerPoint = 1_000_000

// models/submissions.go
package models

import "time"

// Drop is a recorded item drop. Partition = year*100 + month, matching the
// Leaderboard Store's monthly partitioning.
type Drop struct {
	DropID        uint64    `json:"drop_id" gorm:"primaryKey;autoIncrement"`
	PlayerID      uint      `json:"player_id" gorm:"index;not null"`
	ItemID        uint      `json:"item_id" gorm:"index;not null"`
	NpcID         uint      `json:"npc_id" gorm:"index;not null"`
	Value         int64     `json:"value"`
	Quantity      int64     `json:"quantity"`
	ReceivedAt    time.Time `json:"received_at" gorm:"index"`
	ImageURL      string    `json:"image_url,omitempty"`
	Authenticated bool      `json:"authenticated"`
	ViaAPI        bool      `json:"via_api"`
	Partition     int       `json:"partition" gorm:"index"`
	UniqueID      string    `json:"unique_id,omitempty" gorm:"index"`
}

func (Drop) TableName() string { return "drops" }

// PersonalBest is unique per (PlayerID, NpcID, TeamSize).
type PersonalBest struct {
	ID          uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	PlayerID    uint      `json:"player_id" gorm:"uniqueIndex:pb_identity;not null"`
	NpcID       uint      `json:"npc_id" gorm:"uniqueIndex:pb_identity;not null"`
	TeamSize    int       `json:"team_size" gorm:"uniqueIndex:pb_identity;not null"`
	BestMs      int64     `json:"best_ms"`
	LastKillMs  int64     `json:"last_kill_ms"`
	IsNewPB     bool      `json:"is_new_pb"`
	ImageURL    string    `json:"image_url,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	UniqueID    string    `json:"unique_id,omitempty" gorm:"index"`
}

func (PersonalBest) TableName() string { return "personal_bests" }

// CombatAchievement is unique per (PlayerID, TaskName).
type CombatAchievement struct {
	ID         uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	PlayerID   uint      `json:"player_id" gorm:"uniqueIndex:ca_identity;not null"`
	TaskName   string    `json:"task_name" gorm:"uniqueIndex:ca_identity;not null"`
	ImageURL   string    `json:"image_url,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	UniqueID   string    `json:"unique_id,omitempty" gorm:"index"`
}

func (CombatAchievement) TableName() string { return "combat_achievements" }

// CombatAchievementTiers is the ordered tier list used by the CA gate.
var CombatAchievementTiers = []string{"easy", "medium", "hard", "elite", "master", "grandmaster"}

// CombatAchievementTierPoints awards points by tier; unknown tiers award 1.
var CombatAchievementTierPoints = map[string]int{
	"easy": 1, "medium": 2, "hard": 3, "elite": 4, "master": 5, "grandmaster": 6,
}

// CollectionLogEntry is unique per (PlayerID, ItemID).
type CollectionLogEntry struct {
	LogID         uint64    `json:"log_id" gorm:"primaryKey;autoIncrement"`
	PlayerID      uint      `json:"player_id" gorm:"uniqueIndex:clog_identity;not null"`
	ItemID        uint      `json:"item_id" gorm:"uniqueIndex:clog_identity;not null"`
	NpcID         uint      `json:"npc_id"`
	ReportedSlots int       `json:"reported_slots"`
	ImageURL      string    `json:"image_url,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
	UniqueID      string    `json:"unique_id,omitempty" gorm:"index"`
}

func (CollectionLogEntry) TableName() string { return "collection_log_entries" }

// Pet is unique per (PlayerID, ItemID).
type Pet struct {
	ID       uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	PlayerID uint   `json:"player_id" gorm:"uniqueIndex:pet_identity;not null"`
	ItemID   uint   `json:"item_id" gorm:"uniqueIndex:pet_identity;not null"`
	PetName  string `json:"pet_name"`
}

func (Pet) TableName() string { return "pets" }

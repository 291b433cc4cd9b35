// models/player.go
package models

import "time"

// Player is an OSRS account tracked by the system. Identity is keyed by
// AccountHash once bound (see authgate); ExternalPlayerID links to the
// Wise-Old-Man-equivalent metadata service.
type Player struct {
	PlayerID           uint       `json:"player_id" gorm:"primaryKey;autoIncrement"`
	ExternalPlayerID   *uint      `json:"external_player_id,omitempty" gorm:"uniqueIndex"`
	AccountHash        *string    `json:"account_hash,omitempty" gorm:"uniqueIndex;size:100"`
	DisplayName        string     `json:"display_name" gorm:"index;size:20;not null"`
	OwnerUserID        *uint      `json:"owner_user_id,omitempty" gorm:"index"`
	TotalLevel         int        `json:"total_level"`
	CollectionLogSlots int        `json:"collection_log_slots"`
	Hidden             bool       `json:"hidden" gorm:"default:false"`
	CreatedAt          time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Player) TableName() string { return "players" }

// GlobalGroupID is the implicit group every Player must belong to.
const GlobalGroupID uint = 2

// User is a registered owner of one or more Players.
type User struct {
	UserID               uint      `json:"user_id" gorm:"primaryKey;autoIncrement"`
	AuthToken            string    `json:"-" gorm:"uniqueIndex;size:64"`
	DMDrop               bool      `json:"dm_drop" gorm:"default:false"`
	DMPB                 bool      `json:"dm_pb" gorm:"default:false"`
	DMCA                 bool      `json:"dm_ca" gorm:"default:false"`
	DMCollectionLog      bool      `json:"dm_clog" gorm:"default:false"`
	DMPet                bool      `json:"dm_pet" gorm:"default:false"`
	DMNameChange         bool      `json:"dm_name_change" gorm:"default:true"`
	CreatedAt            time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName() string { return "users" }

// Group is a Discord-server-equivalent collection of Players. Group 2 is the
// implicit "global" group every Player belongs to.
type Group struct {
	GroupID          uint      `json:"group_id" gorm:"primaryKey;autoIncrement"`
	Name             string    `json:"name" gorm:"not null"`
	ExternalGroupID  *string   `json:"external_group_id,omitempty" gorm:"index"`
	Description      string    `json:"description"`
	Icon             string    `json:"icon"`
	Invite           string    `json:"invite"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Group) TableName() string { return "groups" }

// Membership associates a Player with a Group. Membership in GlobalGroupID
// is an invariant maintained by the Entity Resolver on Player creation.
type Membership struct {
	PlayerID uint `json:"player_id" gorm:"primaryKey"`
	GroupID  uint `json:"group_id" gorm:"primaryKey"`
}

func (Membership) TableName() string { return "memberships" }

// Item is a game item; name is advisory, identity is ItemID.
type Item struct {
	ItemID     uint   `json:"item_id" gorm:"primaryKey"`
	Name       string `json:"name" gorm:"index"`
	Stackable  bool   `json:"stackable"`
	Noted      bool   `json:"noted"`
}

func (Item) TableName() string { return "items" }

// NPC is a game monster; identity is NpcID.
type NPC struct {
	NpcID uint   `json:"npc_id" gorm:"primaryKey"`
	Name  string `json:"name" gorm:"index"`
}

func (NPC) TableName() string { return "npcs" }

// Package resolver resolves or creates Player, Item, and NPC rows from an
// inbound submission's identifiers, with external-service confirmation
// required before any create-on-miss.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"droptracker-ingest/external"
	"droptracker-ingest/models"
	"droptracker-ingest/normalize"
	"droptracker-ingest/notifications"

	"gorm.io/gorm"
)

// ErrAuthDataInsufficient is returned when account_hash is too short to
// trust.
var ErrAuthDataInsufficient = errors.New("resolver: account_hash shorter than 5 characters")

// Resolver holds the in-memory npc-name -> id cache, guarded by its own
// mutex; eviction is unnecessary at this scale since the NPC count is small
// and finite.
type Resolver struct {
	DB         *gorm.DB
	External   *external.Client
	Notifier   *notifications.Queue

	npcCacheMu sync.RWMutex
	npcCache   map[string]uint
}

func New(db *gorm.DB, ext *external.Client, notifier *notifications.Queue) *Resolver {
	return &Resolver{
		DB:       db,
		External: ext,
		Notifier: notifier,
		npcCache: make(map[string]uint),
	}
}

// ResolvePlayer resolves a submission's (display_name, account_hash) pair.
// Lookup order: by account_hash, else by display_name (case-insensitive),
// else external metadata service; creates the Player only on a positive
// external response.
func (r *Resolver) ResolvePlayer(ctx context.Context, displayName, accountHash string) (*models.Player, error) {
	if len(accountHash) < 5 {
		return nil, ErrAuthDataInsufficient
	}

	var player models.Player
	err := r.DB.WithContext(ctx).Where("account_hash = ?", accountHash).First(&player).Error
	if err == nil {
		return &player, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.DB.WithContext(ctx).Where("LOWER(display_name) = LOWER(?)", displayName).First(&player).Error
	if err == nil {
		return &player, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	meta, found, err := r.External.LookupPlayer(ctx, displayName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	newPlayer := models.Player{
		ExternalPlayerID:   &meta.ExternalPlayerID,
		AccountHash:        &accountHash,
		DisplayName:        displayName,
		TotalLevel:         meta.TotalLevel,
		CollectionLogSlots: meta.CollectionLogSlots,
	}
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newPlayer).Error; err != nil {
			return err
		}
		// Global membership is an invariant for every Player.
		return tx.Create(&models.Membership{PlayerID: newPlayer.PlayerID, GroupID: models.GlobalGroupID}).Error
	})
	if err != nil {
		return nil, err
	}
	return &newPlayer, nil
}

// ReconcileName implements reconcile_name(player, new_display_name): if the
// normalized forms differ, atomically updates display_name and enqueues a
// name_change notification (and a dm_name_change for opted-in owners).
func (r *Resolver) ReconcileName(ctx context.Context, player *models.Player, newDisplayName string) error {
	if normalize.PlayerDisplayEquivalence(player.DisplayName) == normalize.PlayerDisplayEquivalence(newDisplayName) {
		return nil
	}
	oldName := player.DisplayName
	err := r.DB.WithContext(ctx).Model(&models.Player{}).
		Where("player_id = ?", player.PlayerID).
		Update("display_name", newDisplayName).Error
	if err != nil {
		return err
	}
	player.DisplayName = newDisplayName

	payload := fmt.Sprintf(`{"player_id":%d,"old_name":%q,"new_name":%q}`, player.PlayerID, oldName, newDisplayName)
	if err := r.Notifier.Enqueue(ctx, models.KindNameChange, player.PlayerID, nil, payload); err != nil {
		return err
	}
	if player.OwnerUserID != nil {
		var owner models.User
		if err := r.DB.WithContext(ctx).First(&owner, *player.OwnerUserID).Error; err == nil && owner.DMNameChange {
			if err := r.Notifier.Enqueue(ctx, models.KindDMNameChange, player.PlayerID, nil, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveItem implements resolve_item(item_id?, item_name?). An Item is
// never created solely on client assertion: a positive external response
// and a client-supplied id are both required.
func (r *Resolver) ResolveItem(ctx context.Context, itemID *uint, itemName string) (*models.Item, error) {
	var item models.Item
	if itemID != nil {
		err := r.DB.WithContext(ctx).First(&item, *itemID).Error
		if err == nil {
			return &item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else if itemName != "" {
		err := r.DB.WithContext(ctx).Where("LOWER(name) = LOWER(?)", itemName).First(&item).Error
		if err == nil {
			return &item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if itemName == "" {
		return nil, nil
	}
	exists, err := r.External.ItemExists(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if !exists || itemID == nil {
		return nil, nil
	}

	newItem := models.Item{ItemID: *itemID, Name: itemName}
	if err := r.DB.WithContext(ctx).Create(&newItem).Error; err != nil {
		return nil, err
	}
	return &newItem, nil
}

// ResolveNPC implements resolve_npc(npc_name, player_id). Lookup order:
// in-memory cache, DB, external semantic service; on still-unknown,
// enqueues a new_npc notification and returns (0, "", false).
func (r *Resolver) ResolveNPC(ctx context.Context, npcName string, playerID uint) (npcID uint, canonicalName string, ok bool, err error) {
	if npcName == "" {
		return 0, "", false, nil
	}

	if normalize.IsDoomOfMokhaiotl(npcName) {
		id, canonical := normalize.ResolveDoomOfMokhaiotl(npcName)
		return id, canonical, true, nil
	}

	r.npcCacheMu.RLock()
	if id, hit := r.npcCache[npcName]; hit {
		r.npcCacheMu.RUnlock()
		return id, npcName, true, nil
	}
	r.npcCacheMu.RUnlock()

	var npc models.NPC
	dbErr := r.DB.WithContext(ctx).Where("LOWER(name) = LOWER(?)", npcName).First(&npc).Error
	if dbErr == nil {
		r.cacheNpc(npcName, npc.NpcID)
		return npc.NpcID, npc.Name, true, nil
	}
	if !errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return 0, "", false, dbErr
	}

	id, found, err := r.External.NpcID(ctx, npcName)
	if err != nil {
		return 0, "", false, err
	}
	if found {
		newNpc := models.NPC{NpcID: id, Name: npcName}
		if err := r.DB.WithContext(ctx).Create(&newNpc).Error; err != nil {
			return 0, "", false, err
		}
		r.cacheNpc(npcName, id)
		return id, npcName, true, nil
	}

	payload := fmt.Sprintf(`{"player_id":%d,"npc_name":%q}`, playerID, npcName)
	if err := r.Notifier.Enqueue(ctx, models.KindNewNPC, playerID, nil, payload); err != nil {
		return 0, "", false, err
	}
	return 0, "", false, nil
}

func (r *Resolver) cacheNpc(name string, id uint) {
	r.npcCacheMu.Lock()
	r.npcCache[name] = id
	r.npcCacheMu.Unlock()
}

// NotifyUnknownItem enqueues new_item for an unresolved Item, used by the
// Drop processor's failure path.
func (r *Resolver) NotifyUnknownItem(ctx context.Context, playerID uint, itemName string) error {
	payload := fmt.Sprintf(`{"player_id":%d,"item_name":%q}`, playerID, strings.TrimSpace(itemName))
	return r.Notifier.Enqueue(ctx, models.KindNewItem, playerID, nil, payload)
}

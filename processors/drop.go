package processors

import (
	"context"
	"fmt"
	"log"
	"time"

	"droptracker-ingest/apierrors"
	"droptracker-ingest/attachment"
	"droptracker-ingest/leaderboard"
	"droptracker-ingest/models"
	"droptracker-ingest/valuation"
)

// highValueVerifyThreshold is the drop value above which the external
// semantic service must confirm the item/NPC pairing.
const highValueVerifyThreshold = 1_000_000

// DropSubmission is the flattened drop payload.
type DropSubmission struct {
	PlayerName  string
	AccountHash string
	AuthKey     string
	ItemID      *uint
	ItemName    string
	NpcName     string
	Quantity    int64
	Value       int64
	UniqueID    string
	UsedAPI     bool
	KillCount   *int
	ImageURL    string
	Upload      *Upload
}

// ProcessDrop runs the drop state machine end to end.
func (s *Service) ProcessDrop(ctx context.Context, sub DropSubmission) (*Result, error) {
	if sub.PlayerName == "" {
		return nil, apierrors.Validation("player_name is required")
	}
	if sub.Quantity <= 0 {
		sub.Quantity = 1
	}

	if err := s.dedupCheck(ctx, attachment.KindDrop, sub.UniqueID); err != nil {
		return nil, err
	}
	player, err := s.authenticate(ctx, sub.PlayerName, sub.AccountHash)
	if err != nil {
		return nil, err
	}

	item, err := s.Resolver.ResolveItem(ctx, sub.ItemID, sub.ItemName)
	if err != nil {
		return nil, translate(err)
	}
	if item == nil {
		if err := s.Resolver.NotifyUnknownItem(ctx, player.PlayerID, sub.ItemName); err != nil {
			log.Printf("⚠️  new_item enqueue failed: %v", err)
		}
		return nil, apierrors.UnknownReference(fmt.Sprintf("unknown item %q", sub.ItemName))
	}

	npcID, npcName, npcOK, err := s.Resolver.ResolveNPC(ctx, sub.NpcName, player.PlayerID)
	if err != nil {
		return nil, translate(err)
	}
	if !npcOK {
		return nil, apierrors.UnknownReference(fmt.Sprintf("unknown npc %q", sub.NpcName))
	}

	unitValue := valuation.TrueValue(ctx, s.priceLookup, item.Name, sub.Value)
	dropValue := unitValue * sub.Quantity

	if dropValue > highValueVerifyThreshold {
		verified, err := s.External.Drops(ctx, item.Name, npcName)
		if err != nil {
			return nil, translate(err)
		}
		if !verified {
			return nil, apierrors.DropUnverified(fmt.Sprintf("%s is not a known drop from %s", item.Name, npcName))
		}
	}

	imageURL := s.stageAttachment(ctx, player, attachment.KindDrop, npcName, sub.Upload, sub.ImageURL)

	now := time.Now()
	drop := models.Drop{
		PlayerID:      player.PlayerID,
		ItemID:        item.ItemID,
		NpcID:         npcID,
		Value:         unitValue,
		Quantity:      sub.Quantity,
		ReceivedAt:    now,
		ImageURL:      imageURL,
		Authenticated: true,
		ViaAPI:        sub.UsedAPI,
		Partition:     leaderboard.MonthlyPartition(now),
		UniqueID:      sub.UniqueID,
	}
	if err := s.DB.WithContext(ctx).Create(&drop).Error; err != nil {
		return nil, apierrors.Internal(err)
	}

	groupIDs, err := s.groupsOf(ctx, player.PlayerID)
	if err != nil {
		return nil, apierrors.Internal(err)
	}

	if err := s.Board.ApplyDrop(ctx, leaderboard.DropEvent{
		DropID: drop.DropID, PlayerID: drop.PlayerID, ItemID: drop.ItemID,
		NpcID: drop.NpcID, Value: drop.Value, Quantity: drop.Quantity,
		ReceivedAt: drop.ReceivedAt,
	}, groupIDs); err != nil {
		// Degraded state: the drop is durable in SQL and a
		// force rebuild restores the aggregates.
		log.Printf("❌ leaderboard update failed for drop %d: %v", drop.DropID, err)
	}

	payload := s.marshalPayload(map[string]interface{}{
		"player_name": player.DisplayName,
		"item_name":   item.Name,
		"item_id":     item.ItemID,
		"npc_name":    npcName,
		"quantity":    sub.Quantity,
		"value":       unitValue,
		"total_value": dropValue,
		"image_url":   imageURL,
		"kill_count":  sub.KillCount,
	})

	qualifiedAnywhere := false
	qualifiedNonGlobal := false
	for _, gid := range groupIDs {
		cfg, err := s.groupConfig(ctx, gid)
		if err != nil {
			return nil, apierrors.Internal(err)
		}
		if !dropQualifies(cfg, unitValue, dropValue, imageURL != "") {
			continue
		}
		qualifiedAnywhere = true
		if gid != models.GlobalGroupID {
			qualifiedNonGlobal = true
		}
		groupID := gid
		if err := s.Notifier.Enqueue(ctx, models.KindDrop, player.PlayerID, &groupID, payload); err != nil {
			log.Printf("⚠️  drop notification enqueue failed for group %d: %v", gid, err)
		}
	}

	// Points are awarded once across all qualifying non-global groups,
	// never once per group.
	if qualifiedNonGlobal {
		if pts := dropValue / s.pointsDivisor(ctx); pts > 0 {
			source := fmt.Sprintf("Drop: %s x%d from %s", item.Name, sub.Quantity, npcName)
			if _, err := s.Ledger.CreditPlayer60Day(ctx, player.PlayerID, source, int(pts)); err != nil {
				log.Printf("⚠️  drop point credit failed for player %d: %v", player.PlayerID, err)
			}
		}
	}

	if qualifiedAnywhere {
		s.enqueueDM(ctx, player, models.KindDMDrop, func(u models.User) bool { return u.DMDrop }, payload)
	}

	for _, gid := range groupIDs {
		if gid == models.GlobalGroupID || s.hasInstantBoard(ctx, gid) {
			s.Refresher.Request(gid)
		}
	}

	return &Result{
		Notice:   fmt.Sprintf("drop recorded: %s x%d (%d gp)", item.Name, sub.Quantity, dropValue),
		Kind:     attachment.KindDrop,
		RecordID: drop.DropID,
	}, nil
}

// priceLookup adapts the external pricing client to valuation.PriceLookup:
// the GE high price when available.
func (s *Service) priceLookup(ctx context.Context, itemName string) (int64, bool) {
	high, _, err := s.External.GEPrice(ctx, itemName)
	if err != nil || high == 0 {
		return 0, false
	}
	return high, true
}

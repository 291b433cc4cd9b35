package processors

import (
	"context"
	"fmt"
	"log"
	"time"

	"droptracker-ingest/apierrors"
	"droptracker-ingest/attachment"
	"droptracker-ingest/models"

	"gorm.io/gorm/clause"
)

// clogSlotPoints is the fixed award for a new collection-log slot.
const clogSlotPoints = 5

// ClogSubmission is the flattened collection-log payload.
type ClogSubmission struct {
	PlayerName    string
	AccountHash   string
	AuthKey       string
	ItemName      string
	ItemID        *uint
	SourceNpc     string
	ReportedSlots int
	KillCount     *int
	UniqueID      string
	ImageURL      string
	Upload        *Upload
}

// ProcessClog records a collection-log entry. The item must exist via the
// external check and the source NPC must resolve; either failing rejects the
// submission as an unknown reference.
func (s *Service) ProcessClog(ctx context.Context, sub ClogSubmission) (*Result, error) {
	if sub.PlayerName == "" || sub.ItemName == "" {
		return nil, apierrors.Validation("player_name and item_name are required")
	}

	if err := s.dedupCheck(ctx, attachment.KindClog, sub.UniqueID); err != nil {
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

	npcID, npcName, npcOK, err := s.Resolver.ResolveNPC(ctx, sub.SourceNpc, player.PlayerID)
	if err != nil {
		return nil, translate(err)
	}
	if !npcOK {
		return nil, apierrors.UnknownReference(fmt.Sprintf("unknown npc %q", sub.SourceNpc))
	}

	imageURL := s.stageAttachment(ctx, player, attachment.KindClog, npcName, sub.Upload, sub.ImageURL)

	row := models.CollectionLogEntry{
		PlayerID: player.PlayerID, ItemID: item.ItemID, NpcID: npcID,
		ReportedSlots: sub.ReportedSlots, ImageURL: imageURL,
		ReceivedAt: time.Now(), UniqueID: sub.UniqueID,
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "item_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return nil, apierrors.Internal(res.Error)
	}
	newSlot := res.RowsAffected > 0

	if sub.ReportedSlots > player.CollectionLogSlots {
		if err := s.DB.WithContext(ctx).Model(&models.Player{}).
			Where("player_id = ?", player.PlayerID).
			Update("collection_log_slots", sub.ReportedSlots).Error; err != nil {
			log.Printf("⚠️  clog slot count update failed for player %d: %v", player.PlayerID, err)
		}
	}

	if newSlot {
		source := fmt.Sprintf("Collection Log slot: %s", item.Name)
		if _, err := s.Ledger.CreditPlayer60Day(ctx, player.PlayerID, source, clogSlotPoints); err != nil {
			log.Printf("⚠️  clog point credit failed for player %d: %v", player.PlayerID, err)
		}
	}

	payload := s.marshalPayload(map[string]interface{}{
		"player_name":    player.DisplayName,
		"item_name":      item.Name,
		"item_id":        item.ItemID,
		"npc_name":       npcName,
		"reported_slots": sub.ReportedSlots,
		"kill_count":     sub.KillCount,
		"image_url":      imageURL,
	})

	groupIDs, err := s.groupsOf(ctx, player.PlayerID)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	notified := false
	for _, gid := range groupIDs {
		cfg, err := s.groupConfig(ctx, gid)
		if err != nil {
			return nil, apierrors.Internal(err)
		}
		if !boolGate(cfg, models.ConfigNotifyClogs, imageURL != "") {
			continue
		}
		notified = true
		groupID := gid
		if err := s.Notifier.Enqueue(ctx, models.KindClog, player.PlayerID, &groupID, payload); err != nil {
			log.Printf("⚠️  clog notification enqueue failed for group %d: %v", gid, err)
		}
	}
	if notified {
		s.enqueueDM(ctx, player, models.KindDMClog, func(u models.User) bool { return u.DMCollectionLog }, payload)
	}

	notice := fmt.Sprintf("collection log recorded: %s", item.Name)
	if !newSlot {
		notice = fmt.Sprintf("collection log already recorded: %s", item.Name)
	}
	return &Result{Notice: notice, Kind: attachment.KindClog, RecordID: row.LogID}, nil
}

package processors

import (
	"context"
	"fmt"
	"log"

	"droptracker-ingest/apierrors"
	"droptracker-ingest/attachment"
	"droptracker-ingest/models"

	"gorm.io/gorm/clause"
)

// petFirstAcquisitionPoints is the one-time award for a first pet.
const petFirstAcquisitionPoints = 50

// PetSubmission is the flattened pet payload.
type PetSubmission struct {
	PlayerName      string
	AccountHash     string
	AuthKey         string
	PetName         string
	SourceNpc       string
	Duplicate       bool
	PreviouslyOwned bool
	Milestone       string
	GameMessage     string
	UniqueID        string
	ImageURL        string
	Upload          *Upload
}

// ProcessPet records a pet acquisition. Item resolution is lenient: a pet
// that can't be matched to an Item still notifies, only the durable Pet row
// is skipped.
func (s *Service) ProcessPet(ctx context.Context, sub PetSubmission) (*Result, error) {
	if sub.PlayerName == "" || sub.PetName == "" {
		return nil, apierrors.Validation("player_name and pet_name are required")
	}

	if err := s.dedupCheck(ctx, attachment.KindPet, sub.UniqueID); err != nil {
		return nil, err
	}
	player, err := s.authenticate(ctx, sub.PlayerName, sub.AccountHash)
	if err != nil {
		return nil, err
	}

	item, err := s.Resolver.ResolveItem(ctx, nil, sub.PetName)
	if err != nil {
		log.Printf("⚠️  pet item lookup failed for %q: %v", sub.PetName, err)
		item = nil
	}

	imageURL := s.stageAttachment(ctx, player, attachment.KindPet, sub.SourceNpc, sub.Upload, sub.ImageURL)

	firstAcquisition := false
	var recordID uint64
	if item != nil {
		row := models.Pet{PlayerID: player.PlayerID, ItemID: item.ItemID, PetName: sub.PetName}
		res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "item_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return nil, apierrors.Internal(res.Error)
		}
		firstAcquisition = res.RowsAffected > 0 && !sub.PreviouslyOwned
		recordID = row.ID
	}

	if firstAcquisition {
		source := fmt.Sprintf("New pet: %s", sub.PetName)
		if _, err := s.Ledger.CreditPlayer60Day(ctx, player.PlayerID, source, petFirstAcquisitionPoints); err != nil {
			log.Printf("⚠️  pet point credit failed for player %d: %v", player.PlayerID, err)
		}
	}

	payload := s.marshalPayload(map[string]interface{}{
		"player_name":  player.DisplayName,
		"pet_name":     sub.PetName,
		"source_npc":   sub.SourceNpc,
		"duplicate":    sub.Duplicate,
		"milestone":    sub.Milestone,
		"game_message": sub.GameMessage,
		"image_url":    imageURL,
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
		if !boolGate(cfg, models.ConfigNotifyPets, imageURL != "") {
			continue
		}
		notified = true
		groupID := gid
		if err := s.Notifier.Enqueue(ctx, models.KindPet, player.PlayerID, &groupID, payload); err != nil {
			log.Printf("⚠️  pet notification enqueue failed for group %d: %v", gid, err)
		}
	}
	if notified {
		s.enqueueDM(ctx, player, models.KindDMPet, func(u models.User) bool { return u.DMPet }, payload)
	}

	notice := fmt.Sprintf("pet recorded: %s", sub.PetName)
	if sub.Duplicate {
		notice = fmt.Sprintf("duplicate pet recorded: %s", sub.PetName)
	}
	return &Result{Notice: notice, Kind: attachment.KindPet, RecordID: recordID}, nil
}

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

// CASubmission is the flattened combat-achievement payload.
type CASubmission struct {
	PlayerName    string
	AccountHash   string
	AuthKey       string
	TaskName      string
	Tier          string
	PointsAwarded int
	TotalPoints   int
	CompletedTier string
	UniqueID      string
	ImageURL      string
	Upload        *Upload
}

// ProcessCA records a combat achievement, awards tier-based points, and
// notifies groups passing the tier gate.
func (s *Service) ProcessCA(ctx context.Context, sub CASubmission) (*Result, error) {
	if sub.PlayerName == "" || sub.TaskName == "" {
		return nil, apierrors.Validation("player_name and task_name are required")
	}

	if err := s.dedupCheck(ctx, attachment.KindCA, sub.UniqueID); err != nil {
		return nil, err
	}
	player, err := s.authenticate(ctx, sub.PlayerName, sub.AccountHash)
	if err != nil {
		return nil, err
	}

	imageURL := s.stageAttachment(ctx, player, attachment.KindCA, "", sub.Upload, sub.ImageURL)

	row := models.CombatAchievement{
		PlayerID: player.PlayerID, TaskName: sub.TaskName,
		ImageURL: imageURL, ReceivedAt: time.Now(), UniqueID: sub.UniqueID,
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "task_name"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return nil, apierrors.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		// Duplicate task for this player: treated as a no-op.
		return &Result{Notice: "combat achievement already recorded", Kind: attachment.KindCA}, nil
	}

	tierPoints, ok := models.CombatAchievementTierPoints[sub.Tier]
	if !ok {
		tierPoints = 1
	}
	source := fmt.Sprintf("Combat Achievement: %s (%s)", sub.TaskName, sub.Tier)
	if _, err := s.Ledger.CreditPlayer60Day(ctx, player.PlayerID, source, tierPoints); err != nil {
		log.Printf("⚠️  ca point credit failed for player %d: %v", player.PlayerID, err)
	}

	payload := s.marshalPayload(map[string]interface{}{
		"player_name":    player.DisplayName,
		"task_name":      sub.TaskName,
		"tier":           sub.Tier,
		"points_awarded": sub.PointsAwarded,
		"total_points":   sub.TotalPoints,
		"completed_tier": sub.CompletedTier,
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
		if !caQualifies(cfg, sub.Tier, imageURL != "") {
			continue
		}
		notified = true
		groupID := gid
		if err := s.Notifier.Enqueue(ctx, models.KindCA, player.PlayerID, &groupID, payload); err != nil {
			log.Printf("⚠️  ca notification enqueue failed for group %d: %v", gid, err)
		}
	}
	if notified {
		s.enqueueDM(ctx, player, models.KindDMCA, func(u models.User) bool { return u.DMCA }, payload)
	}

	return &Result{
		Notice:   fmt.Sprintf("combat achievement recorded: %s (%s, %d points)", sub.TaskName, sub.Tier, tierPoints),
		Kind:     attachment.KindCA,
		RecordID: row.ID,
	}, nil
}

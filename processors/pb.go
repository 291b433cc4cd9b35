package processors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"droptracker-ingest/apierrors"
	"droptracker-ingest/attachment"
	"droptracker-ingest/coalescer"
	"droptracker-ingest/models"

	"gorm.io/gorm"
)

// newPBKillCountThreshold gates the new-PB point award: the player must have
// at least this many kills at the boss.
const newPBKillCountThreshold = 50

// PBSubmission is the flattened personal-best payload. Times arrive
// as "MM:SS.t", "HH:MM:SS.t", or raw millisecond strings.
type PBSubmission struct {
	PlayerName   string
	AccountHash  string
	AuthKey      string
	NpcName      string
	TeamSize     string
	CurrentTime  string
	PersonalBest string
	IsNewPB      bool
	UniqueID     string
	ImageURL     string
	Upload       *Upload
}

// ProcessPB parses times, routes team-raid submissions into the coalescer,
// and processes everything else synchronously.
func (s *Service) ProcessPB(ctx context.Context, sub PBSubmission) (*Result, error) {
	if sub.PlayerName == "" {
		return nil, apierrors.Validation("player_name is required")
	}
	currentMs := parseKillTime(sub.CurrentTime)
	bestMs := parseKillTime(sub.PersonalBest)
	if currentMs == 0 && bestMs == 0 {
		return &Result{Notice: "ignored: no kill time provided", Kind: attachment.KindPB}, nil
	}

	if coalescer.IsRaidPB(sub.NpcName) {
		s.raids.Submit(sub.PlayerName, sub.TeamSize, sub)
		return &Result{Notice: "raid pb buffered for coalescing", Kind: attachment.KindPB}, nil
	}

	return s.processPBCore(ctx, sub, currentMs, bestMs)
}

// fireRaidPB is the coalescer's FireFunc: the winning buffered submission is
// processed like any non-raid PB. It runs on the timer goroutine, so it owns
// its own context budget.
func (s *Service) fireRaidPB(playerName string, payload interface{}) {
	sub, ok := payload.(PBSubmission)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	currentMs := parseKillTime(sub.CurrentTime)
	bestMs := parseKillTime(sub.PersonalBest)
	if _, err := s.processPBCore(ctx, sub, currentMs, bestMs); err != nil {
		log.Printf("⚠️  coalesced pb for %s failed: %v", playerName, err)
	}
}

func (s *Service) processPBCore(ctx context.Context, sub PBSubmission, currentMs, bestMs int64) (*Result, error) {
	if err := s.dedupCheck(ctx, attachment.KindPB, sub.UniqueID); err != nil {
		return nil, err
	}
	player, err := s.authenticate(ctx, sub.PlayerName, sub.AccountHash)
	if err != nil {
		return nil, err
	}
	npcID, npcName, npcOK, err := s.Resolver.ResolveNPC(ctx, sub.NpcName, player.PlayerID)
	if err != nil {
		return nil, translate(err)
	}
	if !npcOK {
		return nil, apierrors.UnknownReference(fmt.Sprintf("unknown npc %q", sub.NpcName))
	}

	effectiveMs := effectiveKillTime(currentMs, bestMs)
	teamSize := coalescer.ParseTeamSize(sub.TeamSize)
	imageURL := s.stageAttachment(ctx, player, attachment.KindPB, npcName, sub.Upload, sub.ImageURL)

	now := time.Now()
	isNewPB := false
	var row models.PersonalBest
	err = s.DB.WithContext(ctx).
		Where("player_id = ? AND npc_id = ? AND team_size = ?", player.PlayerID, npcID, teamSize).
		First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		isNewPB = sub.IsNewPB
		row = models.PersonalBest{
			PlayerID: player.PlayerID, NpcID: npcID, TeamSize: teamSize,
			BestMs: effectiveMs, LastKillMs: currentMs, IsNewPB: isNewPB,
			ImageURL: imageURL, ReceivedAt: now, UniqueID: sub.UniqueID,
		}
		if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, apierrors.Internal(err)
		}
	case err != nil:
		return nil, apierrors.Internal(err)
	default:
		updates := map[string]interface{}{
			"last_kill_ms": currentMs,
			"received_at":  now,
			"is_new_pb":    false,
		}
		if effectiveMs > 0 && effectiveMs < row.BestMs {
			isNewPB = true
			updates["best_ms"] = effectiveMs
			updates["is_new_pb"] = true
			if imageURL != "" {
				updates["image_url"] = imageURL
			}
			row.BestMs = effectiveMs
		}
		if err := s.DB.WithContext(ctx).Model(&models.PersonalBest{}).
			Where("id = ?", row.ID).Updates(updates).Error; err != nil {
			return nil, apierrors.Internal(err)
		}
	}

	if isNewPB {
		s.awardNewPBPoints(ctx, player, npcID, npcName, effectiveMs)
	}

	payload := s.marshalPayload(map[string]interface{}{
		"player_name": player.DisplayName,
		"npc_name":    npcName,
		"team_size":   teamSize,
		"best_time":   formatKillTime(row.BestMs),
		"kill_time":   formatKillTime(currentMs),
		"is_new_pb":   isNewPB,
		"image_url":   imageURL,
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
		if !boolGate(cfg, models.ConfigNotifyPBs, imageURL != "") {
			continue
		}
		notified = true
		groupID := gid
		if err := s.Notifier.Enqueue(ctx, models.KindPB, player.PlayerID, &groupID, payload); err != nil {
			log.Printf("⚠️  pb notification enqueue failed for group %d: %v", gid, err)
		}
	}
	if notified {
		s.enqueueDM(ctx, player, models.KindDMPB, func(u models.User) bool { return u.DMPB }, payload)
	}

	return &Result{
		Notice:   fmt.Sprintf("pb recorded: %s at %s (team size %d)", formatKillTime(row.BestMs), npcName, teamSize),
		Kind:     attachment.KindPB,
		RecordID: row.ID,
	}, nil
}

// awardNewPBPoints grants 20 points with a 60-day expiry,
// only when the external service reports 50+ KC at the boss. A metadata
// failure skips the award rather than failing the whole submission.
func (s *Service) awardNewPBPoints(ctx context.Context, player *models.Player, npcID uint, npcName string, effectiveMs int64) {
	if player.ExternalPlayerID == nil {
		return
	}
	kc, err := s.External.KillCountAt(ctx, *player.ExternalPlayerID, npcID)
	if err != nil {
		log.Printf("⚠️  kc lookup failed for player %d at npc %d: %v", player.PlayerID, npcID, err)
		return
	}
	if kc < newPBKillCountThreshold {
		return
	}
	source := fmt.Sprintf("New Personal Best (%s) at %s", formatKillTime(effectiveMs), npcName)
	if _, err := s.Ledger.CreditPlayer60Day(ctx, player.PlayerID, source, 20); err != nil {
		log.Printf("⚠️  pb point credit failed for player %d: %v", player.PlayerID, err)
	}
}

// effectiveKillTime is min(current, best) when both are positive, else
// whichever is positive.
func effectiveKillTime(currentMs, bestMs int64) int64 {
	switch {
	case currentMs > 0 && bestMs > 0:
		if currentMs < bestMs {
			return currentMs
		}
		return bestMs
	case currentMs > 0:
		return currentMs
	default:
		return bestMs
	}
}

// formatKillTime renders milliseconds back to the plugin's MM:SS.t shape,
// growing to H:MM:SS.t past the hour.
func formatKillTime(ms int64) string {
	if ms <= 0 {
		return "0:00.0"
	}
	tenths := (ms % 1000) / 100
	totalSeconds := ms / 1000
	seconds := totalSeconds % 60
	minutes := (totalSeconds / 60) % 60
	hours := totalSeconds / 3600
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%d", hours, minutes, seconds, tenths)
	}
	return fmt.Sprintf("%d:%02d.%d", minutes, seconds, tenths)
}

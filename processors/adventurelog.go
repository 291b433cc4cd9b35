package processors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"droptracker-ingest/apierrors"
	"droptracker-ingest/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdventureLogSubmission is the bulk back-fill payload: PB lines of
// the form "<boss> - <team_size> : <MM:SS.t>" plus an optional pet item-id
// list. The back-fill is silent: no notifications, no points.
type AdventureLogSubmission struct {
	PlayerName  string
	AccountHash string
	AuthKey     string
	PBLines     []string
	PetItemIDs  []uint
}

var adventurePBLine = regexp.MustCompile(`^\s*(.+?)\s+-\s+(.+?)\s*:\s*(.+?)\s*$`)

// parseAdventurePBLine splits one adventure-log PB line into its boss name,
// team size, and raw kill time. ok is false for lines in any other shape.
func parseAdventurePBLine(line string) (boss, teamSize, rawTime string, ok bool) {
	m := adventurePBLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// ProcessAdventureLog upserts PersonalBest rows for each parseable line and
// inserts Pet rows for any new ids, all without entering the notification
// pipeline.
func (s *Service) ProcessAdventureLog(ctx context.Context, sub AdventureLogSubmission) (*Result, error) {
	if sub.PlayerName == "" {
		return nil, apierrors.Validation("player_name is required")
	}
	player, err := s.authenticate(ctx, sub.PlayerName, sub.AccountHash)
	if err != nil {
		return nil, err
	}

	pbCount := 0
	for _, line := range sub.PBLines {
		boss, teamSizeRaw, rawTime, ok := parseAdventurePBLine(line)
		if !ok {
			continue
		}
		ms := parseKillTime(rawTime)
		if ms <= 0 {
			continue
		}
		if err := s.backfillPB(ctx, player, boss, teamSizeRaw, ms); err != nil {
			log.Printf("⚠️  adventure log pb backfill failed (%q): %v", line, err)
			continue
		}
		pbCount++
	}

	petCount := 0
	for _, itemID := range sub.PetItemIDs {
		row := models.Pet{PlayerID: player.PlayerID, ItemID: itemID, PetName: petNameFor(ctx, s.DB, itemID)}
		res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}, {Name: "item_id"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			log.Printf("⚠️  adventure log pet insert failed (item %d): %v", itemID, res.Error)
			continue
		}
		if res.RowsAffected > 0 {
			petCount++
		}
	}

	return &Result{
		Notice: fmt.Sprintf("adventure log processed: %d pbs, %d new pets", pbCount, petCount),
		Kind:   "adventure_log",
	}, nil
}

func (s *Service) backfillPB(ctx context.Context, player *models.Player, boss, teamSizeRaw string, ms int64) error {
	npcID, _, npcOK, err := s.Resolver.ResolveNPC(ctx, boss, player.PlayerID)
	if err != nil {
		return err
	}
	if !npcOK {
		return fmt.Errorf("unknown boss %q", boss)
	}
	teamSize := parseAdventureTeamSize(teamSizeRaw)

	var row models.PersonalBest
	err = s.DB.WithContext(ctx).
		Where("player_id = ? AND npc_id = ? AND team_size = ?", player.PlayerID, npcID, teamSize).
		First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.DB.WithContext(ctx).Create(&models.PersonalBest{
			PlayerID: player.PlayerID, NpcID: npcID, TeamSize: teamSize,
			BestMs: ms, LastKillMs: ms, ReceivedAt: time.Now(),
		}).Error
	case err != nil:
		return err
	}
	if ms < row.BestMs {
		return s.DB.WithContext(ctx).Model(&models.PersonalBest{}).
			Where("id = ?", row.ID).Update("best_ms", ms).Error
	}
	return nil
}

// parseAdventureTeamSize mirrors the coalescer's rule without importing it
// into the line parser's hot loop: "Solo" is 1, else the first run of digits.
func parseAdventureTeamSize(raw string) int {
	if strings.EqualFold(strings.TrimSpace(raw), "solo") {
		return 1
	}
	digits := ""
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits += string(r)
		} else if digits != "" {
			break
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func petNameFor(ctx context.Context, db *gorm.DB, itemID uint) string {
	var item models.Item
	if err := db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		return ""
	}
	return item.Name
}

// Package groupsync reconciles each Group's membership against its
// authoritative external roster, on a schedule and on demand.
package groupsync

import (
	"context"
	"fmt"
	"log"

	"droptracker-ingest/models"
	"droptracker-ingest/notifications"

	"gorm.io/gorm"
)

// RosterFetcher answers the external roster for a Group's external_group_id,
// returning each member's external_player_id. An error or empty slice is
// treated identically by Reconcile; see the no-removal-on-failure rule.
type RosterFetcher func(ctx context.Context, externalGroupID string) ([]uint, error)

// Syncer owns a single Reconcile pass.
type Syncer struct {
	DB       *gorm.DB
	Roster   RosterFetcher
	Notifier *notifications.Queue
}

func New(db *gorm.DB, roster RosterFetcher, notifier *notifications.Queue) *Syncer {
	return &Syncer{DB: db, Roster: roster, Notifier: notifier}
}

// Reconcile runs one group's reconciliation: external ids not
// present locally are added; local members whose external_player_id is not
// in the returned roster are removed, unless the roster call errored or
// came back empty, in which case removals are skipped entirely to avoid
// mass-unlink on a transient failure.
func (s *Syncer) Reconcile(ctx context.Context, group models.Group) error {
	if group.ExternalGroupID == nil {
		return nil
	}

	externalIDs, err := s.Roster(ctx, *group.ExternalGroupID)
	if err != nil {
		log.Printf("[GROUPSYNC] ⚠️ roster fetch failed for group %d (%s): %v — skipping removals", group.GroupID, *group.ExternalGroupID, err)
		return s.applyAdditionsOnly(ctx, group, nil)
	}
	if len(externalIDs) == 0 {
		log.Printf("[GROUPSYNC] roster empty for group %d (%s) — skipping removals", group.GroupID, *group.ExternalGroupID)
		return s.applyAdditionsOnly(ctx, group, nil)
	}

	return s.applyFullReconcile(ctx, group, externalIDs)
}

func (s *Syncer) applyAdditionsOnly(ctx context.Context, group models.Group, externalIDs []uint) error {
	if len(externalIDs) == 0 {
		return nil
	}
	return s.applyFullReconcile(ctx, group, externalIDs)
}

func (s *Syncer) applyFullReconcile(ctx context.Context, group models.Group, externalIDs []uint) error {
	wanted := make(map[uint]struct{}, len(externalIDs))
	for _, id := range externalIDs {
		wanted[id] = struct{}{}
	}

	var players []models.Player
	if err := s.DB.WithContext(ctx).Where("external_player_id IN ?", externalIDs).Find(&players).Error; err != nil {
		return fmt.Errorf("groupsync: resolve external players: %w", err)
	}
	playerByExternalID := make(map[uint]models.Player, len(players))
	for _, p := range players {
		if p.ExternalPlayerID != nil {
			playerByExternalID[*p.ExternalPlayerID] = p
		}
	}

	var existing []models.Membership
	if err := s.DB.WithContext(ctx).Where("group_id = ?", group.GroupID).Find(&existing).Error; err != nil {
		return fmt.Errorf("groupsync: load existing membership: %w", err)
	}
	existingPlayerIDs := make(map[uint]struct{}, len(existing))
	for _, m := range existing {
		existingPlayerIDs[m.PlayerID] = struct{}{}
	}

	added, removed := 0, 0
	for _, player := range playerByExternalID {
		if _, member := existingPlayerIDs[player.PlayerID]; member {
			continue
		}
		if err := s.DB.WithContext(ctx).Create(&models.Membership{PlayerID: player.PlayerID, GroupID: group.GroupID}).Error; err != nil {
			return fmt.Errorf("groupsync: add membership: %w", err)
		}
		added++
		s.notifyMembership(ctx, player.PlayerID, group.GroupID, true)
	}

	var currentMembers []models.Player
	if err := s.DB.WithContext(ctx).
		Joins("JOIN memberships ON memberships.player_id = players.player_id").
		Where("memberships.group_id = ?", group.GroupID).
		Find(&currentMembers).Error; err != nil {
		return fmt.Errorf("groupsync: load current member players: %w", err)
	}
	for _, p := range currentMembers {
		if group.GroupID == models.GlobalGroupID {
			continue // global membership is a standing invariant, never removed here
		}
		if p.ExternalPlayerID == nil {
			continue
		}
		if _, stillRostered := wanted[*p.ExternalPlayerID]; stillRostered {
			continue
		}
		if err := s.DB.WithContext(ctx).
			Where("player_id = ? AND group_id = ?", p.PlayerID, group.GroupID).
			Delete(&models.Membership{}).Error; err != nil {
			return fmt.Errorf("groupsync: remove membership: %w", err)
		}
		removed++
		s.notifyMembership(ctx, p.PlayerID, group.GroupID, false)
	}

	log.Printf("[GROUPSYNC] group %d (%s): %d added, %d removed", group.GroupID, *group.ExternalGroupID, added, removed)
	return nil
}

func (s *Syncer) notifyMembership(ctx context.Context, playerID, groupID uint, added bool) {
	verb := "removed"
	if added {
		verb = "added"
	}
	payload := fmt.Sprintf(`{"player_id":%d,"group_id":%d,"event":"player_%s"}`, playerID, groupID, verb)
	gid := groupID
	if err := s.Notifier.Enqueue(ctx, membershipEventKind(added), playerID, &gid, payload); err != nil {
		log.Printf("[GROUPSYNC] ⚠️ failed to enqueue membership notification for player %d: %v", playerID, err)
	}
}

func membershipEventKind(added bool) string {
	if added {
		return models.KindGroupMemberAdded
	}
	return models.KindGroupMemberRemoved
}

// EnsureGlobalMembership enforces the standing invariant that every Player
// must belong to group 2 regardless of external roster state.
func EnsureGlobalMembership(ctx context.Context, db *gorm.DB, playerID uint) error {
	var existing models.Membership
	err := db.WithContext(ctx).Where("player_id = ? AND group_id = ?", playerID, models.GlobalGroupID).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("groupsync: check global membership: %w", err)
	}
	return db.WithContext(ctx).Create(&models.Membership{PlayerID: playerID, GroupID: models.GlobalGroupID}).Error
}

// ReconcileAll runs Reconcile over every Group with an external_group_id
// (the scheduler's periodic tick entry point), then backfills the global
// membership invariant for any player missing it.
func (s *Syncer) ReconcileAll(ctx context.Context) error {
	var groups []models.Group
	if err := s.DB.WithContext(ctx).Where("external_group_id IS NOT NULL").Find(&groups).Error; err != nil {
		return fmt.Errorf("groupsync: load groups: %w", err)
	}
	for _, g := range groups {
		if err := s.Reconcile(ctx, g); err != nil {
			log.Printf("[GROUPSYNC] ❌ reconcile failed for group %d: %v", g.GroupID, err)
		}
	}

	var orphaned []models.Player
	err := s.DB.WithContext(ctx).
		Where("player_id NOT IN (?)",
			s.DB.Model(&models.Membership{}).Select("player_id").Where("group_id = ?", models.GlobalGroupID)).
		Find(&orphaned).Error
	if err != nil {
		return fmt.Errorf("groupsync: find players missing global membership: %w", err)
	}
	for _, p := range orphaned {
		if err := EnsureGlobalMembership(ctx, s.DB, p.PlayerID); err != nil {
			log.Printf("[GROUPSYNC] ⚠️ failed to restore global membership for player %d: %v", p.PlayerID, err)
		}
	}
	if len(orphaned) > 0 {
		log.Printf("[GROUPSYNC] restored global membership for %d players", len(orphaned))
	}
	return nil
}

// Package processors implements the per-kind submission state machines.
// Every processor shares the same prologue (dedup check, auth
// gate, entity resolution, attachment staging) and epilogue (points, the
// leaderboard store for drops, group enumeration, config-driven gating,
// notification enqueue).
package processors

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"droptracker-ingest/apierrors"
	"droptracker-ingest/attachment"
	"droptracker-ingest/authgate"
	"droptracker-ingest/coalescer"
	"droptracker-ingest/dedup"
	"droptracker-ingest/external"
	"droptracker-ingest/leaderboard"
	"droptracker-ingest/models"
	"droptracker-ingest/notifications"
	"droptracker-ingest/points"
	"droptracker-ingest/resolver"

	"gorm.io/gorm"
)

// Upload is an already-parsed multipart file attached to a submission. The
// transport reads the bytes; the processor stages them through the Sink.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result is the success side of every processor: a human-readable notice for
// the transport's response plus enough identity for /check lookups.
type Result struct {
	Notice   string `json:"notice"`
	Kind     string `json:"kind,omitempty"`
	RecordID uint64 `json:"id,omitempty"`
}

// Service owns the shared collaborators every processor needs. One instance
// serves the whole process; all state it holds is either a client handle or
// an explicitly lock-guarded cache.
type Service struct {
	DB        *gorm.DB
	Dedup     *dedup.Cache
	Auth      *authgate.Gate
	Resolver  *resolver.Resolver
	External  *external.Client
	Notifier  *notifications.Queue
	Ledger    *points.Ledger
	Board     *leaderboard.Store
	Refresher *leaderboard.Refresher
	Sink      *attachment.Sink
	Footer    string

	raids *coalescer.Coalescer
}

func NewService(db *gorm.DB, dd *dedup.Cache, gate *authgate.Gate, res *resolver.Resolver,
	ext *external.Client, notifier *notifications.Queue, ledger *points.Ledger,
	board *leaderboard.Store, refresher *leaderboard.Refresher, sink *attachment.Sink,
	footer string) *Service {

	s := &Service{
		DB: db, Dedup: dd, Auth: gate, Resolver: res, External: ext,
		Notifier: notifier, Ledger: ledger, Board: board, Refresher: refresher,
		Sink: sink, Footer: footer,
	}
	s.raids = coalescer.New(s.fireRaidPB)
	return s
}

// Coalescer exposes the raid-PB window map for tests and the scheduler's
// sweep tick.
func (s *Service) Coalescer() *coalescer.Coalescer { return s.raids }

// translate maps collaborator errors into the apierrors taxonomy. Already-typed
// errors pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var upstream *external.ErrTransientUpstream
	if errors.As(err, &upstream) {
		return apierrors.TransientUpstream(upstream)
	}
	return apierrors.Internal(err)
}

// recentRowExists is the dedup cache's durable fallback: a row
// with the same unique_id received within the last hour rejects the replay.
// Pets carry no unique_id column, so they rely on the ring alone.
func (s *Service) recentRowExists(ctx context.Context, kind, uniqueID string) (bool, error) {
	cutoff := time.Now().Add(-dedup.Window)
	var count int64
	q := s.DB.WithContext(ctx)
	switch kind {
	case attachment.KindDrop:
		q = q.Model(&models.Drop{})
	case attachment.KindPB:
		q = q.Model(&models.PersonalBest{})
	case attachment.KindCA:
		q = q.Model(&models.CombatAchievement{})
	case attachment.KindClog:
		q = q.Model(&models.CollectionLogEntry{})
	default:
		return false, nil
	}
	err := q.Where("unique_id = ? AND received_at > ?", uniqueID, cutoff).Count(&count).Error
	return count > 0, err
}

func (s *Service) dedupCheck(ctx context.Context, kind, uniqueID string) error {
	dup, err := s.Dedup.Check(ctx, kind, uniqueID, s.recentRowExists)
	if err != nil {
		return apierrors.Internal(err)
	}
	if dup {
		return apierrors.Duplicate("submission already processed")
	}
	return nil
}

// authenticate runs the shared auth-gate + player-resolution prologue. A
// known player with a mismatched hash is an AuthFailure; an unknown player
// is created through the resolver's external-confirmation path or rejected.
func (s *Service) authenticate(ctx context.Context, playerName, accountHash string) (*models.Player, error) {
	userExists, authed, err := s.Auth.Check(ctx, playerName, accountHash)
	if err != nil {
		return nil, apierrors.Internal(err)
	}
	if userExists && !authed {
		return nil, apierrors.AuthFailure("account hash does not match the registered player")
	}

	player, err := s.Resolver.ResolvePlayer(ctx, playerName, accountHash)
	if err != nil {
		if errors.Is(err, resolver.ErrAuthDataInsufficient) {
			return nil, apierrors.Validation("account hash too short")
		}
		return nil, translate(err)
	}
	if player == nil {
		return nil, apierrors.AuthFailure("player not found")
	}
	if err := s.Resolver.ReconcileName(ctx, player, playerName); err != nil {
		return nil, apierrors.Internal(err)
	}
	return player, nil
}

func (s *Service) groupsOf(ctx context.Context, playerID uint) ([]uint, error) {
	var memberships []models.Membership
	if err := s.DB.WithContext(ctx).Where("player_id = ?", playerID).Find(&memberships).Error; err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.GroupID)
	}
	return ids, nil
}

// stageAttachment saves an uploaded image through the Sink, falling back to
// the client-declared URL. A save failure degrades to the fallback (the
// row persists with the client-declared URL, empty if none was given, and
// a logged error).
func (s *Service) stageAttachment(ctx context.Context, player *models.Player, kind, subfolder string, up *Upload, fallbackURL string) string {
	if up == nil || len(up.Data) == 0 {
		return fallbackURL
	}
	extID := player.PlayerID
	if player.ExternalPlayerID != nil {
		extID = *player.ExternalPlayerID
	}
	baseName := up.Name
	if baseName == "" {
		baseName = kind
	}
	url, err := s.Sink.Save(ctx, extID, kind, subfolder, baseName, up.ContentType, up.Data)
	if err != nil {
		log.Printf("⚠️  attachment save failed for player %d (%s): %v", player.PlayerID, kind, err)
		return fallbackURL
	}
	return url
}

// enqueueDM sends a DM-kind notification when the player's owning User has
// the matching preference enabled. DM rows carry no group id.
func (s *Service) enqueueDM(ctx context.Context, player *models.Player, dmKind string, pref func(models.User) bool, payload string) {
	if player.OwnerUserID == nil {
		return
	}
	var owner models.User
	if err := s.DB.WithContext(ctx).First(&owner, *player.OwnerUserID).Error; err != nil {
		return
	}
	if !pref(owner) {
		return
	}
	if err := s.Notifier.Enqueue(ctx, dmKind, player.PlayerID, nil, payload); err != nil {
		log.Printf("⚠️  dm enqueue failed for player %d (%s): %v", player.PlayerID, dmKind, err)
	}
}

// pointsDivisor reads the system-wide dt_points_gp_per_point option, stored
// on the global group's configuration; default 1,000,000 (GLOSSARY).
func (s *Service) pointsDivisor(ctx context.Context) int64 {
	raw, err := notifications.GroupConfigValue(ctx, s.DB, models.GlobalGroupID, models.ConfigPointsGPPerPoint)
	if err != nil {
		return models.DefaultPointsGPPerPoint
	}
	cfg := GroupConfig{models.ConfigPointsGPPerPoint: raw}
	return cfg.Int(models.ConfigPointsGPPerPoint, models.DefaultPointsGPPerPoint)
}

// hasInstantBoard reports whether the group has an active instant_board
// premium feature, used by the drop epilogue's board-refresh rule.
func (s *Service) hasInstantBoard(ctx context.Context, groupID uint) bool {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.FeatureActivation{}).
		Joins("JOIN premium_features ON premium_features.id = feature_activations.feature_id").
		Where("feature_activations.group_id = ?", groupID).
		Where("feature_activations.status = ? AND feature_activations.end_at > ?", models.ActivationActive, time.Now()).
		Where("premium_features.key = ?", "instant_board").
		Count(&count).Error
	return err == nil && count > 0
}

// marshalPayload builds the structured payload enqueued for downstream
// delivery. Embed rendering happens downstream; this service only
// records field values. The static footer rides along when configured.
func (s *Service) marshalPayload(fields map[string]interface{}) string {
	if s.Footer != "" {
		fields["footer"] = s.Footer
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Package notifications is a durable, payload-deduplicated outbox for
// Discord-bound announcements.
package notifications

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"droptracker-ingest/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Queue wraps the durable enqueue path plus an in-process sha256 payload
// dedup ring: a hash of kind+player+group+payload is checked against a
// bounded recent-hash set before the DB round-trip.
type Queue struct {
	DB *gorm.DB

	mu      sync.Mutex
	recent  map[string]struct{}
	order   []string
}

const recentCap = 2000

func New(db *gorm.DB) *Queue {
	return &Queue{DB: db, recent: make(map[string]struct{}, recentCap)}
}

func payloadHash(kind string, playerID uint, groupID *uint, payload string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	var gid uint
	if groupID != nil {
		gid = *groupID
	}
	h.Write([]byte{byte(playerID), byte(playerID >> 8), byte(playerID >> 16), byte(playerID >> 24)})
	h.Write([]byte{byte(gid), byte(gid >> 8), byte(gid >> 16), byte(gid >> 24)})
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (q *Queue) seen(hash string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.recent[hash]; ok {
		return true
	}
	if len(q.order) >= recentCap {
		oldest := q.order[0]
		q.order = q.order[1:]
		delete(q.recent, oldest)
	}
	q.order = append(q.order, hash)
	q.recent[hash] = struct{}{}
	return false
}

// Enqueue inserts a pending notification unless an identical (kind, player,
// group, payload) row already exists, either in the in-process hash ring
// or, failing that, via the DB's unique index (notif_identity), which is
// treated as a silent success rather than an error.
func (q *Queue) Enqueue(ctx context.Context, kind string, playerID uint, groupID *uint, payload string) error {
	hash := payloadHash(kind, playerID, groupID, payload)
	if q.seen(hash) {
		return nil
	}

	row := models.NotificationQueue{
		ID:       uuid.NewString(),
		Kind:     kind,
		PlayerID: playerID,
		GroupID:  groupID,
		Payload:  payload,
		Status:   models.NotificationPending,
	}
	err := q.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "player_id"}, {Name: "group_id"}, {Name: "payload"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return err
	}
	return nil
}

// Pending fetches up to limit not-yet-sent notifications, oldest first, for
// a dispatch worker to drain.
func (q *Queue) Pending(ctx context.Context, limit int) ([]models.NotificationQueue, error) {
	var rows []models.NotificationQueue
	err := q.DB.WithContext(ctx).
		Where("status = ?", models.NotificationPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkSent and MarkFailed transition a notification out of pending.
func (q *Queue) MarkSent(ctx context.Context, id string) error {
	return q.DB.WithContext(ctx).Model(&models.NotificationQueue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.NotificationSent}).Error
}

func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return q.DB.WithContext(ctx).Model(&models.NotificationQueue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.NotificationFailed, "error": msg}).Error
}

// ErrGroupConfigNotFound is returned by config lookups with no stored row;
// callers fall back to the documented default.
var ErrGroupConfigNotFound = errors.New("notifications: group configuration key not set")

// GroupConfigValue reads a single GroupConfiguration row's raw string value.
func GroupConfigValue(ctx context.Context, db *gorm.DB, groupID uint, key string) (string, error) {
	var row models.GroupConfiguration
	err := db.WithContext(ctx).Where("group_id = ? AND key = ?", groupID, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrGroupConfigNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// Package points is the points ledger: credit/debit bookkeeping with
// FIFO-by-expiry consumption, feature activations, and recurring monthly
// grants. Multi-row invariants run inside db.Transaction(...).
package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"droptracker-ingest/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientPoints is returned when eligible credits cannot cover an
// activation's cost.
var ErrInsufficientPoints = errors.New("points: insufficient points for activation")

// ErrFeatureNotFound / ErrNotGroupMember guard activation preconditions.
var (
	ErrFeatureNotFound = errors.New("points: premium feature not found or inactive")
	ErrNotGroupMember  = errors.New("points: spender is not a verified member of the group")
)

// Ledger wraps a *gorm.DB for credit/debit operations.
type Ledger struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{DB: db}
}

// Credit appends a new active PointCredit for a player or a group (XOR).
func (l *Ledger) Credit(ctx context.Context, playerID, groupID *uint, source string, amount int, expiresAt *time.Time) (*models.PointCredit, error) {
	credit := &models.PointCredit{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		GroupID:   groupID,
		Source:    source,
		Amount:    amount,
		Remaining: amount,
		ExpiresAt: expiresAt,
		Status:    models.CreditActive,
	}
	if err := l.DB.WithContext(ctx).Create(credit).Error; err != nil {
		return nil, fmt.Errorf("points: credit: %w", err)
	}
	return credit, nil
}

// CreditPlayer60Day is the common "award N points for 60 days" shape used by
// every submission processor.
func (l *Ledger) CreditPlayer60Day(ctx context.Context, playerID uint, source string, amount int) (*models.PointCredit, error) {
	expires := time.Now().Add(60 * 24 * time.Hour)
	return l.Credit(ctx, &playerID, nil, source, amount, &expires)
}

// eligibleCredits loads active, non-expired credits for the given owner
// sets, ordered soonest expiry first (NULL last), then earliest
// earned_at, then id.
func eligibleCredits(tx *gorm.DB, playerIDs, groupIDs []uint) ([]models.PointCredit, error) {
	var credits []models.PointCredit
	q := tx.Model(&models.PointCredit{}).
		Where("status = ?", models.CreditActive).
		Where("remaining > 0").
		Where("(expires_at IS NULL OR expires_at > ?)", time.Now())

	switch {
	case len(playerIDs) > 0 && len(groupIDs) > 0:
		q = q.Where("player_id IN ? OR group_id IN ?", playerIDs, groupIDs)
	case len(playerIDs) > 0:
		q = q.Where("player_id IN ?", playerIDs)
	case len(groupIDs) > 0:
		q = q.Where("group_id IN ?", groupIDs)
	default:
		return nil, nil
	}

	// Row-level lock on the selected credits; consumption is the only
	// path that takes row locks.
	err := q.Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("(expires_at IS NULL) ASC, expires_at ASC, earned_at ASC, id ASC").
		Find(&credits).Error
	return credits, err
}

// activate runs the shared consume-and-record logic for both
// ActivateForPlayer and ActivateForGroup.
func (l *Ledger) activate(ctx context.Context, playerID, groupID *uint, spentByPlayerID *uint, featureKey string, autoRenew bool, playerIDs, groupIDs []uint) (*models.FeatureActivation, error) {
	var activation *models.FeatureActivation

	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var feature models.PremiumFeature
		if err := tx.Where("key = ? AND active = ?", featureKey, true).First(&feature).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFeatureNotFound
			}
			return err
		}

		credits, err := eligibleCredits(tx, playerIDs, groupIDs)
		if err != nil {
			return err
		}

		var total int
		for _, c := range credits {
			total += c.Remaining
		}
		if total < feature.CostPoints {
			return ErrInsufficientPoints
		}

		remaining := feature.CostPoints
		var allocations []models.Allocation
		for i := range credits {
			if remaining <= 0 {
				break
			}
			take := credits[i].Remaining
			if take > remaining {
				take = remaining
			}
			credits[i].Remaining -= take
			remaining -= take
			allocations = append(allocations, models.Allocation{CreditID: credits[i].ID, Amount: take})

			if err := tx.Model(&models.PointCredit{}).
				Where("id = ?", credits[i].ID).
				Update("remaining", credits[i].Remaining).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		activation = &models.FeatureActivation{
			ID:        uuid.NewString(),
			PlayerID:  playerID,
			GroupID:   groupID,
			FeatureID: feature.ID,
			StartAt:   now,
			EndAt:     now.AddDate(0, 0, feature.DurationDays),
			AutoRenew: autoRenew,
			Status:    models.ActivationActive,
		}
		if err := tx.Create(activation).Error; err != nil {
			return err
		}

		debit := &models.PointDebit{
			ID:              uuid.NewString(),
			PlayerID:        playerID,
			GroupID:         groupID,
			SpentByPlayerID: spentByPlayerID,
			Amount:          feature.CostPoints,
			Reason:          models.DebitFeatureActivation,
			Allocations:     allocations,
			ActivationID:    &activation.ID,
		}
		return tx.Create(debit).Error
	})
	if err != nil {
		return nil, err
	}
	return activation, nil
}

// ActivateForPlayer consumes only
// that player's credits.
func (l *Ledger) ActivateForPlayer(ctx context.Context, playerID uint, featureKey string, autoRenew bool) (*models.FeatureActivation, error) {
	return l.activate(ctx, &playerID, nil, nil, featureKey, autoRenew, []uint{playerID}, nil)
}

// ActivateForGroup consumes the
// group's credits, plus the spender's personal credits if the spender is a
// verified member.
func (l *Ledger) ActivateForGroup(ctx context.Context, groupID uint, featureKey string, spenderPlayerID *uint, autoRenew bool) (*models.FeatureActivation, error) {
	var playerIDs []uint
	if spenderPlayerID != nil {
		var membership models.Membership
		err := l.DB.WithContext(ctx).Where("player_id = ? AND group_id = ?", *spenderPlayerID, groupID).First(&membership).Error
		if err == nil {
			playerIDs = []uint{*spenderPlayerID}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotGroupMember
		}
	}
	return l.activate(ctx, nil, &groupID, spenderPlayerID, featureKey, autoRenew, playerIDs, []uint{groupID})
}

// SweepExpired marks active credits whose expires_at has passed as expired,
// without touching remaining.
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	res := l.DB.WithContext(ctx).Model(&models.PointCredit{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.CreditActive, time.Now()).
		Update("status", models.CreditExpired)
	return res.RowsAffected, res.Error
}

// SweepExpiredActivations transitions active -> expired strictly by end_at
// passing.
func (l *Ledger) SweepExpiredActivations(ctx context.Context) (int64, error) {
	res := l.DB.WithContext(ctx).Model(&models.FeatureActivation{}).
		Where("status = ? AND end_at <= ?", models.ActivationActive, time.Now()).
		Update("status", models.ActivationExpired)
	return res.RowsAffected, res.Error
}

// addMonthClamped advances t by one month, clamping to the last day of the
// target month when the source day doesn't exist there, e.g. Jan 31 ->
// Feb 28/29.
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDayOfNext := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDayOfNext {
		day = lastDayOfNext
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// RunRecurringGrants is the scheduler-tick procedure: select due
// active monthly grants ordered by (next_due_at, id), award the amount, and
// advance next_due_at by one month with end-of-month clamping.
func (l *Ledger) RunRecurringGrants(ctx context.Context) (int, error) {
	var grants []models.RecurringPointGrant
	now := time.Now()
	err := l.DB.WithContext(ctx).
		Where("status = ? AND cadence = ? AND next_due_at <= ?", models.GrantActive, "monthly", now).
		Order("next_due_at ASC, id ASC").
		Find(&grants).Error
	if err != nil {
		return 0, fmt.Errorf("points: load due grants: %w", err)
	}

	granted := 0
	for _, g := range grants {
		err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			expires := now.Add(60 * 24 * time.Hour)
			credit := &models.PointCredit{
				ID: uuid.NewString(), PlayerID: &g.PlayerID,
				Source: fmt.Sprintf("Recurring grant (%s)", g.Source),
				Amount: g.AmountPerPeriod, Remaining: g.AmountPerPeriod,
				ExpiresAt: &expires, Status: models.CreditActive,
			}
			if err := tx.Create(credit).Error; err != nil {
				return err
			}
			base := now
			if g.NextDueAt != nil {
				base = *g.NextDueAt
			}
			next := addMonthClamped(base)
			return tx.Model(&models.RecurringPointGrant{}).
				Where("id = ?", g.ID).
				Updates(map[string]interface{}{"last_granted_at": now, "next_due_at": next}).Error
		})
		if err != nil {
			return granted, fmt.Errorf("points: grant %s: %w", g.ID, err)
		}
		granted++
	}
	return granted, nil
}

// UpgradeGrantAmount bumps a grant's per-period amount; on an increase the
// grant becomes immediately due for its next tick.
func (l *Ledger) UpgradeGrantAmount(ctx context.Context, grantID string, newAmount int) error {
	var grant models.RecurringPointGrant
	if err := l.DB.WithContext(ctx).First(&grant, "id = ?", grantID).Error; err != nil {
		return err
	}
	updates := map[string]interface{}{"amount_per_period": newAmount}
	if newAmount > grant.AmountPerPeriod {
		updates["next_due_at"] = time.Now()
	}
	return l.DB.WithContext(ctx).Model(&models.RecurringPointGrant{}).Where("id = ?", grantID).Updates(updates).Error
}

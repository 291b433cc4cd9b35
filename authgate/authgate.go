// Package authgate decides whether a submission may mutate state under a
// given player_name.
package authgate

import (
	"context"
	"errors"

	"droptracker-ingest/models"
	"droptracker-ingest/normalize"

	"gorm.io/gorm"
)

// ErrAuthDataInsufficient describes an account_hash too short to trust.
// Neither Check nor the resolver returns this value; the resolver returns
// its own resolver.ErrAuthDataInsufficient.
var ErrAuthDataInsufficient = errors.New("authgate: account_hash shorter than 5 characters")

// Gate wraps a *gorm.DB session for a single request's auth check.
type Gate struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Gate {
	return &Gate{DB: db}
}

// Check reports (user_exists, authed) for a submission under player_name.
// auth_key is not a parameter: submissions carry it, but nothing evaluates
// it (the gateway middleware guards only the admin routes), and this gate
// only reconciles account_hash binding.
func (g *Gate) Check(ctx context.Context, playerName, accountHash string) (userExists bool, authed bool, err error) {
	var player models.Player
	err = g.DB.WithContext(ctx).
		Where("LOWER(display_name) = LOWER(?)", playerName).
		First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	if player.AccountHash != nil {
		return true, *player.AccountHash == accountHash, nil
	}

	// No hash bound yet: first-writer-wins binding.
	bound := false
	err = g.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hashOwner models.Player
		lookupErr := tx.Where("account_hash = ?", accountHash).First(&hashOwner).Error
		switch {
		case errors.Is(lookupErr, gorm.ErrRecordNotFound):
			// Nobody owns this hash yet: bind it to the matched player.
			player.AccountHash = &accountHash
			bound = true
			return tx.Model(&models.Player{}).
				Where("player_id = ?", player.PlayerID).
				Update("account_hash", accountHash).Error
		case lookupErr != nil:
			return lookupErr
		}

		if normalize.NamesEquivalent(hashOwner.DisplayName, playerName) {
			bound = true
			return tx.Model(&models.Player{}).
				Where("player_id = ?", hashOwner.PlayerID).
				Update("display_name", playerName).Error
		}
		// A different account owns this hash under a non-equivalent name:
		// do not bind and do not rename, since the caller is not this account.
		return nil
	})
	if err != nil {
		return true, false, err
	}
	return true, bound, nil
}

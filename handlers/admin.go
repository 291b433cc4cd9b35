package handlers

import (
	"errors"
	"strconv"

	"droptracker-ingest/leaderboard"
	"droptracker-ingest/middleware"
	"droptracker-ingest/models"
	"droptracker-ingest/points"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Admin owns the operator-only surface: group configuration writes, force
// rebuilds, feature activations, and recurring-grant management. All routes
// sit behind the ingest-service bearer token.
type Admin struct {
	DB     *gorm.DB
	Board  *leaderboard.Store
	Ledger *points.Ledger
}

func NewAdmin(db *gorm.DB, board *leaderboard.Store, ledger *points.Ledger) *Admin {
	return &Admin{DB: db, Board: board, Ledger: ledger}
}

func SetupAdminRoutes(app *fiber.App, a *Admin, serviceToken string) {
	admin := app.Group("/admin", middleware.GatewayAuthMiddleware(serviceToken))

	admin.Post("/groups", a.HandleCreateGroup)
	admin.Post("/players/:player_id/rebuild", a.HandleForceRebuild)
	admin.Put("/groups/:group_id/config/:key", a.HandleSetGroupConfig)
	admin.Post("/activations/player", a.HandleActivateForPlayer)
	admin.Post("/activations/group", a.HandleActivateForGroup)
	admin.Post("/grants", a.HandleCreateGrant)
	admin.Patch("/grants/:grant_id/amount", a.HandleUpgradeGrant)
}

// HandleCreateGroup registers a group. When no invite code is supplied, one
// is derived from the group name.
func (a *Admin) HandleCreateGroup(c *fiber.Ctx) error {
	var body struct {
		Name            string  `json:"name"`
		Description     string  `json:"description"`
		Icon            string  `json:"icon"`
		Invite          string  `json:"invite"`
		ExternalGroupID *string `json:"external_group_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	invite := body.Invite
	if invite == "" {
		invite = slug.Make(body.Name)
	}
	group := models.Group{
		Name:            body.Name,
		Description:     body.Description,
		Icon:            body.Icon,
		Invite:          invite,
		ExternalGroupID: body.ExternalGroupID,
	}
	if err := a.DB.WithContext(c.Context()).Create(&group).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create group"})
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

// HandleForceRebuild runs the cold-path leaderboard rebuild for one player.
func (a *Admin) HandleForceRebuild(c *fiber.Ctx) error {
	playerID, err := strconv.ParseUint(c.Params("player_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid player_id"})
	}

	var memberships []models.Membership
	if err := a.DB.WithContext(c.Context()).Where("player_id = ?", playerID).Find(&memberships).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load memberships"})
	}
	groupIDs := make([]uint, 0, len(memberships))
	for _, m := range memberships {
		groupIDs = append(groupIDs, m.GroupID)
	}

	if err := a.Board.Rebuild(c.Context(), uint(playerID), groupIDs); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "rebuild complete", "player_id": playerID})
}

func (a *Admin) HandleSetGroupConfig(c *fiber.Ctx) error {
	groupID, err := strconv.ParseUint(c.Params("group_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid group_id"})
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	row := models.GroupConfiguration{GroupID: uint(groupID), Key: c.Params("key"), Value: body.Value}
	err = a.DB.WithContext(c.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store config"})
	}
	return c.JSON(fiber.Map{"message": "config stored", "group_id": groupID, "key": row.Key})
}

func (a *Admin) HandleActivateForPlayer(c *fiber.Ctx) error {
	var body struct {
		PlayerID   uint   `json:"player_id"`
		FeatureKey string `json:"feature_key"`
		AutoRenew  bool   `json:"auto_renew"`
	}
	if err := c.BodyParser(&body); err != nil || body.PlayerID == 0 || body.FeatureKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "player_id and feature_key are required"})
	}
	activation, err := a.Ledger.ActivateForPlayer(c.Context(), body.PlayerID, body.FeatureKey, body.AutoRenew)
	return a.activationResponse(c, activation, err)
}

func (a *Admin) HandleActivateForGroup(c *fiber.Ctx) error {
	var body struct {
		GroupID         uint   `json:"group_id"`
		FeatureKey      string `json:"feature_key"`
		SpenderPlayerID *uint  `json:"spender_player_id"`
		AutoRenew       bool   `json:"auto_renew"`
	}
	if err := c.BodyParser(&body); err != nil || body.GroupID == 0 || body.FeatureKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "group_id and feature_key are required"})
	}
	activation, err := a.Ledger.ActivateForGroup(c.Context(), body.GroupID, body.FeatureKey, body.SpenderPlayerID, body.AutoRenew)
	return a.activationResponse(c, activation, err)
}

func (a *Admin) activationResponse(c *fiber.Ctx, activation *models.FeatureActivation, err error) error {
	switch {
	case errors.Is(err, points.ErrInsufficientPoints):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient points"})
	case errors.Is(err, points.ErrFeatureNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "feature not found"})
	case errors.Is(err, points.ErrNotGroupMember):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "spender is not a group member"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "activation failed"})
	}
	return c.JSON(activation)
}

func (a *Admin) HandleCreateGrant(c *fiber.Ctx) error {
	var body struct {
		PlayerID        uint   `json:"player_id"`
		Source          string `json:"source"`
		ExternalRef     string `json:"external_ref"`
		AmountPerPeriod int    `json:"amount_per_period"`
	}
	if err := c.BodyParser(&body); err != nil || body.PlayerID == 0 || body.AmountPerPeriod <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "player_id and a positive amount_per_period are required"})
	}

	grant := models.RecurringPointGrant{
		ID:              uuid.NewString(),
		PlayerID:        body.PlayerID,
		Source:          models.GrantSource(body.Source),
		ExternalRef:     body.ExternalRef,
		AmountPerPeriod: body.AmountPerPeriod,
		Cadence:         "monthly",
		Status:          models.GrantActive,
	}
	if err := a.DB.WithContext(c.Context()).Create(&grant).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create grant"})
	}
	return c.Status(fiber.StatusCreated).JSON(grant)
}

func (a *Admin) HandleUpgradeGrant(c *fiber.Ctx) error {
	var body struct {
		Amount int `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil || body.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "a positive amount is required"})
	}
	if err := a.Ledger.UpgradeGrantAmount(c.Context(), c.Params("grant_id"), body.Amount); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "grant not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update grant"})
	}
	return c.JSON(fiber.Map{"message": "grant updated"})
}

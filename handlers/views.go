package handlers

import (
	"context"
	"sort"
	"strconv"
	"time"

	"droptracker-ingest/leaderboard"
	"droptracker-ingest/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Views serves the read-only endpoints over the Leaderboard Store and DB.
type Views struct {
	DB    *gorm.DB
	Board *leaderboard.Store
	Redis *redis.Client
}

func NewViews(db *gorm.DB, board *leaderboard.Store, rdb *redis.Client) *Views {
	return &Views{DB: db, Board: board, Redis: rdb}
}

func SetupViewRoutes(app *fiber.App, v *Views) {
	app.Get("/load_config", v.HandleLoadConfig)
	app.Get("/top_players", v.HandleTopPlayers)
	app.Get("/top_groups", v.HandleTopGroups)
	app.Get("/top_npcs", v.HandleTopNpcs)
	app.Get("/player_search", v.HandlePlayerSearch)
	app.Get("/group_search", v.HandleGroupSearch)
	app.Get("/health", v.HandleHealth)
	app.Get("/ping", v.HandlePing)
}

// HandleLoadConfig returns the per-group gating configuration for a player,
// so the plugin can pre-filter client-side.
func (v *Views) HandleLoadConfig(c *fiber.Ctx) error {
	playerName := c.Query("player_name")
	accHash := c.Query("acc_hash")
	if playerName == "" || accHash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "player_name and acc_hash are required"})
	}

	var player models.Player
	err := v.DB.WithContext(c.Context()).
		Where("LOWER(display_name) = LOWER(?)", playerName).
		First(&player).Error
	if err != nil {
		// Soft 200 with empty config: an unknown or unauthenticated caller
		// learns nothing about registered players.
		return c.JSON(fiber.Map{"groups": []fiber.Map{}})
	}
	if player.AccountHash != nil && *player.AccountHash != accHash {
		return c.JSON(fiber.Map{"groups": []fiber.Map{}})
	}

	var memberships []models.Membership
	if err := v.DB.WithContext(c.Context()).Where("player_id = ?", player.PlayerID).Find(&memberships).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load memberships"})
	}

	groups := make([]fiber.Map, 0, len(memberships))
	for _, m := range memberships {
		var rows []models.GroupConfiguration
		if err := v.DB.WithContext(c.Context()).Where("group_id = ?", m.GroupID).Find(&rows).Error; err != nil {
			continue
		}
		cfg := fiber.Map{}
		for _, row := range rows {
			cfg[row.Key] = row.Value
		}
		groups = append(groups, fiber.Map{"group_id": m.GroupID, "config": cfg})
	}
	return c.JSON(fiber.Map{"player_id": player.PlayerID, "groups": groups})
}

func (v *Views) partitionParam(c *fiber.Ctx) int {
	if raw := c.Query("partition"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			return p
		}
	}
	return leaderboard.MonthlyPartition(time.Now())
}

func (v *Views) limitParam(c *fiber.Ctx, fallback int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			return n
		}
	}
	return fallback
}

// HandleTopPlayers reads the monthly sorted set and joins display names,
// excluding hidden players from the public view.
func (v *Views) HandleTopPlayers(c *fiber.Ctx) error {
	partition := v.partitionParam(c)
	limit := v.limitParam(c, 25)

	var groupID *uint
	if raw := c.Query("group_id"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
			g := uint(n)
			groupID = &g
		}
	}

	scores, err := v.Board.TopPlayers(c.Context(), groupID, partition, limit*2)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "leaderboard unavailable"})
	}

	out := make([]fiber.Map, 0, limit)
	rank := 0
	for _, score := range scores {
		var player models.Player
		if err := v.DB.WithContext(c.Context()).First(&player, score.PlayerID).Error; err != nil {
			continue
		}
		if player.Hidden {
			continue
		}
		rank++
		out = append(out, fiber.Map{
			"rank":        rank,
			"player_id":   player.PlayerID,
			"player_name": player.DisplayName,
			"total_loot":  score.Score,
		})
		if len(out) >= limit {
			break
		}
	}
	return c.JSON(fiber.Map{"partition": partition, "players": out})
}

// HandleTopGroups ranks groups by the sum of their members' monthly totals.
// The global group is excluded from cross-group rankings (GLOSSARY).
func (v *Views) HandleTopGroups(c *fiber.Ctx) error {
	partition := v.partitionParam(c)
	limit := v.limitParam(c, 25)

	var groups []models.Group
	if err := v.DB.WithContext(c.Context()).Find(&groups).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load groups"})
	}

	type groupTotal struct {
		Group models.Group
		Total int64
	}
	totals := make([]groupTotal, 0, len(groups))
	for _, g := range groups {
		if g.GroupID == models.GlobalGroupID {
			continue
		}
		total, err := v.Board.GroupTotal(c.Context(), g.GroupID, partition)
		if err != nil {
			continue
		}
		totals = append(totals, groupTotal{Group: g, Total: total})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Total > totals[j].Total })
	if len(totals) > limit {
		totals = totals[:limit]
	}

	out := make([]fiber.Map, 0, len(totals))
	for i, t := range totals {
		out = append(out, fiber.Map{
			"rank":       i + 1,
			"group_id":   t.Group.GroupID,
			"group_name": t.Group.Name,
			"total_loot": t.Total,
		})
	}
	return c.JSON(fiber.Map{"partition": partition, "groups": out})
}

// HandleTopNpcs aggregates a group's per-NPC leaderboards.
func (v *Views) HandleTopNpcs(c *fiber.Ctx) error {
	partition := v.partitionParam(c)
	limit := v.limitParam(c, 25)
	groupID, err := strconv.ParseUint(c.Query("group_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "group_id is required"})
	}

	scores, err := v.Board.TopNpcs(c.Context(), uint(groupID), partition, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "leaderboard unavailable"})
	}

	out := make([]fiber.Map, 0, len(scores))
	for i, score := range scores {
		name := ""
		var npc models.NPC
		if err := v.DB.WithContext(c.Context()).First(&npc, score.NpcID).Error; err == nil {
			name = npc.Name
		}
		out = append(out, fiber.Map{
			"rank": i + 1, "npc_id": score.NpcID, "npc_name": name, "total_loot": score.Total,
		})
	}
	return c.JSON(fiber.Map{"partition": partition, "group_id": groupID, "npcs": out})
}

func (v *Views) HandlePlayerSearch(c *fiber.Ctx) error {
	q := c.Query("q")
	if len(q) < 2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q must be at least 2 characters"})
	}
	var players []models.Player
	err := v.DB.WithContext(c.Context()).
		Where("display_name ILIKE ? AND hidden = ?", "%"+q+"%", false).
		Limit(v.limitParam(c, 20)).
		Find(&players).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "search failed"})
	}
	out := make([]fiber.Map, 0, len(players))
	for _, p := range players {
		out = append(out, fiber.Map{"player_id": p.PlayerID, "player_name": p.DisplayName})
	}
	return c.JSON(fiber.Map{"players": out})
}

func (v *Views) HandleGroupSearch(c *fiber.Ctx) error {
	q := c.Query("q")
	if len(q) < 2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q must be at least 2 characters"})
	}
	var groups []models.Group
	err := v.DB.WithContext(c.Context()).
		Where("name ILIKE ?", "%"+q+"%").
		Limit(v.limitParam(c, 20)).
		Find(&groups).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "search failed"})
	}
	out := make([]fiber.Map, 0, len(groups))
	for _, g := range groups {
		out = append(out, fiber.Map{
			"group_id": g.GroupID, "group_name": g.Name,
			"description": g.Description, "invite": g.Invite,
		})
	}
	return c.JSON(fiber.Map{"groups": out})
}

// HandleHealth probes both dependencies inside sub-second budgets
// (Redis 1s, DB 2s).
func (v *Views) HandleHealth(c *fiber.Ctx) error {
	redisOK := true
	redisCtx, cancelRedis := context.WithTimeout(c.Context(), time.Second)
	defer cancelRedis()
	if err := v.Redis.Ping(redisCtx).Err(); err != nil {
		redisOK = false
	}

	dbOK := true
	dbCtx, cancelDB := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancelDB()
	var one int
	if err := v.DB.WithContext(dbCtx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		dbOK = false
	}

	status := fiber.StatusOK
	if !redisOK || !dbOK {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status": map[bool]string{true: "ok", false: "degraded"}[redisOK && dbOK],
		"redis":  redisOK,
		"db":     dbOK,
	})
}

func (v *Views) HandlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "pong", "time": time.Now().UTC()})
}

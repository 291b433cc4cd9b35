// Package leaderboard is the Redis-backed real-time aggregate layer kept
// alongside the SQL store of record: an atomic Lua hash-merge per item,
// pipelined multi-granularity writes, sorted-set rankings, and a per-player
// force-rebuild lock.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"droptracker-ingest/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Granularity selects one of the three aggregate windows maintained per
// player.
type Granularity string

const (
	AllTime Granularity = "all"
	Monthly Granularity = "monthly"
	Daily   Granularity = "daily"
)

const (
	monthlyRecentCap = 50
	allTimeRecentCap = 100
	dailyRecentCap   = 25

	highValueThreshold = 1_000_000
	dailyTTL           = 90 * 24 * time.Hour
)

// MonthlyPartition returns the YYYYMM partition for t, the same value
// stored on models.Drop.Partition.
func MonthlyPartition(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}

// DailyPartition returns the YYYYMMDD partition for t.
func DailyPartition(t time.Time) string {
	return t.Format("20060102")
}

// DropEvent is the minimal shape the store needs out of a persisted Drop.
type DropEvent struct {
	DropID      uint64
	PlayerID    uint
	ItemID      uint
	NpcID       uint
	Value       int64
	Quantity    int64
	ReceivedAt  time.Time
}

func (d DropEvent) totalValue() int64 { return d.Value * d.Quantity }

// Store wraps a Redis client and the gorm DB used for cold-path rebuilds.
// rebuildLocks is the process-local player_id -> in-rebuild map;
// incremental updates for a locked player are dropped.
type Store struct {
	rdb *redis.Client
	db  *gorm.DB

	rebuildMu    sync.Mutex
	rebuildLocks map[uint]struct{}
}

func New(rdb *redis.Client, db *gorm.DB) *Store {
	return &Store{rdb: rdb, db: db, rebuildLocks: make(map[uint]struct{})}
}

func (s *Store) rebuilding(playerID uint) bool {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	_, locked := s.rebuildLocks[playerID]
	return locked
}

func (s *Store) lockRebuild(playerID uint) bool {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	if _, locked := s.rebuildLocks[playerID]; locked {
		return false
	}
	s.rebuildLocks[playerID] = struct{}{}
	return true
}

func (s *Store) unlockRebuild(playerID uint) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	delete(s.rebuildLocks, playerID)
}

func itemsKey(playerID uint, partition string) string {
	return fmt.Sprintf("player:%d:%s:total_items", playerID, partition)
}
func totalKey(playerID uint, partition string) string {
	return fmt.Sprintf("player:%d:%s:total_loot", playerID, partition)
}
func recentKey(playerID uint, partition string) string {
	return fmt.Sprintf("player:%d:%s:recent_items", playerID, partition)
}
func globalLeaderboardKey(monthlyPartition int) string {
	return fmt.Sprintf("leaderboard:%d", monthlyPartition)
}
func groupLeaderboardKey(monthlyPartition int, groupID uint) string {
	return fmt.Sprintf("leaderboard:%d:group:%d", monthlyPartition, groupID)
}
func npcLeaderboardKey(monthlyPartition int, groupID, npcID uint) string {
	return fmt.Sprintf("leaderboard:%d:group:%d:npc:%d", monthlyPartition, groupID, npcID)
}
func rebuildLockKey(playerID uint) string {
	return fmt.Sprintf("lock:player:%d:rebuild", playerID)
}

// atomicHashMergeScript read-modify-writes one item's CSV value under a
// single Redis script execution. CSV layout is
// "qty,total_value,drop_count,first_drop,last_drop"; on merge, quantities,
// values, and counts sum, first_drop is retained and last_drop replaced.
var atomicHashMergeScript = redis.NewScript(`
local key = KEYS[1]
local item_id = ARGV[1]
local qty_delta = tonumber(ARGV[2])
local value_delta = tonumber(ARGV[3])
local drop_count_delta = tonumber(ARGV[4])
local first_drop = ARGV[5]
local last_drop = ARGV[6]

local current = redis.call('HGET', key, item_id)
local new_qty, new_value, new_count, new_first, new_last

if current then
    local parts = {}
    for part in string.gmatch(current, "[^,]+") do
        table.insert(parts, part)
    end
    if #parts >= 5 then
        new_qty = tonumber(parts[1]) + qty_delta
        new_value = tonumber(parts[2]) + value_delta
        new_count = tonumber(parts[3]) + drop_count_delta
        new_first = parts[4]
        new_last = last_drop
    end
end

if new_qty == nil then
    new_qty = qty_delta
    new_value = value_delta
    new_count = drop_count_delta
    new_first = first_drop
    new_last = last_drop
end

local result = new_qty .. "," .. new_value .. "," .. new_count .. "," .. new_first .. "," .. new_last
redis.call('HSET', key, item_id, result)
return result
`)

type recentItem struct {
	DropID    uint64 `json:"drop_id"`
	ItemID    uint   `json:"item_id"`
	NpcID     uint   `json:"npc_id"`
	Value     int64  `json:"value"`
	Quantity  int64  `json:"quantity"`
	TotalValue int64 `json:"total_value"`
	ReceivedAt string `json:"received_at"`
}

func timestampOf(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05") }

// ApplyDrop performs the hot-path incremental update: one atomic
// CSV-merge per granularity, a total-loot increment per granularity, a
// conditional recent-items push for high-value drops, and a monthly
// sorted-set increment for every group the player belongs to (plus global).
// Dropped (no-op) if the player is mid-rebuild.
func (s *Store) ApplyDrop(ctx context.Context, drop DropEvent, groupIDs []uint) error {
	if s.rebuilding(drop.PlayerID) {
		return nil
	}

	monthly := strconv.Itoa(MonthlyPartition(drop.ReceivedAt))
	daily := "daily:" + DailyPartition(drop.ReceivedAt)
	ts := timestampOf(drop.ReceivedAt)

	pipe := s.rdb.TxPipeline()
	for _, partition := range []string{monthly, string(AllTime), daily} {
		atomicHashMergeScript.Run(ctx, pipe, []string{itemsKey(drop.PlayerID, partition)},
			drop.ItemID, drop.Quantity, drop.totalValue(), 1, ts, ts)
		pipe.IncrBy(ctx, totalKey(drop.PlayerID, partition), drop.totalValue())
	}

	if drop.totalValue() > highValueThreshold {
		item := recentItem{
			DropID: drop.DropID, ItemID: drop.ItemID, NpcID: drop.NpcID,
			Value: drop.Value, Quantity: drop.Quantity, TotalValue: drop.totalValue(),
			ReceivedAt: ts,
		}
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("leaderboard: marshal recent item: %w", err)
		}
		pipe.LPush(ctx, recentKey(drop.PlayerID, monthly), payload)
		pipe.LTrim(ctx, recentKey(drop.PlayerID, monthly), 0, monthlyRecentCap-1)
		pipe.LPush(ctx, recentKey(drop.PlayerID, string(AllTime)), payload)
		pipe.LTrim(ctx, recentKey(drop.PlayerID, string(AllTime)), 0, allTimeRecentCap-1)
		pipe.LPush(ctx, recentKey(drop.PlayerID, daily), payload)
		pipe.LTrim(ctx, recentKey(drop.PlayerID, daily), 0, dailyRecentCap-1)
	}

	for _, key := range []string{itemsKey(drop.PlayerID, daily), totalKey(drop.PlayerID, daily), recentKey(drop.PlayerID, daily)} {
		pipe.Expire(ctx, key, dailyTTL)
	}

	monthlyPartitionInt := MonthlyPartition(drop.ReceivedAt)
	monthlyTotal := pipe.Get(ctx, totalKey(drop.PlayerID, monthly))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("leaderboard: apply drop pipeline: %w", err)
	}

	total, _ := monthlyTotal.Int64()
	return s.updateRankings(ctx, drop.PlayerID, drop.NpcID, monthlyPartitionInt, total, drop.totalValue(), groupIDs)
}

// updateRankings sets the player's monthly sorted-set score to total (the
// recomputed monthly sum) and, when a drop value is supplied, increments the
// per-NPC group leaderboards by that drop's value.
func (s *Store) updateRankings(ctx context.Context, playerID, npcID uint, monthlyPartition int, total, dropValue int64, groupIDs []uint) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, globalLeaderboardKey(monthlyPartition), redis.Z{Score: float64(total), Member: playerID})
	for _, gid := range groupIDs {
		pipe.ZAdd(ctx, groupLeaderboardKey(monthlyPartition, gid), redis.Z{Score: float64(total), Member: playerID})
		if npcID != 0 && dropValue != 0 {
			pipe.ZIncrBy(ctx, npcLeaderboardKey(monthlyPartition, gid, npcID), float64(dropValue), strconv.Itoa(int(playerID)))
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Rebuild is the cold-path force rebuild: lock, wipe, replay
// all Drop rows from SQL in received_at order, and re-add the player to the
// global and each group's monthly sorted set.
func (s *Store) Rebuild(ctx context.Context, playerID uint, groupIDs []uint) error {
	if !s.lockRebuild(playerID) {
		return fmt.Errorf("leaderboard: rebuild already in progress for player %d", playerID)
	}
	defer s.unlockRebuild(playerID)

	lockKey := rebuildLockKey(playerID)
	acquired, err := s.rdb.SetNX(ctx, lockKey, "1", 5*time.Minute).Result()
	if err != nil {
		return fmt.Errorf("leaderboard: acquire rebuild lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("leaderboard: rebuild already locked for player %d", playerID)
	}
	defer s.rdb.Del(ctx, lockKey)

	var drops []models.Drop
	if err := s.db.WithContext(ctx).Where("player_id = ?", playerID).Order("received_at ASC").Find(&drops).Error; err != nil {
		return fmt.Errorf("leaderboard: load drops: %w", err)
	}

	if err := s.clearPlayerKeys(ctx, playerID); err != nil {
		return err
	}
	if len(drops) == 0 {
		return nil
	}

	byMonth := map[int][]models.Drop{}
	byDay := map[string][]models.Drop{}
	for _, d := range drops {
		byMonth[d.Partition] = append(byMonth[d.Partition], d)
		byDay[DailyPartition(d.ReceivedAt)] = append(byDay[DailyPartition(d.ReceivedAt)], d)
	}

	for partition, monthDrops := range byMonth {
		total, err := s.rebuildPartition(ctx, playerID, strconv.Itoa(partition), monthDrops, monthlyRecentCap)
		if err != nil {
			return err
		}
		if err := s.updateRankings(ctx, playerID, 0, partition, total, 0, groupIDs); err != nil {
			return err
		}
	}
	if _, err := s.rebuildPartition(ctx, playerID, string(AllTime), drops, allTimeRecentCap); err != nil {
		return err
	}

	// Recompute the per-NPC group aggregates the incremental path maintains.
	npcTotals := map[int]map[uint]int64{}
	for _, d := range drops {
		byNpc, ok := npcTotals[d.Partition]
		if !ok {
			byNpc = map[uint]int64{}
			npcTotals[d.Partition] = byNpc
		}
		byNpc[d.NpcID] += d.Value * d.Quantity
	}
	member := strconv.Itoa(int(playerID))
	for partition, byNpc := range npcTotals {
		pipe := s.rdb.TxPipeline()
		for npcID, total := range byNpc {
			for _, gid := range groupIDs {
				pipe.ZAdd(ctx, npcLeaderboardKey(partition, gid, npcID), redis.Z{Score: float64(total), Member: member})
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("leaderboard: rebuild npc sets: %w", err)
		}
	}
	for daily, dayDrops := range byDay {
		if _, err := s.rebuildPartition(ctx, playerID, "daily:"+daily, dayDrops, dailyRecentCap); err != nil {
			return err
		}
		pipe := s.rdb.TxPipeline()
		for _, key := range []string{itemsKey(playerID, "daily:"+daily), totalKey(playerID, "daily:"+daily), recentKey(playerID, "daily:"+daily)} {
			pipe.Expire(ctx, key, dailyTTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("leaderboard: set daily ttl: %w", err)
		}
	}
	return nil
}

func (s *Store) rebuildPartition(ctx context.Context, playerID uint, partition string, drops []models.Drop, recentCap int) (int64, error) {
	type agg struct {
		qty, value, count int64
		first, last       string
	}
	items := map[uint]*agg{}
	var total int64
	var recents []recentItem

	for _, d := range drops {
		tv := d.Value * d.Quantity
		total += tv
		ts := timestampOf(d.ReceivedAt)
		a, ok := items[d.ItemID]
		if !ok {
			a = &agg{first: ts}
			items[d.ItemID] = a
		}
		a.qty += d.Quantity
		a.value += tv
		a.count++
		a.last = ts
		if tv > highValueThreshold {
			recents = append(recents, recentItem{
				DropID: d.DropID, ItemID: d.ItemID, NpcID: d.NpcID,
				Value: d.Value, Quantity: d.Quantity, TotalValue: tv, ReceivedAt: ts,
			})
		}
	}
	sort.Slice(recents, func(i, j int) bool { return recents[i].ReceivedAt < recents[j].ReceivedAt })
	if len(recents) > recentCap {
		recents = recents[len(recents)-recentCap:]
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, totalKey(playerID, partition), total, 0)
	for itemID, a := range items {
		value := fmt.Sprintf("%d,%d,%d,%s,%s", a.qty, a.value, a.count, a.first, a.last)
		pipe.HSet(ctx, itemsKey(playerID, partition), strconv.Itoa(int(itemID)), value)
	}
	if len(recents) > 0 {
		pipe.Del(ctx, recentKey(playerID, partition))
		for i := len(recents) - 1; i >= 0; i-- {
			payload, err := json.Marshal(recents[i])
			if err != nil {
				return 0, fmt.Errorf("leaderboard: marshal recent item: %w", err)
			}
			pipe.LPush(ctx, recentKey(playerID, partition), payload)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("leaderboard: rebuild partition %s: %w", partition, err)
	}
	return total, nil
}

func (s *Store) clearPlayerKeys(ctx context.Context, playerID uint) error {
	pattern := fmt.Sprintf("player:%d:*", playerID)
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return fmt.Errorf("leaderboard: scan player keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("leaderboard: delete player keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	// Remove the player from every known leaderboard sorted set, not just
	// the current month's.
	member := strconv.Itoa(int(playerID))
	cursor = 0
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "leaderboard:*", 200).Result()
		if err != nil {
			return fmt.Errorf("leaderboard: scan leaderboard keys: %w", err)
		}
		if len(keys) > 0 {
			pipe := s.rdb.TxPipeline()
			for _, key := range keys {
				pipe.ZRem(ctx, key, member)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("leaderboard: zrem player: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// RankOf answers a player's standing in a sorted set: (1-based rank,
// cardinality), or ok=false if the player has no score there.
func (s *Store) RankOf(ctx context.Context, playerID uint, groupID *uint, monthlyPartition int) (rank, cardinality int, ok bool, err error) {
	key := globalLeaderboardKey(monthlyPartition)
	if groupID != nil {
		key = groupLeaderboardKey(monthlyPartition, *groupID)
	}
	member := strconv.Itoa(int(playerID))

	zrank, err := s.rdb.ZRevRank(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("leaderboard: rank: %w", err)
	}
	card, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, 0, false, fmt.Errorf("leaderboard: rank cardinality: %w", err)
	}
	return int(zrank) + 1, int(card), true, nil
}

// TopPlayers returns up to limit (player_id, score) pairs for the given
// monthly partition, highest score first; backs the /top_players handler.
func (s *Store) TopPlayers(ctx context.Context, groupID *uint, monthlyPartition, limit int) ([]PlayerScore, error) {
	key := globalLeaderboardKey(monthlyPartition)
	if groupID != nil {
		key = groupLeaderboardKey(monthlyPartition, *groupID)
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: top players: %w", err)
	}
	out := make([]PlayerScore, 0, len(zs))
	for _, z := range zs {
		pid, _ := strconv.Atoi(fmt.Sprint(z.Member))
		out = append(out, PlayerScore{PlayerID: uint(pid), Score: int64(z.Score)})
	}
	return out, nil
}

// PlayerScore is one leaderboard row.
type PlayerScore struct {
	PlayerID uint
	Score    int64
}

// RecentItems parses the stored JSON recent-items list for a player's
// partition, oldest-pushed-first order reversed to newest-first.
func (s *Store) RecentItems(ctx context.Context, playerID uint, granularity Granularity, partition string) ([]recentItem, error) {
	key := recentKey(playerID, partitionKeyFor(granularity, partition))
	raws, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("leaderboard: recent items: %w", err)
	}
	out := make([]recentItem, 0, len(raws))
	for _, raw := range raws {
		var item recentItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func partitionKeyFor(g Granularity, partition string) string {
	switch g {
	case AllTime:
		return string(AllTime)
	case Daily:
		return "daily:" + partition
	default:
		return partition
	}
}

// GroupTotal sums the member scores of a group's monthly sorted set, the
// aggregate backing the /top_groups read view.
func (s *Store) GroupTotal(ctx context.Context, groupID uint, monthlyPartition int) (int64, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, groupLeaderboardKey(monthlyPartition, groupID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("leaderboard: group total: %w", err)
	}
	var total int64
	for _, z := range zs {
		total += int64(z.Score)
	}
	return total, nil
}

// NpcScore is one per-NPC leaderboard row for a group.
type NpcScore struct {
	NpcID uint
	Total int64
}

// TopNpcs aggregates the group's per-NPC sorted sets for the month, highest
// looted-value first; backs the /top_npcs read view.
func (s *Store) TopNpcs(ctx context.Context, groupID uint, monthlyPartition, limit int) ([]NpcScore, error) {
	pattern := fmt.Sprintf("leaderboard:%d:group:%d:npc:*", monthlyPartition, groupID)
	totals := map[uint]int64{}
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("leaderboard: scan npc keys: %w", err)
		}
		for _, key := range keys {
			idx := strings.LastIndex(key, ":")
			npcID, convErr := strconv.Atoi(key[idx+1:])
			if convErr != nil {
				continue
			}
			zs, err := s.rdb.ZRangeWithScores(ctx, key, 0, -1).Result()
			if err != nil {
				return nil, fmt.Errorf("leaderboard: read npc set: %w", err)
			}
			for _, z := range zs {
				totals[uint(npcID)] += int64(z.Score)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]NpcScore, 0, len(totals))
	for npcID, total := range totals {
		out = append(out, NpcScore{NpcID: npcID, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// parseCSVItem is exposed for tests verifying the merge script's field
// layout matches what callers expect to read back.
func parseCSVItem(raw string) (qty, value, count int64, first, last string, ok bool) {
	parts := strings.Split(raw, ",")
	if len(parts) < 5 {
		return 0, 0, 0, "", "", false
	}
	qty, _ = strconv.ParseInt(parts[0], 10, 64)
	value, _ = strconv.ParseInt(parts[1], 10, 64)
	count, _ = strconv.ParseInt(parts[2], 10, 64)
	return qty, value, count, parts[3], parts[4], true
}

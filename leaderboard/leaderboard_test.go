package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthlyPartition(t *testing.T) {
	assert.Equal(t, 202501, MonthlyPartition(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 202512, MonthlyPartition(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)))
}

func TestDailyPartition(t *testing.T) {
	assert.Equal(t, "20250115", DailyPartition(time.Date(2025, 1, 15, 3, 4, 5, 0, time.UTC)))
}

func TestParseCSVItem(t *testing.T) {
	qty, value, count, first, last, ok := parseCSVItem("3,1500000,2,2025-01-01 10:00:00,2025-01-02 11:00:00")
	assert.True(t, ok)
	assert.Equal(t, int64(3), qty)
	assert.Equal(t, int64(1_500_000), value)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "2025-01-01 10:00:00", first)
	assert.Equal(t, "2025-01-02 11:00:00", last)

	_, _, _, _, _, ok = parseCSVItem("1,2")
	assert.False(t, ok)
}

func TestRebuildLockIsExclusivePerPlayer(t *testing.T) {
	s := &Store{rebuildLocks: make(map[uint]struct{})}

	assert.True(t, s.lockRebuild(1))
	assert.False(t, s.lockRebuild(1), "second rebuild for the same player must be refused")
	assert.True(t, s.lockRebuild(2), "different players rebuild independently")
	assert.True(t, s.rebuilding(1))

	s.unlockRebuild(1)
	assert.False(t, s.rebuilding(1))
	assert.True(t, s.lockRebuild(1))
}

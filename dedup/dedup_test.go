package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neverInDB(ctx context.Context, kind, uniqueID string) (bool, error) {
	return false, nil
}

func TestCheckRejectsRingReplay(t *testing.T) {
	c := New()
	ctx := context.Background()

	dup, err := c.Check(ctx, "drop", "u1", neverInDB)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = c.Check(ctx, "drop", "u1", neverInDB)
	require.NoError(t, err)
	assert.True(t, dup, "second submission with the same unique_id must be rejected")
}

func TestCheckKindsAreIndependent(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, _ = c.Check(ctx, "drop", "u1", neverInDB)
	dup, err := c.Check(ctx, "pb", "u1", neverInDB)
	require.NoError(t, err)
	assert.False(t, dup, "rings are per-kind")
}

func TestCheckConsultsDurableFallback(t *testing.T) {
	c := New()
	ctx := context.Background()
	calls := 0
	inDB := func(ctx context.Context, kind, uniqueID string) (bool, error) {
		calls++
		return true, nil
	}

	dup, err := c.Check(ctx, "drop", "u-restart", inDB)
	require.NoError(t, err)
	assert.True(t, dup, "a row within the window rejects even on a cold ring")
	assert.Equal(t, 1, calls)
}

func TestCheckEmptyUniqueIDAllowed(t *testing.T) {
	c := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		dup, err := c.Check(ctx, "drop", "", neverInDB)
		require.NoError(t, err)
		assert.False(t, dup)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < ringSize+1; i++ {
		_, _ = c.Check(ctx, "drop", fmt.Sprintf("u%d", i), neverInDB)
	}

	// u0 was evicted, so only the DB fallback can reject it now.
	dup, err := c.Check(ctx, "drop", "u0", neverInDB)
	require.NoError(t, err)
	assert.False(t, dup)

	// The newest entry is still in the ring.
	dup, err = c.Check(ctx, "drop", fmt.Sprintf("u%d", ringSize), neverInDB)
	require.NoError(t, err)
	assert.True(t, dup)
}

package notifications

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadHashDistinguishesIdentity(t *testing.T) {
	gid := uint(5)
	base := payloadHash("drop", 1, &gid, `{"item":"x"}`)

	assert.NotEqual(t, base, payloadHash("pb", 1, &gid, `{"item":"x"}`))
	assert.NotEqual(t, base, payloadHash("drop", 2, &gid, `{"item":"x"}`))
	assert.NotEqual(t, base, payloadHash("drop", 1, nil, `{"item":"x"}`))
	assert.NotEqual(t, base, payloadHash("drop", 1, &gid, `{"item":"y"}`))
	assert.Equal(t, base, payloadHash("drop", 1, &gid, `{"item":"x"}`))
}

func TestSeenRejectsRepeatsWithinWindow(t *testing.T) {
	q := &Queue{recent: make(map[string]struct{}, recentCap)}

	assert.False(t, q.seen("h1"))
	assert.True(t, q.seen("h1"))
	assert.False(t, q.seen("h2"))
}

func TestSeenEvictsOldest(t *testing.T) {
	q := &Queue{recent: make(map[string]struct{}, recentCap)}

	for i := 0; i < recentCap+1; i++ {
		q.seen(fmt.Sprintf("h%d", i))
	}

	// h0 was evicted and reads as fresh again.
	assert.False(t, q.seen("h0"))
	// The newest survivor is still known.
	assert.True(t, q.seen(fmt.Sprintf("h%d", recentCap)))
}

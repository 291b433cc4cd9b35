package coalescer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTeamSize(t *testing.T) {
	assert.Equal(t, 1, ParseTeamSize("Solo"))
	assert.Equal(t, 1, ParseTeamSize("solo "))
	assert.Equal(t, 3, ParseTeamSize("3"))
	assert.Equal(t, 5, ParseTeamSize("5 players"))
	assert.Equal(t, 1, ParseTeamSize("duo?"))
	assert.Equal(t, 1, ParseTeamSize(""))
}

func TestIsRaidPB(t *testing.T) {
	assert.True(t, IsRaidPB("Theatre of Blood: Entry Mode"))
	assert.True(t, IsRaidPB("Tombs of Amascut: Expert Mode"))
	assert.False(t, IsRaidPB("Chambers of Xeric"))
	assert.False(t, IsRaidPB("King Black Dragon"))
}

func TestFireSelectsLargestTeamSize(t *testing.T) {
	var firedPlayer string
	var firedPayload interface{}
	c := New(func(playerName string, payload interface{}) {
		firedPlayer = playerName
		firedPayload = payload
	})

	c.Submit("Bob", "3", "three")
	c.Submit("Bob", "Solo", "solo")
	c.Submit("Bob", "5", "five")

	// Drive the window to fire directly instead of waiting out the timer.
	c.mu.Lock()
	c.windows["Bob"].timer.Stop()
	c.mu.Unlock()
	c.onFire("Bob")

	assert.Equal(t, "Bob", firedPlayer)
	assert.Equal(t, "five", firedPayload)
}

func TestFireExactlyOncePerWindow(t *testing.T) {
	fires := 0
	c := New(func(string, interface{}) { fires++ })

	c.Submit("Bob", "2", "a")
	c.Submit("Bob", "4", "b")
	c.onFire("Bob")
	c.onFire("Bob") // window already cleared

	assert.Equal(t, 1, fires)
}

func TestCancelSuppressesMaterialization(t *testing.T) {
	fires := 0
	c := New(func(string, interface{}) { fires++ })

	c.Submit("Bob", "3", "a")
	c.Cancel("Bob")
	c.onFire("Bob")

	assert.Equal(t, 0, fires)
}

func TestWindowsAreIndependentPerPlayer(t *testing.T) {
	fired := map[string]interface{}{}
	c := New(func(player string, payload interface{}) { fired[player] = payload })

	c.Submit("Alice", "2", "alice-2")
	c.Submit("Bob", "8", "bob-8")
	c.onFire("Alice")

	assert.Equal(t, "alice-2", fired["Alice"])
	_, bobFired := fired["Bob"]
	assert.False(t, bobFired)
	c.Cancel("Bob")
}

package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAdventurePBLine(t *testing.T) {
	boss, teamSize, rawTime, ok := parseAdventurePBLine("Theatre of Blood - 5 : 14:23.4")
	assert.True(t, ok)
	assert.Equal(t, "Theatre of Blood", boss)
	assert.Equal(t, "5", teamSize)
	assert.Equal(t, "14:23.4", rawTime)

	boss, teamSize, rawTime, ok = parseAdventurePBLine("Zulrah - Solo : 0:58.2")
	assert.True(t, ok)
	assert.Equal(t, "Zulrah", boss)
	assert.Equal(t, "Solo", teamSize)
	assert.Equal(t, "0:58.2", rawTime)

	_, _, _, ok = parseAdventurePBLine("not a pb line")
	assert.False(t, ok)

	_, _, _, ok = parseAdventurePBLine("")
	assert.False(t, ok)
}

func TestParseAdventureTeamSize(t *testing.T) {
	assert.Equal(t, 1, parseAdventureTeamSize("Solo"))
	assert.Equal(t, 4, parseAdventureTeamSize("4"))
	assert.Equal(t, 8, parseAdventureTeamSize("8 players"))
	assert.Equal(t, 1, parseAdventureTeamSize("??"))
}

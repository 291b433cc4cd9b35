package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropFromFields(t *testing.T) {
	fields := map[string]string{
		"player_name": "Alice",
		"acc_hash":    "H1",
		"item":        "Dragon med helm",
		"item_id":     "1149",
		"source":      "King Black Dragon",
		"quantity":    "1",
		"value":       "60,000",
		"id":          "u1",
		"used_api":    "true",
		"kc":          "153",
	}
	sub := dropFromFields(fields, nil)

	assert.Equal(t, "Alice", sub.PlayerName)
	assert.Equal(t, "H1", sub.AccountHash)
	assert.Equal(t, "Dragon med helm", sub.ItemName)
	require.NotNil(t, sub.ItemID)
	assert.Equal(t, uint(1149), *sub.ItemID)
	assert.Equal(t, "King Black Dragon", sub.NpcName)
	assert.Equal(t, int64(1), sub.Quantity)
	assert.Equal(t, int64(60_000), sub.Value)
	assert.Equal(t, "u1", sub.UniqueID)
	assert.True(t, sub.UsedAPI)
	require.NotNil(t, sub.KillCount)
	assert.Equal(t, 153, *sub.KillCount)
}

func TestPBFromFields(t *testing.T) {
	fields := map[string]string{
		"player":        "Bob",
		"boss_name":     "Theatre of Blood: Entry Mode",
		"team_size":     "5",
		"kill_time":     "14:23.4",
		"personal_best": "14:23.4",
		"is_new_pb":     "true",
	}
	sub := pbFromFields(fields, nil)

	assert.Equal(t, "Bob", sub.PlayerName)
	assert.Equal(t, "Theatre of Blood: Entry Mode", sub.NpcName)
	assert.Equal(t, "5", sub.TeamSize)
	assert.Equal(t, "14:23.4", sub.CurrentTime)
	assert.True(t, sub.IsNewPB)
}

func TestAdventureLogFromFields(t *testing.T) {
	fields := map[string]string{
		"player_name": "Carol",
		"pbs":         "Zulrah - Solo : 0:58.2\r\nTheatre of Blood - 5 : 14:23.4\n\n",
		"pets":        "12921, 13178, bogus",
	}
	sub := adventureLogFromFields(fields)

	assert.Equal(t, "Carol", sub.PlayerName)
	assert.Len(t, sub.PBLines, 2)
	assert.Equal(t, []uint{12921, 13178}, sub.PetItemIDs)
}

func TestFieldHelpersToleranceForMalformedValues(t *testing.T) {
	fields := map[string]string{"value": "abc", "item_id": "-1", "quantity": ""}
	assert.Equal(t, int64(0), fieldInt64(fields, "value"))
	assert.Nil(t, fieldUintPtr(fields, "item_id"))
	assert.Equal(t, int64(0), fieldInt64(fields, "quantity"))
	assert.Nil(t, fieldIntPtr(fields, "missing"))
}

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerDisplayEquivalence(t *testing.T) {
	assert.Equal(t, PlayerDisplayEquivalence("Iron_Bru"), PlayerDisplayEquivalence("iron bru"))
	assert.Equal(t, PlayerDisplayEquivalence("Some-Name"), PlayerDisplayEquivalence("some name"))
	assert.Equal(t, PlayerDisplayEquivalence("  a   b "), "a b")
	assert.NotEqual(t, PlayerDisplayEquivalence("alice"), PlayerDisplayEquivalence("bob"))
}

func TestNamesEquivalent(t *testing.T) {
	assert.True(t, NamesEquivalent("Zezima", "ZEZIMA"))
	assert.True(t, NamesEquivalent("a_b-c", "A B C"))
	assert.False(t, NamesEquivalent("Zezima", "Zezimaa"))
}

func TestTruthy(t *testing.T) {
	assert.Equal(t, true, Truthy("true"))
	assert.Equal(t, true, Truthy("1"))
	assert.Equal(t, false, Truthy("false"))
	assert.Equal(t, false, Truthy("0"))
	assert.Nil(t, Truthy(""))
	assert.Equal(t, "maybe", Truthy("maybe"))

	assert.True(t, IsTruthy("1"))
	assert.False(t, IsTruthy("yes")) // only explicit true/1 gate positively
	assert.False(t, IsTruthy(""))
}

func TestResolveDoomOfMokhaiotl(t *testing.T) {
	id, canonical := ResolveDoomOfMokhaiotl("Doom of Mokhaiotl (Level 3)")
	assert.Equal(t, uint(14710), id)
	assert.Equal(t, "Doom of Mokhaiotl (Level 3)", canonical)

	// Compact level spacing is normalized.
	id, canonical = ResolveDoomOfMokhaiotl("Doom of Mokhaiotl (Level:5)")
	assert.Equal(t, uint(14712), id)
	assert.Equal(t, "Doom of Mokhaiotl (Level 5)", canonical)

	// Malformed level falls back to the base id.
	id, _ = ResolveDoomOfMokhaiotl("Doom of Mokhaiotl (Level ?)")
	assert.Equal(t, uint(DoomBaseNpcID), id)
}

func TestIsDoomOfMokhaiotl(t *testing.T) {
	assert.True(t, IsDoomOfMokhaiotl("Doom of Mokhaiotl (Level 2)"))
	assert.False(t, IsDoomOfMokhaiotl("Doom of Mokhaiotl"))
	assert.False(t, IsDoomOfMokhaiotl("King Black Dragon"))
}

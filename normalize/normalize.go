// Package normalize centralizes the pure name-normalization and truthy
// coercion helpers used by the auth gate, the resolver, the attachment sink
// and the processors.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
)

var foldCase = cases.Fold()

// PlayerDisplayEquivalence normalizes a display name for equivalence
// comparison: '-'/'_' become spaces, whitespace collapses, case folds.
// Mirrors the source's normalize_player_display_equivalence.
func PlayerDisplayEquivalence(name string) string {
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.Join(strings.Fields(name), " ")
	return foldCase.String(name)
}

// NamesEquivalent reports whether two display names are equivalent under
// PlayerDisplayEquivalence, used by the Auth Gate's first-writer-wins
// rebinding rule.
func NamesEquivalent(a, b string) bool {
	return PlayerDisplayEquivalence(a) == PlayerDisplayEquivalence(b)
}

// NpcName normalizes an NPC name for cache/DB lookup keys: spaces become
// underscores, and leading/trailing whitespace is trimmed.
func NpcName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Truthy applies the tri-state coercion over GroupConfiguration string
// values from the GLOSSARY: "true"|"1" -> true, "false"|"0" -> false,
// "" -> nil, otherwise the string itself.
func Truthy(value string) interface{} {
	switch value {
	case "true", "1":
		return true
	case "false", "0":
		return false
	case "":
		return nil
	default:
		return value
	}
}

// IsTruthy is a convenience wrapper for the common boolean-gate case: only
// an explicit "true"/"1" gates positively.
func IsTruthy(value string) bool {
	b, ok := Truthy(value).(bool)
	return ok && b
}

// TransliterateForPath strips accents/CJK/etc via unidecode before the
// filesystem sanitization rules run, so non-ASCII RuneScape
// display names still produce a readable attachment path.
func TransliterateForPath(s string) string {
	return unidecode.Unidecode(s)
}

const (
	// DoomBaseNpcID is the canonical NPC id for Doom of Mokhaiotl when the
	// level suffix can't be parsed.
	DoomBaseNpcID = 14704
	// doomLevelOffset is added to the parsed level to get the per-floor id.
	doomLevelOffset = 14707
)

var (
	doomNamePattern  = regexp.MustCompile(`(?i)doom of mokhaiotl`)
	doomLevelPattern = regexp.MustCompile(`(?i)\(\s*level\s*:??\s*(\d+)\s*\)`)
)

// IsDoomOfMokhaiotl reports whether npcName refers to the tiered Doom of
// Mokhaiotl encounter, which maps to per-floor npc ids.
func IsDoomOfMokhaiotl(npcName string) bool {
	return doomNamePattern.MatchString(npcName) && strings.Contains(strings.ToLower(npcName), "(level")
}

// ResolveDoomOfMokhaiotl maps "Doom of Mokhaiotl (Level N)" style names to
// their per-floor npc id (14707+N), normalizing the canonical name's level
// spacing. On a malformed/missing level it returns the base id 14704.
func ResolveDoomOfMokhaiotl(npcName string) (npcID uint, canonicalName string) {
	match := doomLevelPattern.FindStringSubmatch(npcName)
	if match == nil {
		return DoomBaseNpcID, npcName
	}
	level, err := strconv.Atoi(match[1])
	if err != nil {
		return DoomBaseNpcID, npcName
	}
	canonical := doomLevelPattern.ReplaceAllString(npcName, "(Level "+match[1]+")")
	return uint(doomLevelOffset + level), canonical
}

package processors

import (
	"strconv"
	"strings"
)

// parseKillTime accepts the three shapes the plugin sends:
// "MM:SS.t", "HH:MM:SS.t", or a bare integer count of milliseconds. Returns
// 0 on anything unparseable, matching the "ignore" behavior for malformed
// or absent times.
func parseKillTime(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms
	}

	parts := strings.Split(raw, ":")
	var hours, minutes int64
	var secondsField string
	switch len(parts) {
	case 2:
		minutes = atoiOr(parts[0])
		secondsField = parts[1]
	case 3:
		hours = atoiOr(parts[0])
		minutes = atoiOr(parts[1])
		secondsField = parts[2]
	default:
		return 0
	}

	secWhole, secFrac := secondsField, "0"
	if i := strings.IndexByte(secondsField, '.'); i >= 0 {
		secWhole, secFrac = secondsField[:i], secondsField[i+1:]
	}
	seconds := atoiOr(secWhole)
	tenths := atoiOr(secFrac)

	totalMs := (hours*3600+minutes*60+seconds)*1000 + tenths*100
	return totalMs
}

func atoiOr(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

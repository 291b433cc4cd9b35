package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKillTime(t *testing.T) {
	assert.Equal(t, int64(0), parseKillTime(""))
	assert.Equal(t, int64(123456), parseKillTime("123456"))
	assert.Equal(t, int64(83_400), parseKillTime("1:23.4"))
	assert.Equal(t, int64(3_723_400), parseKillTime("1:02:03.4"))
	assert.Equal(t, int64(90_000), parseKillTime("1:30"))
	assert.Equal(t, int64(0), parseKillTime("not a time"))
	assert.Equal(t, int64(0), parseKillTime("1:2:3:4"))
}

func TestEffectiveKillTime(t *testing.T) {
	assert.Equal(t, int64(100), effectiveKillTime(100, 200))
	assert.Equal(t, int64(100), effectiveKillTime(200, 100))
	assert.Equal(t, int64(300), effectiveKillTime(300, 0))
	assert.Equal(t, int64(300), effectiveKillTime(0, 300))
	assert.Equal(t, int64(0), effectiveKillTime(0, 0))
}

func TestFormatKillTime(t *testing.T) {
	assert.Equal(t, "0:00.0", formatKillTime(0))
	assert.Equal(t, "1:23.4", formatKillTime(83_400))
	assert.Equal(t, "1:02:03.4", formatKillTime(3_723_400))
	assert.Equal(t, "0:59.9", formatKillTime(59_900))
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, raw := range []string{"0:42.5", "12:05.0", "1:00:00.0"} {
		assert.Equal(t, raw, formatKillTime(parseKillTime(raw)))
	}
}

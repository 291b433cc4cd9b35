package points

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddMonthClamped(t *testing.T) {
	loc := time.UTC

	// Plain advance.
	got := addMonthClamped(time.Date(2025, 3, 15, 10, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 4, 15, 10, 0, 0, 0, loc), got)

	// Jan 31 clamps to the end of February.
	got = addMonthClamped(time.Date(2025, 1, 31, 0, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, loc), got)

	// Leap year keeps the 29th.
	got = addMonthClamped(time.Date(2024, 1, 31, 0, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, loc), got)

	// Year rollover.
	got = addMonthClamped(time.Date(2025, 12, 5, 0, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, loc), got)

	// 31st into a 30-day month.
	got = addMonthClamped(time.Date(2025, 5, 31, 0, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, loc), got)
}

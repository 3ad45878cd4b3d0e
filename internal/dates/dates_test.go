package dates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsCompareAsStrings(t *testing.T) {
	assert.True(t, Min < "2025-10-01")
	assert.True(t, "2025-10-01" < Max)
	assert.True(t, "2025-09-30" < "2025-10-01")
	assert.True(t, "2025-10-01" < "2025-10-02")
}

func TestAddDays(t *testing.T) {
	d, err := AddDays("2025-10-31", 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-11-01", d)

	d, err = AddDays("2025-01-01", -1)
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31", d)
}

func TestDaysBetween(t *testing.T) {
	n, err := DaysBetween("2025-10-01", "2025-10-10")
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	n, err = DaysBetween("2025-10-10", "2025-10-01")
	require.NoError(t, err)
	assert.Equal(t, -9, n)
}

func TestWeekdaySundayZero(t *testing.T) {
	// 2025-10-10 is a Friday, 2025-10-12 a Sunday
	wd, err := Weekday("2025-10-10")
	require.NoError(t, err)
	assert.Equal(t, 5, wd)

	wd, err = Weekday("2025-10-12")
	require.NoError(t, err)
	assert.Equal(t, 0, wd)
}

func TestClockMinutes(t *testing.T) {
	m, err := ClockMinutes("09:00")
	require.NoError(t, err)
	assert.Equal(t, 540, m)

	m, err = ClockMinutes("23:59")
	require.NoError(t, err)
	assert.Equal(t, 1439, m)

	_, err = ClockMinutes("24:00")
	assert.Error(t, err)
	_, err = ClockMinutes("nine")
	assert.Error(t, err)
}

func TestAt(t *testing.T) {
	at, err := At("2025-10-10", "09:30", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 10, 10, 9, 30, 0, 0, time.UTC), at)
}

func TestToday(t *testing.T) {
	now := time.Date(2025, 10, 10, 23, 5, 0, 0, time.UTC)
	assert.Equal(t, "2025-10-10", Today(now))
}

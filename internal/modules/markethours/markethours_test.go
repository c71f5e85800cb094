package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClock(t *testing.T) *Clock {
	t.Helper()
	c, err := NewClock()
	require.NoError(t, err)
	return c
}

func dayET(t *testing.T, iso string, hour int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(Zone)
	require.NoError(t, err)
	d, err := time.ParseInLocation("2006-01-02", iso, loc)
	require.NoError(t, err)
	return d.Add(time.Duration(hour) * time.Hour)
}

func TestIsTradingDay(t *testing.T) {
	c := newClock(t)

	tests := []struct {
		name string
		date string
		want bool
	}{
		{"regular monday", "2026-08-24", true},
		{"saturday", "2026-08-22", false},
		{"sunday", "2026-08-23", false},
		{"independence day observed", "2026-07-03", false},
		{"thanksgiving", "2026-11-26", false},
		{"christmas", "2026-12-25", false},
		{"day after thanksgiving trades short", "2026-11-27", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsTradingDay(dayET(t, tt.date, 12)))
		})
	}
}

func TestIsHalfDay(t *testing.T) {
	c := newClock(t)

	assert.True(t, c.IsHalfDay(dayET(t, "2026-11-27", 12)))
	assert.True(t, c.IsHalfDay(dayET(t, "2026-12-24", 12)))
	assert.False(t, c.IsHalfDay(dayET(t, "2026-08-24", 12)))
}

func TestMarketDay_ZoneBoundary(t *testing.T) {
	c := newClock(t)

	// 23:30 ET Aug 13 is already Aug 14 in UTC; the market day must not roll.
	lateNight := dayET(t, "2026-08-13", 23).Add(30 * time.Minute)
	assert.Equal(t, "2026-08-14", lateNight.UTC().Format("2006-01-02"), "sanity: UTC has rolled")
	assert.Equal(t, "2026-08-13", c.MarketDay(lateNight))
}

func TestLastTradingDay(t *testing.T) {
	c := newClock(t)

	// From a Sunday, back to Friday.
	last := c.LastTradingDay(dayET(t, "2026-08-23", 12))
	assert.Equal(t, "2026-08-21", c.MarketDay(last))

	// From the Thanksgiving holiday, back to Wednesday.
	last = c.LastTradingDay(dayET(t, "2026-11-26", 12))
	assert.Equal(t, "2026-11-25", c.MarketDay(last))

	// A trading day maps to itself.
	last = c.LastTradingDay(dayET(t, "2026-08-24", 9))
	assert.Equal(t, "2026-08-24", c.MarketDay(last))
}

func TestNextTradingDay(t *testing.T) {
	c := newClock(t)

	// Friday skips the weekend.
	next := c.NextTradingDay(dayET(t, "2026-08-21", 12))
	assert.Equal(t, "2026-08-24", c.MarketDay(next))

	// Wednesday before Thanksgiving skips the holiday to Friday.
	next = c.NextTradingDay(dayET(t, "2026-11-25", 12))
	assert.Equal(t, "2026-11-27", c.MarketDay(next))
}

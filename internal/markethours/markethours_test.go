package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func et(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, ET)
}

func TestTradingDays(t *testing.T) {
	t.Run("weekday is a trading day", func(t *testing.T) {
		assert.True(t, IsTradingDay(et(2026, time.October, 19, 10, 0)))
	})
	t.Run("weekend is not", func(t *testing.T) {
		assert.False(t, IsTradingDay(et(2026, time.October, 18, 10, 0)))
	})
	t.Run("holiday is not", func(t *testing.T) {
		assert.True(t, IsHoliday(et(2026, time.November, 26, 12, 0)))
		assert.False(t, IsTradingDay(et(2026, time.November, 26, 12, 0)))
	})
	t.Run("trading day uses the ET date", func(t *testing.T) {
		// 01:30 UTC on the 20th is still the 19th in New York
		got := TradingDay(time.Date(2026, time.October, 20, 1, 30, 0, 0, time.UTC))
		assert.Equal(t, time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC), got)
	})
	t.Run("last trading day skips weekends and holidays", func(t *testing.T) {
		// Easter Sunday 2026 falls back past Good Friday to Thursday
		got := LastTradingDay(et(2026, time.April, 5, 12, 0))
		assert.Equal(t, time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC), got)
	})
}

func TestMarketOpen(t *testing.T) {
	assert.False(t, IsMarketOpen(et(2026, time.October, 19, 9, 29)))
	assert.True(t, IsMarketOpen(et(2026, time.October, 19, 9, 30)))
	assert.True(t, IsMarketOpen(et(2026, time.October, 19, 15, 59)))
	assert.False(t, IsMarketOpen(et(2026, time.October, 19, 16, 0)))

	t.Run("next open after friday close is monday", func(t *testing.T) {
		got := NextOpen(et(2026, time.October, 16, 17, 0))
		assert.Equal(t, et(2026, time.October, 19, 9, 30), got)
	})
}

func TestSessionClosed(t *testing.T) {
	day := time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

	assert.False(t, SessionClosed(day, et(2026, time.October, 19, 11, 0)), "mid-session bar is partial")
	assert.False(t, SessionClosed(day, et(2026, time.October, 19, 15, 59)))
	assert.True(t, SessionClosed(day, et(2026, time.October, 19, 16, 0)))
	assert.True(t, SessionClosed(day, et(2026, time.October, 20, 9, 0)), "earlier days are complete")
	assert.False(t, SessionClosed(day, et(2026, time.October, 16, 17, 0)), "future day")
}

func TestWindow(t *testing.T) {
	w, err := ParseWindow("09:30", "20:00")
	require.NoError(t, err)

	ok, _ := w.Allows(et(2026, time.October, 19, 19, 59))
	assert.True(t, ok)

	ok, reason := w.Allows(et(2026, time.October, 19, 20, 0))
	assert.False(t, ok)
	assert.Contains(t, reason, "outside 09:30–20:00")

	ok, reason = w.Allows(et(2026, time.October, 17, 12, 0))
	assert.False(t, ok)
	assert.Contains(t, reason, "weekend")

	ok, reason = w.Allows(et(2026, time.December, 25, 12, 0))
	assert.False(t, ok)
	assert.Contains(t, reason, "holiday")

	_, err = ParseWindow("20:00", "09:30")
	assert.Error(t, err)
	_, err = ParseWindow("9h", "20:00")
	assert.Error(t, err)
}

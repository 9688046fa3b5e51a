// Package markethours knows the NYSE calendar: trading days, regular
// session hours and the window in which daily snapshots may be written.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// ET is the exchange time zone
var ET = mustLoad("America/New_York")

// Regular session in ET
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("markethours: load %s: %v", name, err))
	}
	return loc
}

// IsWeekday returns true if t is Mon–Fri in ET
func IsWeekday(t time.Time) bool {
	wd := t.In(ET).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not an NYSE holiday
func IsTradingDay(t time.Time) bool {
	et := t.In(ET)
	return IsWeekday(et) && !IsHoliday(et)
}

// IsMarketOpen returns true during the regular session (9:30–16:00 ET)
func IsMarketOpen(t time.Time) bool {
	et := t.In(ET)
	if !IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// SessionClosed reports whether the regular session for trading day day
// (as returned by TradingDay) has ended by now. Until then day's bar is
// still forming.
func SessionClosed(day, now time.Time) bool {
	current := TradingDay(now)
	if current.After(day) {
		return true
	}
	if current.Before(day) {
		return false
	}
	et := now.In(ET)
	return et.Hour()*60+et.Minute() >= CloseHour*60+CloseMinute
}

// TradingDay returns t's ET calendar date at UTC midnight, the form in which
// trading days are stored.
func TradingDay(t time.Time) time.Time {
	et := t.In(ET)
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, time.UTC)
}

// LastTradingDay returns the most recent trading day on or before t
func LastTradingDay(t time.Time) time.Time {
	d := t.In(ET)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return TradingDay(d)
		}
		d = d.AddDate(0, 0, -1)
	}
	return TradingDay(t)
}

// NextOpen returns the next session open at or after t
func NextOpen(t time.Time) time.Time {
	et := t.In(ET)

	todayOpen := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, ET)
	if et.Before(todayOpen) && IsTradingDay(et) {
		return todayOpen
	}

	d := et.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, ET)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(et.Year(), et.Month(), et.Day()+1, OpenHour, OpenMinute, 0, 0, ET)
}

// Window is a daily time range in ET, expressed as minutes since midnight
type Window struct {
	Start int
	End   int
}

// ParseWindow parses "HH:MM" bounds, e.g. ParseWindow("09:30", "20:00")
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}
	if e <= s {
		return Window{}, fmt.Errorf("window end %s must be after start %s", end, start)
	}
	return Window{Start: s, End: e}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Allows reports whether t falls inside the window on a trading day. When it
// does not, the returned reason says why.
func (w Window) Allows(t time.Time) (bool, string) {
	et := t.In(ET)
	if !IsWeekday(et) {
		return false, fmt.Sprintf("%s is a weekend", et.Format("Mon 2006-01-02"))
	}
	if IsHoliday(et) {
		return false, fmt.Sprintf("%s is an NYSE holiday", et.Format("2006-01-02"))
	}
	hm := et.Hour()*60 + et.Minute()
	if hm < w.Start || hm >= w.End {
		return false, fmt.Sprintf("%s ET is outside %s–%s", et.Format("15:04"), clock(w.Start), clock(w.End))
	}
	return true, ""
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

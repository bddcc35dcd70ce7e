package utils

import (
	"log"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar calculates trading sessions using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar maps an index/ticker symbol to its exchange calendar. The
// tracked universe is US index models (SPX, NDX, RUT, VIX and single names),
// so everything resolves to NYSE unless a suffix says otherwise.
func GetCalendar(symbol string) *TradingCalendar {
	// MIC codes per ISO 10383; see scmhub/calendar for the supported set
	mic := "xnys"
	if strings.HasSuffix(symbol, ".L") {
		mic = "xlon"
	} else if strings.HasSuffix(symbol, ".T") {
		mic = "xtks"
	} else if strings.HasSuffix(symbol, ".HK") {
		mic = "xhkg"
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}

	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s' and fallback 'xnys'. Using simple fallback (Mon-Fri 09:30-16:00 NY).", mic)
		nyLoc, _ := time.LoadLocation("America/New_York")
		if nyLoc == nil {
			nyLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: nyLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 9:30 - 16:00 NY Time
		if (hour > 9 || (hour == 9 && minute >= 30)) && hour < 16 {
			return true
		}
		return false
	}

	return tc.Calendar.IsOpen(t)
}

package utils

import (
	"sync"
	"time"

	"market-relay/src/logger"
)

// MarketScheduler tracks which exchange calendars the configured symbols
// trade on, so the poll loops can slow down while everything is closed.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(symbols []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.MapSymbolsToCalendars(symbols)
	return ms
}

// -----------------------------------------------------------------------------

// MapSymbolsToCalendars maps a list of symbols to their respective calendars
func (ms *MarketScheduler) MapSymbolsToCalendars(symbols []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar)

	for _, symbol := range symbols {
		cal := GetCalendar(symbol)
		if cal != nil {
			ms.Calendars[symbol] = cal
		}
	}

	// Count unique calendars
	uniqueCals := make(map[*TradingCalendar]bool)
	for _, cal := range ms.Calendars {
		uniqueCals[cal] = true
	}

	ms.Logger.Info("MarketScheduler: Mapped %d symbols to %d unique calendars.",
		len(symbols), len(uniqueCals))
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked markets are currently open
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := time.Now().UTC()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	uniqueCals := make(map[*TradingCalendar]bool)
	for _, cal := range ms.Calendars {
		uniqueCals[cal] = true
	}

	if len(uniqueCals) == 0 {
		return false
	}

	for cal := range uniqueCals {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}

	return false
}

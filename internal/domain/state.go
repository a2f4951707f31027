package domain

import (
	"time"

	"spotengine/internal/money"
)

// BotState is the mutable per-tick state owned exclusively by a user's
// trading actor (spec.md §3, §5). Map-valued fields are persisted with
// atomic per-key updates by the store layer (spec.md §6, §9).
type BotState struct {
	UserID string

	IsRunning bool

	StartingEquity money.Decimal
	CurrentEquity  money.Decimal
	CurrentR       money.Decimal // invariant: CurrentR == CurrentEquity * Risk.RPct

	DailyPnLUSD  money.Decimal
	DailyPnLR    float64
	WeeklyPnLUSD money.Decimal
	WeeklyPnLR   float64

	SessionStartDate time.Time // local-midnight boundary
	WeekStartDate    time.Time // Sunday-anchored local-midnight boundary

	LastScanTime   time.Time
	LastSignalTime time.Time

	// LastPairSignalTimes maps symbol -> instant of its last signal, used by
	// the scanner's cooldown gate (spec.md §4.1).
	LastPairSignalTimes map[string]time.Time

	// PlaybookBCounters maps symbol -> attempt count this session, used by
	// Playbook B's session cap (spec.md §4.2).
	PlaybookBCounters map[string]int
}

// NewBotState returns a zeroed state anchored to now, ready for a fresh user.
func NewBotState(userID string, startingEquity money.Decimal, now time.Time) *BotState {
	return &BotState{
		UserID:              userID,
		IsRunning:           false,
		StartingEquity:      startingEquity,
		CurrentEquity:       startingEquity,
		CurrentR:            money.Zero,
		DailyPnLUSD:         money.Zero,
		WeeklyPnLUSD:        money.Zero,
		SessionStartDate:    LocalMidnight(now),
		WeekStartDate:       WeekStart(now),
		LastPairSignalTimes: make(map[string]time.Time),
		PlaybookBCounters:   make(map[string]int),
	}
}

// LocalMidnight truncates ts to local midnight (spec.md §3 "Session boundary").
func LocalMidnight(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

// WeekStart returns the most recent Sunday-anchored local midnight at or
// before ts (spec.md §3 "Week boundary").
func WeekStart(ts time.Time) time.Time {
	mid := LocalMidnight(ts)
	offset := int(mid.Weekday()) // Sunday == 0
	return mid.AddDate(0, 0, -offset)
}

// RollSession zeroes daily PnL and Playbook-B counters if now has crossed
// the session boundary, and rolls the boundary forward. Returns true if a
// rollover happened (spec.md §4.3 "PnL window rollover").
func (s *BotState) RollSession(now time.Time) bool {
	mid := LocalMidnight(now)
	if mid.Equal(s.SessionStartDate) {
		return false
	}
	s.SessionStartDate = mid
	s.DailyPnLUSD = money.Zero
	s.DailyPnLR = 0
	s.PlaybookBCounters = make(map[string]int)
	return true
}

// RollWeek zeroes weekly PnL if now has crossed the week boundary, and rolls
// the boundary forward.
func (s *BotState) RollWeek(now time.Time) bool {
	ws := WeekStart(now)
	if ws.Equal(s.WeekStartDate) {
		return false
	}
	s.WeekStartDate = ws
	s.WeeklyPnLUSD = money.Zero
	s.WeeklyPnLR = 0
	return true
}

// RecomputeCurrentR enforces the invariant CurrentR == CurrentEquity * RPct.
func (s *BotState) RecomputeCurrentR(rPct float64) {
	s.CurrentR = s.CurrentEquity.Mul(money.FromFloat(rPct))
}

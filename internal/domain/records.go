package domain

import (
	"time"

	"spotengine/internal/money"
)

// Trade is an immutable append-only record of a closed position (spec.md
// §3). Closing a position emits exactly one.
type Trade struct {
	ID         string
	UserID     string
	Symbol     string
	Side       Side
	Playbook   Playbook
	EntryPrice money.Decimal
	ExitPrice  money.Decimal
	Quantity   money.Decimal
	PnlUSD     money.Decimal
	PnlR       float64
	Fees       money.Decimal
	Outcome    TradeOutcome
	Date       time.Time
	Notes      string
}

// Signal records a scan-cycle decision for a pair/playbook (spec.md §3).
// Every non-trivial decision, including each gate rejection, produces
// exactly one row.
type Signal struct {
	ID         string
	UserID     string
	Symbol     string
	Playbook   Playbook
	Action     SignalAction
	Reason     string
	Gate       string
	EntryPrice *money.Decimal
	Timestamp  time.Time
}

// Alert is the notification log (spec.md §3). Kill-switch triggers emit
// CRITICAL alerts.
type Alert struct {
	ID        string
	UserID    string
	Level     AlertLevel
	Type      string
	Message   string
	Timestamp time.Time
}

// User is the tenant identity: exactly one BotConfig, one BotState, and the
// positions/trades/signals/alerts its pipeline creates (spec.md §3).
type User struct {
	ID     string
	Config BotConfig
	State  BotState
}

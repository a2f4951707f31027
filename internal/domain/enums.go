package domain

// BotStatus is the top-level run state of a user's trading actor.
type BotStatus string

const (
	StatusActive       BotStatus = "ACTIVE"
	StatusHaltedDaily  BotStatus = "HALTED_DAILY"
	StatusHaltedWeekly BotStatus = "HALTED_WEEKLY"
	StatusStopped      BotStatus = "STOPPED"
)

// Side is a position's orientation. SHORT is accounting-only: spec.md §1
// forbids the engine from ever submitting an exchange short.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Playbook names the strategy template that produced/owns a position.
type Playbook string

const (
	PlaybookA Playbook = "A" // breakout
	PlaybookB Playbook = "B" // VWAP mean-reversion
	PlaybookC Playbook = "C" // event burst
	PlaybookD Playbook = "D" // dip
)

// Priority returns the tie-break ordering across playbooks for the same
// symbol in the same tick: A > C > B > D (spec.md §4.2).
func (p Playbook) Priority() int {
	switch p {
	case PlaybookA:
		return 0
	case PlaybookC:
		return 1
	case PlaybookB:
		return 2
	case PlaybookD:
		return 3
	default:
		return 99
	}
}

// PositionStatus is OPEN until exactly one closure.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// CloseReason names why a position was closed; every CLOSED position carries
// exactly one.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "STOP_LOSS"
	CloseTarget     CloseReason = "TARGET"
	CloseTimeStop   CloseReason = "TIME_STOP"
	CloseManual     CloseReason = "MANUAL"
	CloseKillSwitch CloseReason = "KILL_SWITCH"
)

// TradeOutcome classifies a closed trade's realized PnL.
type TradeOutcome string

const (
	OutcomeWin       TradeOutcome = "WIN"
	OutcomeLoss      TradeOutcome = "LOSS"
	OutcomeBreakeven TradeOutcome = "BREAKEVEN"
)

// SignalAction records whether a scan-cycle decision fired an order.
type SignalAction string

const (
	ActionExecuted SignalAction = "EXECUTED"
	ActionSkipped  SignalAction = "SKIPPED"
)

// AlertLevel is the severity of a notification-log row.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertError    AlertLevel = "ERROR"
	AlertCritical AlertLevel = "CRITICAL"
)

// KillSwitchKind is the trigger that invoked the kill-switch; each kind has
// distinct resume semantics (spec.md §4.7).
type KillSwitchKind string

const (
	KillDaily          KillSwitchKind = "DAILY"
	KillWeekly         KillSwitchKind = "WEEKLY"
	KillCircuitBreaker KillSwitchKind = "CIRCUIT_BREAKER"
	KillMaxDrawdown    KillSwitchKind = "MAX_DRAWDOWN"
	KillManual         KillSwitchKind = "MANUAL"
)

// OrderSide is the exchange-facing side of an order. Spot-only: BUY opens a
// LONG, SELL reduces/closes one. SHORT never reaches this type.
type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

// OrderType mirrors the exchange client surface (spec.md §6).
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

// OrderStatus mirrors getOrder's status enum (spec.md §6).
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether an order status will not change further.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderRejected, OrderExpired:
		return true
	default:
		return false
	}
}

package domain

import (
	"time"

	"spotengine/internal/money"
)

// Position is mutated only by the Position Manager or a kill-switch flatten
// (spec.md §3). It is closed exactly once.
type Position struct {
	ID       string
	UserID   string
	Symbol   string
	Side     Side
	Playbook Playbook

	EntryPrice money.Decimal
	Quantity   money.Decimal
	StopPrice  money.Decimal
	TargetPrice *money.Decimal

	Status   PositionStatus
	OpenedAt time.Time
	ClosedAt *time.Time

	CurrentPrice   money.Decimal
	UnrealizedPnl  money.Decimal
	UnrealizedR    float64
	HoldTime       time.Duration
	FeesPaid       money.Decimal

	// Scale-out tracking, used by Playbook A (Scaled1) and Playbook C
	// (Scaled1/Scaled2).
	Scaled1 bool
	Scaled2 bool

	// PartialRealizedPnl accumulates the price realization (no fees
	// deducted; fees are netted once at final close) booked by each prior
	// scale-out fill, so the position's eventual Trade row reflects every
	// leg, not just the one that finally closes it (spec.md §4.6).
	PartialRealizedPnl money.Decimal

	// TrailingStopDistance is the absolute price distance maintained once a
	// trail has been enabled (spec.md §4.6 "Trailing stop").
	TrailingStopDistance *money.Decimal

	RealizedPnl *money.Decimal
	RealizedR   *float64

	CloseReason *CloseReason
}

// SideSign returns +1 for LONG and -1 for SHORT, used in PnL math.
func (p *Position) SideSign() int64 {
	if p.Side == SideShort {
		return -1
	}
	return 1
}

// RiskR returns the position's open risk expressed in R:
// |entry - stop| * quantity / currentR (spec.md §4.3).
func (p *Position) RiskR(currentR money.Decimal) float64 {
	if currentR.Sign() <= 0 {
		return 0
	}
	riskUSD := p.EntryPrice.Sub(p.StopPrice).Abs().Mul(p.Quantity)
	return riskUSD.Div(currentR).InexactFloat64()
}

// Notional returns quantity * entryPrice.
func (p *Position) Notional() money.Decimal {
	return p.Quantity.Mul(p.EntryPrice)
}

// RecomputeUnrealized refreshes CurrentPrice-derived fields (spec.md §4.6
// "Common rules").
func (p *Position) RecomputeUnrealized(currentPrice, currentR money.Decimal) {
	p.CurrentPrice = currentPrice
	diff := currentPrice.Sub(p.EntryPrice)
	p.UnrealizedPnl = diff.Mul(p.Quantity).Mul(money.FromFloat(float64(p.SideSign())))
	if currentR.Sign() > 0 {
		p.UnrealizedR = p.UnrealizedPnl.Div(currentR).InexactFloat64()
	}
	p.HoldTime = time.Since(p.OpenedAt)
}

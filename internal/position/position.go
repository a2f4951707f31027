// Package position implements the Position Manager (spec.md §4.6): a
// deterministic per-position state machine evaluated every tick, common
// rules first (price refresh, stop-hit, trailing), then the owning
// playbook's rules in order, first match ends the position's tick.
//
// Grounded on the teacher's exit-evaluation half of step.go (profit gate,
// USD trailing stop, fixed-TP scalp, "close at most one lot per tick"
// discipline), generalized from the teacher's single runner/scalp lot pair
// to arbitrary positions tagged by playbook.
package position

import (
	"time"

	"spotengine/internal/domain"
	"spotengine/internal/money"
)

// Action is what the tick's evaluation decided to do with a position.
type Action string

const (
	ActionNone       Action = "NONE"
	ActionMoveStop   Action = "MOVE_STOP"
	ActionScaleOut   Action = "SCALE_OUT"
	ActionClose      Action = "CLOSE"
)

// Decision is the outcome of evaluating one position for one tick.
type Decision struct {
	Action         Action
	NewStop        money.Decimal
	ScalePct       float64
	EnableTrailATR bool
	TrailATRMult   float64 // only meaningful when EnableTrailATR
	CloseReason    domain.CloseReason
}

var noneDecision = Decision{Action: ActionNone}

// Evaluate runs the common rules, then the position's owning playbook's
// rules, returning the first decision that fires (spec.md §4.6 "the first
// matching rule for a position ends its tick").
func Evaluate(cfg domain.BotConfig, p *domain.Position, currentPrice, currentR money.Decimal, atr float64, now time.Time) Decision {
	p.RecomputeUnrealized(currentPrice, currentR)

	if d, fired := commonRules(p, currentPrice); fired {
		return d
	}

	switch p.Playbook {
	case domain.PlaybookA:
		return evalA(cfg.PlaybookA, p, atr)
	case domain.PlaybookB:
		return evalB(cfg.PlaybookB, p, currentPrice, now)
	case domain.PlaybookC:
		return evalC(cfg.PlaybookC, p, atr)
	default:
		return noneDecision
	}
}

// commonRules implements the rules every playbook shares: stop-hit and
// trail-tightening (spec.md §4.6 "Common rules").
func commonRules(p *domain.Position, currentPrice money.Decimal) (Decision, bool) {
	if p.Side == domain.SideLong && currentPrice.LessThanOrEqual(p.StopPrice) {
		return Decision{Action: ActionClose, CloseReason: domain.CloseStopLoss}, true
	}
	if p.Side == domain.SideShort && currentPrice.GreaterThanOrEqual(p.StopPrice) {
		return Decision{Action: ActionClose, CloseReason: domain.CloseStopLoss}, true
	}

	if p.TrailingStopDistance != nil {
		candidate := currentPrice.Sub(*p.TrailingStopDistance)
		if p.Side == domain.SideShort {
			candidate = currentPrice.Add(*p.TrailingStopDistance)
		}
		// Trailing stops only tighten, never loosen.
		if p.Side == domain.SideLong && candidate.GreaterThan(p.StopPrice) {
			return Decision{Action: ActionMoveStop, NewStop: candidate}, true
		}
		if p.Side == domain.SideShort && candidate.LessThan(p.StopPrice) {
			return Decision{Action: ActionMoveStop, NewStop: candidate}, true
		}
	}

	return noneDecision, false
}

// evalA implements the breakout playbook's position rules: breakeven move,
// then a single scale-out that also enables the ATR trail (spec.md §4.6
// "Playbook A rules").
func evalA(cfg domain.PlaybookAConfig, p *domain.Position, atr float64) Decision {
	if p.UnrealizedR >= cfg.BreakevenR && !p.StopPrice.Equal(p.EntryPrice) {
		return Decision{Action: ActionMoveStop, NewStop: p.EntryPrice}
	}
	if p.UnrealizedR >= cfg.ScaleR && !p.Scaled1 {
		return Decision{Action: ActionScaleOut, ScalePct: cfg.ScalePct, EnableTrailATR: true, TrailATRMult: cfg.TrailATRMult}
	}
	_ = atr
	return noneDecision
}

// evalB implements the VWAP mean-reversion playbook's position rules: target
// hit or time-stop (spec.md §4.6 "Playbook B rules").
func evalB(cfg domain.PlaybookBConfig, p *domain.Position, currentPrice money.Decimal, now time.Time) Decision {
	if p.TargetPrice != nil {
		hit := (p.Side == domain.SideLong && currentPrice.GreaterThanOrEqual(*p.TargetPrice)) ||
			(p.Side == domain.SideShort && currentPrice.LessThanOrEqual(*p.TargetPrice))
		if hit {
			return Decision{Action: ActionClose, CloseReason: domain.CloseTarget}
		}
	}
	if cfg.TimeStop > 0 && now.Sub(p.OpenedAt) >= cfg.TimeStop {
		return Decision{Action: ActionClose, CloseReason: domain.CloseTimeStop}
	}
	return noneDecision
}

// evalC implements the event-burst playbook's two-stage scale-out plus final
// target (spec.md §4.6 "Playbook C rules").
func evalC(cfg domain.PlaybookCConfig, p *domain.Position, atr float64) Decision {
	if p.UnrealizedR >= cfg.Scale1R && !p.Scaled1 {
		return Decision{Action: ActionScaleOut, ScalePct: cfg.Scale1Pct}
	}
	if p.UnrealizedR >= cfg.Scale2R && p.Scaled1 && !p.Scaled2 {
		return Decision{Action: ActionScaleOut, ScalePct: cfg.Scale2Pct, EnableTrailATR: true, TrailATRMult: cfg.TrailATRMult}
	}
	if cfg.TargetR > 0 && p.UnrealizedR >= cfg.TargetR {
		return Decision{Action: ActionClose, CloseReason: domain.CloseTarget}
	}
	_ = atr
	return noneDecision
}

// CloseRealization computes the realized PnL/R of closing qty at exitPrice,
// used by the engine's closure procedure (spec.md §4.6 "Closure procedure").
func CloseRealization(p *domain.Position, exitPrice money.Decimal, fees, currentR money.Decimal) (pnl money.Decimal, r float64) {
	diff := exitPrice.Sub(p.EntryPrice)
	pnl = diff.Mul(p.Quantity).Mul(money.FromFloat(float64(p.SideSign()))).Sub(fees)
	if currentR.Sign() > 0 {
		r = pnl.Div(currentR).InexactFloat64()
	}
	return pnl, r
}

// Outcome classifies a realized trade by its PnL sign (spec.md §3 "Trade").
func Outcome(pnl money.Decimal) domain.TradeOutcome {
	switch {
	case pnl.Sign() > 0:
		return domain.OutcomeWin
	case pnl.Sign() < 0:
		return domain.OutcomeLoss
	default:
		return domain.OutcomeBreakeven
	}
}

// Package risk implements the Risk Engine (spec.md §4.3): R-sizing against
// current equity, the aggregate open-R/position-count/exposure checks run
// before a candidate is allowed to proceed, the correlation guard, and the
// kill-switch trigger predicate.
//
// Grounded on the teacher's equity/sizing math in trader.go (position sizing
// from a fixed fractional risk) and on the aggregate-exposure/correlation
// shapes shown in the other_examples risk-manager files
// (d9924c0d_web3guy0-polybot__internal-risk-manager.go,
// 8256f473_abdoElHodaky-tradSys__...risk_management-service.go).
package risk

import (
	"strings"

	"spotengine/internal/apperr"
	"spotengine/internal/domain"
	"spotengine/internal/money"
)

// btcSymbolPrefix identifies BTC-base positions (e.g. BTCUSDT) for the correlation guard
// (spec.md §4.3 "for non-BTC symbols").
const btcSymbolPrefix = "BTC"

// SizeResult is the output of R-sizing: the candidate's raw quantity before
// any correlation scaling.
type SizeResult struct {
	Quantity money.Decimal
	Notional money.Decimal
}

// Size computes quantity = currentR / |entry-stop|, notional = quantity *
// entry (spec.md §4.3 "R-sizing"). Returns ErrZeroStopDistance if entry and
// stop coincide.
func Size(entry, stop, currentR money.Decimal) (SizeResult, error) {
	distance := entry.Sub(stop).Abs()
	if distance.Sign() == 0 {
		return SizeResult{}, apperr.New(apperr.CategoryInvariant, "zero risk distance", apperr.ErrZeroStopDistance)
	}
	qty := currentR.Div(distance)
	return SizeResult{Quantity: qty, Notional: qty.Mul(entry)}, nil
}

// AggregateCheck is the result of the open-R / position-count / exposure
// checks run against a user's currently OPEN positions.
type AggregateCheck struct {
	Approved    bool
	Reason      string
	ScaleFactor float64 // 1.0 unless the correlation guard applies
}

// CheckAggregate runs the three hard caps plus the correlation guard
// (spec.md §4.3 "Aggregate checks"). open is the user's currently OPEN
// positions; candidate is the proposed entry/size not yet submitted.
func CheckAggregate(cfg domain.RiskConfig, open []*domain.Position, candidateSymbol string, proposedR float64, proposedNotional, equity, currentR money.Decimal) AggregateCheck {
	var sumOpenR float64
	var sumNotional money.Decimal
	btcRiskR := 0.0

	for _, p := range open {
		r := p.RiskR(currentR)
		sumOpenR += r
		sumNotional = sumNotional.Add(p.Notional())
		if strings.HasPrefix(p.Symbol, btcSymbolPrefix) && r > btcRiskR {
			btcRiskR = r
		}
	}

	if sumOpenR+proposedR > cfg.MaxOpenR {
		return AggregateCheck{Approved: false, Reason: "aggregate open R exceeds risk.max_open_R", ScaleFactor: 1.0}
	}
	if cfg.MaxPositions > 0 && len(open) >= cfg.MaxPositions {
		return AggregateCheck{Approved: false, Reason: "open position count at risk.max_positions", ScaleFactor: 1.0}
	}
	maxExposure := equity.Mul(money.FromFloat(cfg.MaxExposurePct))
	if sumNotional.Add(proposedNotional).GreaterThan(maxExposure) {
		return AggregateCheck{Approved: false, Reason: "exposure exceeds risk.max_exposure_pct of equity", ScaleFactor: 1.0}
	}

	scale := 1.0
	if cfg.CorrelationGuard && !strings.HasPrefix(candidateSymbol, btcSymbolPrefix) && btcRiskR >= 1.0 {
		scale = 0.5
	}

	return AggregateCheck{Approved: true, ScaleFactor: scale}
}

// KillSwitchTrigger reports which kind of halt, if any, the current PnL
// state demands (spec.md §4.3 "Kill-switch trigger").
func KillSwitchTrigger(cfg domain.RiskConfig, state *domain.BotState) (domain.KillSwitchKind, bool) {
	if state.DailyPnLR <= cfg.DailyStopR {
		return domain.KillDaily, true
	}
	if state.WeeklyPnLR <= cfg.WeeklyStopR {
		return domain.KillWeekly, true
	}
	return "", false
}

// Package guardrail implements the Policy Guardrails pre-trade gate chain
// (spec.md §4.4): a strict, ordered, short-circuiting sequence of total
// functions, each returning approved/rejected plus the failing gate's name.
//
// Grounded directly on other_examples' risk-gate.go
// (07ff2077_web3guy0-polybot__risk-gate.go), which implements this exact
// ordered-gate-chain idiom (decimal math, zerolog, named gates, first
// failure wins) for a near-identical domain; this package keeps that
// structure and retargets each gate at spec.md §4.4's six checks.
package guardrail

import (
	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/money"
	"spotengine/internal/risk"
)

// Decision is a gate chain's outcome; Gate names the rejecting gate when
// Approved is false (spec.md §4.4 "the reason is attached to the Signal
// record").
type Decision struct {
	Approved    bool
	Gate        string
	Reason      string
	ScaleFactor float64
}

func approved(scale float64) Decision {
	return Decision{Approved: true, ScaleFactor: scale}
}

func rejected(gate, reason string) Decision {
	return Decision{Approved: false, Gate: gate, Reason: reason, ScaleFactor: 1.0}
}

// Input bundles everything a gate needs to evaluate a single candidate
// order. IsClosing skips the exposure gate (spec.md §4.4 gate 6).
type Input struct {
	Action       domain.OrderSide
	Side         domain.Side
	ProposedR    float64
	BotStatus    domain.BotStatus
	Filter       exchange.SymbolFilter
	Quantity     money.Decimal
	Price        money.Decimal
	SignalPrice  money.Decimal
	CurrentPrice money.Decimal
	IsEventSignal bool
	IsClosing    bool

	Risk          domain.RiskConfig
	State         *domain.BotState
	OpenPositions []*domain.Position
	CandidateSymbol string
	Equity        money.Decimal
	CurrentR      money.Decimal
	ProposedNotional money.Decimal
}

// Evaluate runs the six gates in spec.md §4.4's fixed order, short-circuiting
// on the first rejection. Gates that shrink the order instead of rejecting
// it (exchange-filter snapping, exposure trimming) compose their scale
// factors multiplicatively rather than the last one clobbering the others.
func Evaluate(in Input) Decision {
	if d := spotOnly(in); !d.Approved {
		return d
	}
	if d := rClamp(in); !d.Approved {
		return d
	}
	if d := killSwitchSticky(in); !d.Approved {
		return d
	}
	scale := 1.0
	d := exchangeFilters(in)
	if !d.Approved {
		return d
	}
	scale *= d.ScaleFactor
	if d = slippageGuard(in); !d.Approved {
		return d
	}
	if in.IsClosing {
		// Exposure gate is skipped for closes: they reduce risk and must
		// never be blocked (spec.md §4.4 gate 6).
		return approved(scale)
	}
	if d = exposureLimits(in); !d.Approved {
		return d
	}
	scale *= d.ScaleFactor
	return approved(scale)
}

// Gate 1: spot-only. Reject any (BUY, SHORT); allow (BUY, LONG) opens and
// all SELL closes.
func spotOnly(in Input) Decision {
	if in.Action == domain.OrderBuy && in.Side == domain.SideShort {
		return rejected("spot_only", "spot-only engine cannot open a SHORT position")
	}
	return approved(1.0)
}

// Gate 2: per-trade R clamp, with a 1.0 fallback if config is unset.
func rClamp(in Input) Decision {
	maxR := in.Risk.MaxRPerTrade
	if maxR <= 0 {
		maxR = 1.0
	}
	if in.ProposedR > maxR {
		return rejected("r_clamp", "proposed R exceeds risk.max_r_per_trade")
	}
	return approved(1.0)
}

// Gate 3: kill-switch stickiness, plus a fresh re-evaluation of the Risk
// Engine's trigger predicate (spec.md §4.4 gate 3).
func killSwitchSticky(in Input) Decision {
	switch in.BotStatus {
	case domain.StatusHaltedDaily, domain.StatusHaltedWeekly, domain.StatusStopped:
		return rejected("kill_switch", "bot is halted")
	}
	if _, halt := risk.KillSwitchTrigger(in.Risk, in.State); halt {
		return rejected("kill_switch", "kill-switch predicate now true")
	}
	return approved(1.0)
}

// Gate 4: exchange filters — LOT_SIZE, PRICE_FILTER, MIN_NOTIONAL. Validates
// the snapped quantity/price rather than rejecting on any non-conformance:
// R-sized quantities are arbitrary decimals by construction (risk.Size
// divides currentR by |entry-stop|), so spec.md §8's boundary ("post-size
// quantity rounds below MIN_NOTIONAL") implies rounding then checking
// notional, not rejecting every quantity that doesn't already land on a
// LOT_SIZE multiple. The snap ratio is carried out as a ScaleFactor so the
// caller submits the snapped size instead of the raw R-sized one.
func exchangeFilters(in Input) Decision {
	snappedQty := money.SnapToStep(in.Quantity, in.Filter.QtyStep)
	if snappedQty.Sign() <= 0 {
		return rejected("exchange_filters", "quantity snaps to zero under LOT_SIZE step")
	}
	snappedPrice := in.Price
	if in.Price.Sign() > 0 {
		snappedPrice = money.SnapToStep(in.Price, in.Filter.PriceTick)
		if snappedPrice.Sign() <= 0 {
			return rejected("exchange_filters", "price snaps to zero under PRICE_FILTER tick")
		}
	}
	notional := snappedQty.Mul(snappedPrice)
	if in.Filter.MinNotional.Sign() > 0 && notional.LessThan(in.Filter.MinNotional) {
		return rejected("exchange_filters", "snapped order notional below MIN_NOTIONAL")
	}
	scale := 1.0
	if in.Quantity.Sign() > 0 {
		scale = snappedQty.Div(in.Quantity).InexactFloat64()
	}
	return approved(scale)
}

// Gate 5: slippage guard against the signal's reference price.
func slippageGuard(in Input) Decision {
	if in.SignalPrice.Sign() <= 0 {
		return approved(1.0)
	}
	limit := in.Risk.SlippageGuardBps
	if in.IsEventSignal {
		limit = in.Risk.SlippageGuardBpsEvent
	}
	bps := money.BpsBetween(in.CurrentPrice, in.SignalPrice, in.SignalPrice)
	if bps < 0 {
		bps = -bps
	}
	if bps > limit {
		return rejected("slippage_guard", "realized slippage exceeds configured bps limit")
	}
	return approved(1.0)
}

// Gate 6: exposure limits, delegated to the Risk Engine's aggregate check.
func exposureLimits(in Input) Decision {
	check := risk.CheckAggregate(in.Risk, in.OpenPositions, in.CandidateSymbol, in.ProposedR, in.ProposedNotional, in.Equity, in.CurrentR)
	if !check.Approved {
		return rejected("exposure_limits", check.Reason)
	}
	return approved(check.ScaleFactor)
}

// Package playbook implements the four strategy evaluators (spec.md §4.2):
// pure functions from (BotConfig, BotState, MarketSnapshot) to at most one
// CandidateSignal, plus the static-priority tie-break across playbooks that
// fired on the same symbol in the same tick.
//
// Grounded on the teacher's strategy.go, which computes the same trigger
// family (breakout extreme, VWAP deviation, volume confirmation) for a
// single hardcoded product; generalized here into four independent
// evaluators dispatched over an arbitrary snapshot.
package playbook

import (
	"math"
	"time"

	"spotengine/internal/domain"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
)

// CandidateSignal is a playbook's proposed entry, not yet sized or gated.
type CandidateSignal struct {
	Symbol     string
	Playbook   domain.Playbook
	EntryPrice money.Decimal
	StopPrice  money.Decimal
	Reason     string
}

// Evaluator is the common shape of all four playbooks.
type Evaluator func(cfg domain.BotConfig, state *domain.BotState, snap marketdata.MarketSnapshot) *CandidateSignal

// Evaluate runs every enabled playbook against snap and returns the
// highest-priority candidate that fired (spec.md §4.2 "Tie-break"). Evaluators
// run in priority order and the first hit wins, rather than collecting all
// four and sorting, since at most one candidate may proceed per symbol.
func Evaluate(cfg domain.BotConfig, state *domain.BotState, snap marketdata.MarketSnapshot) *CandidateSignal {
	ordered := []struct {
		enabled bool
		eval    Evaluator
	}{
		{cfg.PlaybookA.Enabled, EvalA},
		{cfg.PlaybookC.Enabled, EvalC},
		{cfg.PlaybookB.Enabled, EvalB},
		{cfg.PlaybookD.Enabled, EvalD},
	}
	for _, p := range ordered {
		if !p.enabled {
			continue
		}
		if sig := p.eval(cfg, state, snap); sig != nil {
			return sig
		}
	}
	return nil
}

// EvalA implements the breakout playbook: trigger when the latest close
// breaks the recent N-bar extreme on confirming volume.
func EvalA(cfg domain.BotConfig, state *domain.BotState, snap marketdata.MarketSnapshot) *CandidateSignal {
	c := cfg.PlaybookA
	candles := snap.Candles
	idx := len(candles) - 1
	if idx < c.Lookback {
		return nil
	}

	extreme := highestHigh(candles, idx, c.Lookback)
	last := candles[idx]
	if last.Close <= extreme {
		return nil
	}
	avgVol := snap.Indicators.AvgVolume
	if avgVol <= 0 || last.Volume < c.VolumeMult*avgVol {
		return nil
	}

	entry := money.FromFloat(last.Close)
	stop := entry.Sub(money.FromFloat(c.StopATRMult * snap.Indicators.ATR14))
	return &CandidateSignal{
		Symbol:     snap.Symbol,
		Playbook:   domain.PlaybookA,
		EntryPrice: entry,
		StopPrice:  stop,
		Reason:     "breakout above N-bar extreme on confirming volume",
	}
}

// EvalB implements the VWAP mean-reversion playbook: trigger when price has
// deviated from the session VWAP by at least deviation_atr_mult * ATR,
// capped at max_trades_per_session attempts per symbol.
func EvalB(cfg domain.BotConfig, state *domain.BotState, snap marketdata.MarketSnapshot) *CandidateSignal {
	c := cfg.PlaybookB
	if c.MaxTradesPerSession > 0 && state.PlaybookBCounters[snap.Symbol] >= c.MaxTradesPerSession {
		return nil
	}
	atr := snap.Indicators.ATR14
	if atr <= 0 {
		return nil
	}
	price, _ := snap.Price.Float64()
	deviation := math.Abs(price - snap.Indicators.VWAP)
	if deviation < c.DeviationATRMult*atr {
		return nil
	}

	entry := snap.Price
	var stop money.Decimal
	if price > snap.Indicators.VWAP {
		// Overextended above VWAP: expect reversion down.
		stop = entry.Add(money.FromFloat(c.StopATRMult * atr))
	} else {
		stop = entry.Sub(money.FromFloat(c.StopATRMult * atr))
	}

	return &CandidateSignal{
		Symbol:     snap.Symbol,
		Playbook:   domain.PlaybookB,
		EntryPrice: entry,
		StopPrice:  stop,
		Reason:     "price deviated from session VWAP beyond threshold",
	}
}

// EvalC implements the event-burst playbook: active only while the snapshot
// carries EventFlag. Scanner.Scan does not set EventFlag, so it is false
// unless a caller sets it on the snapshot.
func EvalC(cfg domain.BotConfig, state *domain.BotState, snap marketdata.MarketSnapshot) *CandidateSignal {
	c := cfg.PlaybookC
	if !snap.EventFlag {
		return nil
	}
	atr := snap.Indicators.ATR14
	if atr <= 0 {
		return nil
	}

	entry := snap.Price
	stop := entry.Sub(money.FromFloat(c.StopATRMult * atr))
	return &CandidateSignal{
		Symbol:     snap.Symbol,
		Playbook:   domain.PlaybookC,
		EntryPrice: entry,
		StopPrice:  stop,
		Reason:     "event window active",
	}
}

// EvalD implements the dip playbook: a simple below-MA10 dip-buy with a
// fixed stop multiplier, the minimal template spec.md §4.2 describes
// ("details otherwise as above").
func EvalD(cfg domain.BotConfig, state *domain.BotState, snap marketdata.MarketSnapshot) *CandidateSignal {
	c := cfg.PlaybookD
	atr := snap.Indicators.ATR14
	if atr <= 0 {
		return nil
	}
	price, _ := snap.Price.Float64()
	if snap.Indicators.MA10 <= 0 || price >= snap.Indicators.MA10 {
		return nil
	}

	entry := snap.Price
	stop := entry.Sub(money.FromFloat(c.StopATRMult * atr))
	return &CandidateSignal{
		Symbol:     snap.Symbol,
		Playbook:   domain.PlaybookD,
		EntryPrice: entry,
		StopPrice:  stop,
		Reason:     "price dipped below MA10",
	}
}

func highestHigh(candles []marketdata.Candle, idx, lookback int) float64 {
	start := idx - lookback
	if start < 0 {
		start = 0
	}
	max := math.Inf(-1)
	for i := start; i < idx; i++ {
		if candles[i].High > max {
			max = candles[i].High
		}
	}
	return max
}

// EventWindowActive reports whether now falls within window after eventAt,
// a helper for deciding MarketSnapshot.EventFlag. Neither the scanner nor
// the engine calls it.
func EventWindowActive(eventAt, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	return now.Sub(eventAt) <= window
}

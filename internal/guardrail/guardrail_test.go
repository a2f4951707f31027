package guardrail

import (
	"testing"

	"github.com/stretchr/testify/require"

	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/money"
)

func baseInput() Input {
	return Input{
		Action:       domain.OrderBuy,
		Side:         domain.SideLong,
		ProposedR:    0.5,
		BotStatus:    domain.StatusActive,
		Filter: exchange.SymbolFilter{
			Symbol:      "BTCUSDT",
			PriceTick:   money.FromFloat(0.01),
			QtyStep:     money.FromFloat(0.001),
			MinNotional: money.FromFloat(10),
		},
		Quantity:         money.FromFloat(0.01),
		Price:            money.FromFloat(50000),
		SignalPrice:      money.FromFloat(50000),
		CurrentPrice:     money.FromFloat(50000),
		Risk:             domain.RiskConfig{MaxRPerTrade: 1.0, SlippageGuardBps: 20, MaxOpenR: 6, MaxExposurePct: 1.0, DailyStopR: -3, WeeklyStopR: -8},
		State:            &domain.BotState{},
		Equity:           money.FromFloat(100000),
		CurrentR:         money.FromFloat(1000),
		ProposedNotional: money.FromFloat(500),
	}
}

func TestEvaluateApprovesCleanCandidate(t *testing.T) {
	d := Evaluate(baseInput())
	require.True(t, d.Approved)
}

func TestSpotOnlyRejectsShortBuy(t *testing.T) {
	in := baseInput()
	in.Side = domain.SideShort
	d := Evaluate(in)
	require.False(t, d.Approved)
	require.Equal(t, "spot_only", d.Gate)
}

func TestRClampRejectsOversizedR(t *testing.T) {
	in := baseInput()
	in.ProposedR = 2.0
	d := Evaluate(in)
	require.False(t, d.Approved)
	require.Equal(t, "r_clamp", d.Gate)
}

func TestKillSwitchStickyRejectsWhenHalted(t *testing.T) {
	in := baseInput()
	in.BotStatus = domain.StatusHaltedDaily
	d := Evaluate(in)
	require.False(t, d.Approved)
	require.Equal(t, "kill_switch", d.Gate)
}

func TestExchangeFiltersSnapsNonConformingLotSizeInsteadOfRejecting(t *testing.T) {
	in := baseInput()
	in.Quantity = money.FromFloat(0.0015) // not a multiple of 0.001; R-sizing produces this routinely
	d := Evaluate(in)
	require.True(t, d.Approved)
	require.InDelta(t, 0.001/0.0015, d.ScaleFactor, 1e-9)
}

func TestExchangeFiltersRejectsQuantityThatSnapsToZero(t *testing.T) {
	in := baseInput()
	in.Quantity = money.FromFloat(0.0002) // below one 0.001 LOT_SIZE step
	d := Evaluate(in)
	require.False(t, d.Approved)
	require.Equal(t, "exchange_filters", d.Gate)
}

func TestExchangeFiltersRejectsBelowMinNotional(t *testing.T) {
	in := baseInput()
	in.Quantity = money.FromFloat(0.001) // snaps cleanly, but notional is tiny
	in.Price = money.FromFloat(1)
	d := Evaluate(in)
	require.False(t, d.Approved)
	require.Equal(t, "exchange_filters", d.Gate)
}

func TestSlippageGuardRejectsExcessiveDrift(t *testing.T) {
	in := baseInput()
	in.CurrentPrice = money.FromFloat(51000) // ~2% above signal, way over 20bps
	d := Evaluate(in)
	require.False(t, d.Approved)
	require.Equal(t, "slippage_guard", d.Gate)
}

func TestExposureLimitsSkippedOnClose(t *testing.T) {
	in := baseInput()
	in.IsClosing = true
	in.Risk.MaxOpenR = 0 // would otherwise reject any non-zero proposed R
	d := Evaluate(in)
	require.True(t, d.Approved)
}

func TestExposureLimitsRejectsOverCap(t *testing.T) {
	in := baseInput()
	in.Risk.MaxOpenR = 0.1
	d := Evaluate(in)
	require.False(t, d.Approved)
	require.Equal(t, "exposure_limits", d.Gate)
}

package risk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"spotengine/internal/domain"
	"spotengine/internal/money"
)

func TestSizeComputesQuantityFromRAndStopDistance(t *testing.T) {
	entry := money.FromFloat(100)
	stop := money.FromFloat(95)
	currentR := money.FromFloat(50)

	res, err := Size(entry, stop, currentR)
	require.NoError(t, err)
	require.True(t, res.Quantity.Equal(money.FromFloat(10)))
	require.True(t, res.Notional.Equal(money.FromFloat(1000)))
}

func TestSizeRejectsZeroStopDistance(t *testing.T) {
	entry := money.FromFloat(100)
	_, err := Size(entry, entry, money.FromFloat(50))
	require.Error(t, err)
}

func TestCheckAggregateRejectsWhenOpenRExceedsCap(t *testing.T) {
	cfg := domain.RiskConfig{MaxOpenR: 6, MaxPositions: 10, MaxExposurePct: 1.0}
	currentR := money.FromFloat(100)
	open := []*domain.Position{
		{Symbol: "ETHUSDT", EntryPrice: money.FromFloat(100), StopPrice: money.FromFloat(0), Quantity: money.FromFloat(600)},
	}
	check := CheckAggregate(cfg, open, "ETHUSDT", 0.5, money.FromFloat(100), money.FromFloat(100000), currentR)
	require.False(t, check.Approved)
	require.Contains(t, check.Reason, "max_open_R")
}

func TestCheckAggregateRejectsWhenPositionCountAtCap(t *testing.T) {
	cfg := domain.RiskConfig{MaxOpenR: 100, MaxPositions: 1, MaxExposurePct: 1.0}
	open := []*domain.Position{
		{Symbol: "ETHUSDT", EntryPrice: money.FromFloat(100), StopPrice: money.FromFloat(99), Quantity: money.FromFloat(1)},
	}
	check := CheckAggregate(cfg, open, "SOLUSDT", 0.1, money.FromFloat(100), money.FromFloat(100000), money.FromFloat(100))
	require.False(t, check.Approved)
	require.Contains(t, check.Reason, "max_positions")
}

func TestCheckAggregateRejectsWhenExposureExceedsCap(t *testing.T) {
	cfg := domain.RiskConfig{MaxOpenR: 100, MaxPositions: 10, MaxExposurePct: 0.1}
	equity := money.FromFloat(10000)
	check := CheckAggregate(cfg, nil, "ETHUSDT", 0.1, money.FromFloat(5000), equity, money.FromFloat(100))
	require.False(t, check.Approved)
	require.Contains(t, check.Reason, "max_exposure_pct")
}

func TestCheckAggregateAppliesCorrelationGuardForNonBTC(t *testing.T) {
	cfg := domain.RiskConfig{MaxOpenR: 100, MaxPositions: 10, MaxExposurePct: 1.0, CorrelationGuard: true}
	currentR := money.FromFloat(100)
	open := []*domain.Position{
		// 1R of open risk on BTCUSDT: |entry-stop|*qty / currentR == 1.0
		{Symbol: "BTCUSDT", EntryPrice: money.FromFloat(50000), StopPrice: money.FromFloat(49900), Quantity: money.FromFloat(1)},
	}
	check := CheckAggregate(cfg, open, "ETHUSDT", 0.5, money.FromFloat(1000), money.FromFloat(1000000), currentR)
	require.True(t, check.Approved)
	require.Equal(t, 0.5, check.ScaleFactor)
}

func TestCheckAggregateSkipsCorrelationGuardForBTCCandidate(t *testing.T) {
	cfg := domain.RiskConfig{MaxOpenR: 100, MaxPositions: 10, MaxExposurePct: 1.0, CorrelationGuard: true}
	currentR := money.FromFloat(100)
	open := []*domain.Position{
		{Symbol: "BTCUSDT", EntryPrice: money.FromFloat(50000), StopPrice: money.FromFloat(49900), Quantity: money.FromFloat(1)},
	}
	check := CheckAggregate(cfg, open, "BTCUSDT", 0.5, money.FromFloat(1000), money.FromFloat(1000000), currentR)
	require.True(t, check.Approved)
	require.Equal(t, 1.0, check.ScaleFactor)
}

func TestKillSwitchTriggerDaily(t *testing.T) {
	cfg := domain.RiskConfig{DailyStopR: -3, WeeklyStopR: -8}
	state := &domain.BotState{DailyPnLR: -3.5, WeeklyPnLR: -1}
	kind, halt := KillSwitchTrigger(cfg, state)
	require.True(t, halt)
	require.Equal(t, domain.KillDaily, kind)
}

func TestKillSwitchTriggerWeekly(t *testing.T) {
	cfg := domain.RiskConfig{DailyStopR: -3, WeeklyStopR: -8}
	state := &domain.BotState{DailyPnLR: -1, WeeklyPnLR: -8.1}
	kind, halt := KillSwitchTrigger(cfg, state)
	require.True(t, halt)
	require.Equal(t, domain.KillWeekly, kind)
}

func TestKillSwitchTriggerNoneWhenWithinBudget(t *testing.T) {
	cfg := domain.RiskConfig{DailyStopR: -3, WeeklyStopR: -8}
	state := &domain.BotState{DailyPnLR: -1, WeeklyPnLR: -2}
	_, halt := KillSwitchTrigger(cfg, state)
	require.False(t, halt)
}

package playbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spotengine/internal/domain"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
)

func candlesRange(n int, highs []float64, closes []float64) []marketdata.Candle {
	out := make([]marketdata.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = marketdata.Candle{High: highs[i], Close: closes[i], Volume: 100}
	}
	return out
}

func TestEvalABreaksOutOnExtremeAndVolume(t *testing.T) {
	cfg := domain.BotConfig{PlaybookA: domain.PlaybookAConfig{Enabled: true, Lookback: 3, VolumeMult: 1.5, StopATRMult: 1.0}}
	highs := []float64{10, 11, 12, 15}
	closes := []float64{10, 11, 12, 15}
	candles := candlesRange(4, highs, closes)
	candles[3].Volume = 200 // 2x avg volume of 100

	snap := marketdata.MarketSnapshot{
		Symbol:  "BTCUSDT",
		Candles: candles,
		Indicators: marketdata.Indicators{ATR14: 1, AvgVolume: 100},
	}

	sig := EvalA(cfg, &domain.BotState{}, snap)
	require.NotNil(t, sig)
	require.Equal(t, domain.PlaybookA, sig.Playbook)
	require.True(t, sig.EntryPrice.Equal(money.FromFloat(15)))
	require.True(t, sig.StopPrice.Equal(money.FromFloat(14)))
}

func TestEvalAReturnsNilWithoutVolumeConfirmation(t *testing.T) {
	cfg := domain.BotConfig{PlaybookA: domain.PlaybookAConfig{Enabled: true, Lookback: 3, VolumeMult: 2.0, StopATRMult: 1.0}}
	highs := []float64{10, 11, 12, 15}
	closes := []float64{10, 11, 12, 15}
	candles := candlesRange(4, highs, closes) // volume stays 100, avg 100 -> not 2x

	snap := marketdata.MarketSnapshot{
		Candles:    candles,
		Indicators: marketdata.Indicators{ATR14: 1, AvgVolume: 100},
	}
	require.Nil(t, EvalA(cfg, &domain.BotState{}, snap))
}

func TestEvalBTriggersOnVWAPDeviationAndRespectsSessionCap(t *testing.T) {
	cfg := domain.BotConfig{PlaybookB: domain.PlaybookBConfig{
		Enabled: true, DeviationATRMult: 2.0, StopATRMult: 1.0, MaxTradesPerSession: 1,
	}}
	snap := marketdata.MarketSnapshot{
		Symbol: "ETHUSDT",
		Price:  money.FromFloat(110),
		Indicators: marketdata.Indicators{ATR14: 1, VWAP: 100},
	}
	state := &domain.BotState{PlaybookBCounters: map[string]int{}}

	sig := EvalB(cfg, state, snap)
	require.NotNil(t, sig)
	require.Equal(t, domain.PlaybookB, sig.Playbook)
	// overextended above VWAP -> stop placed above entry, expecting reversion down
	require.True(t, sig.StopPrice.GreaterThan(sig.EntryPrice))

	state.PlaybookBCounters["ETHUSDT"] = 1
	require.Nil(t, EvalB(cfg, state, snap))
}

func TestEvalCFiresOnlyWhenEventFlagSet(t *testing.T) {
	cfg := domain.BotConfig{PlaybookC: domain.PlaybookCConfig{Enabled: true, StopATRMult: 2.0}}
	snap := marketdata.MarketSnapshot{
		Price:      money.FromFloat(50),
		Indicators: marketdata.Indicators{ATR14: 1},
	}
	require.Nil(t, EvalC(cfg, &domain.BotState{}, snap))

	snap.EventFlag = true
	sig := EvalC(cfg, &domain.BotState{}, snap)
	require.NotNil(t, sig)
	require.Equal(t, domain.PlaybookC, sig.Playbook)
}

func TestEvalDTriggersOnDipBelowMA10(t *testing.T) {
	cfg := domain.BotConfig{PlaybookD: domain.PlaybookDConfig{Enabled: true, StopATRMult: 1.5}}
	snap := marketdata.MarketSnapshot{
		Price:      money.FromFloat(95),
		Indicators: marketdata.Indicators{ATR14: 1, MA10: 100},
	}
	sig := EvalD(cfg, &domain.BotState{}, snap)
	require.NotNil(t, sig)
	require.Equal(t, domain.PlaybookD, sig.Playbook)
}

func TestEvaluatePicksHigherPriorityPlaybookWhenBothFire(t *testing.T) {
	cfg := domain.BotConfig{
		PlaybookA: domain.PlaybookAConfig{Enabled: true, Lookback: 3, VolumeMult: 1.0, StopATRMult: 1.0},
		PlaybookC: domain.PlaybookCConfig{Enabled: true, StopATRMult: 2.0},
	}
	highs := []float64{10, 11, 12, 15}
	closes := []float64{10, 11, 12, 15}
	candles := candlesRange(4, highs, closes)

	snap := marketdata.MarketSnapshot{
		Symbol:     "BTCUSDT",
		Price:      money.FromFloat(15),
		Candles:    candles,
		Indicators: marketdata.Indicators{ATR14: 1, AvgVolume: 100},
		EventFlag:  true, // would also satisfy Playbook C
	}

	sig := Evaluate(cfg, &domain.BotState{}, snap)
	require.NotNil(t, sig)
	require.Equal(t, domain.PlaybookA, sig.Playbook, "A outranks C in the static priority table")
}

func TestEventWindowActive(t *testing.T) {
	now := time.Now()
	require.True(t, EventWindowActive(now.Add(-5*time.Minute), now, 15*time.Minute))
	require.False(t, EventWindowActive(now.Add(-20*time.Minute), now, 15*time.Minute))
	require.False(t, EventWindowActive(now, now, 0))
}

package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"spotengine/internal/alert"
	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/execution"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
	"spotengine/internal/scanner"
	"spotengine/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *exchange.FakeClient) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	client := exchange.NewFakeClient()
	filters := exchange.NewFilterCache(client, 0)
	sc := scanner.New(client, zerolog.Nop())
	router := execution.New(client, filters, zerolog.Nop())
	alerts := alert.New(zerolog.Nop(), func(domain.Alert) {}, nil, 0)

	eng := New(st, sc, router, filters, client, alerts, zerolog.Nop())
	return eng, st, client
}

func TestStartIsIdempotent(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	cfg := domain.BotConfig{UserID: "u1", BotStatus: domain.StatusActive}
	state := domain.NewBotState("u1", money.FromFloat(10000), time.Now())

	eng.Start(context.Background(), "u1", cfg, state)
	first := eng.actors["u1"]
	eng.Start(context.Background(), "u1", cfg, state)
	require.Same(t, first, eng.actors["u1"])
	require.Len(t, eng.actors, 1)
	eng.Stop("u1")
}

func TestStopMarksActorNotRunningWithoutRemovingIt(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	cfg := domain.BotConfig{UserID: "u1", BotStatus: domain.StatusActive}
	state := domain.NewBotState("u1", money.FromFloat(10000), time.Now())

	eng.Start(context.Background(), "u1", cfg, state)
	eng.Stop("u1")
	require.False(t, eng.actors["u1"].running)
}

func TestTickHaltsOnDailyStopAndFlattensOpenPositions(t *testing.T) {
	eng, st, client := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureUser(ctx, "u1"))

	cfg := domain.BotConfig{
		UserID:    "u1",
		BotStatus: domain.StatusActive,
		Scanner:   domain.ScannerConfig{Watchlist: []string{"BTCUSDT"}},
		Risk:      domain.RiskConfig{DailyStopR: -3, WeeklyStopR: -8},
	}
	state := domain.NewBotState("u1", money.FromFloat(10000), time.Now())
	state.DailyPnLR = -3.5 // already past the daily stop before this tick runs

	open := &domain.Position{
		ID: "p1", UserID: "u1", Symbol: "BTCUSDT", Status: domain.PositionOpen,
		Side: domain.SideLong, EntryPrice: money.FromFloat(100), Quantity: money.FromFloat(1),
		StopPrice: money.FromFloat(90), CurrentPrice: money.FromFloat(100),
	}
	require.NoError(t, st.SavePosition(ctx, open))
	client.SetPrice("BTCUSDT", money.FromFloat(100))
	client.SetFilter(exchange.SymbolFilter{
		Symbol:      "BTCUSDT",
		QtyStep:     money.FromFloat(0.001),
		PriceTick:   money.FromFloat(0.01),
		MinNotional: money.FromFloat(1),
	})

	eng.Start(ctx, "u1", cfg, state)
	a := eng.actors["u1"]
	eng.Tick(ctx, a)

	require.Equal(t, domain.StatusHaltedDaily, a.cfg.BotStatus)

	remaining, err := st.LoadOpenPositions(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, remaining)

	persisted, err := st.LoadBotConfig(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusHaltedDaily, persisted.BotStatus)

	eng.Stop("u1")
}

func TestTickStaysActiveOnUnreachableSymbolAndAdvancesScanTime(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureUser(ctx, "u1"))

	cfg := domain.BotConfig{
		UserID:    "u1",
		BotStatus: domain.StatusActive,
		Scanner:   domain.ScannerConfig{Watchlist: []string{"ZZZUSDT"}}, // never seeded on the fake client
		Risk:      domain.RiskConfig{DailyStopR: -3, WeeklyStopR: -8},
	}
	state := domain.NewBotState("u1", money.FromFloat(10000), time.Now())

	eng.Start(ctx, "u1", cfg, state)
	a := eng.actors["u1"]

	before := state.LastScanTime
	eng.Tick(ctx, a)

	require.True(t, state.LastScanTime.After(before))
	require.Equal(t, domain.StatusActive, a.cfg.BotStatus)

	eng.Stop("u1")
}

func TestUpdatePositionsRefreshesPriceAndExecutesScaleOut(t *testing.T) {
	eng, st, client := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, st.EnsureUser(ctx, "u1"))

	client.SetFilter(exchange.SymbolFilter{
		Symbol:      "BTCUSDT",
		QtyStep:     money.FromFloat(0.001),
		PriceTick:   money.FromFloat(0.01),
		MinNotional: money.FromFloat(1),
	})
	client.SetPrice("BTCUSDT", money.FromFloat(50900)) // (50900-50000)*0.2 / 100R = 1.8R unrealized

	var candles []marketdata.Candle
	now := time.Now()
	for i := 0; i < 20; i++ {
		candles = append(candles, marketdata.Candle{
			OpenTime: now.Add(time.Duration(i) * time.Minute),
			Open:     50000, High: 50500, Low: 49500, Close: 50000, Volume: 10,
		})
	}
	client.SetCandles("BTCUSDT", candles)

	cfg := domain.BotConfig{
		UserID: "u1",
		PlaybookA: domain.PlaybookAConfig{
			BreakevenR: 2.0, // higher than this position's unrealizedR, so breakeven doesn't fire first
			ScaleR:     0.5,
			ScalePct:   0.5,
			TrailATRMult: 1.0,
		},
	}
	state := domain.NewBotState("u1", money.FromFloat(10000), time.Now())
	state.CurrentR = money.FromFloat(100) // 1R = $100 of open risk

	open := &domain.Position{
		ID: "p1", UserID: "u1", Symbol: "BTCUSDT", Status: domain.PositionOpen,
		Side: domain.SideLong, Playbook: domain.PlaybookA,
		EntryPrice: money.FromFloat(50000), Quantity: money.FromFloat(0.2), StopPrice: money.FromFloat(49500),
		OpenedAt: time.Now(),
	}
	require.NoError(t, st.SavePosition(ctx, open))

	a := &userActor{userID: "u1", cfg: cfg, state: state}
	eng.updatePositions(ctx, a, cfg, state, []*domain.Position{open}, time.Now())

	require.True(t, open.CurrentPrice.Equal(money.FromFloat(50900)), "price should be refreshed from the ticker")
	require.True(t, open.Scaled1)
	require.True(t, open.Quantity.Equal(money.FromFloat(0.1)), "half the original 0.2 qty should remain after a 50%% scale-out")
	require.NotNil(t, open.TrailingStopDistance)
	require.True(t, open.TrailingStopDistance.Equal(money.FromFloat(1000)), "trail distance should be TrailATRMult(1.0) x ATR(1000)")
	require.False(t, open.PartialRealizedPnl.IsZero(), "the scaled-out leg's realized pnl should be tracked")

	persisted, err := st.LoadOpenPositions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	require.True(t, persisted[0].Quantity.Equal(money.FromFloat(0.1)))
}

func TestRunGroupRunsEveryUser(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	err := RunGroup(context.Background(), []string{"u1", "u2"}, func(ctx context.Context, userID string) error {
		mu.Lock()
		seen = append(seen, userID)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u2"}, seen)
}

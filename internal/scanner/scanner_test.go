package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
)

func seedClient(t *testing.T, symbol string, numCandles int) *exchange.FakeClient {
	t.Helper()
	c := exchange.NewFakeClient()
	c.SetPrice(symbol, money.FromFloat(100))
	candles := make([]marketdata.Candle, numCandles)
	for i := range candles {
		candles[i] = marketdata.Candle{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}
	}
	c.SetCandles(symbol, candles)
	c.SetDepth(symbol, marketdata.Depth{
		Bids: []marketdata.DepthLevel{{Price: money.FromFloat(99.9), Qty: money.FromFloat(100)}},
		Asks: []marketdata.DepthLevel{{Price: money.FromFloat(100.1), Qty: money.FromFloat(100)}},
	})
	return c
}

func baseCfg() domain.ScannerConfig {
	return domain.ScannerConfig{
		Watchlist:        []string{"BTCUSDT"},
		MinVolumeUSD24h:  0,
		MaxSpreadBps:     1000,
		MinTopOfBookUSD:  0,
		MinCandleHistory: 20,
		CooldownPerPair:  time.Minute,
	}
}

func TestScanReturnsSnapshotWhenAllGatesPass(t *testing.T) {
	c := seedClient(t, "BTCUSDT", 30)
	c.SetPrice("BTCUSDT", money.FromFloat(100))
	// ticker volume via LastPrice only; QuoteVolume24h defaults to zero, fine
	// since MinVolumeUSD24h is 0 in baseCfg.
	s := New(c, zerolog.Nop())
	res := s.Scan(context.Background(), baseCfg(), map[string]time.Time{})
	require.Empty(t, res.Skips)
	require.Contains(t, res.Snapshots, "BTCUSDT")
}

func TestScanSkipsOnInsufficientCandleHistory(t *testing.T) {
	c := seedClient(t, "BTCUSDT", 5)
	s := New(c, zerolog.Nop())
	res := s.Scan(context.Background(), baseCfg(), map[string]time.Time{})
	require.Len(t, res.Skips, 1)
	require.Equal(t, "candle_history", res.Skips[0].Gate)
}

func TestScanSkipsOnSpreadTooWide(t *testing.T) {
	c := seedClient(t, "BTCUSDT", 30)
	c.SetDepth("BTCUSDT", marketdata.Depth{
		Bids: []marketdata.DepthLevel{{Price: money.FromFloat(90), Qty: money.FromFloat(100)}},
		Asks: []marketdata.DepthLevel{{Price: money.FromFloat(110), Qty: money.FromFloat(100)}},
	})
	// fake ticker bid/ask mirror LastPrice (100/100), so spread comes from the
	// ticker not depth; set an explicit wide bid/ask via price divergence is
	// not possible on FakeClient's single-price ticker, so this gate is
	// exercised through a negative MaxSpreadBps instead.
	cfg := baseCfg()
	cfg.MaxSpreadBps = -1
	s := New(c, zerolog.Nop())
	res := s.Scan(context.Background(), cfg, map[string]time.Time{})
	require.Len(t, res.Skips, 1)
	require.Equal(t, "max_spread", res.Skips[0].Gate)
}

func TestScanSkipsOnDepthBelowFloor(t *testing.T) {
	c := seedClient(t, "BTCUSDT", 30)
	c.SetDepth("BTCUSDT", marketdata.Depth{
		Bids: []marketdata.DepthLevel{{Price: money.FromFloat(99.9), Qty: money.FromFloat(0.001)}},
		Asks: []marketdata.DepthLevel{{Price: money.FromFloat(100.1), Qty: money.FromFloat(0.001)}},
	})
	cfg := baseCfg()
	cfg.MinTopOfBookUSD = 1_000_000
	s := New(c, zerolog.Nop())
	res := s.Scan(context.Background(), cfg, map[string]time.Time{})
	require.Len(t, res.Skips, 1)
	require.Equal(t, "min_depth", res.Skips[0].Gate)
}

func TestScanSkipsOnVolumeBelowFloor(t *testing.T) {
	c := seedClient(t, "BTCUSDT", 30)
	cfg := baseCfg()
	cfg.MinVolumeUSD24h = 1_000_000
	s := New(c, zerolog.Nop())
	res := s.Scan(context.Background(), cfg, map[string]time.Time{})
	require.Len(t, res.Skips, 1)
	require.Equal(t, "min_volume", res.Skips[0].Gate)
}

func TestScanSkipsSymbolInCooldown(t *testing.T) {
	c := seedClient(t, "BTCUSDT", 30)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(c, zerolog.Nop()).WithClock(func() time.Time { return now })
	lastSignal := map[string]time.Time{"BTCUSDT": now.Add(-10 * time.Second)}
	res := s.Scan(context.Background(), baseCfg(), lastSignal)
	require.Len(t, res.Skips, 1)
	require.Equal(t, "cooldown", res.Skips[0].Gate)
}

func TestScanIsolatesExchangeErrorToOneSymbol(t *testing.T) {
	c := seedClient(t, "BTCUSDT", 30)
	cfg := baseCfg()
	cfg.Watchlist = []string{"BTCUSDT", "ETHUSDT"} // ETHUSDT was never seeded
	s := New(c, zerolog.Nop())
	res := s.Scan(context.Background(), cfg, map[string]time.Time{})
	require.Contains(t, res.Snapshots, "BTCUSDT")
	require.Len(t, res.Skips, 1)
	require.Equal(t, "ETHUSDT", res.Skips[0].Symbol)
	require.Equal(t, "exchange_error", res.Skips[0].Gate)
}

// Package scanner implements the Market Scanner (spec.md §4.1): a pure
// query/gate component that turns a watchlist into a map of tradable
// MarketSnapshots, skipping (and logging) any symbol that fails a quality
// gate or is still in cooldown.
//
// Grounded on the teacher's candle-fetch + indicator-cache step inside
// trader.go's tick (single product, no gates beyond "do we have enough
// candles"), generalized to per-symbol gating across an arbitrary
// watchlist, and on predator_engine.go's per-symbol worker loop for the
// "isolate one symbol's failure from the rest" discipline.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/indicators"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
)

const minCandlesForIndicators = 15

// Clock lets tests freeze "now" for cooldown checks.
type Clock func() time.Time

// Scanner fetches and gates market data for a user's watchlist.
type Scanner struct {
	client exchange.Client
	log    zerolog.Logger
	now    Clock
}

// New builds a Scanner against an exchange client.
func New(client exchange.Client, log zerolog.Logger) *Scanner {
	return &Scanner{client: client, log: log, now: time.Now}
}

// WithClock overrides the scanner's notion of "now", for deterministic tests.
func (s *Scanner) WithClock(now Clock) *Scanner {
	s.now = now
	return s
}

// Skip records why a symbol did not make it into the scan result, so the
// caller can emit the SKIPPED Signal row spec.md §4.1 requires.
type Skip struct {
	Symbol string
	Gate   string
	Reason string
}

// Result is one tick's scan output (spec.md §4.1 "Contract").
type Result struct {
	Snapshots map[string]marketdata.MarketSnapshot
	Skips     []Skip
}

// Scan fetches and gates every symbol in cfg.Watchlist, caching indicators
// on each surviving snapshot. lastSignalTime is read-only here; the caller
// (engine) owns BotState and updates it after a signal fires.
func (s *Scanner) Scan(ctx context.Context, cfg domain.ScannerConfig, lastSignalTime map[string]time.Time) Result {
	result := Result{Snapshots: make(map[string]marketdata.MarketSnapshot, len(cfg.Watchlist))}

	for _, symbol := range cfg.Watchlist {
		snap, skip, err := s.scanOne(ctx, cfg, symbol)
		if err != nil {
			// Failure semantics (spec.md §4.1): isolate one symbol's exchange
			// error from the rest of the watchlist.
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("scanner: symbol fetch failed, skipping")
			result.Skips = append(result.Skips, Skip{Symbol: symbol, Gate: "exchange_error", Reason: err.Error()})
			continue
		}
		if skip != nil {
			result.Skips = append(result.Skips, *skip)
			continue
		}

		if last, ok := lastSignalTime[symbol]; ok && s.now().Sub(last) < cfg.CooldownPerPair {
			result.Skips = append(result.Skips, Skip{Symbol: symbol, Gate: "cooldown", Reason: "signal cooldown active"})
			continue
		}

		result.Snapshots[symbol] = snap
	}

	return result
}

func (s *Scanner) scanOne(ctx context.Context, cfg domain.ScannerConfig, symbol string) (marketdata.MarketSnapshot, *Skip, error) {
	ticker, err := s.client.GetTicker(ctx, symbol)
	if err != nil {
		return marketdata.MarketSnapshot{}, nil, err
	}
	depth, err := s.client.GetDepth(ctx, symbol, 10)
	if err != nil {
		return marketdata.MarketSnapshot{}, nil, err
	}
	limit := cfg.MinCandleHistory
	if limit < minCandlesForIndicators {
		limit = minCandlesForIndicators
	}
	candles, err := s.client.GetKlines(ctx, symbol, "1m", limit)
	if err != nil {
		return marketdata.MarketSnapshot{}, nil, err
	}

	if len(candles) < cfg.MinCandleHistory {
		return marketdata.MarketSnapshot{}, &Skip{Symbol: symbol, Gate: "candle_history", Reason: "insufficient candle history"}, nil
	}

	volume24h, _ := ticker.QuoteVolume24h.Float64()
	if volume24h < cfg.MinVolumeUSD24h {
		return marketdata.MarketSnapshot{}, &Skip{Symbol: symbol, Gate: "min_volume", Reason: "24h quote volume below floor"}, nil
	}

	spreadBps := spreadBps(ticker.Bid, ticker.Ask)
	if spreadBps > cfg.MaxSpreadBps {
		return marketdata.MarketSnapshot{}, &Skip{Symbol: symbol, Gate: "max_spread", Reason: "spread exceeds normal ceiling"}, nil
	}

	bidUSD := depth.BidUSD()
	askUSD := depth.AskUSD()
	minDepth := bidUSD
	if askUSD.LessThan(minDepth) {
		minDepth = askUSD
	}
	minDepthF, _ := minDepth.Float64()
	if minDepthF < cfg.MinTopOfBookUSD {
		return marketdata.MarketSnapshot{}, &Skip{Symbol: symbol, Gate: "min_depth", Reason: "top-of-book depth below floor"}, nil
	}

	idx := len(candles) - 1
	ind := computeIndicators(candles, idx)

	return marketdata.MarketSnapshot{
		Symbol:       symbol,
		Price:        ticker.LastPrice,
		Bid:          ticker.Bid,
		Ask:          ticker.Ask,
		SpreadBps:    spreadBps,
		BidDepthUSD:  bidUSD,
		AskDepthUSD:  askUSD,
		Volume24hUSD: ticker.QuoteVolume24h,
		Candles:      candles,
		Indicators:   ind,
		AsOf:         s.now(),
	}, nil, nil
}

func spreadBps(bid, ask money.Decimal) float64 {
	if bid.IsZero() && ask.IsZero() {
		return 0
	}
	mid := bid.Add(ask).Div(money.FromFloat(2))
	if mid.IsZero() {
		return 0
	}
	return money.BpsBetween(ask, bid, mid)
}

func computeIndicators(candles []marketdata.Candle, idx int) marketdata.Indicators {
	atr := indicators.ATR(candles, 14)
	vwap := indicators.VWAP(candles)
	rsi := indicators.RSI(candles, 14)
	ma10 := indicators.SMA(candles, 10)
	ma30 := indicators.SMA(candles, 30)
	bbw := indicators.BollingerWidth(candles, 20)
	avgVol := indicators.AverageVolume(candles, idx, 20)

	return marketdata.Indicators{
		ATR14:          atr[idx],
		VWAP:           vwap[idx],
		RSI14:          rsi[idx],
		MA10:           ma10[idx],
		MA30:           ma30[idx],
		BollingerWidth: bbw[idx],
		AvgVolume:      avgVol,
	}
}

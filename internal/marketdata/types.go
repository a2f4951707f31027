// Package marketdata holds the market-data shapes shared by the exchange
// client, the scanner, the indicator library and the playbook evaluators:
// candles, order-book depth, and the scanner's output snapshot.
package marketdata

import (
	"time"

	"spotengine/internal/money"
)

// Candle is the normalized OHLCV row used everywhere downstream, grounded on
// the teacher's Candle type (strategy.go). Every OHLCV field stays float64
// for indicator math (RSI/ATR/VWAP are not order-affecting themselves);
// playbooks derive their decimal stop/entry prices from the snapshot.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// Ticker is the exchange client's last-price/volume surface (spec.md §6).
type Ticker struct {
	LastPrice      money.Decimal
	Bid            money.Decimal
	Ask            money.Decimal
	QuoteVolume24h money.Decimal
}

// DepthLevel is one (price, qty) rung of the order book.
type DepthLevel struct {
	Price money.Decimal
	Qty   money.Decimal
}

// Depth is the top-of-book snapshot (spec.md §6 "getDepth").
type Depth struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// BidUSD returns the USD notional resting at the best bid levels supplied.
func (d Depth) BidUSD() money.Decimal {
	return notionalOf(d.Bids)
}

// AskUSD returns the USD notional resting at the best ask levels supplied.
func (d Depth) AskUSD() money.Decimal {
	return notionalOf(d.Asks)
}

func notionalOf(levels []DepthLevel) money.Decimal {
	total := money.Zero
	for _, l := range levels {
		total = total.Add(l.Price.Mul(l.Qty))
	}
	return total
}

// Indicators bundles the scanner-computed technicals a playbook reads
// (spec.md §4.1 "Compute and cache ATR(14), VWAP... RSI, short MAs,
// Bollinger width").
type Indicators struct {
	ATR14          float64
	VWAP           float64
	RSI14          float64
	MA10           float64
	MA30           float64
	BollingerWidth float64
	AvgVolume      float64 // average volume over the latest 20 candles, the newest included
}

// MarketSnapshot is the scanner's per-symbol output (spec.md §4.1
// "Contract"). Symbols failing any quality gate are absent from the map the
// scanner returns.
type MarketSnapshot struct {
	Symbol      string
	Price       money.Decimal
	Bid         money.Decimal
	Ask         money.Decimal
	SpreadBps   float64
	BidDepthUSD money.Decimal
	AskDepthUSD money.Decimal
	Volume24hUSD money.Decimal
	Candles     []Candle
	Indicators  Indicators
	EventFlag   bool
	AsOf        time.Time
}

package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"spotengine/internal/domain"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
)

// FakeClient is an in-memory Client used by tests and backtests, grounded on
// the teacher's PaperBroker (broker_paper.go): a single mutable price per
// symbol, market orders fill instantly at that price, and limit orders sit
// until the test advances the price through them. Unlike the teacher's paper
// broker, FakeClient implements every Client method (no "not supported"
// stubs) since the engine's execution router expects GetOrder/GetExchangeInfo
// to behave, not short-circuit.
type FakeClient struct {
	mu      sync.Mutex
	prices  map[string]money.Decimal
	filters map[string]SymbolFilter
	candles map[string][]marketdata.Candle
	depth   map[string]marketdata.Depth
	orders  map[string]*OrderInfo
	pending map[string]pendingOrder
	balances []Balance
}

// pendingOrder remembers a resting limit order's terms so AdvancePrice can
// fill it later at the requested quantity and side.
type pendingOrder struct {
	symbol   string
	side     domain.OrderSide
	price    money.Decimal
	quantity money.Decimal
}

// NewFakeClient builds an empty in-memory client; seed it with SetPrice,
// SetFilter, SetCandles, SetDepth before use.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		prices:  make(map[string]money.Decimal),
		filters: make(map[string]SymbolFilter),
		candles: make(map[string][]marketdata.Candle),
		depth:   make(map[string]marketdata.Depth),
		orders:  make(map[string]*OrderInfo),
		pending: make(map[string]pendingOrder),
	}
}

func (f *FakeClient) Name() string { return "fake" }

// SetPrice fixes the last/bid/ask price used for subsequent ticker reads and
// market fills.
func (f *FakeClient) SetPrice(symbol string, price money.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *FakeClient) SetFilter(filter SymbolFilter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters[filter.Symbol] = filter
}

func (f *FakeClient) SetCandles(symbol string, candles []marketdata.Candle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candles[symbol] = candles
}

func (f *FakeClient) SetDepth(symbol string, depth marketdata.Depth) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depth[symbol] = depth
}

func (f *FakeClient) SetBalances(balances []Balance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = balances
}

func (f *FakeClient) GetTicker(ctx context.Context, symbol string) (marketdata.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[symbol]
	if !ok {
		return marketdata.Ticker{}, ErrSymbolNotFound(symbol)
	}
	return marketdata.Ticker{LastPrice: price, Bid: price, Ask: price}, nil
}

func (f *FakeClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketdata.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.candles[symbol]
	if limit > 0 && len(c) > limit {
		c = c[len(c)-limit:]
	}
	out := make([]marketdata.Candle, len(c))
	copy(out, c)
	return out, nil
}

func (f *FakeClient) GetDepth(ctx context.Context, symbol string, levels int) (marketdata.Depth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.depth[symbol], nil
}

func (f *FakeClient) GetExchangeInfo(ctx context.Context) ([]SymbolFilter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SymbolFilter, 0, len(f.filters))
	for _, filt := range f.filters {
		out = append(out, filt)
	}
	return out, nil
}

func (f *FakeClient) GetAccountInfo(ctx context.Context) ([]Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Balance, len(f.balances))
	copy(out, f.balances)
	return out, nil
}

// SubmitOrder fills MARKET orders immediately at the seeded price; LIMIT
// orders are accepted NEW and only fill once a test calls AdvancePrice
// through the limit (mirrors a maker-first order resting on the book).
func (f *FakeClient) SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[req.Symbol]
	if !ok {
		return OrderAck{}, ErrSymbolNotFound(req.Symbol)
	}

	orderID := uuid.New().String()
	info := &OrderInfo{
		OrderID:    orderID,
		UpdateTime: time.Now().UTC(),
	}

	switch req.Type {
	case domain.OrderMarket:
		info.Status = domain.OrderFilled
		info.ExecutedQty = req.Quantity
		info.FillPrice = price
		info.CummulativeQuote = req.Quantity.Mul(price)
	case domain.OrderLimit:
		crosses := (req.Side == domain.OrderBuy && price.LessThanOrEqual(req.Price)) ||
			(req.Side == domain.OrderSell && price.GreaterThanOrEqual(req.Price))
		if crosses {
			info.Status = domain.OrderFilled
			info.ExecutedQty = req.Quantity
			info.FillPrice = req.Price
			info.CummulativeQuote = req.Quantity.Mul(req.Price)
		} else {
			info.Status = domain.OrderNew
			f.pending[orderID] = pendingOrder{
				symbol:   req.Symbol,
				side:     req.Side,
				price:    req.Price,
				quantity: req.Quantity,
			}
		}
	}

	f.orders[orderID] = info
	return OrderAck{OrderID: orderID, ClientOrderID: req.ClientOrderID, Status: info.Status}, nil
}

func (f *FakeClient) GetOrder(ctx context.Context, symbol, orderID string) (OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.orders[orderID]
	if !ok {
		return OrderInfo{}, ErrSymbolNotFound(orderID)
	}
	return *info, nil
}

// AdvancePrice moves the seeded price and fills any resting NEW limit orders
// that the new price would cross, letting a test drive a maker-first order
// to fill without a second SubmitOrder call.
func (f *FakeClient) AdvancePrice(symbol string, price money.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
	for orderID, p := range f.pending {
		if p.symbol != symbol {
			continue
		}
		crosses := (p.side == domain.OrderBuy && price.LessThanOrEqual(p.price)) ||
			(p.side == domain.OrderSell && price.GreaterThanOrEqual(p.price))
		if !crosses {
			continue
		}
		info := f.orders[orderID]
		info.Status = domain.OrderFilled
		info.ExecutedQty = p.quantity
		info.FillPrice = p.price
		info.CummulativeQuote = p.quantity.Mul(p.price)
		delete(f.pending, orderID)
	}
}

// Package exchange defines the minimal exchange-client surface the core
// relies on (spec.md §6) and a process-wide precision/filter cache (spec.md
// §9 "Global singletons"). Concrete adapters (binance.go) implement Client
// against a real venue; tests use an in-memory fake.
package exchange

import (
	"context"
	"time"

	"spotengine/internal/domain"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
)

// OrderRequest is the normalized order-submission payload (spec.md §6
// "submitOrder").
type OrderRequest struct {
	Symbol        string
	Side          domain.OrderSide
	Type          domain.OrderType
	Quantity      money.Decimal
	Price         money.Decimal // only meaningful for LIMIT
	ClientOrderID string
}

// OrderAck is the exchange's immediate response to a submission.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Status        domain.OrderStatus
}

// OrderInfo is the polled order state (spec.md §6 "getOrder").
type OrderInfo struct {
	OrderID           string
	Status            domain.OrderStatus
	ExecutedQty       money.Decimal
	CummulativeQuote  money.Decimal
	FillPrice         money.Decimal
	Fees              money.Decimal
	UpdateTime        time.Time
}

// SymbolFilter is one symbol's precision/filter metadata (spec.md §6
// "getExchangeInfo").
type SymbolFilter struct {
	Symbol         string
	PriceTick      money.Decimal
	QtyStep        money.Decimal
	MinNotional    money.Decimal
	PricePrecision int32
	QtyPrecision   int32
}

// Balance is one asset's account balance (spec.md §6 "getAccountInfo").
type Balance struct {
	Asset     string
	Free      money.Decimal
	Locked    money.Decimal
}

// Client is the exchange-facing surface the core depends on (spec.md §6).
// All prices and quantities cross this boundary as money.Decimal, built
// from the venue's canonical decimal strings.
type Client interface {
	Name() string
	GetTicker(ctx context.Context, symbol string) (marketdata.Ticker, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketdata.Candle, error)
	GetDepth(ctx context.Context, symbol string, levels int) (marketdata.Depth, error)
	GetExchangeInfo(ctx context.Context) ([]SymbolFilter, error)
	GetAccountInfo(ctx context.Context) ([]Balance, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	GetOrder(ctx context.Context, symbol, orderID string) (OrderInfo, error)
}

// DefaultTimeout is the bounded per-call timeout spec.md §5 requires
// ("Every exchange call has a bounded timeout (default <=10s)").
const DefaultTimeout = 10 * time.Second

// WithTimeout derives a context bounded by DefaultTimeout unless the parent
// already carries a tighter deadline.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < DefaultTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

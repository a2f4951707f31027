// Package execution implements the Execution Router (spec.md §4.5): snaps a
// sized, gate-approved candidate to exchange precision, submits it (market
// by default, maker-first limit when the playbook requests it), awaits a
// fill or timeout, and reports realized slippage and fees.
//
// Grounded on the teacher's step.go maker-first routing (async post-only
// submit, poll-until-terminal, timeout fallback to market) and
// broker_paper.go/broker.go's PlacedOrder shape, generalized from the
// teacher's single hardcoded product and side-keyed pending-order fields to
// an arbitrary (symbol, purpose) idempotency key.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"spotengine/internal/apperr"
	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/money"
)

// DefaultPollInterval is how often GetOrder is polled while awaiting a fill.
const DefaultPollInterval = 500 * time.Millisecond

// Purpose names why an order is being submitted, part of the idempotency key
// (spec.md §4.5 "bound to (userId, symbol, tick-id, purpose)").
type Purpose string

const (
	PurposeOpen    Purpose = "open"
	PurposeScale   Purpose = "scale"
	PurposeClose   Purpose = "close"
)

// Request is everything the router needs to place and track one order.
type Request struct {
	UserID      string
	TickID      string
	Symbol      string
	Purpose     Purpose
	Side        domain.OrderSide
	Quantity    money.Decimal
	Filter      exchange.SymbolFilter
	PreferLimit bool
	LimitPrice  money.Decimal // only used when PreferLimit
	Timeout     time.Duration
	ReferenceMid money.Decimal
}

// Result is the router's outcome for one order (spec.md §4.5 step 5).
type Result struct {
	Success        bool
	FillPrice      money.Decimal
	FilledQuantity money.Decimal
	Fees           money.Decimal
	SlippageBps    float64
	OrderID        string
	Error          error
}

// Router submits and tracks orders against an exchange client.
type Router struct {
	client       exchange.Client
	filters      *exchange.FilterCache
	log          zerolog.Logger
	pollInterval time.Duration
}

// New builds a Router over client, caching filters via cache.
func New(client exchange.Client, cache *exchange.FilterCache, log zerolog.Logger) *Router {
	return &Router{client: client, filters: cache, log: log, pollInterval: DefaultPollInterval}
}

// IdempotencyKey builds the (userId, symbol, tick-id, purpose) key spec.md
// §4.5 step 2 requires so retries never double-submit.
func IdempotencyKey(req Request) string {
	return fmt.Sprintf("%s-%s-%s-%s", req.UserID, req.Symbol, req.TickID, req.Purpose)
}

// Submit snaps quantity/price to exchange precision, places the order, and
// awaits its terminal state (spec.md §4.5).
func (r *Router) Submit(ctx context.Context, req Request) Result {
	filter, err := r.filters.Get(ctx, req.Symbol)
	if err != nil {
		return Result{Error: apperr.New(apperr.CategoryTransient, "filter lookup failed", err)}
	}
	qty := money.SnapToStep(req.Quantity, filter.QtyStep)
	if qty.Sign() <= 0 {
		return Result{Error: apperr.New(apperr.CategoryValidation, "quantity snaps to zero", nil)}
	}

	orderType := domain.OrderMarket
	price := money.Zero
	if req.PreferLimit && req.LimitPrice.Sign() > 0 {
		orderType = domain.OrderLimit
		price = money.SnapToStep(req.LimitPrice, filter.PriceTick)
	}
	notional := qty.Mul(price)
	if orderType == domain.OrderMarket {
		notional = qty.Mul(req.ReferenceMid)
	}
	if filter.MinNotional.Sign() > 0 && notional.LessThan(filter.MinNotional) {
		return Result{Error: apperr.New(apperr.CategoryNonRetryable, "order below MIN_NOTIONAL", nil)}
	}

	clientOrderID := IdempotencyKey(req)
	ack, err := r.client.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          orderType,
		Quantity:      qty,
		Price:         price,
		ClientOrderID: clientOrderID,
	})
	if err != nil {
		return Result{Error: apperr.New(apperr.CategoryTransient, "order submission failed", err)}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	info, err := r.awaitFill(ctx, req.Symbol, ack.OrderID, timeout)
	if err != nil {
		return Result{OrderID: ack.OrderID, Error: apperr.New(apperr.CategoryTransient, "await fill failed", err)}
	}

	if info.Status != domain.OrderFilled && info.Status != domain.OrderPartiallyFilled {
		return Result{OrderID: ack.OrderID, Error: apperr.New(apperr.CategoryNonRetryable, "order rejected or expired by exchange", nil)}
	}

	slippageBps := 0.0
	if req.ReferenceMid.Sign() > 0 && info.FillPrice.Sign() > 0 {
		slippageBps = money.BpsBetween(info.FillPrice, req.ReferenceMid, req.ReferenceMid)
		if slippageBps < 0 {
			slippageBps = -slippageBps
		}
	}

	return Result{
		Success:        true,
		FillPrice:      info.FillPrice,
		FilledQuantity: info.ExecutedQty,
		Fees:           info.Fees,
		SlippageBps:    slippageBps,
		OrderID:        ack.OrderID,
	}
}

// awaitFill polls GetOrder until the order reaches a terminal status or
// timeout elapses (spec.md §4.5 step 3, "poll order status until terminal").
func (r *Router) awaitFill(ctx context.Context, symbol, orderID string, timeout time.Duration) (exchange.OrderInfo, error) {
	deadline := time.Now().Add(timeout)
	for {
		info, err := r.client.GetOrder(ctx, symbol, orderID)
		if err != nil {
			return exchange.OrderInfo{}, err
		}
		if info.Status.IsTerminal() {
			return info, nil
		}
		if time.Now().After(deadline) {
			return info, nil
		}
		select {
		case <-ctx.Done():
			return exchange.OrderInfo{}, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

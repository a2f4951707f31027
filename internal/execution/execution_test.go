package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/money"
)

func newRouter(t *testing.T) (*Router, *exchange.FakeClient) {
	t.Helper()
	c := exchange.NewFakeClient()
	c.SetFilter(exchange.SymbolFilter{
		Symbol:      "BTCUSDT",
		PriceTick:   money.FromFloat(0.01),
		QtyStep:     money.FromFloat(0.0001),
		MinNotional: money.FromFloat(10),
	})
	c.SetPrice("BTCUSDT", money.FromFloat(50000))
	cache := exchange.NewFilterCache(c, 0)
	return New(c, cache, zerolog.Nop()), c
}

func TestSubmitFillsMarketOrderImmediately(t *testing.T) {
	r, _ := newRouter(t)
	res := r.Submit(context.Background(), Request{
		UserID:       "u1",
		TickID:       "t1",
		Symbol:       "BTCUSDT",
		Purpose:      PurposeOpen,
		Side:         domain.OrderBuy,
		Quantity:     money.FromFloat(0.1),
		ReferenceMid: money.FromFloat(50000),
	})
	require.NoError(t, res.Error)
	require.True(t, res.Success)
	require.True(t, res.FillPrice.Equal(money.FromFloat(50000)))
	require.Equal(t, 0.0, res.SlippageBps)
}

func TestSubmitFailsLimitOrderThatRestsPastTimeout(t *testing.T) {
	r, c := newRouter(t)
	res := r.Submit(context.Background(), Request{
		UserID:       "u1",
		TickID:       "t1",
		Symbol:       "BTCUSDT",
		Purpose:      PurposeOpen,
		Side:         domain.OrderBuy,
		Quantity:     money.FromFloat(0.1),
		PreferLimit:  true,
		LimitPrice:   money.FromFloat(49000),
		ReferenceMid: money.FromFloat(50000),
		Timeout:      time.Millisecond,
	})
	// price never crosses within the router's poll loop: order stays NEW and
	// awaitFill returns at its timeout with a non-terminal status.
	_ = c
	require.False(t, res.Success)
}

func TestSubmitRejectsQuantityBelowMinNotional(t *testing.T) {
	r, _ := newRouter(t)
	res := r.Submit(context.Background(), Request{
		UserID:       "u1",
		TickID:       "t1",
		Symbol:       "BTCUSDT",
		Purpose:      PurposeOpen,
		Side:         domain.OrderBuy,
		Quantity:     money.FromFloat(0.0001),
		ReferenceMid: money.FromFloat(50000),
	})
	require.Error(t, res.Error)
	require.False(t, res.Success)
}

func TestSubmitRejectsQuantitySnappingToZero(t *testing.T) {
	r, _ := newRouter(t)
	res := r.Submit(context.Background(), Request{
		UserID:       "u1",
		TickID:       "t1",
		Symbol:       "BTCUSDT",
		Purpose:      PurposeOpen,
		Side:         domain.OrderBuy,
		Quantity:     money.FromFloat(0.00001), // below QtyStep of 0.0001
		ReferenceMid: money.FromFloat(50000),
	})
	require.Error(t, res.Error)
}

func TestIdempotencyKeyIsStableForSameRequest(t *testing.T) {
	req := Request{UserID: "u1", Symbol: "BTCUSDT", TickID: "tick-7", Purpose: PurposeClose}
	require.Equal(t, IdempotencyKey(req), IdempotencyKey(req))
	other := req
	other.Purpose = PurposeOpen
	require.NotEqual(t, IdempotencyKey(req), IdempotencyKey(other))
}

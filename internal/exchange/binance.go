package exchange

import (
	"context"
	"fmt"
	"strconv"

	binance "github.com/adshao/go-binance/v2"

	"spotengine/internal/domain"
	"spotengine/internal/marketdata"
	"spotengine/internal/money"
)

// BinanceClient adapts github.com/adshao/go-binance/v2's spot REST client to
// the Client interface (spec.md §6), grounded on yohannesjx-sniperterminal's
// use of the same SDK (there against the futures client; this repo is
// spot-only per spec.md §1) and on the teacher's binance_broker.go, which
// hand-rolled the same REST calls this SDK wraps.
type BinanceClient struct {
	sdk *binance.Client
}

// NewBinanceClient wraps a configured go-binance/v2 client.
func NewBinanceClient(apiKey, secretKey string) *BinanceClient {
	return &BinanceClient{sdk: binance.NewClient(apiKey, secretKey)}
}

func (b *BinanceClient) Name() string { return "binance" }

func (b *BinanceClient) GetTicker(ctx context.Context, symbol string) (marketdata.Ticker, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	books, err := b.sdk.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil || len(books) == 0 {
		return marketdata.Ticker{}, fmt.Errorf("binance: book ticker %s: %w", symbol, err)
	}
	book := books[0]

	stats, err := b.sdk.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil || len(stats) == 0 {
		return marketdata.Ticker{}, fmt.Errorf("binance: 24h stats %s: %w", symbol, err)
	}
	stat := stats[0]

	bid, err := money.FromString(book.BidPrice)
	if err != nil {
		return marketdata.Ticker{}, err
	}
	ask, err := money.FromString(book.AskPrice)
	if err != nil {
		return marketdata.Ticker{}, err
	}
	last, err := money.FromString(stat.LastPrice)
	if err != nil {
		return marketdata.Ticker{}, err
	}
	quoteVol, err := money.FromString(stat.QuoteVolume)
	if err != nil {
		return marketdata.Ticker{}, err
	}

	return marketdata.Ticker{
		LastPrice:      last,
		Bid:            bid,
		Ask:            ask,
		QuoteVolume24h: quoteVol,
	}, nil
}

func (b *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketdata.Candle, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	raw, err := b.sdk.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}
	out := make([]marketdata.Candle, 0, len(raw))
	for _, k := range raw {
		o, _ := strconv.ParseFloat(k.Open, 64)
		h, _ := strconv.ParseFloat(k.High, 64)
		l, _ := strconv.ParseFloat(k.Low, 64)
		c, _ := strconv.ParseFloat(k.Close, 64)
		v, _ := strconv.ParseFloat(k.Volume, 64)
		out = append(out, marketdata.Candle{
			OpenTime: msToTime(k.OpenTime),
			Open:     o,
			High:     h,
			Low:      l,
			Close:    c,
			Volume:   v,
		})
	}
	return out, nil
}

func (b *BinanceClient) GetDepth(ctx context.Context, symbol string, levels int) (marketdata.Depth, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	res, err := b.sdk.NewDepthService().Symbol(symbol).Limit(levels).Do(ctx)
	if err != nil {
		return marketdata.Depth{}, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}
	depth := marketdata.Depth{
		Bids: make([]marketdata.DepthLevel, 0, len(res.Bids)),
		Asks: make([]marketdata.DepthLevel, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		p, _ := money.FromString(b.Price)
		q, _ := money.FromString(b.Quantity)
		depth.Bids = append(depth.Bids, marketdata.DepthLevel{Price: p, Qty: q})
	}
	for _, a := range res.Asks {
		p, _ := money.FromString(a.Price)
		q, _ := money.FromString(a.Quantity)
		depth.Asks = append(depth.Asks, marketdata.DepthLevel{Price: p, Qty: q})
	}
	return depth, nil
}

func (b *BinanceClient) GetExchangeInfo(ctx context.Context) ([]SymbolFilter, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	info, err := b.sdk.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}
	out := make([]SymbolFilter, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		sf := SymbolFilter{
			Symbol:         s.Symbol,
			PricePrecision: int32(s.QuotePrecision),
			QtyPrecision:   int32(s.BaseAssetPrecision),
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				if tick, ok := f["tickSize"].(string); ok {
					sf.PriceTick, _ = money.FromString(tick)
				}
			case "LOT_SIZE":
				if step, ok := f["stepSize"].(string); ok {
					sf.QtyStep, _ = money.FromString(step)
				}
			case "MIN_NOTIONAL", "NOTIONAL":
				if mn, ok := f["minNotional"].(string); ok {
					sf.MinNotional, _ = money.FromString(mn)
				}
			}
		}
		out = append(out, sf)
	}
	return out, nil
}

func (b *BinanceClient) GetAccountInfo(ctx context.Context) ([]Balance, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	acc, err := b.sdk.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: account info: %w", err)
	}
	out := make([]Balance, 0, len(acc.Balances))
	for _, bal := range acc.Balances {
		free, _ := money.FromString(bal.Free)
		locked, _ := money.FromString(bal.Locked)
		out = append(out, Balance{Asset: bal.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

func (b *BinanceClient) SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	svc := b.sdk.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toSDKSide(req.Side)).
		Type(toSDKType(req.Type)).
		Quantity(req.Quantity.String()).
		NewClientOrderID(req.ClientOrderID)

	if req.Type == domain.OrderLimit {
		svc = svc.Price(req.Price.String()).TimeInForce(binance.TimeInForceTypeGTC)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return OrderAck{}, fmt.Errorf("binance: submit order %s: %w", req.Symbol, err)
	}
	return OrderAck{
		OrderID:       strconv.FormatInt(res.OrderID, 10),
		ClientOrderID: res.ClientOrderID,
		Status:        fromSDKStatus(res.Status),
	}, nil
}

func (b *BinanceClient) GetOrder(ctx context.Context, symbol, orderID string) (OrderInfo, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return OrderInfo{}, fmt.Errorf("binance: invalid order id %q: %w", orderID, err)
	}
	res, err := b.sdk.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return OrderInfo{}, fmt.Errorf("binance: get order %s/%s: %w", symbol, orderID, err)
	}
	qty, _ := money.FromString(res.ExecutedQuantity)
	quote, _ := money.FromString(res.CummulativeQuoteQuantity)
	fillPrice := money.Zero
	if qty.Sign() > 0 {
		fillPrice = quote.Div(qty)
	}
	return OrderInfo{
		OrderID:          orderID,
		Status:           fromSDKStatus(res.Status),
		ExecutedQty:      qty,
		CummulativeQuote: quote,
		FillPrice:        fillPrice,
		UpdateTime:       msToTime(res.UpdateTime),
	}, nil
}

func toSDKSide(s domain.OrderSide) binance.SideType {
	if s == domain.OrderSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}

func toSDKType(t domain.OrderType) binance.OrderType {
	if t == domain.OrderLimit {
		return binance.OrderTypeLimit
	}
	return binance.OrderTypeMarket
}

func fromSDKStatus(s binance.OrderStatusType) domain.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew:
		return domain.OrderNew
	case binance.OrderStatusTypePartiallyFilled:
		return domain.OrderPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return domain.OrderFilled
	case binance.OrderStatusTypeCanceled:
		return domain.OrderCanceled
	case binance.OrderStatusTypeRejected:
		return domain.OrderRejected
	case binance.OrderStatusTypeExpired:
		return domain.OrderExpired
	default:
		return domain.OrderNew
	}
}

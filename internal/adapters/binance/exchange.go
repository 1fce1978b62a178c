package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
)

const quoteAsset = "USDT"

// Exchange implements ports.Exchange and ports.HistoryProvider on top of
// the REST client. Instrument metadata is fetched once and cached; it
// changes on the venue's timescale, not the engine's.
type Exchange struct {
	client   *Client
	interval string

	metaMu sync.Mutex
	meta   map[string]domain.InstrumentMeta
}

// NewExchange wraps the client. interval is the candle size for
// historical fetches ("1h" unless configured otherwise).
func NewExchange(client *Client, interval string) *Exchange {
	if interval == "" {
		interval = "1h"
	}
	return &Exchange{
		client:   client,
		interval: interval,
		meta:     make(map[string]domain.InstrumentMeta),
	}
}

// FetchSeries loads up to limit most-recent close prices per symbol.
// Symbols that fail are skipped with a warning; the scanner drops pairs
// with missing legs on its own.
func (e *Exchange) FetchSeries(ctx context.Context, symbols []string, limit int) (map[string]domain.PriceSeries, error) {
	out := make(map[string]domain.PriceSeries, len(symbols))
	for _, sym := range symbols {
		series, err := e.fetchKlines(ctx, sym, limit)
		if err != nil {
			return nil, fmt.Errorf("binance.FetchSeries: %s: %w", sym, err)
		}
		out[sym] = series
	}
	return out, nil
}

// fetchKlines pages through /api/v3/klines. Binance caps one request at
// 1000 candles, so longer lookbacks walk backwards by endTime.
func (e *Exchange) fetchKlines(ctx context.Context, symbol string, limit int) (domain.PriceSeries, error) {
	const pageMax = 1000

	var points []domain.PricePoint
	endTime := int64(0)

	for len(points) < limit {
		want := limit - len(points)
		if want > pageMax {
			want = pageMax
		}

		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("interval", e.interval)
		params.Set("limit", strconv.Itoa(want))
		if endTime > 0 {
			params.Set("endTime", strconv.FormatInt(endTime, 10))
		}

		// Kline rows are positional arrays: [openTime, open, high, low,
		// close, volume, closeTime, ...].
		var rows [][]any
		if err := e.client.get(ctx, "/api/v3/klines", params, &rows); err != nil {
			return domain.PriceSeries{}, err
		}
		if len(rows) == 0 {
			break
		}

		page := make([]domain.PricePoint, 0, len(rows))
		for _, row := range rows {
			point, err := parseKline(row)
			if err != nil {
				return domain.PriceSeries{}, err
			}
			page = append(page, point)
		}
		points = append(page, points...)

		endTime = page[0].Timestamp.UnixMilli() - 1
		if len(rows) < want {
			break // history exhausted
		}
	}

	return domain.PriceSeries{Symbol: symbol, Points: points}, nil
}

func parseKline(row []any) (domain.PricePoint, error) {
	if len(row) < 7 {
		return domain.PricePoint{}, fmt.Errorf("malformed kline row (%d fields)", len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("malformed kline open time %v", row[0])
	}
	closeStr, ok := row[4].(string)
	if !ok {
		return domain.PricePoint{}, fmt.Errorf("malformed kline close %v", row[4])
	}
	closePrice, err := strconv.ParseFloat(closeStr, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("parse kline close: %w", err)
	}
	return domain.PricePoint{
		Timestamp: time.UnixMilli(int64(openMs)).UTC(),
		Price:     closePrice,
	}, nil
}

// LastPrice returns the latest trade price for symbol.
func (e *Exchange) LastPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := e.client.get(ctx, "/api/v3/ticker/price", params, &resp); err != nil {
		return 0, fmt.Errorf("binance.LastPrice: %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance.LastPrice: parse %q: %w", resp.Price, err)
	}
	return price, nil
}

// InstrumentMeta returns the symbol's precision and minimum-notional
// constraints, cached after the first fetch.
func (e *Exchange) InstrumentMeta(ctx context.Context, symbol string) (domain.InstrumentMeta, error) {
	e.metaMu.Lock()
	if meta, ok := e.meta[symbol]; ok {
		e.metaMu.Unlock()
		return meta, nil
	}
	e.metaMu.Unlock()

	params := url.Values{}
	params.Set("symbol", symbol)

	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := e.client.get(ctx, "/api/v3/exchangeInfo", params, &resp); err != nil {
		return domain.InstrumentMeta{}, fmt.Errorf("binance.InstrumentMeta: %s: %w", symbol, err)
	}
	if len(resp.Symbols) == 0 {
		return domain.InstrumentMeta{}, fmt.Errorf("binance.InstrumentMeta: unknown symbol %s", symbol)
	}

	meta := domain.InstrumentMeta{Symbol: symbol}
	for _, f := range resp.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			meta.QtyPrecision = stepPrecision(f.StepSize)
		case "PRICE_FILTER":
			meta.PricePrecision = stepPrecision(f.TickSize)
		case "NOTIONAL", "MIN_NOTIONAL":
			if v, err := strconv.ParseFloat(f.MinNotional, 64); err == nil {
				meta.MinNotional = v
			}
		}
	}

	e.metaMu.Lock()
	e.meta[symbol] = meta
	e.metaMu.Unlock()
	return meta, nil
}

// stepPrecision converts a step size like "0.00100000" into its decimal
// places (3). A step of "1.00000000" is precision 0.
func stepPrecision(step string) int {
	idx := strings.Index(step, ".")
	if idx < 0 {
		return 0
	}
	frac := strings.TrimRight(step[idx+1:], "0")
	return len(frac)
}

// AccountEquity returns the free quote-asset balance.
func (e *Exchange) AccountEquity(ctx context.Context) (float64, error) {
	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := e.client.signedGet(ctx, "/api/v3/account", nil, &resp); err != nil {
		return 0, fmt.Errorf("binance.AccountEquity: %w", err)
	}
	for _, b := range resp.Balances {
		if b.Asset != quoteAsset {
			continue
		}
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return 0, fmt.Errorf("binance.AccountEquity: parse %q: %w", b.Free, err)
		}
		return free, nil
	}
	return 0, nil
}

// orderResponse is the FULL response of POST /api/v3/order.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	CummQuoteQty  string `json:"cummulativeQuoteQty"`
	Fills         []struct {
		Commission string `json:"commission"`
	} `json:"fills"`
}

// SubmitMarketOrder places one market order and classifies the result.
// Client errors come back as permanent failures; anything where the
// order may or may not exist on the venue — timeouts, connection drops,
// server errors — comes back transient so the engine runs its ghost
// verification instead of resubmitting blind.
func (e *Exchange) SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) domain.SubmitResult {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	params.Set("newClientOrderId", req.ClientID)
	params.Set("newOrderRespType", "FULL")

	var resp orderResponse
	if err := e.client.signedOnce(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		var se statusError
		if errors.As(err, &se) && se.status >= 400 && se.status < 500 && se.status != http.StatusTooManyRequests {
			return domain.SubmitResult{Outcome: domain.SubmitPermanentFailure, Err: err}
		}
		return domain.SubmitResult{Outcome: domain.SubmitTransientFailure, Err: err}
	}

	order, err := mapOrder(req, resp)
	if err != nil {
		// Got a 2xx but cannot trust the payload: the order may exist.
		return domain.SubmitResult{Outcome: domain.SubmitTransientFailure, Err: err}
	}
	if order.FilledQty <= 0 {
		return domain.SubmitResult{
			Outcome: domain.SubmitPermanentFailure,
			Order:   order,
			Err:     fmt.Errorf("binance.SubmitMarketOrder: order %s expired with no fill", req.ClientID),
		}
	}
	return domain.SubmitResult{Outcome: domain.SubmitFilled, Order: order}
}

// QueryOrder looks an order up by its client id. found=false with a nil
// error means the venue has no record of it.
func (e *Exchange) QueryOrder(ctx context.Context, symbol, clientID string) (domain.Order, bool, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientID)

	var resp orderResponse
	if err := e.client.signedGet(ctx, "/api/v3/order", params, &resp); err != nil {
		var se statusError
		if errors.As(err, &se) && se.api.Code == -2013 { // "Order does not exist"
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, fmt.Errorf("binance.QueryOrder: %s: %w", clientID, err)
	}

	order, err := mapOrder(domain.OrderRequest{ClientID: clientID, Symbol: symbol}, resp)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("binance.QueryOrder: %s: %w", clientID, err)
	}
	return order, true, nil
}

// mapOrder converts the wire response into the domain order.
func mapOrder(req domain.OrderRequest, resp orderResponse) (domain.Order, error) {
	filled, err := strconv.ParseFloat(resp.ExecutedQty, 64)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse executedQty %q: %w", resp.ExecutedQty, err)
	}
	quote, err := strconv.ParseFloat(resp.CummQuoteQty, 64)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse cummulativeQuoteQty %q: %w", resp.CummQuoteQty, err)
	}

	var avg float64
	if filled > 0 {
		avg = quote / filled
	}

	var fee float64
	for _, f := range resp.Fills {
		if v, err := strconv.ParseFloat(f.Commission, 64); err == nil {
			fee += v
		}
	}

	return domain.Order{
		ClientID:     resp.ClientOrderID,
		VenueOrderID: strconv.FormatInt(resp.OrderID, 10),
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     req.Quantity,
		FilledQty:    filled,
		AvgPrice:     avg,
		FeePaid:      fee,
		Status:       mapStatus(resp.Status, filled, req.Quantity),
		SubmittedAt:  time.Now().UTC(),
	}, nil
}

func mapStatus(venue string, filled, requested float64) domain.OrderStatus {
	switch venue {
	case "FILLED":
		return domain.OrderFilled
	case "PARTIALLY_FILLED", "EXPIRED":
		if filled > 0 && filled < requested {
			return domain.OrderPartiallyFilled
		}
		if filled <= 0 {
			return domain.OrderRejected
		}
		return domain.OrderFilled
	case "REJECTED", "CANCELED":
		return domain.OrderRejected
	default:
		return domain.OrderSubmitted
	}
}

package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	defaultWSBase = "wss://stream.binance.com:9443"

	handshakeTimeout = 10 * time.Second
	pongWait         = 90 * time.Second
	reconnectWait    = 2 * time.Second
	maxReconnectWait = 60 * time.Second
	feedBuffer       = 1024
)

// Feed implements ports.PriceFeed over Binance's combined trade stream.
// It reconnects with exponential backoff on any connection loss and
// resubscribes the same stream set; consumers only ever see one channel.
type Feed struct {
	base string
}

// NewFeed creates a Feed. An empty base falls back to production.
func NewFeed(base string) *Feed {
	if base == "" {
		base = defaultWSBase
	}
	return &Feed{base: base}
}

// tradeEvent is one message from the combined stream wrapper.
type tradeEvent struct {
	Data struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Price     string `json:"p"`
		TradeTime int64  `json:"T"`
	} `json:"data"`
}

// Subscribe opens the combined stream for the given symbols and returns
// the tick channel. The channel is closed when ctx is cancelled; mid-run
// disconnects are handled internally with reconnection, not surfaced.
func (f *Feed) Subscribe(ctx context.Context, symbols []string) (<-chan domain.Tick, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("binance.Subscribe: no symbols")
	}

	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	url := f.base + "/stream?streams=" + strings.Join(streams, "/")

	// Fail fast on the first dial so a bad endpoint or symbol set is a
	// startup error, not a silent retry loop.
	conn, err := dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("binance.Subscribe: %w", err)
	}

	ticks := make(chan domain.Tick, feedBuffer)
	go f.run(ctx, url, conn, ticks)
	return ticks, nil
}

// run pumps one connection after another into the tick channel until ctx
// is cancelled.
func (f *Feed) run(ctx context.Context, url string, conn *websocket.Conn, ticks chan<- domain.Tick) {
	defer close(ticks)

	wait := reconnectWait
	for {
		err := f.readLoop(ctx, conn, ticks)
		if conn != nil {
			conn.Close()
		}
		if ctx.Err() != nil {
			return
		}

		slog.Warn("binance: stream disconnected, reconnecting",
			"err", err,
			"wait", wait,
		)
		if !sleepCtx(ctx, wait) {
			return
		}
		wait *= 2
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}

		conn, err = dial(ctx, url)
		if err != nil {
			slog.Warn("binance: reconnect failed", "err", err)
			conn = nil
			continue
		}
		wait = reconnectWait
		slog.Info("binance: stream reconnected")
	}
}

// readLoop reads trade events until the connection breaks or ctx ends.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn, ticks chan<- domain.Tick) error {
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(payload), time.Now().Add(5*time.Second))
	})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var event tradeEvent
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if event.Data.EventType != "trade" {
			continue
		}
		price, err := strconv.ParseFloat(event.Data.Price, 64)
		if err != nil || price <= 0 {
			slog.Debug("binance: malformed trade price skipped",
				"symbol", event.Data.Symbol,
				"price", event.Data.Price,
			)
			continue
		}

		tick := domain.Tick{
			Symbol:    event.Data.Symbol,
			Price:     price,
			Timestamp: time.UnixMilli(event.Data.TradeTime).UTC(),
		}
		select {
		case ticks <- tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// sleepCtx waits for d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

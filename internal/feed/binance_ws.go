package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

const (
	binanceReadWait       = 3 * time.Minute
	binanceReconnectDelay = 2 * time.Second
	maxBinanceReconnect   = 60 * time.Second
)

// binanceTrade is the JSON shape of a trade event on the <symbol>@trade
// stream.
type binanceTrade struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// BinanceFeed streams spot trades for one symbol from the Binance WebSocket
// API and pushes each print into the handler as an oracle price update.
type BinanceFeed struct {
	wsHost   string
	symbol   string
	asset    string
	onOracle OracleUpdateHandler
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

var _ OraclePort = (*BinanceFeed)(nil)

// NewBinanceFeed creates an oracle feed for the given symbol (e.g. "btcusdt").
// asset is the name reported on each update (e.g. "BTC").
func NewBinanceFeed(wsHost, symbol, asset string, onOracle OracleUpdateHandler, logger *slog.Logger) *BinanceFeed {
	return &BinanceFeed{
		wsHost:   wsHost,
		symbol:   strings.ToLower(symbol),
		asset:    asset,
		onOracle: onOracle,
		logger:   logger.With(slog.String("component", "binance_feed")),
		done:     make(chan struct{}),
	}
}

// Run connects and blocks until ctx is cancelled or Close is called.
// Reconnects with exponential backoff on disconnect.
func (f *BinanceFeed) Run(ctx context.Context) error {
	delay := binanceReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("binance ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBinanceReconnect {
			delay = maxBinanceReconnect
		}
	}
}

func (f *BinanceFeed) runConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/ws/%s@trade", strings.TrimRight(f.wsHost, "/"), f.symbol)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("feed: binance connect: %w", err)
	}
	defer conn.Close()

	// Binance pings every few minutes; refresh the deadline on each one.
	conn.SetReadDeadline(time.Now().Add(binanceReadWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(binanceReadWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	f.logger.Info("binance ws connected", slog.String("symbol", f.symbol))

	// Close the connection when the context ends so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
			return
		}
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: binance read: %w", err)
		}
		f.handleMessage(raw)
		conn.SetReadDeadline(time.Now().Add(binanceReadWait))
	}
}

func (f *BinanceFeed) handleMessage(raw []byte) {
	var tr binanceTrade
	if err := json.Unmarshal(raw, &tr); err != nil {
		return
	}
	if tr.Event != "trade" {
		return
	}
	price, err := strconv.ParseFloat(tr.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	ts := time.Now()
	if tr.TradeTime > 0 {
		ts = time.UnixMilli(tr.TradeTime)
	}
	if f.onOracle != nil {
		f.onOracle(domain.OracleUpdate{
			Asset:     f.asset,
			Price:     price,
			Timestamp: ts,
		})
	}
}

// Close stops the feed.
func (f *BinanceFeed) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

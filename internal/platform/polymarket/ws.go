package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// BookHandler is called for every full orderbook snapshot received on the
// book channel.
type BookHandler func(upd domain.MarketUpdate)

// WSClient is a connection-scoped WebSocket client for the Polymarket CLOB
// market data feed. It lives for one connection: when the read loop exits,
// Done is closed and the owner builds a fresh client to reconnect.
type WSClient struct {
	wsURL string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu    sync.RWMutex
	bookHandlers []BookHandler

	done     chan struct{}
	doneOnce sync.Once
}

// NewWSClient creates a client for the given market channel endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// OnBook registers a handler for book snapshots. Register before Connect.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: client closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	return nil
}

// Subscribe subscribes the book channel for the given token IDs.
func (w *WSClient) Subscribe(ctx context.Context, tokenIDs []string) error {
	return w.sendCommand(WSCommand{Type: "subscribe", Channel: "book", Assets: tokenIDs})
}

// Unsubscribe drops the book subscription for the given token IDs.
func (w *WSClient) Unsubscribe(ctx context.Context, tokenIDs []string) error {
	return w.sendCommand(WSCommand{Type: "unsubscribe", Channel: "book", Assets: tokenIDs})
}

// Done is closed when the connection has terminated for any reason.
func (w *WSClient) Done() <-chan struct{} {
	return w.done
}

// Close shuts down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.doneOnce.Do(func() { close(w.done) })

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal command: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames until the connection drops, then signals Done so the
// owning feed can rebuild the client.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer w.doneOnce.Do(func() { close(w.done) })
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		w.handleMessage(raw)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage routes a raw frame to the book handlers. The market channel
// also delivers arrays of events in a single frame.
func (w *WSClient) handleMessage(raw []byte) {
	var batch []json.RawMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		batch = []json.RawMessage{raw}
	}

	for _, msg := range batch {
		var envelope struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			continue // drop unparseable messages
		}
		if envelope.EventType != "book" {
			continue
		}
		var book BookMessage
		if err := json.Unmarshal(msg, &book); err != nil {
			continue
		}
		upd := book.ToMarketUpdate()

		w.handlerMu.RLock()
		handlers := w.bookHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(upd)
		}
	}
}

package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/marketsurveil/surveil/internal/domain"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsChannelDepth     = 1000
	wsMaxReconnect     = 60 * time.Second
)

// WSOrderBookStream is the live order-book adapter: it dials a
// WebSocket feed, subscribes to a set of market IDs, and decodes each
// frame into a domain.OrderBook. Reconnect with exponential backoff is
// owned here; consumers just read the channel Subscribe returns.
type WSOrderBookStream struct {
	url            string
	reconnectDelay time.Duration
	log            *zap.Logger

	dropped atomic.Int64
}

// NewWSOrderBookStream builds a stream adapter for url. A nil logger
// is replaced with a no-op one.
func NewWSOrderBookStream(url string, reconnectDelay time.Duration, log *zap.Logger) *WSOrderBookStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSOrderBookStream{url: url, reconnectDelay: reconnectDelay, log: log}
}

// Dropped reports how many decoded frames were discarded because the
// subscriber channel was full.
func (w *WSOrderBookStream) Dropped() int64 { return w.dropped.Load() }

// wsSubscribeMsg is the outbound subscription request.
type wsSubscribeMsg struct {
	Type      string   `json:"type"`
	MarketIDs []string `json:"market_ids"`
}

// wsBookFrame is one inbound order-book frame. Levels are
// [price, size] pairs.
type wsBookFrame struct {
	Type     string       `json:"type"`
	MarketID string       `json:"market_id"`
	TS       int64        `json:"ts"` // unix millis
	Bids     [][2]float64 `json:"bids"`
	Asks     [][2]float64 `json:"asks"`
}

// Subscribe implements ports.OrderBookStream. The returned channel is
// bounded; when the consumer falls behind, the newest frame is dropped
// and counted rather than blocking the read loop. The channel closes
// when ctx is cancelled.
func (w *WSOrderBookStream) Subscribe(ctx context.Context, marketIDs []string) (<-chan *domain.OrderBook, error) {
	ch := make(chan *domain.OrderBook, wsChannelDepth)
	go w.run(ctx, marketIDs, ch)
	return ch, nil
}

func (w *WSOrderBookStream) run(ctx context.Context, marketIDs []string, ch chan<- *domain.OrderBook) {
	defer close(ch)

	delay := w.reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := w.connectAndListen(ctx, marketIDs, ch)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.log.Warn("order book stream disconnected", zap.Error(err), zap.Duration("reconnect_in", delay))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > wsMaxReconnect {
			delay = wsMaxReconnect
		}
	}
}

func (w *WSOrderBookStream) connectAndListen(ctx context.Context, marketIDs []string, ch chan<- *domain.OrderBook) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsSubscribeMsg{Type: "subscribe", MarketIDs: marketIDs}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		ob, ok := decodeBookFrame(message)
		if !ok {
			continue // malformed frame: skip the record, not the stream
		}
		select {
		case ch <- ob:
		default:
			w.dropped.Add(1)
		}
	}
}

// decodeBookFrame parses and validates one frame. Frames with an
// unknown type, a missing market ID, or prices outside [0,1] are
// rejected. Bids are sorted descending and asks ascending so the book
// invariant holds regardless of the feed's own ordering.
func decodeBookFrame(message []byte) (*domain.OrderBook, bool) {
	var frame wsBookFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return nil, false
	}
	if frame.Type != "orderbook_snapshot" && frame.Type != "orderbook_delta" {
		return nil, false
	}
	if frame.MarketID == "" {
		return nil, false
	}

	levels := func(pairs [][2]float64) ([]domain.PriceLevel, bool) {
		out := make([]domain.PriceLevel, 0, len(pairs))
		for _, p := range pairs {
			if p[0] < 0 || p[0] > 1 || p[1] < 0 {
				return nil, false
			}
			out = append(out, domain.PriceLevel{Price: p[0], Size: p[1]})
		}
		return out, true
	}

	bids, ok := levels(frame.Bids)
	if !ok {
		return nil, false
	}
	asks, ok := levels(frame.Asks)
	if !ok {
		return nil, false
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	if len(bids) > 0 && len(asks) > 0 && asks[0].Price < bids[0].Price {
		return nil, false
	}

	ts := time.Now()
	if frame.TS > 0 {
		ts = time.UnixMilli(frame.TS)
	}
	return &domain.OrderBook{
		MarketID:  frame.MarketID,
		Timestamp: ts,
		Bids:      bids,
		Asks:      asks,
	}, true
}

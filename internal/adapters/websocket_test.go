package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDecodeBookFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		ok    bool
	}{
		{
			name:  "valid snapshot",
			frame: `{"type":"orderbook_snapshot","market_id":"m1","ts":1717250000000,"bids":[[0.54,100],[0.53,200]],"asks":[[0.56,150]]}`,
			ok:    true,
		},
		{
			name:  "unknown type",
			frame: `{"type":"heartbeat"}`,
			ok:    false,
		},
		{
			name:  "missing market id",
			frame: `{"type":"orderbook_snapshot","bids":[[0.5,10]],"asks":[]}`,
			ok:    false,
		},
		{
			name:  "price above one rejected",
			frame: `{"type":"orderbook_snapshot","market_id":"m1","bids":[[1.2,10]],"asks":[]}`,
			ok:    false,
		},
		{
			name:  "crossed book rejected",
			frame: `{"type":"orderbook_snapshot","market_id":"m1","bids":[[0.6,10]],"asks":[[0.5,10]]}`,
			ok:    false,
		},
		{
			name:  "not json",
			frame: `{{{`,
			ok:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob, ok := decodeBookFrame([]byte(tt.frame))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if ob.MarketID != "m1" {
				t.Errorf("market id = %q", ob.MarketID)
			}
			best, _ := ob.BestBid()
			if best.Price != 0.54 {
				t.Errorf("best bid = %v, want 0.54 (descending order)", best.Price)
			}
		})
	}
}

func TestDecodeBookFrameSortsLevels(t *testing.T) {
	frame := `{"type":"orderbook_snapshot","market_id":"m1","bids":[[0.50,10],[0.54,20]],"asks":[[0.60,5],[0.56,7]]}`
	ob, ok := decodeBookFrame([]byte(frame))
	if !ok {
		t.Fatal("expected frame to decode")
	}
	if ob.Bids[0].Price != 0.54 || ob.Bids[1].Price != 0.50 {
		t.Errorf("bids not descending: %+v", ob.Bids)
	}
	if ob.Asks[0].Price != 0.56 || ob.Asks[1].Price != 0.60 {
		t.Errorf("asks not ascending: %+v", ob.Asks)
	}
}

func TestWSOrderBookStreamRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Expect a subscribe message first.
		var sub wsSubscribeMsg
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub.Type != "subscribe" || len(sub.MarketIDs) != 1 {
			t.Errorf("unexpected subscription: %+v", sub)
		}

		frames := []wsBookFrame{
			{Type: "orderbook_snapshot", MarketID: "m1", TS: 1717250000000, Bids: [][2]float64{{0.54, 100}}, Asks: [][2]float64{{0.56, 150}}},
			{Type: "heartbeat"}, // skipped
			{Type: "orderbook_snapshot", MarketID: "m1", TS: 1717250001000, Bids: [][2]float64{{0.55, 90}}, Asks: [][2]float64{{0.57, 140}}},
		}
		for _, f := range frames {
			data, _ := json.Marshal(f)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	stream := NewWSOrderBookStream(wsURL, time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := stream.Subscribe(ctx, []string{"m1"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	var got int
	for got < 2 {
		select {
		case ob := <-ch:
			if ob == nil {
				t.Fatal("channel closed before both frames arrived")
			}
			if ob.MarketID != "m1" {
				t.Errorf("market id = %q", ob.MarketID)
			}
			got++
		case <-ctx.Done():
			t.Fatalf("timed out after %d frames", got)
		}
	}
	cancel()
}

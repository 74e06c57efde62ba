package stream

import (
	"testing"
	"time"

	"agromarket_backend/services/marketdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d, still %d", want, h.ClientCount())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestClientCountTracksRegistrations(t *testing.T) {
	h := NewHub()

	c1 := &client{send: make(chan []byte, sendQueueSize)}
	c2 := &client{send: make(chan []byte, sendQueueSize)}

	h.register <- c1
	waitForCount(t, h, 1)
	h.register <- c2
	waitForCount(t, h, 2)

	h.unregister <- c1
	waitForCount(t, h, 1)

	// Unregistering twice is a no-op
	h.unregister <- c1
	h.unregister <- c2
	waitForCount(t, h, 0)
}

func TestBroadcastReachesClientAndDropsSlowOnes(t *testing.T) {
	h := NewHub()

	fast := &client{send: make(chan []byte, sendQueueSize)}
	slow := &client{send: make(chan []byte)} // zero capacity, never drained

	h.register <- fast
	h.register <- slow
	waitForCount(t, h, 2)

	h.PublishPrices([]marketdata.Observation{{
		Commodity:  "maize",
		Market:     "kampala",
		Price:      decimal.NewFromInt(100),
		ObservedAt: time.Now(),
	}})

	select {
	case payload := <-fast.send:
		assert.Contains(t, string(payload), `"type":"prices"`)
		assert.Contains(t, string(payload), "maize")
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached the client")
	}

	// The slow client could not take the payload and was dropped
	waitForCount(t, h, 1)
	_, open := <-slow.send
	require.False(t, open, "a dropped client's send channel is closed")
}

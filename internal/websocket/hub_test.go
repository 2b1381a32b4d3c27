package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(zap.NewNop())
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func receive(t *testing.T, c *Client) (Event, bool) {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		if !ok {
			return Event{}, false
		}
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev, true
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}, false
	}
}

func TestHub_BroadcastsToEveryClient(t *testing.T) {
	h := startHub(t)

	a := &Client{Hub: h, Send: make(chan []byte, 4), ID: "a"}
	b := &Client{Hub: h, Send: make(chan []byte, 4), ID: "b"}
	h.Register <- a
	h.Register <- b

	h.Broadcast(EventTicketPurchased, map[string]int{"raffleId": 1, "quantity": 3})

	for _, c := range []*Client{a, b} {
		ev, ok := receive(t, c)
		require.True(t, ok)
		assert.Equal(t, EventTicketPurchased, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, 2, h.ClientCount())
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := startHub(t)

	// buffer already full, so the next event cannot be delivered
	slow := &Client{Hub: h, Send: make(chan []byte, 1), ID: "slow"}
	slow.Send <- []byte("pending")
	h.Register <- slow

	h.Broadcast(EventRaffleCreated, nil)

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	msg, ok := <-slow.Send
	require.True(t, ok)
	assert.Equal(t, []byte("pending"), msg)
	_, ok = <-slow.Send
	assert.False(t, ok, "slow client channel should be closed")
}

func TestHub_StopIsSafeConcurrently(t *testing.T) {
	h := NewHub(zap.NewNop())
	go h.Run()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Stop()
		}()
	}
	wg.Wait()

	select {
	case <-h.Done():
	default:
		t.Fatal("hub not stopped")
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := startHub(t)

	c := &Client{Hub: h, Send: make(chan []byte, 1), ID: "c"}
	h.Register <- c
	h.Unregister <- c

	_, ok := <-c.Send
	assert.False(t, ok)
}

func TestHub_BroadcastAfterStopDoesNotBlock(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(EventDonationCreated, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked")
	}
}

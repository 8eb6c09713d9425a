package api

import (
	"sync"
	"testing"
)

func (h *Hub) clientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func TestHub_BroadcastToDropsStalledClient(t *testing.T) {
	hub := NewHub(nil)
	client := newWSClient(hub, nil, "usr-1")
	hub.register(client)

	// Fill the send buffer so the next broadcast cannot be queued.
	for i := 0; i < wsSendBufferSize; i++ {
		client.send <- []byte("{}")
	}

	hub.BroadcastTo("usr-1", Event{Type: "sale.created"})

	if got := hub.clientCount("usr-1"); got != 0 {
		t.Errorf("clients after drop = %d, want 0", got)
	}

	// The dropped client's channel is closed once the buffer drains.
	for i := 0; i < wsSendBufferSize; i++ {
		<-client.send
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel still open after drop")
	}
}

func TestHub_ConcurrentBroadcastAndDrop(t *testing.T) {
	hub := NewHub(nil)

	// Stalled clients are dropped mid-broadcast; concurrent broadcasts to
	// the same user must never send on a channel the drop just closed.
	for i := 0; i < 200; i++ {
		for j := 0; j < 4; j++ {
			c := newWSClient(hub, nil, "usr-1")
			hub.register(c)
			for k := 0; k < wsSendBufferSize; k++ {
				c.send <- []byte("{}")
			}
		}

		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				hub.BroadcastTo("usr-1", Event{Type: "sale.created"})
			}()
		}
		wg.Wait()
	}

	if got := hub.clientCount("usr-1"); got != 0 {
		t.Errorf("clients remaining = %d, want 0", got)
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	client := newWSClient(hub, nil, "usr-1")
	hub.register(client)

	hub.unregister(client)
	hub.unregister(client)

	if _, ok := <-client.send; ok {
		t.Error("send channel still open after unregister")
	}
}

package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"xau-signal/internal/metrics"
	"xau-signal/internal/poller"
)

// Envelope is the frame pushed to WebSocket clients.
type Envelope struct {
	Type    string             `json:"type"`
	Seq     int64              `json:"seq"`
	TS      string             `json:"ts"`
	Data    *poller.Evaluation `json:"data,omitempty"`
	Initial bool               `json:"initial,omitempty"`
}

// Hub fans evaluations out to WebSocket clients. Recent envelopes are kept
// in a replay buffer so a reconnecting client can catch up by sequence.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	latest  []byte

	replay  *ReplayBuffer
	metrics *metrics.Metrics
}

// NewHub creates a hub keeping the last replaySize envelopes.
func NewHub(replaySize int, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
		metrics: m,
	}
}

// Publish broadcasts ev to every client. Clients whose send queue is full
// miss the frame and can recover it via the replay buffer.
func (h *Hub) Publish(ev poller.Evaluation) {
	h.mu.Lock()
	h.seq++
	seq := h.seq
	data, err := json.Marshal(Envelope{
		Type: "evaluation",
		Seq:  seq,
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
		Data: &ev,
	})
	if err != nil {
		h.mu.Unlock()
		log.Printf("[gateway] marshal evaluation: %v", err)
		return
	}
	h.latest = data
	h.replay.Push(seq, data)

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		log.Printf("[gateway] evaluation %d dropped for %d slow client(s)", seq, dropped)
	}
}

// Seq returns the sequence number of the last published envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Register attaches an upgraded connection. A client resuming from a
// known sinceSeq first receives the buffered envelopes after it; any
// other client receives the latest envelope.
func (h *Hub) Register(conn *websocket.Conn, sinceSeq int64) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	switch {
	case sinceSeq > 0 && sinceSeq <= h.seq:
		for _, data := range h.replay.Since(sinceSeq) {
			if len(c.send) == cap(c.send) {
				break
			}
			c.send <- data
		}
	case h.latest != nil:
		c.send <- markInitial(h.latest)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient detaches c and closes its queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func markInitial(data []byte) []byte {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return data
	}
	env.Initial = true
	out, err := json.Marshal(env)
	if err != nil {
		return data
	}
	return out
}

package server

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mikedelcastillo/pip-pip/pkg/transport"
)

// idAlphabet is the base-36 alphabet of connection ids.
const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// maxIDAttempts bounds the search for a free connection id.
const maxIDAttempts = 64

// ErrIDSpaceExhausted is returned when no free connection id was found.
var ErrIDSpaceExhausted = errors.New("server: no free connection id")

// Client is one connected peer.
type Client struct {
	id        string
	conn      *transport.Conn
	createdAt time.Time

	// pingMu guards the outstanding ping. pingSeq skips 0 when it wraps at
	// the uint32 width of the reserved ping field, so 0 never matches.
	pingMu     sync.Mutex
	pingSeq    uint32
	pingSentAt time.Time
	latency    atomic.Int64
}

// ID returns the connection id assigned to the client.
func (c *Client) ID() string { return c.id }

// CreatedAt returns when the client connected.
func (c *Client) CreatedAt() time.Time { return c.createdAt }

// Latency returns the last measured ping round trip, or 0 if the client
// has not echoed a ping yet.
func (c *Client) Latency() time.Duration { return time.Duration(c.latency.Load()) }

// nextPing advances the ping counter and records when it was sent.
func (c *Client) nextPing(now time.Time) uint32 {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	c.pingSeq++
	if c.pingSeq == 0 {
		c.pingSeq = 1
	}
	c.pingSentAt = now
	return c.pingSeq
}

// pong records the round trip of an echoed ping. Only the first echo of
// the outstanding ping counts; older, repeated and unsolicited echoes are
// ignored.
func (c *Client) pong(n uint32, now time.Time) bool {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	if n == 0 || n != c.pingSeq || c.pingSentAt.IsZero() {
		return false
	}
	c.latency.Store(int64(now.Sub(c.pingSentAt)))
	c.pingSentAt = time.Time{}
	return true
}

// Hub is the set of connected clients.
// It assigns connection ids and fans group frames out to peers.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	idLength int

	totalJoined atomic.Uint64
	totalLeft   atomic.Uint64

	logger *slog.Logger
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Active      int
	TotalJoined uint64
	TotalLeft   uint64
}

// NewHub creates an empty hub that assigns ids of idLength characters.
func NewHub(idLength int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		idLength: idLength,
		logger:   logger,
	}
}

// Add registers conn under a fresh random id.
func (h *Hub) Add(conn *transport.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := 0; i < maxIDAttempts; i++ {
		id, err := randomID(h.idLength)
		if err != nil {
			return nil, err
		}
		if _, taken := h.clients[id]; taken {
			continue
		}
		c := &Client{id: id, conn: conn, createdAt: time.Now()}
		h.clients[id] = c
		h.totalJoined.Add(1)
		return c, nil
	}
	return nil, ErrIDSpaceExhausted
}

// Remove drops the client with id. Removing an unknown id is a no-op.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.totalLeft.Add(1)
	}
}

// Get returns the client with id, or nil.
func (h *Hub) Get(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IDs returns the connected client ids in sorted order.
func (h *Hub) IDs() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Stats returns the hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Active:      h.Count(),
		TotalJoined: h.totalJoined.Load(),
		TotalLeft:   h.totalLeft.Load(),
	}
}

// snapshot returns the clients other than except.
func (h *Hub) snapshot(except string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != except {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast sends units as one group frame to every client except from and
// returns the number of clients it was delivered to. A client whose write
// fails is closed; its read loop removes it from the hub.
func (h *Hub) Broadcast(from string, units ...[]byte) int {
	delivered := 0
	for _, c := range h.snapshot(from) {
		if err := c.conn.Send(units...); err != nil {
			h.logger.Debug("broadcast failed", "conn", c.id, "error", err)
			c.conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAll closes every client connection.
func (h *Hub) CloseAll() {
	for _, c := range h.snapshot("") {
		c.conn.Close()
	}
}

// randomID returns n random base-36 characters.
func randomID(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n+8)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 252 is the largest multiple of 36 that fits a byte.
			if b >= 252 {
				continue
			}
			out = append(out, idAlphabet[b%36])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mikedelcastillo/pip-pip/pkg/packets"
	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
	"github.com/mikedelcastillo/pip-pip/pkg/transport"
)

// minPayloadBytes is the smallest accepted -payload-bytes. Tokens longer
// than the payload size are sent unpadded.
const minPayloadBytes = 8

type benchCounters struct {
	framesSent     atomic.Uint64
	unitsSent      atomic.Uint64
	bytesSent      atomic.Uint64
	framesReceived atomic.Uint64
	unitsReceived  atomic.Uint64
	pingsReceived  atomic.Uint64

	dialFailures   atomic.Uint64
	writeFailures  atomic.Uint64
	readFailures   atomic.Uint64
	decodeFailures atomic.Uint64
	tokenInvalid   atomic.Uint64
}

type benchClient struct {
	index    int
	connID   string
	conn     *transport.Conn
	reg      *protocol.Registry
	cfg      benchConfig
	counters *benchCounters
}

// dialClient connects and waits for the connection id.
func dialClient(ctx context.Context, url string, index int, cfg benchConfig, counters *benchCounters) (*benchClient, error) {
	reg := packets.Registry()
	conn, _, err := transport.Dial(ctx, url, reg,
		transport.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		transport.WithConfig(transport.Config{
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   5 * time.Second,
			MaxMessageSize: 1 << 20,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	results, err := conn.Receive(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	if len(results) != 1 || results[0].Err != nil || results[0].Decoded.ID != protocol.IDConnectionReconcile {
		conn.Close()
		return nil, fmt.Errorf("reconcile: unexpected first frame %+v", results)
	}

	return &benchClient{
		index:    index,
		connID:   results[0].Decoded.Value.Str(protocol.FieldConnectionID),
		conn:     conn,
		reg:      reg,
		cfg:      cfg,
		counters: counters,
	}, nil
}

func (c *benchClient) sendLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / c.cfg.RPS))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			units, err := c.frame(seq, now)
			if err != nil {
				c.counters.writeFailures.Add(1)
				return
			}
			if err := c.conn.Send(units...); err != nil {
				if ctx.Err() == nil {
					c.counters.writeFailures.Add(1)
				}
				return
			}
			c.counters.framesSent.Add(1)
			c.counters.unitsSent.Add(uint64(len(units)))
			n := len(units) - 1
			for _, u := range units {
				n += len(u)
			}
			c.counters.bytesSent.Add(uint64(n))
		}
	}
}

// frame builds the units of one outbound frame.
func (c *benchClient) frame(seq uint64, now time.Time) ([][]byte, error) {
	chat, err := c.reg.Encode(packets.UploadChat, protocol.Record{
		"message": protocol.StringValue(makeToken(c.index, seq, now, c.cfg.PayloadBytes)),
	})
	if err != nil {
		return nil, err
	}

	angle := float64(seq%360) * math.Pi / 180
	move, err := c.reg.Encode(packets.MovePlayer, packets.PlayerMove{
		ID:                    c.connID,
		Position:              packets.Vector{X: 100 * math.Cos(angle), Y: 100 * math.Sin(angle)},
		Velocity:              packets.Vector{X: -math.Sin(angle), Y: math.Cos(angle)},
		AccelerationMagnitude: 1,
		AccelerationAngle:     angle,
		TargetRotation:        angle,
	}.Record())
	if err != nil {
		return nil, err
	}
	return [][]byte{chat, move}, nil
}

func (c *benchClient) readLoop(ctx context.Context, samples chan<- time.Duration) {
	for {
		results, err := c.conn.Receive(context.Background())
		if err != nil {
			if ctx.Err() == nil {
				c.counters.readFailures.Add(1)
			}
			return
		}
		received := time.Now()
		c.counters.framesReceived.Add(1)

		for _, r := range results {
			if r.Err != nil {
				c.counters.decodeFailures.Add(1)
				continue
			}
			c.counters.unitsReceived.Add(1)

			switch r.Decoded.ID {
			case protocol.IDPing:
				c.counters.pingsReceived.Add(1)
				c.conn.SendPacket(protocol.IDPing, r.Decoded.Value)
			case packets.UploadChat:
				sent, ok := parseToken(packets.MessageFrom(r.Decoded.Value).Text)
				if !ok {
					c.counters.tokenInvalid.Add(1)
					continue
				}
				if ctx.Err() == nil {
					samples <- received.Sub(sent)
				}
			}
		}
	}
}

// makeToken returns "<client>.<seq>.<unix nanos>." in base 36, padded with
// '-' to payloadBytes.
func makeToken(clientID int, seq uint64, sent time.Time, payloadBytes int) string {
	token := strconv.FormatInt(int64(clientID), 36) + "." +
		strconv.FormatUint(seq, 36) + "." +
		strconv.FormatInt(sent.UnixNano(), 36) + "."
	if len(token) >= payloadBytes {
		return token
	}
	return token + strings.Repeat("-", payloadBytes-len(token))
}

// parseToken returns the send time encoded by makeToken.
func parseToken(token string) (time.Time, bool) {
	parts := strings.SplitN(token, ".", 4)
	if len(parts) != 4 {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(parts[2], 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

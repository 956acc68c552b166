package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mikedelcastillo/pip-pip/pkg/manifest"
	"github.com/mikedelcastillo/pip-pip/pkg/metrics"
	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
	"github.com/mikedelcastillo/pip-pip/pkg/transport"
)

func testRegistry() *protocol.Registry {
	return protocol.MustInternalRegistry(protocol.Schema{
		"chat": protocol.NewPacket("c", protocol.F("message", protocol.VarString)),
		"move": protocol.NewPacket("m", protocol.F("x", protocol.Float32), protocol.F("y", protocol.Float32)),
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	c := DefaultConfig()
	c.PingInterval = time.Hour
	c.ReadTimeout = 5 * time.Second
	c.WriteTimeout = time.Second
	return c
}

func startServer(t *testing.T, reg *protocol.Registry, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithConfig(testConfig()), WithLogger(quietLogger())}, opts...)
	s, err := New(reg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, reg *protocol.Registry, readTimeout time.Duration) *transport.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := transport.Dial(ctx, url, reg,
		transport.WithLogger(quietLogger()),
		transport.WithConfig(transport.Config{
			ReadTimeout:    readTimeout,
			WriteTimeout:   time.Second,
			MaxMessageSize: 1 << 16,
		}),
	)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// receiveOne reads one frame and returns its only unit.
func receiveOne(t *testing.T, conn *transport.Conn) protocol.Decoded {
	t.Helper()
	results, err := conn.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("Receive() = %+v; want one good unit", results)
	}
	return results[0].Decoded
}

// connect dials and consumes the connectionReconcile packet.
func connect(t *testing.T, ts *httptest.Server, reg *protocol.Registry, readTimeout time.Duration) (*transport.Conn, string) {
	t.Helper()
	conn := dial(t, ts, reg, readTimeout)
	d := receiveOne(t, conn)
	if d.ID != protocol.IDConnectionReconcile {
		t.Fatalf("first packet = %s; want %s", d.ID, protocol.IDConnectionReconcile)
	}
	return conn, d.Value.Str(protocol.FieldConnectionID)
}

func TestConnectionReconcile(t *testing.T) {
	reg := testRegistry()
	s, ts := startServer(t, reg)

	_, id := connect(t, ts, reg, 5*time.Second)
	if len(id) != 2 {
		t.Errorf("connection id = %q; want 2 characters", id)
	}
	if s.Hub().Get(id) == nil {
		t.Errorf("hub has no client %q", id)
	}
}

func TestRelay(t *testing.T) {
	reg := testRegistry()
	_, ts := startServer(t, reg)

	a, _ := connect(t, ts, reg, 300*time.Millisecond)
	b, _ := connect(t, ts, reg, 5*time.Second)

	chat, _ := reg.Encode("chat", protocol.Record{"message": protocol.StringValue("hi\nthere")})
	if err := a.Send(chat); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	d := receiveOne(t, b)
	if d.ID != "chat" || d.Value.Str("message") != "hi\nthere" {
		t.Errorf("relayed = %s %v; want chat", d.ID, d.Value)
	}

	// The sender does not get its own frame back.
	var netErr net.Error
	if _, err := a.Receive(context.Background()); !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("sender Receive() error = %v; want timeout", err)
	}
}

func TestRelayDropsFailedAndReservedUnits(t *testing.T) {
	reg := testRegistry()
	_, ts := startServer(t, reg)

	a, _ := connect(t, ts, reg, 5*time.Second)
	b, _ := connect(t, ts, reg, 5*time.Second)

	chat, _ := reg.Encode("chat", protocol.Record{"message": protocol.StringValue("one")})
	ping, _ := reg.Encode(protocol.IDPing, protocol.Record{protocol.FieldPing: protocol.UintValue(1)})
	move, _ := reg.Encode("move", protocol.Record{"x": protocol.FloatValue(1), "y": protocol.FloatValue(2)})

	if err := a.Send(chat, []byte("Zjunk"), ping, move); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	results, err := b.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("relayed %d units; want 2", len(results))
	}
	if results[0].Decoded.ID != "chat" || results[1].Decoded.ID != "move" {
		t.Errorf("relayed %s, %s; want chat, move", results[0].Decoded.ID, results[1].Decoded.ID)
	}
}

func TestPingCounter(t *testing.T) {
	reg := testRegistry()
	cfg := testConfig()
	cfg.PingInterval = 20 * time.Millisecond
	s, ts := startServer(t, reg, WithConfig(cfg))

	conn, id := connect(t, ts, reg, 5*time.Second)

	var last uint64
	for i := 0; i < 3; i++ {
		d := receiveOne(t, conn)
		if d.ID != protocol.IDPing {
			t.Fatalf("packet = %s; want ping", d.ID)
		}
		n := d.Value.Uint64(protocol.FieldPing)
		if n <= last {
			t.Errorf("ping counter %d after %d; want increasing", n, last)
		}
		last = n
	}

	if err := conn.SendPacket(protocol.IDPing, protocol.Record{protocol.FieldPing: protocol.UintValue(last)}); err != nil {
		t.Fatalf("SendPacket() error = %v", err)
	}
	// The echo may race the next tick; only check that the client is
	// still connected.
	if s.Hub().Get(id) == nil {
		t.Error("client dropped after echoing ping")
	}
}

func TestClientRemovedOnClose(t *testing.T) {
	reg := testRegistry()
	s, ts := startServer(t, reg)

	conn, id := connect(t, ts, reg, 5*time.Second)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Get(id) != nil {
		if time.Now().After(deadline) {
			t.Fatal("client still in hub after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	reg := testRegistry()
	_, ts := startServer(t, reg)

	resp, err := http.Get(ts.URL + "/schema")
	if err != nil {
		t.Fatalf("GET /schema error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var m manifest.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.Fingerprint != reg.Fingerprint() || len(m.Packets) != reg.Len() {
		t.Errorf("manifest = %+v", m)
	}
}

func TestHealthEndpoint(t *testing.T) {
	reg := testRegistry()
	_, ts := startServer(t, reg)
	connect(t, ts, reg, 5*time.Second)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()

	var h HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if h.Status != "ok" || h.Connections != 1 || h.Fingerprint != reg.Fingerprint() {
		t.Errorf("health = %+v", h)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := testRegistry()
	promReg := prometheus.NewRegistry()
	codec := metrics.New(reg, metrics.WithRegistry(promReg))
	_, ts := startServer(t, reg, WithMetrics(codec, promReg))

	a, _ := connect(t, ts, reg, 5*time.Second)
	b, _ := connect(t, ts, reg, 5*time.Second)
	chat, _ := reg.Encode("chat", protocol.Record{"message": protocol.StringValue("x")})
	a.Send(chat)
	receiveOne(t, b)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"pipwire_active_connections 2",
		`pipwire_packets_decoded_total{packet="chat"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	_, ts := startServer(t, testRegistry())

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d; want 404", resp.StatusCode)
	}
}

func TestNewValidation(t *testing.T) {
	reg := testRegistry()
	plain := protocol.MustRegistry(protocol.Schema{
		"chat": protocol.NewPacket("c", protocol.F("message", protocol.VarString)),
	})

	badID := DefaultConfig()
	badID.ConnectionIDLength = 0
	badPing := DefaultConfig()
	badPing.PingInterval = 0

	tests := []struct {
		name string
		reg  *protocol.Registry
		opts []Option
	}{
		{"nil registry", nil, nil},
		{"no reserved packets", plain, nil},
		{"id length", reg, []Option{WithConfig(badID)}},
		{"ping interval", reg, []Option{WithConfig(badPing)}},
		{"foreign metrics codec", reg, []Option{WithMetrics(metrics.New(testRegistry(), metrics.WithRegistry(prometheus.NewRegistry())), nil)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.reg, tc.opts...); err == nil {
				t.Error("New() error = nil")
			}
		})
	}
}

func TestServeShutdown(t *testing.T) {
	reg := testRegistry()
	s, err := New(reg, WithConfig(testConfig()), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestReadErrorKind(t *testing.T) {
	if k := readErrorKind(net.ErrClosed); k != "" {
		t.Errorf("readErrorKind(ErrClosed) = %q", k)
	}
	if k := readErrorKind(errors.New("boom")); k != "read" {
		t.Errorf("readErrorKind(boom) = %q; want read", k)
	}
}

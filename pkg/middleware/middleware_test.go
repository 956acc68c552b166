package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// recordingProvider hands out spans that remember their final state.
type recordingProvider struct {
	noop.TracerProvider
	mu    sync.Mutex
	spans []*recordingSpan
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return &recordingTracer{provider: p}
}

func (p *recordingProvider) ended() []*recordingSpan {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*recordingSpan
	for _, s := range p.spans {
		if s.done {
			out = append(out, s)
		}
	}
	return out
}

type recordingTracer struct {
	noop.Tracer
	provider *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{name: name, kind: cfg.SpanKind(), attrs: map[attribute.Key]attribute.Value{}}
	for _, kv := range cfg.Attributes() {
		s.attrs[kv.Key] = kv.Value
	}
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, s)
	t.provider.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingSpan struct {
	noop.Span
	name   string
	kind   trace.SpanKind
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	done   bool
}

func (s *recordingSpan) SetName(name string) { s.name = name }

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordingSpan) End(...trace.SpanEndOption) { s.done = true }

func testRouter(mw ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mw...)
	r.Get("/schema", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	r.Get("/players/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	})
	return r
}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTracing(t *testing.T) {
	tp := &recordingProvider{}
	h := testRouter(Tracing(WithTracerProvider(tp)))

	tests := []struct {
		path   string
		name   string
		route  string
		status int64
		failed bool
	}{
		{"/schema", "GET /schema", "/schema", 200, false},
		{"/players/a7", "GET /players/{id}", "/players/{id}", 204, false},
		{"/boom", "GET /boom", "/boom", 500, true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			before := len(tp.ended())
			serve(h, tt.path)

			spans := tp.ended()
			if len(spans) != before+1 {
				t.Fatalf("ended spans = %d; want %d", len(spans), before+1)
			}
			s := spans[len(spans)-1]
			if s.name != tt.name {
				t.Errorf("span name = %q; want %q", s.name, tt.name)
			}
			if s.kind != trace.SpanKindServer {
				t.Errorf("span kind = %v; want server", s.kind)
			}
			if got := s.attrs["http.route"].AsString(); got != tt.route {
				t.Errorf("http.route = %q; want %q", got, tt.route)
			}
			if got := s.attrs["url.path"].AsString(); got != tt.path {
				t.Errorf("url.path = %q; want %q", got, tt.path)
			}
			if got := s.attrs["http.response.status_code"].AsInt64(); got != tt.status {
				t.Errorf("status = %d; want %d", got, tt.status)
			}
			if (s.status == codes.Error) != tt.failed {
				t.Errorf("span status = %v; failed want %v", s.status, tt.failed)
			}
		})
	}
}

func TestTracingContext(t *testing.T) {
	tp := &recordingProvider{}
	var inner trace.Span
	h := Tracing(WithTracerProvider(tp))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanFromContext(r.Context())
	}))
	serve(h, "/anything")

	spans := tp.ended()
	if len(spans) != 1 || inner != trace.Span(spans[0]) {
		t.Fatalf("handler did not see the request span")
	}
	if spans[0].name != "GET "+unmatchedRoute {
		t.Errorf("span name outside a router = %q", spans[0].name)
	}
}

func TestTracingFilter(t *testing.T) {
	tp := &recordingProvider{}
	h := testRouter(Tracing(
		WithTracerProvider(tp),
		WithFilter(func(r *http.Request) bool { return r.URL.Path != "/schema" }),
	))

	if rec := serve(h, "/schema"); rec.Code != http.StatusOK {
		t.Fatalf("filtered request status = %d", rec.Code)
	}
	if n := len(tp.ended()); n != 0 {
		t.Errorf("filtered request produced %d spans", n)
	}
}

// series returns the samples of the named family keyed by "route status".
// Histograms report their sample count.
func series(t *testing.T, reg *prometheus.Registry, name string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := map[string]float64{}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			key := strings.TrimSpace(labels["route"] + " " + labels["status"])
			if h := m.GetHistogram(); h != nil {
				out[key] = float64(h.GetSampleCount())
			} else {
				out[key] = m.GetCounter().GetValue() + m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := testRouter(Metrics(WithRegistry(reg), WithNamespace("test")))

	serve(h, "/schema")
	serve(h, "/schema")
	serve(h, "/players/a7")
	serve(h, "/boom")
	serve(h, "/nope")

	requests := series(t, reg, "test_http_requests_total")
	want := map[string]float64{
		"/schema 200":       2,
		"/players/{id} 204": 1,
		"/boom 500":         1,
		"unmatched 404":     1,
	}
	if len(requests) != len(want) {
		t.Errorf("requests = %v; want %v", requests, want)
	}
	for k, v := range want {
		if requests[k] != v {
			t.Errorf("requests[%q] = %v; want %v", k, requests[k], v)
		}
	}

	durations := series(t, reg, "test_http_request_duration_seconds")
	if durations["/schema"] != 2 || len(durations) != 4 {
		t.Errorf("durations = %v", durations)
	}
	if inFlight := series(t, reg, "test_http_requests_in_flight"); inFlight[""] != 0 {
		t.Errorf("in flight = %v; want 0", inFlight)
	}
}

func TestMetricsWebSocket(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(testRouter(Metrics(WithRegistry(reg))))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ws.ReadMessage()
	ws.Close()

	// The counter is written after the handler returns, which races the
	// client seeing the close.
	deadline := time.Now().Add(time.Second)
	for {
		if series(t, reg, "pipwire_http_requests_total")["/ws 101"] == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("requests = %v; want /ws 101", series(t, reg, "pipwire_http_requests_total"))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

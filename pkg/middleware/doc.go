// Package middleware provides HTTP middleware for the pip-pip relay server.
//
// # Tracing
//
// Tracing starts an OpenTelemetry server span for every request. The span
// is renamed to the matched chi route once the handler returns, so that
// "/ws" and "/schema" traces group by route instead of raw path.
//
//	srv, err := server.New(reg,
//	    server.WithMiddleware(middleware.Tracing(
//	        middleware.WithFilter(func(r *http.Request) bool {
//	            return r.URL.Path != "/healthz"
//	        }),
//	    )),
//	)
//
// The tracer comes from the global provider unless WithTracerProvider is
// given. Configure the provider in main() before starting the server.
//
// # Prometheus Metrics
//
// Metrics records request counts, durations and in-flight requests:
//
//   - pipwire_http_requests_total: Counter by route, method and status
//   - pipwire_http_request_duration_seconds: Histogram by route and method
//   - pipwire_http_requests_in_flight: Gauge of requests being served
//
// Websocket requests count as in flight for the lifetime of the
// connection and are recorded with status 101 once they close.
//
//	reg := prometheus.NewRegistry()
//	mw := middleware.Metrics(
//	    middleware.WithRegistry(reg),
//	    middleware.WithNamespace("game"),
//	)
package middleware

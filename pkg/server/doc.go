// Package server implements the pip-pip relay server.
//
// The server speaks the group frame protocol over WebSocket. Each websocket
// message is one group frame: units joined by the delimiter byte.
//
// # Connection Lifecycle
//
//  1. The client connects to GET /ws and the request is upgraded.
//  2. The server assigns a random base-36 connection id and sends it in a
//     connectionReconcile packet.
//  3. The server sends a ping packet every PingInterval carrying an
//     increasing counter. Clients echo it back to report latency.
//  4. Every frame the client sends is decoded. Application units are
//     re-encoded and relayed to every other client as one frame; failed
//     units are logged and dropped, reserved units are consumed.
//
// # Routes
//
//	GET /ws       websocket endpoint
//	GET /schema   manifest of the registry (ids, codes, fields, fingerprint)
//	GET /healthz  liveness and connection count
//	GET /metrics  Prometheus metrics, when WithMetrics is used
//
// # Usage
//
//	srv, err := server.New(packets.Registry(),
//	    server.WithConfig(cfg),
//	    server.WithLogger(logger),
//	    server.WithMetrics(metrics.New(packets.Registry()), nil),
//	)
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx)
package server

// Command pipwire-bench measures relay latency and throughput of the
// pip-pip relay server.
//
// It starts an in-process relay on a loopback port, connects a number of
// websocket clients and has each of them send group frames at a fixed
// rate. Every frame carries an uploadChat unit with a send timestamp and a
// movePlayer unit; latency is measured from send to decode on every
// receiving client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mikedelcastillo/pip-pip/pkg/packets"
	"github.com/mikedelcastillo/pip-pip/pkg/server"
)

type profile struct {
	Name         string
	Clients      int
	Duration     time.Duration
	RPS          float64
	PayloadBytes int
	MaxProcs     int
}

var profiles = map[string]profile{
	"fast": {
		Name:         "fast",
		Clients:      10,
		Duration:     5 * time.Second,
		RPS:          5,
		PayloadBytes: 24,
	},
	"standard": {
		Name:         "standard",
		Clients:      50,
		Duration:     20 * time.Second,
		RPS:          10,
		PayloadBytes: 24,
	},
	"stress": {
		Name:         "stress",
		Clients:      200,
		Duration:     60 * time.Second,
		RPS:          20,
		PayloadBytes: 64,
		MaxProcs:     4,
	},
}

type benchConfig struct {
	Profile      string
	Clients      int
	Duration     time.Duration
	RPS          float64
	PayloadBytes int
	MaxProcs     int
	JSONOutput   string
}

func main() {
	log.SetFlags(0)

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	report, err := run(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}

	writeSummary(os.Stderr, report)
	if err := writeJSON(cfg.JSONOutput, report); err != nil {
		log.Fatalf("write json: %v", err)
	}
}

func parseConfig(args []string) (benchConfig, error) {
	fs := flag.NewFlagSet("pipwire-bench", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	profileFlag := fs.String("profile", "standard", "profile: fast|standard|stress")
	clientsFlag := fs.Int("clients", -1, "number of concurrent websocket clients")
	durationFlag := fs.String("duration", "", "benchmark duration, e.g. 30s")
	rpsFlag := fs.Float64("rps", -1, "target frames/sec per client")
	payloadFlag := fs.Int("payload-bytes", -1, "bytes of chat payload per frame")
	maxProcsFlag := fs.Int("max-procs", -1, "GOMAXPROCS cap (0 to leave unchanged)")
	jsonFlag := fs.String("json", "-", "JSON output path ('-' for stdout)")
	if err := fs.Parse(args); err != nil {
		return benchConfig{}, err
	}

	name := strings.ToLower(strings.TrimSpace(*profileFlag))
	if name == "" {
		name = "standard"
	}
	base, ok := profiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q", name)
	}

	cfg := benchConfig{
		Profile:      base.Name,
		Clients:      base.Clients,
		Duration:     base.Duration,
		RPS:          base.RPS,
		PayloadBytes: base.PayloadBytes,
		MaxProcs:     base.MaxProcs,
		JSONOutput:   strings.TrimSpace(*jsonFlag),
	}

	if *clientsFlag != -1 {
		cfg.Clients = *clientsFlag
	}
	if *durationFlag != "" {
		d, err := time.ParseDuration(*durationFlag)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid -duration: %w", err)
		}
		cfg.Duration = d
	}
	if *rpsFlag != -1 {
		cfg.RPS = *rpsFlag
	}
	if *payloadFlag != -1 {
		cfg.PayloadBytes = *payloadFlag
	}
	if *maxProcsFlag != -1 {
		cfg.MaxProcs = *maxProcsFlag
	}
	if cfg.JSONOutput == "" {
		cfg.JSONOutput = "-"
	}

	if cfg.Clients < 2 {
		return benchConfig{}, errors.New("-clients must be >= 2")
	}
	if cfg.Duration <= 0 {
		return benchConfig{}, errors.New("-duration must be > 0")
	}
	if cfg.RPS <= 0 {
		return benchConfig{}, errors.New("-rps must be > 0")
	}
	if cfg.PayloadBytes < minPayloadBytes || cfg.PayloadBytes > 4096 {
		return benchConfig{}, fmt.Errorf("-payload-bytes must be in [%d, 4096]", minPayloadBytes)
	}
	if cfg.MaxProcs < 0 {
		return benchConfig{}, errors.New("-max-procs must be >= 0")
	}
	return cfg, nil
}

// run starts a relay, drives it with cfg.Clients clients for cfg.Duration
// and returns the report.
func run(ctx context.Context, cfg benchConfig) (benchReport, error) {
	sc := server.DefaultConfig()
	sc.PingInterval = time.Second

	srv, err := server.New(packets.Registry(),
		server.WithConfig(sc),
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return benchReport{}, err
	}

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return benchReport{}, fmt.Errorf("listen: %w", err)
	}
	serveCtx, stopServer := context.WithCancel(ctx)
	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(serveCtx, ln) }()
	defer func() {
		stopServer()
		<-serveDone
	}()

	wsURL := "ws://" + ln.Addr().String() + "/ws"

	var (
		counters benchCounters
		samples  []time.Duration
		mu       sync.Mutex
	)
	samplesCh := make(chan time.Duration, sampleBuffer(cfg.Clients))
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for d := range samplesCh {
			mu.Lock()
			samples = append(samples, d)
			mu.Unlock()
		}
	}()

	// All clients connect before any of them starts sending, so every
	// frame has the same audience.
	clients := make([]*benchClient, 0, cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		c, err := dialClient(ctx, wsURL, i, cfg, &counters)
		if err != nil {
			counters.dialFailures.Add(1)
			continue
		}
		clients = append(clients, c)
	}
	if len(clients) < 2 {
		close(samplesCh)
		return benchReport{}, fmt.Errorf("only %d of %d clients connected", len(clients), cfg.Clients)
	}

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(2)
		go func(c *benchClient) {
			defer wg.Done()
			c.sendLoop(runCtx)
		}(c)
		go func(c *benchClient) {
			defer wg.Done()
			c.readLoop(runCtx, samplesCh)
		}(c)
	}

	<-runCtx.Done()
	elapsed := time.Since(start)
	for _, c := range clients {
		c.conn.Close()
	}
	wg.Wait()
	close(samplesCh)
	<-collectorDone

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)

	mu.Lock()
	latencies := append([]time.Duration(nil), samples...)
	mu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	return buildReport(cfg, len(clients), elapsed, latencies, &counters, before, after), nil
}

func sampleBuffer(clients int) int {
	buf := clients * clients
	if buf < 1024 {
		buf = 1024
	}
	if buf > 1<<16 {
		buf = 1 << 16
	}
	return buf
}

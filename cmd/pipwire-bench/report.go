package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/mikedelcastillo/pip-pip/pkg/packets"
)

type benchReport struct {
	Run        runInfo        `json:"run"`
	Workload   workloadInfo   `json:"workload"`
	LatencyMS  latencyInfo    `json:"latency_ms"`
	Throughput throughputInfo `json:"throughput"`
	GC         gcInfo         `json:"gc"`
	Protocol   protocolInfo   `json:"protocol"`
	Errors     errorInfo      `json:"errors"`
}

type runInfo struct {
	Timestamp   string `json:"timestamp"`
	Go          string `json:"go"`
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	CPUCount    int    `json:"cpu_count"`
	Fingerprint string `json:"schema_fingerprint"`
	GitCommit   string `json:"git_commit,omitempty"`
}

type workloadInfo struct {
	Profile      string  `json:"profile"`
	Clients      int     `json:"clients"`
	Connected    int     `json:"connected"`
	DurationMS   int64   `json:"duration_ms"`
	RPSPerClient float64 `json:"rps_per_client"`
	PayloadBytes int     `json:"payload_bytes"`
	MaxProcs     int     `json:"max_procs"`
}

type latencyInfo struct {
	Samples int     `json:"samples"`
	Min     float64 `json:"min"`
	P50     float64 `json:"p50"`
	P95     float64 `json:"p95"`
	P99     float64 `json:"p99"`
	Max     float64 `json:"max"`
}

type throughputInfo struct {
	FramesSent     uint64  `json:"frames_sent"`
	FramesReceived uint64  `json:"frames_received"`
	UnitsReceived  uint64  `json:"units_received"`
	FramesPerSec   float64 `json:"frames_per_sec"`
	UnitsPerSec    float64 `json:"units_per_sec"`
	FanoutPerFrame float64 `json:"fanout_per_frame"`
}

type gcInfo struct {
	AllocMB       float64 `json:"alloc_mb"`
	HeapLiveMB    float64 `json:"heap_live_mb"`
	NumGC         uint32  `json:"num_gc"`
	PauseTotalMS  float64 `json:"pause_total_ms"`
	PauseAvgMS    float64 `json:"pause_avg_ms"`
	AllocsObjects uint64  `json:"allocs_objects"`
}

type protocolInfo struct {
	BytesSent     uint64  `json:"bytes_sent"`
	UnitsSent     uint64  `json:"units_sent"`
	AvgFrameBytes float64 `json:"avg_frame_bytes"`
	Pings         uint64  `json:"pings"`
}

type errorInfo struct {
	Dial         uint64 `json:"dial"`
	Write        uint64 `json:"write"`
	Read         uint64 `json:"read"`
	Decode       uint64 `json:"decode"`
	TokenInvalid uint64 `json:"token_invalid"`
	TotalErrors  uint64 `json:"total"`
}

func buildReport(
	cfg benchConfig,
	connected int,
	elapsed time.Duration,
	latencies []time.Duration,
	counters *benchCounters,
	before runtime.MemStats,
	after runtime.MemStats,
) benchReport {
	framesSent := counters.framesSent.Load()
	framesReceived := counters.framesReceived.Load()
	unitsReceived := counters.unitsReceived.Load()
	bytesSent := counters.bytesSent.Load()

	elapsedSeconds := math.Max(0.001, elapsed.Seconds())

	latency := latencyInfo{Samples: len(latencies)}
	if len(latencies) > 0 {
		latency.Min = ms(latencies[0])
		latency.P50 = ms(percentile(latencies, 0.50))
		latency.P95 = ms(percentile(latencies, 0.95))
		latency.P99 = ms(percentile(latencies, 0.99))
		latency.Max = ms(latencies[len(latencies)-1])
	}

	var fanout, avgFrame float64
	if framesSent > 0 {
		fanout = float64(framesReceived) / float64(framesSent)
		avgFrame = float64(bytesSent) / float64(framesSent)
	}

	errs := errorInfo{
		Dial:         counters.dialFailures.Load(),
		Write:        counters.writeFailures.Load(),
		Read:         counters.readFailures.Load(),
		Decode:       counters.decodeFailures.Load(),
		TokenInvalid: counters.tokenInvalid.Load(),
	}
	errs.TotalErrors = errs.Dial + errs.Write + errs.Read + errs.Decode + errs.TokenInvalid

	return benchReport{
		Run: runInfo{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Go:          runtime.Version(),
			OS:          runtime.GOOS,
			Arch:        runtime.GOARCH,
			CPUCount:    runtime.NumCPU(),
			Fingerprint: packets.Registry().Fingerprint(),
			GitCommit:   strings.TrimSpace(os.Getenv("GIT_COMMIT")),
		},
		Workload: workloadInfo{
			Profile:      cfg.Profile,
			Clients:      cfg.Clients,
			Connected:    connected,
			DurationMS:   elapsed.Milliseconds(),
			RPSPerClient: cfg.RPS,
			PayloadBytes: cfg.PayloadBytes,
			MaxProcs:     cfg.MaxProcs,
		},
		LatencyMS: latency,
		Throughput: throughputInfo{
			FramesSent:     framesSent,
			FramesReceived: framesReceived,
			UnitsReceived:  unitsReceived,
			FramesPerSec:   float64(framesReceived) / elapsedSeconds,
			UnitsPerSec:    float64(unitsReceived) / elapsedSeconds,
			FanoutPerFrame: fanout,
		},
		GC: gcInfo{
			AllocMB:       float64(after.TotalAlloc-before.TotalAlloc) / (1 << 20),
			HeapLiveMB:    float64(after.HeapAlloc) / (1 << 20),
			NumGC:         after.NumGC - before.NumGC,
			PauseTotalMS:  ms(time.Duration(after.PauseTotalNs - before.PauseTotalNs)),
			PauseAvgMS:    ms(avgPause(after, before)),
			AllocsObjects: after.Mallocs - before.Mallocs,
		},
		Protocol: protocolInfo{
			BytesSent:     bytesSent,
			UnitsSent:     counters.unitsSent.Load(),
			AvgFrameBytes: avgFrame,
			Pings:         counters.pingsReceived.Load(),
		},
		Errors: errs,
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func writeSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== pipwire relay benchmark ===")
	fmt.Fprintf(w, "Profile: %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Clients: %d (%d connected)\n", report.Workload.Clients, report.Workload.Connected)
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(report.Workload.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Target per-client rate: %.2f frames/s\n", report.Workload.RPSPerClient)
	fmt.Fprintf(w, "Payload bytes: %d\n", report.Workload.PayloadBytes)
	if report.Workload.MaxProcs > 0 {
		fmt.Fprintf(w, "GOMAXPROCS cap: %d\n", report.Workload.MaxProcs)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Frames sent: %d (avg %.1f bytes)\n", report.Throughput.FramesSent, report.Protocol.AvgFrameBytes)
	fmt.Fprintf(w, "Frames received: %d (fan-out %.1f)\n", report.Throughput.FramesReceived, report.Throughput.FanoutPerFrame)
	fmt.Fprintf(w, "Throughput: %.1f frames/s, %.1f units/s\n", report.Throughput.FramesPerSec, report.Throughput.UnitsPerSec)
	fmt.Fprintf(w, "Errors: %d\n", report.Errors.TotalErrors)
	fmt.Fprintln(w)

	if report.LatencyMS.Samples == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintf(w, "Relay latency (send -> server -> peer decode), %d samples:\n", report.LatencyMS.Samples)
		fmt.Fprintf(w, "  min: %.2f ms\n", report.LatencyMS.Min)
		fmt.Fprintf(w, "  p50: %.2f ms\n", report.LatencyMS.P50)
		fmt.Fprintf(w, "  p95: %.2f ms\n", report.LatencyMS.P95)
		fmt.Fprintf(w, "  p99: %.2f ms\n", report.LatencyMS.P99)
		fmt.Fprintf(w, "  max: %.2f ms\n", report.LatencyMS.Max)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "GC: %d cycles, %.2f ms total pause, %.1f MB allocated\n",
		report.GC.NumGC, report.GC.PauseTotalMS, report.GC.AllocMB)
}

func writeJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/mikedelcastillo/pip-pip/internal/config"
	clierrors "github.com/mikedelcastillo/pip-pip/internal/errors"
	"github.com/mikedelcastillo/pip-pip/pkg/metrics"
	"github.com/mikedelcastillo/pip-pip/pkg/middleware"
	"github.com/mikedelcastillo/pip-pip/pkg/packets"
	"github.com/mikedelcastillo/pip-pip/pkg/protocol"
	"github.com/mikedelcastillo/pip-pip/pkg/server"
)

func serveCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay server.

Settings come from pipwire.toml and PIPWIRE_* environment variables.
The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log, os.Stderr)
			if err != nil {
				return clierrors.New("P021").Wrap(err)
			}
			slog.SetDefault(logger)

			srv, err := newServer(cfg, logger, prometheus.NewRegistry())
			if err != nil {
				return clierrors.New("P040").Wrap(err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.Run(ctx); err != nil {
				return clierrors.New("P040").Wrap(err)
			}
			return nil
		},
	}
}

// loadConfig loads the --config file, or ./pipwire.toml when it exists.
func loadConfig(root *rootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if root.configPath != "" {
		cfg, err = config.Load(root.configPath)
	} else {
		cfg, err = config.LoadOptional(config.FileName)
	}
	if err != nil {
		return nil, clierrors.New("P020").Wrap(err)
	}
	return cfg, nil
}

// newServer builds the relay server described by cfg. Metrics, when
// enabled, are registered on promReg.
func newServer(cfg *config.Config, logger *slog.Logger, promReg *prometheus.Registry) (*server.Server, error) {
	reg, err := packets.NewRegistry(protocol.WithMaxFrameSize(int(cfg.Server.MaxMessageSize)))
	if err != nil {
		return nil, err
	}

	sc := server.DefaultConfig()
	sc.Address = cfg.Server.Addr
	sc.ReadTimeout = cfg.Server.ReadTimeout
	sc.WriteTimeout = cfg.Server.WriteTimeout
	sc.PingInterval = cfg.Server.PingInterval
	sc.MaxMessageSize = cfg.Server.MaxMessageSize
	sc.ConnectionIDLength = cfg.Server.ConnectionIDLength

	opts := []server.Option{
		server.WithConfig(sc),
		server.WithLogger(logger),
		server.WithMiddleware(middleware.Tracing(
			middleware.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
		)),
	}
	if cfg.Metrics.Enabled {
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		codec := metrics.New(reg,
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(promReg),
		)
		opts = append(opts,
			server.WithMetrics(codec, promReg),
			server.WithMiddleware(middleware.Metrics(
				middleware.WithNamespace(cfg.Metrics.Namespace),
				middleware.WithRegistry(promReg),
			)),
		)
	}

	logger.Debug("server configured",
		"addr", sc.Address,
		"ping_interval", sc.PingInterval,
		"metrics", cfg.Metrics.Enabled,
		"config", cfg.Path())
	return server.New(reg, opts...)
}

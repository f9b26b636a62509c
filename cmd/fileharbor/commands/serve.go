package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeffvan302/fileharbor/internal/logger"
	"github.com/jeffvan302/fileharbor/pkg/adapter/harbor"
	"github.com/jeffvan302/fileharbor/pkg/api"
	"github.com/jeffvan302/fileharbor/pkg/config"
	"github.com/jeffvan302/fileharbor/pkg/library"
	"github.com/jeffvan302/fileharbor/pkg/metrics"
	harbormetrics "github.com/jeffvan302/fileharbor/pkg/metrics/prometheus"
	"github.com/jeffvan302/fileharbor/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve <config>",
	Short: "Start the FileHarbor server",
	Long: `Start the FileHarbor server with the given configuration file.

The server loads the configuration once at startup: libraries, client
certificates, and the revocation list are immutable while it runs. It exits
0 on graceful shutdown (SIGINT/SIGTERM) and non-zero on a fatal startup
error such as a bind failure, invalid configuration, or missing CA.

Examples:
  # Start with a configuration file
  fileharbor serve /etc/fileharbor/config.yaml

  # Override the log level for one run
  FILEHARBOR_LOGGING_LEVEL=DEBUG fileharbor serve config.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(args[0])
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("FileHarbor starting", "version", Version)

	authn, err := cfg.BuildAuthenticator()
	if err != nil {
		return err
	}
	libs, err := cfg.BuildLibraries()
	if err != nil {
		return err
	}
	libraries, err := library.NewManager(libs)
	if err != nil {
		return err
	}
	for _, lib := range libraries.All() {
		logger.Info("library loaded",
			logger.KeyLibrary, lib.ID,
			"root", lib.Root,
			"clients", len(lib.AuthorizedClients),
			"rate_cap", lib.RateCap,
			"serialize_writes", lib.SerializeWrites)
	}

	cert, caPool, err := cfg.LoadServerTLSMaterial()
	if err != nil {
		return err
	}

	// Metrics are optional; a nil ServerMetrics disables collection.
	var serverMetrics metrics.ServerMetrics
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		serverMetrics = harbormetrics.NewServerMetrics(registry)
	}

	sessions := session.NewRegistry()
	adapter, err := harbor.New(harbor.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.Network.Port),
		TLS:             harbor.NewServerTLSConfig(cert, caPool),
		MaxConnections:  cfg.Network.MaxConnections,
		ReadTimeout:     cfg.Network.ReadTimeout,
		WriteTimeout:    cfg.Network.WriteTimeout,
		IdleTimeout:     cfg.Network.IdleTimeout,
		ShutdownTimeout: cfg.Network.ShutdownTimeout,
		ChunkSize:       cfg.Network.ChunkSize.Uint64(),
	}, authn, libraries, sessions, serverMetrics)
	if err != nil {
		return err
	}

	// Stop on SIGINT/SIGTERM; a second signal kills the process the hard
	// way via the default handler.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return adapter.Serve(groupCtx)
	})

	group.Go(func() error {
		interval := reaperInterval(cfg.Network.IdleTimeout)
		sessions.RunReaper(groupCtx, interval, adapter.IdleTimeoutFor)
		return nil
	})

	if cfg.Metrics.Enabled {
		apiServer := api.New(cfg.Metrics.Port, registry, func() api.Health {
			return api.Health{
				Status:    "ok",
				Sessions:  sessions.Count(),
				Libraries: libraries.Count(),
			}
		})
		group.Go(apiServer.Serve)
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return apiServer.Shutdown(shutdownCtx)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("FileHarbor stopped")
	return nil
}

// reaperInterval picks the idle scan cadence: half the timeout, capped so
// short timeouts are honored within one interval.
func reaperInterval(idleTimeout time.Duration) time.Duration {
	interval := idleTimeout / 2
	if interval > 5*time.Second {
		interval = 5 * time.Second
	}
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return interval
}

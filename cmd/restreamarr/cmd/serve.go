package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/restreamarr/restreamarr/internal/config"
	"github.com/restreamarr/restreamarr/internal/database"
	"github.com/restreamarr/restreamarr/internal/detect"
	internalhttp "github.com/restreamarr/restreamarr/internal/http"
	"github.com/restreamarr/restreamarr/internal/http/handlers"
	"github.com/restreamarr/restreamarr/internal/httpclient"
	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/observability"
	"github.com/restreamarr/restreamarr/internal/relay"
	"github.com/restreamarr/restreamarr/internal/repository"
	"github.com/restreamarr/restreamarr/internal/resolver"
	"github.com/restreamarr/restreamarr/internal/scheduler"
	"github.com/restreamarr/restreamarr/internal/transcoder"
	"github.com/restreamarr/restreamarr/internal/useragent"
	"github.com/restreamarr/restreamarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the restreamarr server",
	Long: `Start the restreamarr HTTP server.

The server provides:
- The /proxy/stream transcoding proxy and /static/stream/{id} redirects
- REST API for channels, user agents, and stream auto-detection
- The M3U playlist at /playlist.m3u
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "host to bind to")
	serveCmd.Flags().Int("port", 0, "port to listen on")
	serveCmd.Flags().String("database", "", "database DSN (default restreamarr.db)")
	serveCmd.Flags().String("ffmpeg", "", "path to the ffmpeg binary")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

	// Database and repositories.
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	channelRepo := repository.NewChannelRepository(db.DB)
	userAgentRepo := repository.NewUserAgentRepository(db.DB)

	// Upstream HTTP client, shared by the resolver and the detector.
	clientCfg := httpclient.DefaultConfig()
	clientCfg.UserAgent = version.UserAgent()
	clientCfg.Logger = observability.WithComponent(logger, "httpclient")
	client := httpclient.New(clientCfg)

	agents := useragent.NewPool(time.Now().UnixNano()).
		WithRepository(userAgentRepo).
		WithLogger(observability.WithComponent(logger, "useragent"))

	detector := detect.NewPageScanner(client, agents, detect.PageScannerConfig{
		NavTimeout:    cfg.Detect.NavTimeout,
		TotalTimeout:  cfg.Detect.TotalTimeout,
		RatePerMinute: cfg.Detect.RatePerMinute,
	}).WithLogger(observability.WithComponent(logger, "detect"))

	credResolver := resolver.New(client, channelRepo, detector, agents).
		WithMaxRetries(cfg.Stream.MaxAuthRetries).
		WithProbeTimeout(cfg.Stream.ProbeTimeout).
		WithLogger(observability.WithComponent(logger, "resolver"))

	// Stream session lifecycle.
	ffmpeg := transcoder.New(cfg.FFmpeg.BinaryPath).
		WithLogger(observability.WithComponent(logger, "transcoder"))

	registry := relay.NewRegistry(cfg.Stream.StaleAfter).
		WithLogger(observability.WithComponent(logger, "registry"))

	spawner := relay.SpawnerFunc(func(ctx context.Context, sourceURL string, c models.Credentials) (relay.StreamHandle, error) {
		return ffmpeg.Spawn(ctx, sourceURL, c)
	})

	orchestrator := relay.NewOrchestrator(registry, credResolver, spawner, cfg.Stream.KeepAliveEvery).
		WithLogger(observability.WithComponent(logger, "relay"))
	defer orchestrator.Shutdown()

	// Auto-update scheduler.
	updater := scheduler.NewScheduler(channelRepo, credResolver).
		WithCheckInterval(cfg.Updater.CheckInterval).
		WithLogger(observability.WithComponent(logger, "scheduler"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Updater.Enabled {
		if err := updater.Start(ctx); err != nil {
			return fmt.Errorf("starting auto-update scheduler: %w", err)
		}
		defer updater.Stop()
	}

	// HTTP server and handlers.
	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger, version.Version)

	handlers.NewHealthHandler(version.Version).
		WithDB(db).
		WithRegistry(registry).
		Register(server.API())
	handlers.NewChannelHandler(channelRepo, updater).Register(server.API())
	handlers.NewUserAgentHandler(userAgentRepo).Register(server.API())
	handlers.NewDetectHandler(detector).Register(server.API())

	handlers.NewStreamHandler(orchestrator, channelRepo, observability.WithComponent(logger, "stream")).
		Register(server.Router())
	handlers.NewPlaylistHandler(channelRepo, observability.WithComponent(logger, "playlist")).
		Register(server.Router())

	// Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting restreamarr server",
		slog.String("address", cfg.Server.Address()),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// applyFlagOverrides lets explicit CLI flags win over config and env values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("database") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database")
	}
	if cmd.Flags().Changed("ffmpeg") {
		cfg.FFmpeg.BinaryPath, _ = cmd.Flags().GetString("ffmpeg")
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		cfg.Logging.Format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}
}

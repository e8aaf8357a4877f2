package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/audience-mix/internal/api"
	"github.com/eshaffer321/audience-mix/internal/application/service"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/config"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/logging"
	"github.com/eshaffer321/audience-mix/internal/infrastructure/storage"
)

func newServeCommand(global *GlobalFlags) *cobra.Command {
	flags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			if flags.Port != 0 {
				cfg.Server.Port = flags.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return RunServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVar(&flags.Port, "port", 0, "Port to listen on (overrides server.port)")
	return cmd
}

// RunServe runs the API server until ctx is cancelled.
func RunServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "api")

	// Initialize storage
	store, err := storage.NewStorageWithLogger(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	allocator, err := NewAllocator(cfg.Allocator, logger)
	if err != nil {
		return err
	}
	recorder, gatherer := NewRecorder(cfg.Observability.Metrics)

	svc := service.NewDistributionService(store, allocator, recorder, logger.With("system", "service"),
		service.WithDefaultKeys(cfg.Allocator.DefaultKeys),
	)

	apiCfg := api.Config{
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MetricsGatherer: gatherer,
	}
	server := api.NewServer(apiCfg, svc, logger)

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
	}()

	logger.Info("allocator configured",
		"rounding", allocator.Rounding(),
		"strict", allocator.Strict(),
		"metrics", gatherer != nil,
	)

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}

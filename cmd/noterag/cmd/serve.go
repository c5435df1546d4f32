package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/noterag/internal/config"
	"github.com/Aman-CERP/noterag/internal/server"
	"github.com/Aman-CERP/noterag/internal/watcher"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var port int
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

On first run the index is built from the configured notes directory;
afterwards the existing index is loaded from disk. With --watch the
notes directory is monitored and the index rebuilt on changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg, watch)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides config)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rebuild the index when notes change")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, watch bool) error {
	logger := slog.Default()

	svc, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if svc.index.IndexExists() {
		logger.Info("index_loading")
		if err := svc.index.Load(ctx); err != nil {
			return fmt.Errorf("load index: %w", err)
		}
	} else {
		logger.Info("index_missing_building")
		if err := svc.index.Build(ctx); err != nil {
			return fmt.Errorf("build index: %w", err)
		}
	}

	if watch {
		w := watcher.New(cfg.Notes.Directory, watcher.DefaultDebounce, logger)
		go func() {
			if err := w.Run(ctx, svc.index.Build); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher_stopped", slog.String("error", err.Error()))
			}
		}()
	}

	if interval := cfg.Indexing.UpdateInterval; interval > 0 {
		go runScheduledRebuilds(ctx, svc, time.Duration(interval)*time.Second, logger)
	}

	srv := server.New(cfg.Server, svc.index, svc.retriever, svc.answerer, logger)

	err = srv.ListenAndServe(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runScheduledRebuilds rebuilds the index on a fixed interval until the
// context is cancelled.
func runScheduledRebuilds(ctx context.Context, svc *services, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("scheduled_rebuild_started")
			if err := svc.index.Build(ctx); err != nil && ctx.Err() == nil {
				logger.Error("scheduled_rebuild_failed", slog.String("error", err.Error()))
			}
		}
	}
}

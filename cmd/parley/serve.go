package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/parley/internal/cli"
	parleyhttp "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the graceful shutdown of the server and the queue.
const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the bot with its queue and janitor, exposing the admin API, SSE streams and /metrics over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, err := cli.Build(sigCtx, cfg, logger)
		if err != nil {
			return err
		}
		if err := rt.Bot.Start(sigCtx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: parleyhttp.NewHandler(rt.Bot,
				parleyhttp.WithLogger(logger),
				parleyhttp.WithStreams(rt.Streams),
				parleyhttp.WithMetrics(rt.Registry),
				parleyhttp.WithMaxInputSize(cfg.HTTP.MaxInputSize),
			),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting Parley server", "addr", srv.Addr, "flows", cfg.Flows.Dir)
			serverErrors <- srv.ListenAndServe()
		}()

		var serveErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				serveErr = fmt.Errorf("server error: %w", err)
			}
		case <-sigCtx.Done():
			logger.Info("Shutting down", "signal", sigCtx.Signal())
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			_ = srv.Close()
		}
		if err := rt.Close(ctx); err != nil {
			logger.Error("Failed to release resources", "err", err)
		}
		logger.Info("Parley server stopped")
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
}

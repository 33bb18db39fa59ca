package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogwire/internal/config"
	"blogwire/internal/logger"
	"blogwire/internal/metrics"
	"blogwire/internal/server"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		addr     string
		readOnly bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger and stats API",
		Long: `Start the blogwire HTTP API.

The server provides:
  • POST /api/generate and POST /api/cycle to trigger publication
  • GET /api/stats, GET /api/topics and the affiliate link admin endpoints
  • GET /metrics (Prometheus) and GET /health

Examples:
  # Start on the configured address (default :5001)
  blogwire serve

  # Stats and link admin only, no generation triggers
  blogwire serve --addr :8080 --read-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, readOnly)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.address)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Do not expose the generation triggers")

	return cmd
}

func runServe(ctx context.Context, addr string, readOnly bool) error {
	log := logger.Get()

	serverCfg := config.Get().Server
	if addr != "" {
		serverCfg.Address = addr
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.New(nil)
	var runner server.Runner
	if !readOnly {
		p, err := buildPipeline(ctx, db, collector)
		if err != nil {
			return err
		}
		defer p.Close()
		runner = p
	}

	srv := server.New(db, runner, collector, serverCfg)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case sig := <-shutdown:
		log.Info("Server shutdown initiated", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info("Server stopped successfully")
	}
	return nil
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogwire/internal/config"
	"blogwire/internal/core"
	"blogwire/internal/logger"
	"blogwire/internal/metrics"
	"blogwire/internal/pipeline"
	"blogwire/internal/scheduler"
	"blogwire/internal/server"

	"github.com/spf13/cobra"
)

// NewScheduleCmd creates the long-running scheduler command
func NewScheduleCmd() *cobra.Command {
	var (
		spec       string
		withServer bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run publication cycles on a daily schedule",
		Long: `Run publication cycles on a schedule until interrupted.

The default schedule is daily at schedule.hour:schedule.minute (08:00). With
schedule.run_on_start a cycle also runs immediately. SIGINT or SIGTERM stops the
scheduler after the running cycle has finished.

Examples:
  # Daily at the configured time
  blogwire schedule

  # Every six hours, with the HTTP API and /metrics on server.address
  blogwire schedule --cron "0 */6 * * *" --serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context(), spec, withServer)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "5-field cron expression overriding schedule.hour/minute")
	cmd.Flags().BoolVar(&withServer, "serve", false, "Also serve the HTTP API in this process")

	return cmd
}

func runSchedule(ctx context.Context, spec string, withServer bool) error {
	log := logger.Get()
	cfg := config.Get()
	if spec == "" {
		spec = scheduler.DailySpec(cfg.Schedule.Hour, cfg.Schedule.Minute)
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.New(nil)
	p, err := buildPipeline(ctx, db, collector)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// cycles outlive the signal and are cancelled only when the shutdown timeout expires
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var srv *server.Server
	if withServer {
		srv = server.New(db, p, collector, cfg.Server)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("HTTP server failed", err)
				stop()
			}
		}()
	}

	sched := scheduler.NewCronScheduler()
	initial, err := startSchedule(jobCtx, sched, spec, cfg.Schedule.RunOnStart, cycleJob(p, log))
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Scheduler shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown failed", err)
		}
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("scheduler stop failed: %w", err)
	}
	select {
	case <-initial:
	case <-shutdownCtx.Done():
		cancelJobs()
		<-initial
		return fmt.Errorf("initial cycle interrupted: %w", shutdownCtx.Err())
	}
	log.Info("Scheduler stopped")
	return nil
}

// startSchedule registers job under spec and starts s. With runOnStart the job also
// runs once in the background; the returned channel is closed when that run is over.
func startSchedule(ctx context.Context, s scheduler.Scheduler, spec string, runOnStart bool, job scheduler.Job) (<-chan struct{}, error) {
	if err := s.Register(spec, job); err != nil {
		return nil, err
	}
	s.Start()
	logger.Info("Scheduler started", "spec", spec, "run_on_start", runOnStart)

	done := make(chan struct{})
	if !runOnStart {
		close(done)
		return done, nil
	}
	go func() {
		defer close(done)
		job(ctx)
	}()
	return done, nil
}

// cycleJob runs one cycle and logs its summary. A held lock is reported, not fatal.
func cycleJob(p *pipeline.Pipeline, log *logger.Logger) scheduler.Job {
	return func(ctx context.Context) {
		result, err := p.RunCycle(ctx, pipeline.CycleOptions{Discover: config.Get().Trends.Enabled})
		if errors.Is(err, core.ErrLocked) {
			log.Warn("Skipping scheduled cycle, another run holds the lock")
			return
		}
		if err != nil {
			log.Error("Scheduled cycle failed", err)
			return
		}
		log.Info("Scheduled cycle done",
			"run_id", result.RunID,
			"published", len(result.Published),
			"skipped", result.Skipped())
	}
}

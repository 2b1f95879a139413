package commands

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-advisor/internal/di"
	"github.com/aristath/portfolio-advisor/internal/scheduler"
	"github.com/aristath/portfolio-advisor/internal/server"
)

const (
	cleanupSchedule     = "0 15 * * * *" // Hourly
	maintenanceSchedule = "0 0 4 * * *"  // Daily, well after the run
	shutdownTimeout     = 10 * time.Second
)

type serveCmd struct {
	env *Env
	dev bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the scheduler and the status API" }
func (*serveCmd) Usage() string {
	return `advisor serve [-dev]

  Schedules the daily run (RUN_SCHEDULE, market timezone) and serves the
  status API on PORT until SIGINT or SIGTERM.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dev, "dev", false, "Development mode (permissive CORS)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log := c.env.Config, c.env.Log

	if cfg.GeminiAPIKey == "" {
		return fail("GEMINI_API_KEY is required to serve")
	}

	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return fail("Error wiring dependencies: %v", err)
	}
	defer container.Close()

	sched := scheduler.New(cfg.Location(), log)
	if cfg.ScheduleEnabled {
		if err := sched.AddJob(cfg.RunSchedule, jobs.DailyRun); err != nil {
			return fail("Error scheduling daily run: %v", err)
		}
	} else {
		log.Warn().Msg("Daily run schedule disabled, runs start only via the API")
	}
	if err := sched.AddJob(cleanupSchedule, jobs.Cleanup); err != nil {
		return fail("Error scheduling cache cleanup: %v", err)
	}
	if err := sched.AddJob(maintenanceSchedule, jobs.Maintenance); err != nil {
		return fail("Error scheduling maintenance: %v", err)
	}

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   c.dev,
		Databases: container.Databases(),
		Positions: container.Positions,
		Ledger:    container.Ledger,
		Runs:      jobs.DailyRun,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return subcommands.ExitSuccess
}

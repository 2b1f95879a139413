package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
)

// ErrRunInProgress is returned when a run is requested while another is executing
var ErrRunInProgress = errors.New("a portfolio run is already in progress")

const archiveTimeout = time.Minute

// Runner executes one portfolio run
type Runner interface {
	Run(ctx context.Context) *portfolio.RunReport
}

// Archiver stores a finished run report
type Archiver interface {
	Archive(ctx context.Context, report *portfolio.RunReport) (string, error)
}

// DailyRunJob runs the portfolio manager and keeps the latest report.
// At most one run executes at a time.
type DailyRunJob struct {
	runner   Runner
	archiver Archiver // nil disables archival
	running  atomic.Bool

	mu     sync.RWMutex
	latest *portfolio.RunReport

	log zerolog.Logger
}

// NewDailyRunJob creates the daily run job. archiver may be nil.
func NewDailyRunJob(runner Runner, archiver Archiver, log zerolog.Logger) *DailyRunJob {
	return &DailyRunJob{
		runner:   runner,
		archiver: archiver,
		log:      log.With().Str("job", "daily_run").Logger(),
	}
}

// Name returns the job name for scheduling and logging
func (j *DailyRunJob) Name() string {
	return "daily_run"
}

// Run executes a run synchronously
func (j *DailyRunJob) Run(ctx context.Context) error {
	_, err := j.Execute(ctx)
	return err
}

// Execute runs synchronously and returns the report
func (j *DailyRunJob) Execute(ctx context.Context) (*portfolio.RunReport, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer j.running.Store(false)
	return j.execute(ctx), nil
}

// Start runs in the background. It returns ErrRunInProgress instead of queueing.
func (j *DailyRunJob) Start(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	go func() {
		defer j.running.Store(false)
		j.execute(ctx)
	}()
	return nil
}

// Running reports whether a run is executing
func (j *DailyRunJob) Running() bool {
	return j.running.Load()
}

// Latest returns the report of the last finished run, or nil
func (j *DailyRunJob) Latest() *portfolio.RunReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest
}

func (j *DailyRunJob) execute(ctx context.Context) *portfolio.RunReport {
	report := j.runner.Run(ctx)

	j.mu.Lock()
	j.latest = report
	j.mu.Unlock()

	if j.archiver == nil {
		return report
	}

	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if _, err := j.archiver.Archive(archiveCtx, report); err != nil {
		j.log.Warn().Err(err).Str("run_id", report.RunID).Msg("Failed to archive run report")
	}
	return report
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context) *portfolio.RunReport {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	if r.release != nil {
		<-r.release
	}
	return &portfolio.RunReport{RunID: fmt.Sprintf("run-%d", n), Date: "2024-03-01"}
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchiver) Archive(ctx context.Context, report *portfolio.RunReport) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	key := report.Date + "/" + report.RunID + ".json"
	a.keys = append(a.keys, key)
	return key, nil
}

func TestDailyRunJob_Execute(t *testing.T) {
	archiver := &fakeArchiver{}
	job := NewDailyRunJob(&fakeRunner{}, archiver, zerolog.Nop())

	assert.Nil(t, job.Latest())

	report, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, report, job.Latest())
	assert.Equal(t, []string{"2024-03-01/run-1.json"}, archiver.keys)
	assert.False(t, job.Running())
	assert.Equal(t, "daily_run", job.Name())
}

func TestDailyRunJob_RefusesOverlappingRuns(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	job := NewDailyRunJob(runner, nil, zerolog.Nop())

	require.NoError(t, job.Start(context.Background()))
	assert.True(t, job.Running())

	assert.ErrorIs(t, job.Start(context.Background()), ErrRunInProgress)
	_, err := job.Execute(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, job.Run(context.Background()), ErrRunInProgress)

	close(runner.release)
	assert.Eventually(t, func() bool { return !job.Running() }, time.Second, 10*time.Millisecond)
	require.NotNil(t, job.Latest())

	runner.mu.Lock()
	assert.Equal(t, 1, runner.calls)
	runner.mu.Unlock()
}

func TestDailyRunJob_ArchiveFailureIsNotFatal(t *testing.T) {
	job := NewDailyRunJob(&fakeRunner{}, &fakeArchiver{err: errors.New("bucket missing")}, zerolog.Nop())

	report, err := job.Execute(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Equal(t, report, job.Latest())
}

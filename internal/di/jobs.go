package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/clientdata"
	"github.com/aristath/portfolio-advisor/internal/database"
	"github.com/aristath/portfolio-advisor/internal/reliability"
	"github.com/aristath/portfolio-advisor/internal/scheduler"
)

// RegisterJobs creates the job instances. Scheduling them is the caller's concern.
func RegisterJobs(container *Container, log zerolog.Logger) *JobInstances {
	// A nil *SnapshotService must not become a non-nil Archiver
	var archiver scheduler.Archiver
	if container.Snapshots != nil {
		archiver = container.Snapshots
	}

	databases := make(map[string]*database.DB)
	for _, db := range container.Databases() {
		databases[db.Name()] = db
	}

	return &JobInstances{
		DailyRun:    scheduler.NewDailyRunJob(container.Manager, archiver, log),
		Cleanup:     clientdata.NewCleanupJob(container.ClientDataRepo, log),
		Maintenance: reliability.NewMaintenanceJob(databases, log),
	}
}

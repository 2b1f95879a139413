// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived dependency of the advisor and is the
// single place that owns (and closes) them.
package di

import (
	"errors"

	"github.com/aristath/portfolio-advisor/internal/clientdata"
	"github.com/aristath/portfolio-advisor/internal/database"
	"github.com/aristath/portfolio-advisor/internal/domain"
	"github.com/aristath/portfolio-advisor/internal/events"
	"github.com/aristath/portfolio-advisor/internal/modules/performance"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
	"github.com/aristath/portfolio-advisor/internal/modules/prompts"
	"github.com/aristath/portfolio-advisor/internal/modules/reconciliation"
	"github.com/aristath/portfolio-advisor/internal/modules/universe"
	"github.com/aristath/portfolio-advisor/internal/reliability"
	"github.com/aristath/portfolio-advisor/internal/scheduler"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	UniverseDB   *database.DB // universe.db - securities the advisor may buy
	PortfolioDB  *database.DB // portfolio.db - positions and analyst recommendations
	LedgerDB     *database.DB // ledger.db - realized gains history
	ClientDataDB *database.DB // client_data.db - market data cache

	// Stores (SQLite or DynamoDB, per STORE_BACKEND)
	Positions       domain.PositionStore
	Ledger          domain.LedgerStore
	Recommendations domain.RecommendationStore

	// Universe
	UniverseRepo *universe.Repository
	Universe     domain.UniverseProvider

	// Market data
	ClientDataRepo *clientdata.Repository
	MarketData     domain.MarketDataSource

	// Advisor
	Advisor domain.AdvisorService
	Prompts *prompts.Prompts

	// Services
	PerformanceEngine    *performance.Engine
	ReconciliationEngine *reconciliation.Engine
	Manager              *portfolio.Manager
	Publisher            events.Publisher
	Snapshots            *reliability.SnapshotService // nil when no bucket is configured
}

// JobInstances holds the scheduled jobs
type JobInstances struct {
	DailyRun    *scheduler.DailyRunJob
	Cleanup     *clientdata.CleanupJob
	Maintenance *reliability.MaintenanceJob
}

// Databases returns the open local databases
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.UniverseDB, c.PortfolioDB, c.LedgerDB, c.ClientDataDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close releases the publisher and every database
func (c *Container) Close() error {
	var errs []error
	if c.Publisher != nil {
		errs = append(errs, c.Publisher.Close())
	}
	for _, db := range c.Databases() {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}

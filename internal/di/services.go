package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/clientdata"
	"github.com/aristath/portfolio-advisor/internal/clients/gemini"
	"github.com/aristath/portfolio-advisor/internal/clients/yahoo"
	"github.com/aristath/portfolio-advisor/internal/config"
	"github.com/aristath/portfolio-advisor/internal/events"
	"github.com/aristath/portfolio-advisor/internal/modules/performance"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
	"github.com/aristath/portfolio-advisor/internal/modules/prompts"
	"github.com/aristath/portfolio-advisor/internal/modules/reconciliation"
	"github.com/aristath/portfolio-advisor/internal/reliability"
)

// InitializeServices creates the clients, engines and the portfolio manager
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	loc := cfg.Location()

	// Market data: Yahoo behind the client_data cache
	yahooClient := yahoo.NewClient(cfg.HistoryPeriod, loc, log)
	container.MarketData = clientdata.NewCachedMarketData(yahooClient, container.ClientDataRepo, cfg.PriceCacheTTL, log)

	// Advisor
	p, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return err
	}
	container.Prompts = p

	advisor, err := gemini.NewAdvisor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return err
	}
	container.Advisor = advisor

	// Events
	if len(cfg.KafkaBrokers) > 0 {
		container.Publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	} else {
		container.Publisher = events.NopPublisher{}
	}

	// Engines
	container.PerformanceEngine = performance.NewEngine(container.MarketData, cfg.BenchmarkTicker, cfg.CallTimeout, log)
	container.ReconciliationEngine = reconciliation.NewEngine(
		container.Universe,
		container.Recommendations,
		container.Ledger,
		cfg.CallTimeout,
		log,
	)

	container.Manager = portfolio.NewManager(portfolio.ManagerDeps{
		Positions:       container.Positions,
		Recommendations: container.Recommendations,
		Universe:        container.Universe,
		Advisor:         container.Advisor,
		Performance:     container.PerformanceEngine,
		Reconciler:      container.ReconciliationEngine,
		Prompts:         container.Prompts,
		Publisher:       container.Publisher,
	}, portfolio.ManagerOptions{
		Location:       loc,
		CallTimeout:    cfg.CallTimeout,
		AdvisorTimeout: cfg.AdvisorTimeout,

		AdviseWithoutRecommendations: cfg.AdviseWithoutRecommendations,
	}, log)

	// Run report archive
	if cfg.Snapshot.Enabled() {
		snapshots, err := reliability.NewSnapshotService(ctx, cfg.Snapshot, cfg.AWSRegion, log)
		if err != nil {
			return fmt.Errorf("failed to initialize snapshot service: %w", err)
		}
		container.Snapshots = snapshots
	}

	log.Info().
		Str("benchmark", cfg.BenchmarkTicker).
		Str("model", cfg.GeminiModel).
		Bool("kafka", len(cfg.KafkaBrokers) > 0).
		Bool("snapshots", cfg.Snapshot.Enabled()).
		Msg("Services initialized")
	return nil
}

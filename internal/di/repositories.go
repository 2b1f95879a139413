package di

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/clientdata"
	"github.com/aristath/portfolio-advisor/internal/config"
	"github.com/aristath/portfolio-advisor/internal/database/dynamo"
	"github.com/aristath/portfolio-advisor/internal/modules/ledger"
	"github.com/aristath/portfolio-advisor/internal/modules/portfolio"
	"github.com/aristath/portfolio-advisor/internal/modules/recommendations"
	"github.com/aristath/portfolio-advisor/internal/modules/universe"
)

// InitializeRepositories selects the store backend and creates the repositories
func InitializeRepositories(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.StoreBackend {
	case config.StoreDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("failed to load aws config: %w", err)
		}
		store := dynamo.NewStore(dynamodb.NewFromConfig(awsCfg), dynamo.Tables{
			StockAnalytics: cfg.Tables.StockAnalytics,
			Portfolio:      cfg.Tables.Portfolio,
			RealizedGains:  cfg.Tables.RealizedGains,
		}, log)
		container.Positions = store
		container.Ledger = store
		container.Recommendations = store

	default:
		container.Positions = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), log)
		container.Ledger = ledger.NewRepository(container.LedgerDB.Conn(), log)
		container.Recommendations = recommendations.NewRepository(container.PortfolioDB.Conn(), log)
	}

	container.UniverseRepo = universe.NewRepository(container.UniverseDB.Conn(), log)
	if len(cfg.UniverseTickers) > 0 {
		container.Universe = universe.NewStatic(cfg.UniverseTickers)
	} else {
		container.Universe = container.UniverseRepo
	}

	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())

	log.Info().Str("backend", cfg.StoreBackend).Msg("Repositories initialized")
	return nil
}

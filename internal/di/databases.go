package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/config"
	"github.com/aristath/portfolio-advisor/internal/database"
)

// InitializeDatabases opens the four local databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	toOpen := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{database.NameUniverse, database.ProfileStandard, &container.UniverseDB},
		{database.NamePortfolio, database.ProfileStandard, &container.PortfolioDB},
		{database.NameLedger, database.ProfileLedger, &container.LedgerDB}, // Maximum safety for the realized gains history
		{database.NameClientData, database.ProfileCache, &container.ClientDataDB},
	}

	for _, d := range toOpen {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath(d.name),
			Profile: d.profile,
			Name:    d.name,
		})
		if err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", d.name, err)
		}
		*d.target = db

		if err := db.Migrate(); err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", d.name, err)
		}

		log.Debug().Str("database", d.name).Str("path", db.Path()).Msg("Database ready")
	}

	return container, nil
}

// Package main is the entry point of the portfolio advisor.
//
// A run values the open positions against the benchmark, closes the ones the
// analysts no longer rate BUY, records the realized gains and opens the
// positions the advisor proposes. "advisor run" performs a single run (for cron
// or a serverless trigger); "advisor serve" schedules runs and serves the
// status API.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-advisor/internal/commands"
	"github.com/aristath/portfolio-advisor/internal/config"
	"github.com/aristath/portfolio-advisor/pkg/logger"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true, Output: os.Stderr})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Logs go to stderr so command output stays clean on stdout
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger.SetGlobalLogger(log)

	commands.Register(commander, &commands.Env{Config: cfg, Log: log, Out: os.Stdout})

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

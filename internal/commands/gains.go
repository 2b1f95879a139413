package commands

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-advisor/internal/di"
	"github.com/aristath/portfolio-advisor/internal/modules/reconciliation"
)

// gainsCmd holds the flags for the 'gains' subcommand.
type gainsCmd struct {
	env *Env
	raw bool
}

func (*gainsCmd) Name() string     { return "gains" }
func (*gainsCmd) Synopsis() string { return "realized gains ledger and lifetime performance" }
func (*gainsCmd) Usage() string {
	return `advisor gains [-raw]

  Displays one row per run date with the buy and sell value of the positions
  closed that day, followed by the lifetime performance.
`
}

func (c *gainsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "Print plain markdown")
}

func (c *gainsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := di.WireStores(ctx, c.env.Config, c.env.Log)
	if err != nil {
		return fail("Error opening stores: %v", err)
	}
	defer container.Close()

	entries, err := container.Ledger.ListRealizedGains(ctx)
	if err != nil {
		return fail("Error reading ledger: %v", err)
	}

	c.env.printMarkdown(GainsMarkdown(entries, reconciliation.LifetimePerformance(entries)), c.raw)
	return subcommands.ExitSuccess
}

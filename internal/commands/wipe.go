package commands

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-advisor/internal/di"
)

type wipeCmd struct {
	env     *Env
	confirm bool
}

func (*wipeCmd) Name() string     { return "wipe" }
func (*wipeCmd) Synopsis() string { return "delete every position, open and closed" }
func (*wipeCmd) Usage() string {
	return `advisor wipe -confirm

  Deletes all positions from the configured store. The realized gains ledger
  is left untouched.
`
}

func (c *wipeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.confirm, "confirm", false, "Required, acknowledges that positions are deleted")
}

func (c *wipeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.confirm {
		fmt.Fprintln(os.Stderr, "refusing to wipe positions without -confirm")
		return subcommands.ExitUsageError
	}

	container, err := di.WireStores(ctx, c.env.Config, c.env.Log)
	if err != nil {
		return fail("Error opening stores: %v", err)
	}
	defer container.Close()

	n, err := container.Positions.WipeAllPositions(ctx)
	if err != nil {
		return fail("Error wiping positions: %v", err)
	}

	fmt.Fprintf(c.env.out(), "Deleted %d positions\n", n)
	return subcommands.ExitSuccess
}

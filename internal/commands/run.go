package commands

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-advisor/internal/di"
)

type runCmd struct {
	env *Env
	raw bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "execute one daily portfolio run and exit" }
func (*runCmd) Usage() string {
	return `advisor run [-raw]

  Values the open positions, closes the ones analysts no longer rate BUY,
  records the realized gains and opens the positions the advisor proposes.
  Exits non-zero when any step failed.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "Print the summary as plain markdown")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.env.Config.GeminiAPIKey == "" {
		return fail("GEMINI_API_KEY is required for a run")
	}

	container, jobs, err := di.Wire(ctx, c.env.Config, c.env.Log)
	if err != nil {
		return fail("Error wiring dependencies: %v", err)
	}
	defer container.Close()

	report, err := jobs.DailyRun.Execute(ctx)
	if err != nil {
		return fail("Error running portfolio: %v", err)
	}

	c.env.printMarkdown(RunSummaryMarkdown(report), c.raw)

	if len(report.Failures) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

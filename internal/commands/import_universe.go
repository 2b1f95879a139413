package commands

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-advisor/internal/di"
	"github.com/aristath/portfolio-advisor/internal/modules/universe"
)

type importUniverseCmd struct {
	env *Env
}

func (*importUniverseCmd) Name() string     { return "import-universe" }
func (*importUniverseCmd) Synopsis() string { return "add securities to the investable universe" }
func (*importUniverseCmd) Usage() string {
	return `advisor import-universe <file.txt>

  One security per line: TICKER[,name[,industry]]. Blank lines and lines
  starting with # are ignored. Imported securities are active.
`
}

func (*importUniverseCmd) SetFlags(*flag.FlagSet) {}

func (c *importUniverseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one input file")
		return subcommands.ExitUsageError
	}

	file, err := os.Open(f.Arg(0))
	if err != nil {
		return fail("Error opening %s: %v", f.Arg(0), err)
	}
	defer file.Close()

	securities, err := ParseUniverse(file)
	if err != nil {
		return fail("Error parsing %s: %v", f.Arg(0), err)
	}

	container, err := di.WireStores(ctx, c.env.Config, c.env.Log)
	if err != nil {
		return fail("Error opening stores: %v", err)
	}
	defer container.Close()

	n, err := container.UniverseRepo.Upsert(ctx, securities)
	if err != nil {
		return fail("Error saving universe: %v", err)
	}

	fmt.Fprintf(c.env.out(), "Imported %d securities\n", n)
	return subcommands.ExitSuccess
}

// ParseUniverse reads TICKER[,name[,industry]] lines
func ParseUniverse(r io.Reader) ([]universe.Security, error) {
	var out []universe.Security
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, ",", 3)
		s := universe.Security{Ticker: strings.ToUpper(strings.TrimSpace(fields[0])), Active: true}
		if len(fields) > 1 {
			s.Name = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			s.Industry = strings.TrimSpace(fields[2])
		}
		out = append(out, s)
	}
	return out, scanner.Err()
}

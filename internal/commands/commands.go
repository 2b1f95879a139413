// Package commands implements the advisor's subcommands.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-advisor/internal/config"
)

// Env carries what every command needs
type Env struct {
	Config *config.Config
	Log    zerolog.Logger
	Out    io.Writer
}

// Register the subcommands.
func Register(c *subcommands.Commander, env *Env) {
	c.Register(&runCmd{env: env}, "portfolio")
	c.Register(&serveCmd{env: env}, "portfolio")
	c.Register(&gainsCmd{env: env}, "portfolio")
	c.Register(&wipeCmd{env: env}, "portfolio")

	c.Register(&importRecommendationsCmd{env: env}, "data")
	c.Register(&importUniverseCmd{env: env}, "data")
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

// printMarkdown renders md for the terminal, falling back to the raw text
func (e *Env) printMarkdown(md string, raw bool) {
	if !raw {
		if rendered, err := glamour.Render(md, "auto"); err == nil {
			md = rendered
		} else {
			e.Log.Debug().Err(err).Msg("Markdown rendering failed, printing raw")
		}
	}
	fmt.Fprint(e.out(), md)
}

func fail(format string, args ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// Package scenario parses scenario command flags and runs Lua duel scenarios.
package scenario

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	entrypoint "github.com/louisbranch/rulecore/internal/platform/cmd"
	"github.com/louisbranch/rulecore/internal/tools/scenario"
)

// Config holds scenario command configuration.
type Config struct {
	Scenario   string        `env:"RULECORE_SCENARIO_FILE"`
	Assertions bool          `env:"RULECORE_SCENARIO_ASSERT"  envDefault:"true"`
	Verbose    bool          `env:"RULECORE_SCENARIO_VERBOSE"`
	Timeout    time.Duration `env:"RULECORE_SCENARIO_TIMEOUT" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "path to scenario lua file")
	fs.BoolVar(&cfg.Assertions, "assert", cfg.Assertions, "enable assertions (disable to log expectations)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "print command payloads in the transcript")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout for the whole game")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the scenario command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if cfg.Scenario == "" {
		return errors.New("scenario path is required")
	}

	mode := scenario.AssertionStrict
	if !cfg.Assertions {
		mode = scenario.AssertionLogOnly
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceScenario, func(ctx context.Context) error {
		report, err := scenario.RunFile(ctx, scenario.Config{
			Timeout:    cfg.Timeout,
			Assertions: mode,
			Verbose:    cfg.Verbose,
			Logger:     log.New(errOut, "", 0),
			Out:        out,
		}, cfg.Scenario)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s: %d history entries verified\n", report.Scenario, report.Entries)
		return err
	})
}

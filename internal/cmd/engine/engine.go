// Package engine parses engine command flags and starts the engine runtime.
package engine

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/rulecore/internal/platform/cmd"
	server "github.com/louisbranch/rulecore/internal/services/engine/app"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/search"
	"github.com/louisbranch/rulecore/internal/services/engine/seat"
)

// Config holds engine command configuration.
type Config struct {
	GRPCAddr        string        `env:"RULECORE_ENGINE_GRPC_ADDR" envDefault:":8090"`
	HTTPAddr        string        `env:"RULECORE_ENGINE_HTTP_ADDR" envDefault:":8091"`
	HistoryPath     string        `env:"RULECORE_ENGINE_HISTORY_PATH"`
	DecisionTimeout time.Duration `env:"RULECORE_ENGINE_DECISION_TIMEOUT" envDefault:"30s"`
	AIDepth         int           `env:"RULECORE_ENGINE_AI_DEPTH" envDefault:"2"`
	AIMovetime      time.Duration `env:"RULECORE_ENGINE_AI_MOVETIME" envDefault:"1s"`
	AIThreads       int           `env:"RULECORE_ENGINE_AI_THREADS" envDefault:"1"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "The observer gRPC listen address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The lobby and seat HTTP listen address")
	fs.StringVar(&cfg.HistoryPath, "history", cfg.HistoryPath, "The sqlite history path (empty keeps history in memory)")
	fs.DurationVar(&cfg.DecisionTimeout, "decision-timeout", cfg.DecisionTimeout, "How long a remote seat may take to answer")
	fs.IntVar(&cfg.AIDepth, "ai-depth", cfg.AIDepth, "Search depth for AI seats")
	fs.DurationVar(&cfg.AIMovetime, "ai-movetime", cfg.AIMovetime, "Search time budget per AI choice")
	fs.IntVar(&cfg.AIThreads, "ai-threads", cfg.AIThreads, "Parallel search workers per AI choice")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the engine service.
func Run(ctx context.Context, cfg Config) error {
	grants, err := seat.LoadConfigFromEnv(nil)
	if err != nil {
		return fmt.Errorf("load seat grant config: %w", err)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			GRPCAddr:        cfg.GRPCAddr,
			HTTPAddr:        cfg.HTTPAddr,
			HistoryPath:     cfg.HistoryPath,
			Grants:          grants,
			DecisionTimeout: cfg.DecisionTimeout,
			AILimits:        aiLimits(cfg),
		})
	})
}

func aiLimits(cfg Config) *search.Limits {
	return search.DefaultLimits().
		SetDepth(cfg.AIDepth).
		SetMovetime(cfg.AIMovetime).
		SetThreads(cfg.AIThreads)
}

// Package observe parses observe command flags and follows a hosted game
// through the engine observer service.
package observe

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	entrypoint "github.com/louisbranch/rulecore/internal/platform/cmd"
	"github.com/louisbranch/rulecore/internal/platform/timeouts"
	"github.com/louisbranch/rulecore/internal/services/engine/api/grpc/observer"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/command"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/object"
	"github.com/louisbranch/rulecore/internal/services/engine/domain/replication"
)

// Config holds observe command configuration.
type Config struct {
	Addr     string `env:"RULECORE_OBSERVE_ADDR" envDefault:"127.0.0.1:8090"`
	Observer string `env:"RULECORE_OBSERVE_AS" envDefault:"spectator"`
	GameID   string
	Verify   bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The engine gRPC address")
	fs.StringVar(&cfg.Observer, "as", cfg.Observer, "The observer to watch as")
	fs.StringVar(&cfg.GameID, "game", "", "The game to follow")
	fs.BoolVar(&cfg.Verify, "verify", false, "Verify the stored history chain instead of watching")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.GameID == "" {
		return Config{}, errors.New("-game is required")
	}
	return cfg, nil
}

// Run dials the engine and prints either the verified history head or one
// line per packet until the game ends.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceObserve, func(ctx context.Context) error {
		return follow(ctx, cfg, out, nil)
	})
}

func follow(ctx context.Context, cfg Config, out io.Writer, logf func(string, ...any)) error {
	client, conn, err := observer.Dial(ctx, cfg.Addr, logf)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.Verify {
		callCtx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
		defer cancel()
		res, err := client.Verify(callCtx, cfg.GameID)
		if err != nil {
			return fmt.Errorf("verify %s: %w", cfg.GameID, err)
		}
		_, err = fmt.Fprintf(out, "%s: %d entries, head %d %s\n", res.GameID, res.Entries, res.LastSeq, res.LastHash)
		return err
	}

	stream, err := client.Watch(ctx, cfg.GameID, replication.Observer(cfg.Observer))
	if err != nil {
		return fmt.Errorf("watch %s: %w", cfg.GameID, err)
	}
	registry := command.NewBuiltinRegistry()
	replica := object.NewManager()
	for {
		data, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfg.GameID, err)
		}
		pkt, err := replication.UnmarshalPacket(registry, data)
		if err != nil {
			return err
		}
		pkt.Command.Execute(replica)
		label := string(pkt.Kind)
		if pkt.Bootstrap {
			label = "bootstrap"
		}
		if _, err := fmt.Fprintf(out, "seq %d %s: %d objects\n", pkt.Seq, label, replica.Len()); err != nil {
			return err
		}
	}
}

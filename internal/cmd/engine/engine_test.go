package engine

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.GRPCAddr != ":8090" || cfg.HTTPAddr != ":8091" {
		t.Fatalf("addrs = %q/%q, want :8090/:8091", cfg.GRPCAddr, cfg.HTTPAddr)
	}
	if cfg.DecisionTimeout != 30*time.Second {
		t.Fatalf("decision timeout = %v, want 30s", cfg.DecisionTimeout)
	}
	if cfg.HistoryPath != "" {
		t.Fatalf("history path = %q, want empty", cfg.HistoryPath)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	t.Setenv("RULECORE_ENGINE_HISTORY_PATH", "data/history.db")
	t.Setenv("RULECORE_ENGINE_AI_DEPTH", "3")
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-grpc-addr", "127.0.0.1:9000", "-decision-timeout", "5s"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HistoryPath != "data/history.db" || cfg.AIDepth != 3 {
		t.Fatalf("config = %+v, want env values", cfg)
	}
	if cfg.GRPCAddr != "127.0.0.1:9000" || cfg.DecisionTimeout != 5*time.Second {
		t.Fatalf("config = %+v, want flag overrides", cfg)
	}
}

func TestAILimits(t *testing.T) {
	limits := aiLimits(Config{AIDepth: 0, AIMovetime: time.Second, AIThreads: 4})
	if limits.Depth != 1 || limits.Movetime != time.Second || limits.Threads != 4 {
		t.Fatalf("limits = %s", limits)
	}
}

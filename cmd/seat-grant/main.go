// Package main generates seat grant keys or issues a seat grant.
//
// Without -game it prints a new key pair as shell exports.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/louisbranch/rulecore/internal/platform/config"
	"github.com/louisbranch/rulecore/internal/tools/seatgrant"
)

type signerEnv struct {
	PrivateKey string `env:"RULECORE_SEAT_SIGNER_PRIVATE_KEY"`
	Issuer     string `env:"RULECORE_ENGINE_SEAT_ISSUER"`
	Audience   string `env:"RULECORE_ENGINE_SEAT_AUDIENCE"`
}

func main() {
	var env signerEnv
	if err := config.ParseEnv(&env); err != nil {
		config.Exitf("Error: %v", err)
	}
	req := seatgrant.IssueRequest{PrivateKey: env.PrivateKey}
	flag.StringVar(&req.Issuer, "issuer", env.Issuer, "grant issuer")
	flag.StringVar(&req.Audience, "audience", env.Audience, "grant audience")
	flag.StringVar(&req.GameID, "game", "", "game id to seat the player in")
	flag.IntVar(&req.Player, "player", 0, "player to seat")
	flag.DurationVar(&req.TTL, "ttl", 5*time.Minute, "grant lifetime")
	flag.Parse()

	if req.GameID == "" {
		if err := seatgrant.GenerateKeys(os.Stdout, nil); err != nil {
			config.Exitf("generate seat grant key: %v", err)
		}
		return
	}
	if err := seatgrant.Issue(os.Stdout, req); err != nil {
		config.Exitf("issue seat grant: %v", err)
	}
}

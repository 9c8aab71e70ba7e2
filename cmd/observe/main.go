// Package main follows a hosted game from the command line.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	observecmd "github.com/louisbranch/rulecore/internal/cmd/observe"
)

func main() {
	cfg, err := observecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[OBSERVE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observecmd.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("observe: %v", err)
	}
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	walletcmd "github.com/walletgate/walletgate/internal/cmd/walletgate"
	platformcmd "github.com/walletgate/walletgate/internal/platform/cmd"
)

func main() {
	cfg, err := walletcmd.ParseConfig(flag.CommandLine, os.Args[1:], func(key string) (string, bool) {
		value, ok := os.LookupEnv(key)
		return value, ok
	})
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[WALLET] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceWallet, func(ctx context.Context) error {
		return walletcmd.Run(ctx, cfg)
	})
	if err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

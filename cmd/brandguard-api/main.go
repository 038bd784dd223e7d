package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/brandguard/brandguard/core/controlplane/gateway"
	"github.com/brandguard/brandguard/core/infra/buildinfo"
	"github.com/brandguard/brandguard/core/infra/config"
	"github.com/brandguard/brandguard/core/infra/logging"
)

const service = "brandguard-api"

func main() {
	buildinfo.Log(service)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gateway.Run(ctx, cfg); err != nil {
		logging.Error(service, "api gateway exited", "err", err)
		stop()
		os.Exit(1)
	}
}

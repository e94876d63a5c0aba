package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kushalX13/CurbKey/internal/config"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

const serviceName = "valet-service"

func Start() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalln("unable to load config", err)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{Use: serviceName, SilenceUsage: true}
	cmd := []*cobra.Command{
		{
			Use:   "serve-http",
			Short: "Run HTTP API server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHttpServerCmd(ctx, cfg, logger)
			},
		},
		{
			Use:   "serve-worker",
			Short: "Run scheduled request worker",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWorkerCmd(ctx, cfg, logger)
			},
		},
		{
			Use:   "tick",
			Short: "Activate due scheduled requests once",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTickCmd(ctx, cfg, logger)
			},
		},
		newWatchCmd(ctx, cfg),
		{
			Use:   "dev",
			Short: "Run HTTP server and worker on one store, for local testing",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDevCmd(ctx, cfg, logger)
			},
		},
	}

	rootCmd.AddCommand(cmd...)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

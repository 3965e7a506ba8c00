package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/carbonex/conformoor/pkg/api"
	"github.com/carbonex/conformoor/pkg/conformance"
	"github.com/carbonex/conformoor/pkg/config"
	"github.com/carbonex/conformoor/pkg/reconcile"
	"github.com/carbonex/conformoor/pkg/schema"
	"github.com/carbonex/conformoor/pkg/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conformance API server",
	Long: `Start the conformoor HTTP server. It exposes the run management API and
the callback endpoints that targets under test deliver their asynchronous
events to.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	schemas, err := schema.NewRegistry()
	if err != nil {
		return fmt.Errorf("loading schema registry: %w", err)
	}

	timeout := cfg.Conformance.Timeout()
	executor := conformance.NewExecutor(log, schemas, timeout)
	orchestrator := conformance.NewOrchestrator(log, st, executor, timeout)
	reconciler := reconcile.NewReconciler(log, st, schemas)

	srv := api.NewServer(log, &cfg.Server, st, orchestrator, reconciler)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	// Wait for shutdown signal.
	sig := <-sigCh
	log.WithField("signal", sig).Info("Shutting down")
	cancel()

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	if err := st.Stop(); err != nil {
		return fmt.Errorf("stopping store: %w", err)
	}

	return nil
}

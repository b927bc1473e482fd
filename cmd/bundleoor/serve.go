package main

import (
	"fmt"

	"github.com/ethpandaops/bundleoor/pkg/api"
	"github.com/ethpandaops/bundleoor/pkg/retention"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only history API server",
	Long: `Serve build history, comparisons and trends over HTTP, export
Prometheus metrics on /metrics and prune old builds on retention.schedule.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default: server.listen)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopStore(st)

	srv := api.NewServer(log, &cfg.Server, st)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	var sched retention.Scheduler

	if cfg.Retention.Schedule != "" && cfg.Retention.Days > 0 {
		sched = retention.NewScheduler(log, cfg.Retention, st, srv.ObserveCleanup)
		if err := sched.Start(ctx); err != nil {
			_ = srv.Stop()

			return fmt.Errorf("starting retention scheduler: %w", err)
		}
	}

	<-ctx.Done()
	log.Info("Shutting down API server")

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop retention scheduler")
		}
	}

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stopping api server: %w", err)
	}

	return nil
}

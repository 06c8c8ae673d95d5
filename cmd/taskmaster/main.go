// Command taskmaster launches and supervises the programs named in a
// configuration file, exposing an interactive status/start/stop/restart/
// reload/exit shell while it runs.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/postCC42/taskmaster/internal/config"
	"github.com/postCC42/taskmaster/internal/logger"
	"github.com/postCC42/taskmaster/internal/metrics"
	"github.com/postCC42/taskmaster/internal/signalrouter"
	"github.com/postCC42/taskmaster/internal/supervisor"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	os.Exit(run())
}

func run() int {
	var metricsAddr string

	root := &cobra.Command{
		Use:   "taskmaster CONFIG",
		Short: "Supervise a set of programs described by CONFIG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(args[0], metricsAddr)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090); disabled when empty")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func serve(configPath, metricsAddr string) error {
	root, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slogLevel(root.LoggingEnabled)
	log := logger.New(logger.Config{Path: root.LogFile, Level: logLevel})

	if metricsAddr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go serveMetrics(metricsAddr, log)
	}

	ctl := supervisor.New(configPath, log)
	if err := ctl.Initialize(root); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	router := signalrouter.New()
	router.Start()
	defer router.Stop()

	ctl.RunCommandLoop(os.Stdin, os.Stdout, router)
	return nil
}

func slogLevel(loggingEnabled bool) slog.Level {
	if loggingEnabled {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func serveMetrics(addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "err", err)
	}
}

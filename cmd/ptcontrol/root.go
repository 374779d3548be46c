package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "PTCONTROL_CONFIG"
)

func newRootCmd() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:   "ptcontrol",
		Short: "Pressure and temperature telemetry, control and status service.",
		Long: `ptcontrol ingests sensor readings from MQTT, keeps the latest value of
every sensor and valve in SQLite, drives the heating, cooling and pressure
valves from configured thresholds and serves /status and /alerts over HTTP.

The configuration file is taken from --config, then $PTCONTROL_CONFIG, then
configs/config.yaml.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "path to configuration file")

	serve := func(m mode) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, getConfigPath(configFlag), m)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run ingestion, control and the HTTP API in one process.",
			Args:  cobra.NoArgs,
			RunE:  serve(modeAll),
		},
		&cobra.Command{
			Use:   "ingest",
			Short: "Run ingestion and serve /status.",
			Long: `Subscribes to sensor data and status topics, upserts every message into
the store and serves the aggregated latest-state view at /status.`,
			Args: cobra.NoArgs,
			RunE: serve(modeIngest),
		},
		&cobra.Command{
			Use:   "control",
			Short: "Run the control loop and serve /alerts.",
			Long: `Subscribes to sensor data on its own, evaluates the thresholds every
control.interval_seconds, publishes and stores valve transitions and serves
the most recent alerts at /alerts.`,
			Args: cobra.NoArgs,
			RunE: serve(modeControl),
		},
		&cobra.Command{
			Use:   "supervise",
			Short: "Run ingest and control as supervised child processes.",
			Long: `Starts "ingest" and "control" from this binary as separate processes on
supervisor.ingest_api_port and supervisor.control_api_port, and restarts
either one when it exits or fails its health check.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return supervise(ctx, getConfigPath(configFlag))
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information.",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ptcontrol %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)

	return root
}

// getConfigPath returns the configuration file path: the flag if given,
// then PTCONTROL_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

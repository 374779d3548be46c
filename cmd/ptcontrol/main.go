// ptcontrol keeps a pressure/temperature rig inside its operating bands.
//
// It ingests sensor telemetry from MQTT into a latest-state store, runs a
// threshold control loop that drives four valves, and serves the current
// state and recent alerts over HTTP. The subcommands run the ingestion and
// control halves together or as separate processes.
package main

import (
	"os"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

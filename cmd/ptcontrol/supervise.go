package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/nerrad567/ptcontrol/internal/infrastructure/config"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/logging"
	"github.com/nerrad567/ptcontrol/internal/process"
	"github.com/nerrad567/ptcontrol/migrations"
)

// supervise runs ingest and control as child processes of this binary and
// restarts them when they exit or stop answering /api/v1/health. If either
// child exhausts its restarts the other is stopped too.
func supervise(ctx context.Context, configPath string) error {
	log := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version).With("mode", "supervise")

	// Both children share the database file; migrate it once up front so
	// they never race on the schema.
	if err := migrateDatabase(ctx, cfg, log); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}

	children := []*process.Child{
		process.New(childSpec(cfg, exe, configPath, modeIngest, cfg.Supervisor.IngestAPIPort)),
		process.New(childSpec(cfg, exe, configPath, modeControl, cfg.Supervisor.ControlAPIPort)),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(children))
	for _, child := range children {
		child.SetLogger(log.Component("supervisor"))
		go func() { errs <- child.Run(runCtx) }()
	}
	log.Info("supervisor started", "children", len(children))

	var firstErr error
	for range children {
		if runErr := <-errs; runErr != nil && firstErr == nil {
			firstErr = runErr
			cancel()
		}
	}

	for _, child := range children {
		s := child.Stats()
		log.Info("child finished", "name", s.Name, "restarts", s.Restarts, "last_error", s.LastError)
	}
	return firstErr
}

func migrateDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-write handle used only for migration

	_, pending, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if len(pending) == 0 {
		log.Info("database schema up to date", "path", cfg.Database.Path)
		return nil
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrated", "path", cfg.Database.Path, "applied", len(pending))
	return nil
}

func childSpec(cfg *config.Config, exe, configPath string, m mode, apiPort int) process.Spec {
	sv := cfg.Supervisor
	healthURL := fmt.Sprintf("http://%s/api/v1/health", net.JoinHostPort(probeHost(cfg.API.Host), strconv.Itoa(apiPort)))

	return process.Spec{
		Name:            m.String(),
		Path:            exe,
		Args:            []string{m.String(), "--config", configPath},
		Env:             []string{"PTCONTROL_API_PORT=" + strconv.Itoa(apiPort)},
		RestartDelay:    time.Duration(sv.RestartDelay) * time.Second,
		MaxRestartDelay: time.Duration(sv.MaxRestartDelay) * time.Second,
		MaxRestarts:     sv.MaxRestarts,
		StopTimeout:     time.Duration(sv.StopTimeout) * time.Second,
		Health:          healthProbe(healthURL),
		HealthInterval:  time.Duration(sv.HealthInterval) * time.Second,
	}
}

// probeHost maps a listen address to one the supervisor can dial.
func probeHost(listen string) string {
	switch listen {
	case "", "0.0.0.0", "::", "[::]":
		return "127.0.0.1"
	default:
		return listen
	}
}

func healthProbe(url string) func(context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
		}
		return nil
	}
}

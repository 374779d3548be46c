package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/control"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/config"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/logging"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/ptcontrol/internal/ingest"
	"github.com/nerrad567/ptcontrol/internal/status"
)

const gracefulShutdownTimeout = 10 * time.Second

// StatusSource builds the /status view. *status.Aggregator satisfies it.
type StatusSource interface {
	Snapshot(ctx context.Context) (status.Snapshot, error)
}

// AlertSource is the read side of the alert buffer. *alert.Buffer satisfies it.
type AlertSource interface {
	Recent(n int) []alert.Alert
	Len() int
	Capacity() int
	Total() uint64
}

// EngineStats reports control engine counters. *control.Engine satisfies it.
type EngineStats interface {
	Stats() control.Stats
}

// IngestStats reports ingestion counters. *ingest.Ingestor satisfies it.
type IngestStats interface {
	Stats() ingest.Stats
}

// RelayStats reports relay counters. *ingest.Relay satisfies it.
type RelayStats interface {
	Stats() ingest.RelayStats
}

// ConnectionState reports the broker session. *mqtt.Client satisfies it.
type ConnectionState interface {
	Stats() mqtt.Stats
}

// PoolStats reports connection pool statistics. *database.DB satisfies it.
type PoolStats interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies of the API server. Only Logger is required;
// the others enable their routes or metrics sections.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	Status StatusSource
	Alerts AlertSource

	// AlertLimit is the default number of alerts returned by /alerts.
	AlertLimit int

	Engine EngineStats
	Ingest IngestStats
	Relay  RelayStats
	MQTT   ConnectionState
	DB     PoolStats

	// Hub, if set, is used instead of a server-owned hub so that the
	// control engine and ingestor can broadcast through it.
	Hub *Hub

	Version string
}

// Server is the HTTP server. Create it with New and start it with Start.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	status     StatusSource
	alerts     AlertSource
	alertLimit int
	engine     EngineStats
	ingest     IngestStats
	relay      RelayStats
	mqtt       ConnectionState
	db         PoolStats
	version    string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
	startTime   time.Time
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	limit := deps.AlertLimit
	if limit <= 0 {
		limit = 3
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		status:     deps.Status,
		alerts:     deps.Alerts,
		alertLimit: limit,
		engine:     deps.Engine,
		ingest:     deps.Ingest,
		relay:      deps.Relay,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the listener in a background goroutine. The hub is run
// until Close unless it was supplied by the caller.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to ten seconds for in-flight requests, then closes.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck returns an error until Start has been called.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/ptcontrol/internal/control"
	"github.com/nerrad567/ptcontrol/internal/infrastructure/mqtt"
	"github.com/nerrad567/ptcontrol/internal/ingest"
)

// SystemMetrics is the /api/v1/metrics response. Sections for components
// not running in this process are omitted.
type SystemMetrics struct {
	Timestamp     string             `json:"timestamp"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Runtime       RuntimeMetrics     `json:"runtime"`
	WebSocket     WSMetrics          `json:"websocket"`
	MQTT          *mqtt.Stats        `json:"mqtt,omitempty"`
	Database      *DatabaseMetrics   `json:"database,omitempty"`
	Engine        *control.Stats     `json:"engine,omitempty"`
	Ingest        *ingest.Stats      `json:"ingest,omitempty"`
	Relay         *ingest.RelayStats `json:"relay,omitempty"`
	Alerts        *AlertMetrics      `json:"alerts,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics contains connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// AlertMetrics describes the alert buffer.
type AlertMetrics struct {
	Buffered int    `json:"buffered"`
	Capacity int    `json:"capacity"`
	Total    uint64 `json:"total"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(mem.TotalAlloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	if s.mqtt != nil {
		st := s.mqtt.Stats()
		metrics.MQTT = &st
	}
	if s.db != nil {
		st := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}
	if s.engine != nil {
		st := s.engine.Stats()
		metrics.Engine = &st
	}
	if s.ingest != nil {
		st := s.ingest.Stats()
		metrics.Ingest = &st
	}
	if s.relay != nil {
		st := s.relay.Stats()
		metrics.Relay = &st
	}
	if s.alerts != nil {
		metrics.Alerts = &AlertMetrics{
			Buffered: s.alerts.Len(),
			Capacity: s.alerts.Capacity(),
			Total:    s.alerts.Total(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/ptcontrol/internal/alert"
	"github.com/nerrad567/ptcontrol/internal/entity"
)

// handleStatus returns the latest state of every entity with a record.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.status.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("building status snapshot", "error", err)
		if errors.Is(err, entity.ErrStoreRead) {
			writeError(w, http.StatusInternalServerError, ErrCodeStoreUnavailable, "state store unavailable")
			return
		}
		writeInternalError(w, "failed to build status")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleAlerts returns the most recent alerts, oldest first. ?limit=n
// overrides the default count up to the buffer's capacity.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := s.alertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, s.alerts.Capacity())
	}

	alerts := s.alerts.Recent(limit)
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethpandaops/bundleoor/pkg/build"
	"github.com/ethpandaops/bundleoor/pkg/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	maxTrendDays     = 365
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListBuilds returns recent builds, newest first unless ?order=asc.
func (s *server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", defaultListLimit)
	if err != nil || limit < 1 || limit > maxListLimit {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"limit must be between 1 and 500"})

		return
	}

	order, err := store.ParseOrder(r.URL.Query().Get("order"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	builds, err := s.store.GetRecentBuilds(r.Context(), limit, order)
	if err != nil {
		s.log.WithError(err).Error("Failed to list builds")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing builds failed"})

		return
	}

	if builds == nil {
		builds = []build.Build{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

// handleGetBuild returns one fully hydrated build.
func (s *server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	id, ok := buildIDParam(w, r, "id")
	if !ok {
		return
	}

	b, err := s.store.GetBuild(r.Context(), id)
	if err != nil {
		s.log.WithError(err).WithField("build_id", id).
			Error("Failed to get build")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading build failed"})

		return
	}

	if b == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{"build not found"})

		return
	}

	writeJSON(w, http.StatusOK, b)
}

// handleCompareBuilds diffs two builds.
func (s *server) handleCompareBuilds(w http.ResponseWriter, r *http.Request) {
	oldID, ok := buildIDParam(w, r, "id")
	if !ok {
		return
	}

	newID, ok := buildIDParam(w, r, "otherID")
	if !ok {
		return
	}

	cmp, err := s.store.GetBuildComparison(r.Context(), oldID, newID)
	if err != nil {
		s.log.WithError(err).Error("Failed to compare builds")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"comparing builds failed"})

		return
	}

	if cmp == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{"build not found"})

		return
	}

	writeJSON(w, http.StatusOK, cmp)
}

// handleTrends returns daily aggregates for ?days= (default 30).
func (s *server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", store.DefaultTrendDays)
	if err != nil || days < 1 || days > maxTrendDays {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"days must be between 1 and 365"})

		return
	}

	points, err := s.store.GetTrendData(r.Context(), days)
	if err != nil {
		s.log.WithError(err).Error("Failed to load trend data")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading trend data failed"})

		return
	}

	if points == nil {
		points = []build.TrendPoint{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":   days,
		"points": points,
	})
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	return strconv.Atoi(raw)
}

func buildIDParam(w http.ResponseWriter, r *http.Request, key string) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, key), 10, 32)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid build id"})

		return 0, false
	}

	return uint(id), true
}

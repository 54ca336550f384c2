package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"healthdeck/internal/models"
	"healthdeck/internal/monitor"
	"healthdeck/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("[API] Failed to encode response")
	}
}

// writeError maps core errors to status codes: unknown ids are 404, rejected
// input is 400, everything else is 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrServiceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidService), errors.Is(err, models.ErrInvalidSetting):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("[API] Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid service id %q", raw)
		return 0, false
	}
	return id, true
}

// queryInt reads a non-negative integer query parameter, def when absent.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(w, "invalid %s %q", name, raw)
		return 0, false
	}
	return n, true
}

func (h *Handler) changed(id int64) {
	if h.stream == nil {
		return
	}
	if id > 0 {
		h.stream.InvalidateSeries(id)
	}
	h.stream.Notify()
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mon.OverallHealth())
}

func (h *Handler) allStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mon.AllStatus())
}

func (h *Handler) servicesByCategory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.mon.ServicesByCategory())
}

func (h *Handler) serviceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	// Services that have not been checked yet have no status to report.
	result, ok := h.mon.ServiceStatus(id)
	if !ok {
		writeError(w, r, fmt.Errorf("%w: %d", models.ErrServiceNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.mon.ReloadServices(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	h.changed(0)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Services reloaded"})
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.mon.ListServices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *Handler) getService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc, err := h.mon.GetService(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func decodeService(w http.ResponseWriter, r *http.Request) (models.Service, bool) {
	var svc models.Service
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&svc); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return svc, false
	}
	return svc, true
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	svc, ok := decodeService(w, r)
	if !ok {
		return
	}
	created, err := h.mon.CreateService(r.Context(), svc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.changed(created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	svc, ok := decodeService(w, r)
	if !ok {
		return
	}
	updated, err := h.mon.UpdateService(r.Context(), id, svc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.changed(id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.mon.DeleteService(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.changed(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) serviceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	hours, ok := queryInt(w, r, "hours", monitor.DefaultHistoryHours)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", monitor.DefaultHistoryLimit)
	if !ok {
		return
	}
	entries, err := h.mon.ServiceHistory(r.Context(), id, hours, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) serviceGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	hours, ok := queryInt(w, r, "hours", storage.DefaultGraphHours)
	if !ok {
		return
	}
	points, ok := queryInt(w, r, "points", storage.DefaultGraphMaxPoints)
	if !ok {
		return
	}
	series, err := h.mon.ServiceGraphData(r.Context(), id, hours, points)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (h *Handler) allHistory(w http.ResponseWriter, r *http.Request) {
	hours, ok := queryInt(w, r, "hours", monitor.DefaultHistoryHours)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", monitor.DefaultAllLimit)
	if !ok {
		return
	}
	entries, err := h.mon.AllHistory(r.Context(), hours, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.mon.RunCleanup(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.changed(0)
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.mon.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) getSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, ok, err := h.mon.Setting(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "setting not found: " + key})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (h *Handler) putSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		badRequest(w, `body must be {"value": "..."}`)
		return
	}
	if err := h.mon.SetSetting(r.Context(), key, *body.Value); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": *body.Value})
}

// Package api exposes the local HTTP surface: record CRUD, statistics,
// and sync control. Everything except /health sits behind bearer auth.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/doselog/internal/clock"
	"github.com/kalambet/doselog/internal/status"
	"github.com/kalambet/doselog/internal/storage"
	"github.com/kalambet/doselog/internal/track"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SyncTrigger abstracts the replicator for the API layer.
type SyncTrigger interface {
	ReplicateOnce(ctx context.Context) error
}

type AppDeps struct {
	Track  *track.Service
	Store  *storage.Store
	Status *status.Publisher
	Syncer SyncTrigger // optional; if nil, POST /sync/now reports unavailable
	Clock  clock.Clock
	Token  string
	UserID string
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/weights", handleLogWeight(deps))
		r.Get("/weights", handleListWeights(deps))
		r.Delete("/weights/{id}", handleDeleteWeight(deps))

		r.Post("/injections", handleLogInjection(deps))
		r.Get("/injections", handleListInjections(deps))
		r.Delete("/injections/{id}", handleDeleteInjection(deps))
		r.Get("/medications", handleListMedications(deps))

		r.Post("/inventory", handleAddInventory(deps))
		r.Get("/inventory", handleListInventory(deps))
		r.Post("/inventory/{id}/use", handleUseInventory(deps))
		r.Delete("/inventory/{id}", handleDeleteInventory(deps))

		r.Post("/schedules", handleCreateSchedule(deps))
		r.Get("/schedules", handleListSchedules(deps))
		r.Get("/schedules/{id}", handleGetSchedule(deps))
		r.Get("/schedules/{id}/next", handleNextDose(deps))
		r.Delete("/schedules/{id}", handleDeleteSchedule(deps))

		r.Get("/stats/weight", handleWeightStats(deps))
		r.Get("/stats/injections", handleInjectionStats(deps))

		r.Get("/sync/status", handleSyncStatus(deps))
		r.Post("/sync/now", handleSyncNow(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Weight ---

type logWeightRequest struct {
	RecordedAt string  `json:"recorded_at"` // RFC3339, optional
	WeightKg   float64 `json:"weight_kg"`
	Note       string  `json:"note"`
}

func handleLogWeight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logWeightRequest
		if !decodeBody(w, r, &req) {
			return
		}
		recordedAt, ok := parseTimeParam(w, "recorded_at", req.RecordedAt)
		if !ok {
			return
		}

		entry, err := deps.Track.LogWeight(track.LogWeightParams{
			UserID:     deps.UserID,
			RecordedAt: recordedAt,
			WeightKg:   req.WeightKg,
			Note:       req.Note,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func handleListWeights(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 1000)
		entries, err := deps.Track.ListWeights(deps.UserID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list weights: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.WeightEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleDeleteWeight(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleteByID(w, chi.URLParam(r, "id"), deps.Track.DeleteWeight)
	}
}

// --- Injections ---

type logInjectionRequest struct {
	InjectedAt string  `json:"injected_at"` // RFC3339, optional
	Medication string  `json:"medication"`
	DoseMg     float64 `json:"dose_mg"`
	Site       string  `json:"site"`
	Note       string  `json:"note"`
}

func handleLogInjection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logInjectionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		injectedAt, ok := parseTimeParam(w, "injected_at", req.InjectedAt)
		if !ok {
			return
		}

		injection, err := deps.Track.LogInjection(track.LogInjectionParams{
			UserID:     deps.UserID,
			InjectedAt: injectedAt,
			Medication: req.Medication,
			DoseMg:     req.DoseMg,
			Site:       req.Site,
			Note:       req.Note,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, injection)
	}
}

func handleListInjections(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, 1000)
		injections, err := deps.Track.ListInjections(deps.UserID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list injections: %v", err)
			return
		}
		if injections == nil {
			injections = []storage.Injection{}
		}
		writeJSON(w, http.StatusOK, injections)
	}
}

func handleDeleteInjection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleteByID(w, chi.URLParam(r, "id"), deps.Track.DeleteInjection)
	}
}

func handleListMedications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meds, err := deps.Track.Medications(deps.UserID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list medications: %v", err)
			return
		}
		if meds == nil {
			meds = []string{}
		}
		writeJSON(w, http.StatusOK, meds)
	}
}

// --- Inventory ---

type addInventoryRequest struct {
	Medication string  `json:"medication"`
	DoseMg     float64 `json:"dose_mg"`
	Quantity   int     `json:"quantity"`
	AcquiredAt string  `json:"acquired_at"` // RFC3339, optional
	Note       string  `json:"note"`
}

func handleAddInventory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addInventoryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		acquiredAt, ok := parseTimeParam(w, "acquired_at", req.AcquiredAt)
		if !ok {
			return
		}

		item, err := deps.Track.AddInventory(track.AddInventoryParams{
			UserID:     deps.UserID,
			Medication: req.Medication,
			DoseMg:     req.DoseMg,
			Quantity:   req.Quantity,
			AcquiredAt: acquiredAt,
			Note:       req.Note,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func handleListInventory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Track.ListInventory(deps.UserID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list inventory: %v", err)
			return
		}
		if items == nil {
			items = []storage.InventoryItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleUseInventory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Count int `json:"count"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Count == 0 {
			req.Count = 1
		}

		item, err := deps.Track.UseInventory(chi.URLParam(r, "id"), req.Count)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "inventory item not found")
			return
		}
		if errors.Is(err, track.ErrInsufficientStock) {
			httpError(w, http.StatusConflict, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleDeleteInventory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleteByID(w, chi.URLParam(r, "id"), deps.Track.DeleteInventory)
	}
}

// --- Schedules ---

type createScheduleRequest struct {
	Medication string `json:"medication"`
	StartedAt  string `json:"started_at"` // RFC3339, optional
	Note       string `json:"note"`
	Phases     []struct {
		DoseMg       float64 `json:"dose_mg"`
		DurationDays int     `json:"duration_days"`
	} `json:"phases"`
}

type scheduleResponse struct {
	Schedule storage.Schedule        `json:"schedule"`
	Phases   []storage.SchedulePhase `json:"phases"`
}

func handleCreateSchedule(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createScheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		startedAt, ok := parseTimeParam(w, "started_at", req.StartedAt)
		if !ok {
			return
		}

		phases := make([]track.PhaseSpec, len(req.Phases))
		for i, p := range req.Phases {
			phases[i] = track.PhaseSpec{DoseMg: p.DoseMg, DurationDays: p.DurationDays}
		}

		schedule, created, err := deps.Track.CreateSchedule(track.CreateScheduleParams{
			UserID:     deps.UserID,
			Medication: req.Medication,
			StartedAt:  startedAt,
			Note:       req.Note,
			Phases:     phases,
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusCreated, scheduleResponse{Schedule: schedule, Phases: created})
	}
}

func handleListSchedules(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schedules, err := deps.Track.ListSchedules(deps.UserID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list schedules: %v", err)
			return
		}
		if schedules == nil {
			schedules = []storage.Schedule{}
		}
		writeJSON(w, http.StatusOK, schedules)
	}
}

func handleGetSchedule(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schedule, phases, err := deps.Track.GetSchedule(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "schedule not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get schedule: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, scheduleResponse{Schedule: schedule, Phases: phases})
	}
}

func handleNextDose(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schedule, phases, err := deps.Track.GetSchedule(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "schedule not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get schedule: %v", err)
			return
		}

		now := deps.Clock.Now()
		phase, err := track.CurrentPhase(schedule, phases, now)
		if errors.Is(err, track.ErrScheduleComplete) {
			writeJSON(w, http.StatusOK, map[string]any{"complete": true})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		var last *storage.Injection
		injections, err := deps.Track.ListInjections(deps.UserID, 1)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list injections: %v", err)
			return
		}
		if len(injections) > 0 && injections[0].Medication == schedule.Medication {
			last = &injections[0]
		}

		everyDays := parseIntParam(r, "every_days", 7, 365)
		due, dose := track.NextDose(phase, last, everyDays, now)
		writeJSON(w, http.StatusOK, map[string]any{
			"phase_order": phase.PhaseOrder,
			"dose_mg":     dose,
			"due_at":      due.UTC().Format(time.RFC3339),
		})
	}
}

func handleDeleteSchedule(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleteByID(w, chi.URLParam(r, "id"), deps.Track.DeleteSchedule)
	}
}

// --- Stats ---

func handleWeightStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Track.ListWeights(deps.UserID, parseIntParam(r, "limit", 365, 10000))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list weights: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, track.ComputeWeightStats(entries))
	}
}

func handleInjectionStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		injections, err := deps.Track.ListInjections(deps.UserID, parseIntParam(r, "limit", 365, 10000))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list injections: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, track.ComputeInjectionStats(injections, deps.Clock.Now()))
	}
}

// --- Sync ---

type syncStatusResponse struct {
	status.Status
	Display string `json:"display"`
	Pending int    `json:"pending"`
}

func handleSyncStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := deps.Store.CountOutbox()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count pending changes: %v", err)
			return
		}
		st := deps.Status.Get()
		writeJSON(w, http.StatusOK, syncStatusResponse{
			Status:  st,
			Display: status.FormatRelative(st, deps.Clock.Now()),
			Pending: pending,
		})
	}
}

func handleSyncNow(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Syncer == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "sync is not available: not logged in")
			return
		}
		// A replication already in flight makes this a no-op; either way we
		// report the status the attempt left behind.
		if err := deps.Syncer.ReplicateOnce(r.Context()); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "sync failed: %v", err)
			return
		}
		st := deps.Status.Get()
		writeJSON(w, http.StatusOK, syncStatusResponse{
			Status:  st,
			Display: status.FormatRelative(st, deps.Clock.Now()),
		})
	}
}

// --- Shared helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// parseTimeParam parses an optional RFC3339 field; empty means the zero
// time (services substitute now).
func parseTimeParam(w http.ResponseWriter, name, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid %s: %v", name, err)
		return time.Time{}, false
	}
	return t, true
}

func deleteByID(w http.ResponseWriter, id string, del func(string) error) {
	err := del(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to delete: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

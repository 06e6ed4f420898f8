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

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/consult"
	"github.com/kalambet/sillage/internal/profile"
	"github.com/kalambet/sillage/internal/quota"
	"github.com/kalambet/sillage/internal/scan"
	"github.com/kalambet/sillage/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxImageBodySize   = 15 << 20 // base64 of a ~10MB photo
)

// Scanner runs a full scan.
type Scanner interface {
	Scan(ctx context.Context, req scan.Request) (scan.Outcome, error)
}

// Prober answers the cheap "is there a perfume" question.
type Prober interface {
	Probe(ctx context.Context, frame analysis.Frame) bool
}

// Consultant answers expert questions.
type Consultant interface {
	Ask(ctx context.Context, q consult.Question) (consult.Answer, error)
}

// QuotaReporter summarizes a user's remaining quota.
type QuotaReporter interface {
	Summary(userID string) ([]quota.Decision, error)
}

type AppDeps struct {
	Store    *storage.Store
	Profiles *profile.Manager
	Scanner  Scanner
	Prober   Prober
	Consult  Consultant
	Quota    QuotaReporter
	Photos   http.Handler // optional; served unauthenticated under /photos/
	Token    string
}

// NewAppHandler returns the REST API. /health and /photos/ are public; every
// /v1 route needs the bearer token and an X-User-ID header.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Photos != nil {
		r.Mount("/photos", http.StripPrefix("/photos", deps.Photos))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(RequireUser)

		r.Post("/scans", handleScan(deps))
		r.Post("/probe", handleProbe(deps))
		r.Post("/consult", handleConsult(deps))
		r.Get("/quota", handleQuota(deps))
		r.Get("/usage", handleUsage(deps))
		r.Get("/stats", handleStats(deps))

		r.Get("/collection", handleListCollection(deps))
		r.Get("/collection/{id}", handleGetItem(deps))
		r.Delete("/collection/{id}", handleDeleteItem(deps))
		r.Put("/collection/{id}/review", handleReviewItem(deps))

		r.Get("/wishlist", handleListWishlist(deps))
		r.Post("/wishlist", handleAddWishlist(deps))
		r.Post("/wishlist/toggle", handleToggleWishlist(deps))
		r.Get("/wishlist/status", handleWishlistStatus(deps))
		r.Delete("/wishlist/{id}", handleDeleteWishlist(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleQuota(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decisions, err := deps.Quota.Summary(userID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read quota: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quota": decisions})
	}
}

// handleUsage lists the caller's usage log entries since the start of the
// UTC day.
func handleUsage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logs, err := deps.Store.ListUsage(userID(r), quota.StartOfDay(time.Now()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list usage: %v", err)
			return
		}
		type entry struct {
			ID        string    `json:"id"`
			Action    string    `json:"action_type"`
			CreatedAt time.Time `json:"created_at"`
		}
		out := make([]entry, 0, len(logs))
		for _, l := range logs {
			out = append(out, entry{ID: l.ID, Action: l.ActionType, CreatedAt: l.CreatedAt})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		perfumes, err := deps.Store.CountMasterPerfumes()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count catalog: %v", err)
			return
		}
		jobs, err := deps.Store.JobCounts()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count jobs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"catalog_perfumes": perfumes,
			"jobs":             jobs,
		})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profiles.Get(userID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var patch profile.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, err := deps.Profiles.Update(userID(r), patch)
		if errors.Is(err, profile.ErrInvalidPatch) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// quotaError writes a 429 that mobile clients recognise by is_limit_reached.
func quotaError(w http.ResponseWriter, denied *quota.DeniedError) {
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{
			"message": denied.Reason,
			"type":    "quota_exceeded",
		},
		"is_limit_reached": true,
		"action":           denied.Action,
		"used":             denied.Used,
		"limit":            denied.Limit,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
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

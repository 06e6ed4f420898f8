package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/sillage/internal/collection"
	"github.com/kalambet/sillage/internal/storage"
)

func loadItem(store *storage.Store, userID, id string) (collection.Item, error) {
	rec, err := store.GetItem(userID, id)
	if err != nil {
		return collection.Item{}, err
	}
	return collection.FromRecord(rec)
}

func loadItems(store *storage.Store, userID string, limit int) ([]collection.Item, error) {
	recs, err := store.ListItems(userID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]collection.Item, 0, len(recs))
	for _, rec := range recs {
		it, err := collection.FromRecord(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func handleListCollection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := loadItems(deps.Store, userID(r), parseIntParam(r, "limit", 50, 200))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list collection: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleGetItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := loadItem(deps.Store, userID(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "collection item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get item: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleDeleteItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteItem(userID(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "collection item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete item: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleReviewItem(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var review collection.Review
		if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		uid, id := userID(r), chi.URLParam(r, "id")
		item, err := loadItem(deps.Store, uid, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "collection item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get item: %v", err)
			return
		}

		item, err = collection.WithReview(item, review, time.Now())
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		rec, err := collection.ToRecord(item)
		if err == nil {
			err = deps.Store.UpdateItemAIData(uid, id, rec.AIData)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save review: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

type WishlistRequest struct {
	Brand       string          `json:"brand"`
	PerfumeName string          `json:"perfume_name"`
	AIData      json.RawMessage `json:"ai_data,omitempty"`
}

type wishlistEntry struct {
	ID          string          `json:"id"`
	Brand       string          `json:"brand"`
	PerfumeName string          `json:"perfume_name"`
	AIData      json.RawMessage `json:"ai_data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toWishlistEntry(e storage.WishlistEntry) wishlistEntry {
	out := wishlistEntry{ID: e.ID, Brand: e.Brand, PerfumeName: e.PerfumeName, CreatedAt: e.CreatedAt}
	if e.AIData != "" {
		out.AIData = json.RawMessage(e.AIData)
	}
	return out
}

// decodeWishlist reads a WishlistRequest, writing a 400 when brand or
// perfume_name is missing.
func decodeWishlist(w http.ResponseWriter, r *http.Request) (WishlistRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req WishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return req, false
	}
	req.Brand, req.PerfumeName = strings.TrimSpace(req.Brand), strings.TrimSpace(req.PerfumeName)
	if req.Brand == "" || req.PerfumeName == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "brand and perfume_name are required")
		return req, false
	}
	return req, true
}

func handleListWishlist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Store.ListWishlist(userID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list wishlist: %v", err)
			return
		}
		out := make([]wishlistEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, toWishlistEntry(e))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleAddWishlist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeWishlist(w, r)
		if !ok {
			return
		}

		entry, err := deps.Store.AddWishlist(storage.WishlistEntry{
			UserID:      userID(r),
			Brand:       req.Brand,
			PerfumeName: req.PerfumeName,
			AIData:      string(req.AIData),
		})
		if errors.Is(err, storage.ErrDuplicate) {
			httpError(w, http.StatusConflict, "conflict", "%s %s is already on the wishlist", req.Brand, req.PerfumeName)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add to wishlist: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, toWishlistEntry(entry))
	}
}

func handleDeleteWishlist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteWishlist(userID(r), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "wishlist entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete wishlist entry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleToggleWishlist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeWishlist(w, r)
		if !ok {
			return
		}
		added, err := deps.Store.ToggleWishlist(storage.WishlistEntry{
			UserID:      userID(r),
			Brand:       req.Brand,
			PerfumeName: req.PerfumeName,
			AIData:      string(req.AIData),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to toggle wishlist: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"in_wishlist": added})
	}
}

func handleWishlistStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brand := strings.TrimSpace(r.URL.Query().Get("brand"))
		name := strings.TrimSpace(r.URL.Query().Get("perfume_name"))
		if brand == "" || name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "brand and perfume_name are required")
			return
		}
		in, err := deps.Store.InWishlist(userID(r), brand, name)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to check wishlist: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"in_wishlist": in})
	}
}

package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/sillage/internal/analysis"
	"github.com/kalambet/sillage/internal/collection"
	"github.com/kalambet/sillage/internal/consult"
	"github.com/kalambet/sillage/internal/quota"
	"github.com/kalambet/sillage/internal/scan"
	"github.com/kalambet/sillage/internal/storage"
)

type FrameRequest struct {
	Image    string `json:"image"` // base64, optionally a data: URL
	MIMEType string `json:"mime_type"`
	PhotoURL string `json:"photo_url,omitempty"`
}

type ScanResponse struct {
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Result    analysis.Result  `json:"result"`
	Item      *collection.Item `json:"item,omitempty"`
	PhotoURL  string           `json:"photo_url,omitempty"`
	Duplicate bool             `json:"duplicate,omitempty"`
}

// decodeFrame turns a base64 payload into a Frame, honoring a data URL's
// MIME type when the request does not name one.
func decodeFrame(req FrameRequest) (analysis.Frame, error) {
	data := strings.TrimSpace(req.Image)
	mime := req.MIMEType
	if strings.HasPrefix(data, "data:") {
		header, body, ok := strings.Cut(data, ",")
		if !ok {
			return analysis.Frame{}, errors.New("malformed data URL")
		}
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		data = body
	}
	if data == "" {
		return analysis.Frame{}, errors.New("image is required")
	}
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return analysis.Frame{}, errors.New("image is not valid base64")
	}
	if mime == "" {
		mime = "image/jpeg"
	}
	return analysis.Frame{Image: img, MIMEType: mime, CapturedAt: time.Now().UTC()}, nil
}

func readFrame(w http.ResponseWriter, r *http.Request) (FrameRequest, analysis.Frame, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBodySize)
	defer r.Body.Close()

	var req FrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return req, analysis.Frame{}, false
	}
	frame, err := decodeFrame(req)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return req, analysis.Frame{}, false
	}
	return req, frame, true
}

func handleScan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, frame, ok := readFrame(w, r)
		if !ok {
			return
		}

		out, err := deps.Scanner.Scan(r.Context(), scan.Request{UserID: userID(r), Frame: frame, PhotoURL: req.PhotoURL})
		var denied *quota.DeniedError
		if errors.As(err, &denied) {
			quotaError(w, denied)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "scan failed: %v", err)
			return
		}

		resp := ScanResponse{
			Status:    string(out.Result.Kind),
			Message:   out.Result.Message(),
			Result:    out.Result,
			Item:      out.Item,
			PhotoURL:  out.PhotoURL,
			Duplicate: out.Duplicate,
		}
		code := http.StatusOK
		if out.Result.Kind == analysis.KindFailed {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, resp)
	}
}

func handleProbe(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, frame, ok := readFrame(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"identified": deps.Prober.Probe(r.Context(), frame)})
	}
}

type ConsultRequest struct {
	Question    string                   `json:"question"`
	UserContext string                   `json:"user_context,omitempty"`
	PerfumeID   string                   `json:"perfume_id,omitempty"`
	Perfume     *analysis.Identification `json:"perfume_data,omitempty"`
	Collection  bool                     `json:"collection,omitempty"`
}

func handleConsult(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ConsultRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		q := consult.Question{
			UserID:      userID(r),
			Perfume:     req.Perfume,
			Question:    req.Question,
			UserContext: req.UserContext,
		}
		switch {
		case req.PerfumeID != "":
			item, err := loadItem(deps.Store, q.UserID, req.PerfumeID)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "collection item not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load item: %v", err)
				return
			}
			q.Perfume = &item.AIData.Identification
		case req.Collection:
			items, err := loadItems(deps.Store, q.UserID, 100)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to load collection: %v", err)
				return
			}
			q.Collection = items
		}

		ans, err := deps.Consult.Ask(r.Context(), q)
		var denied *quota.DeniedError
		switch {
		case errors.As(err, &denied):
			quotaError(w, denied)
		case errors.Is(err, consult.ErrNoQuestion), errors.Is(err, consult.ErrNoContext):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "consultation failed: %v", err)
		default:
			writeJSON(w, http.StatusOK, ans)
		}
	}
}

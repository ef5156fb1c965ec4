package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mangavault/internal/database"
	"mangavault/models"
	librarypkg "mangavault/services/library"
	"mangavault/services/prefetch"
	thumbnailpkg "mangavault/services/thumbnail"
)

type libraryService interface {
	GetTitle(ctx context.Context, id int64, onlineFetch bool) (*models.TitleView, error)
	GetTitleWithStats(ctx context.Context, id int64, onlineFetch bool) (*models.TitleFull, error)
	GetMeta(ctx context.Context, id int64) (map[string]string, error)
	SetMeta(ctx context.Context, id int64, key, value string) error
	SetInLibrary(ctx context.Context, id int64, in bool) error
}

var _ libraryService = (*librarypkg.Service)(nil)

type thumbnailService interface {
	GetThumbnail(ctx context.Context, id int64) (io.ReadCloser, string, error)
}

var _ thumbnailService = (*thumbnailpkg.Service)(nil)

type prefetchScheduler interface {
	ScheduleAhead(titleIDs, latestReadChapterIDs []int64)
}

var _ prefetchScheduler = (*prefetch.Scheduler)(nil)

// LibraryHandler exposes the library core over HTTP.
type LibraryHandler struct {
	Library    libraryService
	Thumbnails thumbnailService
	Prefetch   prefetchScheduler
}

func NewLibraryHandler(library libraryService, thumbnails thumbnailService, scheduler prefetchScheduler) *LibraryHandler {
	return &LibraryHandler{Library: library, Thumbnails: thumbnails, Prefetch: scheduler}
}

func titleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["titleID"], 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError translates the error taxonomy into status codes: the
// modeled "missing" conditions are 404s, everything else is a server error.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "title not found")
	case errors.Is(err, thumbnailpkg.ErrNoThumbnail), errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "no thumbnail available")
	default:
		log.Printf("[api] request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// GetTitle handles GET /api/v1/titles/{titleID}?onlineFetch=true.
func (h *LibraryHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	id, err := titleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}
	onlineFetch := r.URL.Query().Get("onlineFetch") == "true"

	view, err := h.Library.GetTitle(r.Context(), id, onlineFetch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetTitleFull handles GET /api/v1/titles/{titleID}/full.
func (h *LibraryHandler) GetTitleFull(w http.ResponseWriter, r *http.Request) {
	id, err := titleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}
	onlineFetch := r.URL.Query().Get("onlineFetch") == "true"

	full, err := h.Library.GetTitleWithStats(r.Context(), id, onlineFetch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, full)
}

// GetMeta handles GET /api/v1/titles/{titleID}/meta.
func (h *LibraryHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	id, err := titleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	meta, err := h.Library.GetMeta(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// PatchMeta handles PATCH /api/v1/titles/{titleID}/meta.
func (h *LibraryHandler) PatchMeta(w http.ResponseWriter, r *http.Request) {
	id, err := titleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	var body struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" {
		writeError(w, http.StatusBadRequest, "key and value required")
		return
	}

	if err := h.Library.SetMeta(r.Context(), id, body.Key, body.Value); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetThumbnail handles GET /api/v1/titles/{titleID}/thumbnail.
func (h *LibraryHandler) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := titleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	rc, contentType, err := h.Thumbnails.GetThumbnail(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	io.Copy(w, rc)
}

// SetInLibrary handles POST and DELETE on /api/v1/titles/{titleID}/library.
func (h *LibraryHandler) SetInLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := titleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid title id")
		return
	}

	in := r.Method == http.MethodPost
	if err := h.Library.SetInLibrary(r.Context(), id, in); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"inLibrary": in})
}

// DownloadAhead handles POST /api/v1/download-ahead. The work happens after
// the debounce window, so the response only acknowledges the request.
func (h *LibraryHandler) DownloadAhead(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TitleIDs             []int64 `json:"mangaIds"`
		LatestReadChapterIDs []int64 `json:"latestReadChapterIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.TitleIDs) == 0 {
		writeError(w, http.StatusBadRequest, "mangaIds required")
		return
	}

	h.Prefetch.ScheduleAhead(body.TitleIDs, body.LatestReadChapterIDs)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

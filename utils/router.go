package utils

import (
	"net/http"

	"github.com/gorilla/mux"

	"mangavault/api"
	"mangavault/handlers"
)

// NewRouter constructs the API router: health check, library endpoints, and
// the middleware stack (CORS plus a per-IP rate limit on the endpoints that
// can trigger source traffic).
func NewRouter(h *handlers.LibraryHandler, limiter *api.IPRateLimiter) *mux.Router {
	r := mux.NewRouter()

	r.Use(corsMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/titles/{titleID:[0-9]+}", api.RateLimitHandlerFunc(limiter, h.GetTitle)).Methods(http.MethodGet)
	v1.HandleFunc("/titles/{titleID:[0-9]+}/full", api.RateLimitHandlerFunc(limiter, h.GetTitleFull)).Methods(http.MethodGet)
	v1.HandleFunc("/titles/{titleID:[0-9]+}/thumbnail", api.RateLimitHandlerFunc(limiter, h.GetThumbnail)).Methods(http.MethodGet)
	v1.HandleFunc("/titles/{titleID:[0-9]+}/meta", h.GetMeta).Methods(http.MethodGet)
	v1.HandleFunc("/titles/{titleID:[0-9]+}/meta", h.PatchMeta).Methods(http.MethodPatch)
	v1.HandleFunc("/titles/{titleID:[0-9]+}/library", h.SetInLibrary).Methods(http.MethodPost, http.MethodDelete)
	v1.HandleFunc("/download-ahead", h.DownloadAhead).Methods(http.MethodPost)

	return r
}

// Package api exposes the content store services over HTTP with chi.
//
// Errors are classified with contentstore.Classify and rendered as
// {"error": {...}} bodies. Versioned resources carry their version id in the
// ETag header, and modifications take the expected version from If-Match.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// NewRouter mounts every handler of the content store
func NewRouter(service contentstore.Service, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware)

	sessions := NewSessionsHandler(service)
	r.Mount("/templates", NewTemplatesHandler(service).Routes())
	r.Mount("/objects", NewObjectsHandler(service).Routes())
	r.Mount("/sessions", sessions.Routes())
	r.Mount("/files", sessions.FilesRoutes())

	return r
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, r, "id", "must be a positive integer")
		return 0, false
	}
	return id, true
}

func setETag(w http.ResponseWriter, versionID string) {
	w.Header().Set("ETag", strconv.Quote(versionID))
}

// ifMatch returns the version id named by the If-Match header
func ifMatch(w http.ResponseWriter, r *http.Request) (string, bool) {
	value := strings.TrimSpace(r.Header.Get("If-Match"))
	value = strings.TrimPrefix(value, "W/")
	value = strings.Trim(value, `"`)
	if value == "" || value == "*" {
		badRequest(w, r, "If-Match", "must name the expected version")
		return "", false
	}
	return value, true
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// SetupSessionRequest is the request body for opening an upload session
type SetupSessionRequest struct {
	TemplateID        int64                   `json:"templateId"`
	TemplateVersionID string                  `json:"templateVersionId"`
	Language          contentstore.Language   `json:"language"`
	Author            contentstore.AuthorInfo `json:"author"`
}

// SessionsHandler handles upload sessions and the files uploaded through them
type SessionsHandler struct {
	service contentstore.SessionService
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(service contentstore.SessionService) *SessionsHandler {
	return &SessionsHandler{service: service}
}

// Routes returns the routes for sessions
func (h *SessionsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.SetupSession)
	r.Get("/{id}", h.GetSession)
	r.Put("/{id}/files/{templateCode}", h.UploadFile)

	return r
}

// FilesRoutes returns the routes for finalized files
func (h *SessionsHandler) FilesRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{key}", h.GetFileInfo)
	return r
}

// SetupSession opens an upload session for a template and language
func (h *SessionsHandler) SetupSession(w http.ResponseWriter, r *http.Request) {
	var req SetupSessionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", err.Error())
		return
	}

	session, err := h.service.SetupSession(r.Context(), contentstore.SetupSessionRequest{
		TemplateID:        req.TemplateID,
		TemplateVersionID: req.TemplateVersionID,
		Language:          req.Language,
		Author:            req.Author,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, session)
}

// GetSession returns an unexpired session
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, session)
}

// UploadFile streams the request body as the file of one binary element.
// The filename comes from the filename query parameter and the size from Content-Length.
func (h *SessionsHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	code, err := strconv.ParseInt(chi.URLParam(r, "templateCode"), 10, 32)
	if err != nil {
		badRequest(w, r, "templateCode", "must be an integer")
		return
	}
	if r.ContentLength < 0 {
		badRequest(w, r, "Content-Length", "is required")
		return
	}

	file, err := h.service.UploadFile(r.Context(), contentstore.InitiateUploadRequest{
		SessionID:    id,
		TemplateCode: int32(code),
		Filename:     r.URL.Query().Get("filename"),
		ContentType:  r.Header.Get("Content-Type"),
		Size:         r.ContentLength,
	}, r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, file)
}

// GetFileInfo returns the metadata of a finalized file
func (h *SessionsHandler) GetFileInfo(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	info, err := h.service.GetFileInfo(r.Context(), key)
	if errors.Is(err, contentstore.ErrBlobNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{Error: ErrorBody{
			Code:      "not_found",
			Message:   fmt.Sprintf("file %s not found", key),
			RequestID: requestIDFrom(r),
		}})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, r, "session id", "must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

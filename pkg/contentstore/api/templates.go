package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// CreateTemplateRequest is the request body for publishing a template
type CreateTemplateRequest struct {
	ID         int64                           `json:"id"`
	Author     contentstore.AuthorInfo         `json:"author"`
	Descriptor contentstore.TemplateDescriptor `json:"descriptor"`
}

// ModifyTemplateRequest is the request body for a new template version.
// The expected version travels in the If-Match header.
type ModifyTemplateRequest struct {
	Author     contentstore.AuthorInfo         `json:"author"`
	Descriptor contentstore.TemplateDescriptor `json:"descriptor"`
}

// TemplatesHandler handles HTTP requests for templates
type TemplatesHandler struct {
	service contentstore.TemplateService
}

// NewTemplatesHandler creates a new templates handler
func NewTemplatesHandler(service contentstore.TemplateService) *TemplatesHandler {
	return &TemplatesHandler{service: service}
}

// Routes returns the routes for templates
func (h *TemplatesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListTemplates)
	r.Post("/", h.CreateTemplate)
	r.Get("/{id}", h.GetTemplate)
	r.Head("/{id}", h.TemplateExists)
	r.Put("/{id}", h.ModifyTemplate)
	r.Get("/{id}/versions", h.GetTemplateVersions)

	return r
}

// ListTemplates returns one page of template metadata
func (h *TemplatesHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListTemplateMetadata(r.Context(), r.URL.Query().Get("continuationToken"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

// CreateTemplate publishes the first version of a template
func (h *TemplatesHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", err.Error())
		return
	}

	template, err := h.service.CreateTemplate(r.Context(), contentstore.CreateTemplateRequest{
		ID:         req.ID,
		Author:     req.Author,
		Descriptor: req.Descriptor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Template created", "template_id", template.ID, "version_id", template.VersionID)
	setETag(w, template.VersionID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, template)
}

// GetTemplate returns the latest or the requested version of a template
func (h *TemplatesHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	template, err := h.service.GetTemplate(r.Context(), id, r.URL.Query().Get("versionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, template.VersionID)
	render.JSON(w, r, template)
}

// TemplateExists answers 200 or 404 without a body
func (h *TemplatesHandler) TemplateExists(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	exists, err := h.service.TemplateExists(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ModifyTemplate publishes a new version if If-Match names the current one
func (h *TemplatesHandler) ModifyTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expected, ok := ifMatch(w, r)
	if !ok {
		return
	}

	var req ModifyTemplateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", err.Error())
		return
	}

	template, err := h.service.ModifyTemplate(r.Context(), contentstore.ModifyTemplateRequest{
		ID:                id,
		ExpectedVersionID: expected,
		Author:            req.Author,
		Descriptor:        req.Descriptor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Template modified", "template_id", template.ID, "version_id", template.VersionID)
	setETag(w, template.VersionID)
	render.JSON(w, r, template)
}

// GetTemplateVersions returns the version history of a template
func (h *TemplatesHandler) GetTemplateVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	versions, err := h.service.GetTemplateVersions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, versions)
}

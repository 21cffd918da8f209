package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// CreateObjectRequest is the request body for creating an object
type CreateObjectRequest struct {
	ID         int64                         `json:"id"`
	Author     contentstore.AuthorInfo       `json:"author"`
	Descriptor contentstore.ObjectDescriptor `json:"descriptor"`
}

// ModifyObjectRequest is the request body for a new object version.
// The expected version travels in the If-Match header.
type ModifyObjectRequest struct {
	Author     contentstore.AuthorInfo       `json:"author"`
	Descriptor contentstore.ObjectDescriptor `json:"descriptor"`
}

// ValidateElementsRequest is the request body for a dry-run validation
type ValidateElementsRequest struct {
	TemplateID int64                                  `json:"templateId"`
	Language   contentstore.Language                  `json:"language"`
	Elements   []contentstore.ObjectElementDescriptor `json:"elements"`
}

// ValidateElementsResponse lists the elements that failed; empty means valid
type ValidateElementsResponse struct {
	Valid    bool                                   `json:"valid"`
	Elements []contentstore.ElementValidationResult `json:"elements"`
}

// ObjectsHandler handles HTTP requests for objects
type ObjectsHandler struct {
	service contentstore.ObjectService
}

// NewObjectsHandler creates a new objects handler
func NewObjectsHandler(service contentstore.ObjectService) *ObjectsHandler {
	return &ObjectsHandler{service: service}
}

// Routes returns the routes for objects
func (h *ObjectsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListObjects)
	r.Post("/", h.CreateObject)
	r.Post("/validate", h.ValidateElements)
	r.Get("/{id}", h.GetObject)
	r.Head("/{id}", h.ObjectExists)
	r.Put("/{id}", h.ModifyObject)
	r.Get("/{id}/versions", h.GetObjectVersions)

	return r
}

// ListObjects returns one page of object metadata
func (h *ObjectsHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListObjectMetadata(r.Context(), r.URL.Query().Get("continuationToken"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

// CreateObject writes the first version of an object
func (h *ObjectsHandler) CreateObject(w http.ResponseWriter, r *http.Request) {
	var req CreateObjectRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", err.Error())
		return
	}

	record, err := h.service.CreateObject(r.Context(), contentstore.CreateObjectRequest{
		ID:         req.ID,
		Author:     req.Author,
		Descriptor: req.Descriptor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Object created", "object_id", record.ID, "version_id", record.VersionID)
	setETag(w, record.VersionID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

// GetObject reconstructs the latest or the requested version of an object
func (h *ObjectsHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	object, err := h.service.GetObjectDescriptor(r.Context(), id, r.URL.Query().Get("versionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	setETag(w, object.VersionID)
	render.JSON(w, r, object)
}

// ObjectExists answers 200 or 404 without a body
func (h *ObjectsHandler) ObjectExists(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	exists, err := h.service.IsObjectExists(r.Context(), id)
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

// ModifyObject writes a new version if If-Match names the current one
func (h *ObjectsHandler) ModifyObject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	expected, ok := ifMatch(w, r)
	if !ok {
		return
	}

	var req ModifyObjectRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", err.Error())
		return
	}

	record, err := h.service.ModifyObject(r.Context(), contentstore.ModifyObjectRequest{
		ID:                id,
		ExpectedVersionID: expected,
		Author:            req.Author,
		Descriptor:        req.Descriptor,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Object modified", "object_id", record.ID, "version_id", record.VersionID,
		"modified_elements", record.ModifiedElements)
	setETag(w, record.VersionID)
	render.JSON(w, r, record)
}

// GetObjectVersions returns the manifest history of an object
func (h *ObjectsHandler) GetObjectVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	versions, err := h.service.GetAllRootVersions(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, versions)
}

// ValidateElements checks element values without writing anything
func (h *ObjectsHandler) ValidateElements(w http.ResponseWriter, r *http.Request) {
	var req ValidateElementsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", err.Error())
		return
	}

	results, err := h.service.ValidateElements(r.Context(), contentstore.ValidateElementsRequest{
		TemplateID: req.TemplateID,
		Language:   req.Language,
		Elements:   req.Elements,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []contentstore.ElementValidationResult{}
	}
	render.JSON(w, r, ValidateElementsResponse{Valid: len(results) == 0, Elements: results})
}

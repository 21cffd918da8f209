package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes one failure
type ErrorBody struct {
	Code           string                                 `json:"code"`
	Message        string                                 `json:"message"`
	RequestID      string                                 `json:"request_id,omitempty"`
	CurrentVersion string                                 `json:"current_version,omitempty"`
	Elements       []contentstore.ElementValidationResult `json:"elements,omitempty"`
	Violation      *contentstore.ValidationError          `json:"violation,omitempty"`
	ExpiresAt      *time.Time                             `json:"expires_at,omitempty"`
}

var classStatus = map[contentstore.ErrorClass]struct {
	status int
	code   string
}{
	contentstore.ClassNotFound:           {http.StatusNotFound, "not_found"},
	contentstore.ClassConflict:           {http.StatusConflict, "conflict"},
	contentstore.ClassPreconditionFailed: {http.StatusPreconditionFailed, "precondition_failed"},
	contentstore.ClassBadRequest:         {http.StatusBadRequest, "bad_request"},
	contentstore.ClassUnprocessable:      {http.StatusUnprocessableEntity, "unprocessable"},
	contentstore.ClassGone:               {http.StatusGone, "gone"},
	contentstore.ClassInternal:           {http.StatusInternalServerError, "internal_error"},
}

// StatusFor returns the HTTP status an error from the content store maps to
func StatusFor(err error) int {
	return classStatus[contentstore.Classify(err)].status
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	class := contentstore.Classify(err)
	mapped := classStatus[class]

	body := ErrorBody{
		Code:      mapped.code,
		Message:   err.Error(),
		RequestID: requestIDFrom(r),
	}

	var (
		concurrency *contentstore.ConcurrencyError
		elements    *contentstore.InvalidObjectElementsError
		template    *contentstore.InvalidTemplateError
		binary      *contentstore.InvalidBinaryError
		expired     *contentstore.SessionExpiredError
	)
	switch {
	case errors.As(err, &concurrency):
		body.CurrentVersion = concurrency.CurrentVersion
	case errors.As(err, &elements):
		body.Elements = elements.Elements
	case errors.As(err, &template):
		body.Elements = template.Elements
	case errors.As(err, &binary):
		body.Violation = binary.Err
	case errors.As(err, &expired):
		expiresAt := expired.ExpiredAt.UTC()
		body.ExpiresAt = &expiresAt
	}

	if class == contentstore.ClassInternal {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		body.Message = "An internal server error occurred"
	} else {
		slog.InfoContext(r.Context(), "request rejected", "method", r.Method, "path", r.URL.Path,
			"status", mapped.status, "err", err)
	}

	render.Status(r, mapped.status)
	render.JSON(w, r, ErrorResponse{Error: body})
}

// badRequest reports a malformed request before it reaches the service
func badRequest(w http.ResponseWriter, r *http.Request, field, reason string) {
	writeError(w, r, &contentstore.InvalidRequestError{Field: field, Reason: reason})
}

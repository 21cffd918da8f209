package contentstore

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error types
var (
	// ErrObjectNotFound indicates an object or object version was not found
	ErrObjectNotFound = errors.New("object not found")

	// ErrTemplateNotFound indicates a template or template version was not found
	ErrTemplateNotFound = errors.New("template not found")

	// ErrSessionNotFound indicates an upload session was not found
	ErrSessionNotFound = errors.New("session not found")

	// ErrBlobNotFound is returned by blob stores for absent keys or versions
	ErrBlobNotFound = errors.New("blob not found")

	// ErrObjectAlreadyExists indicates a create for an id that already has a manifest
	ErrObjectAlreadyExists = errors.New("object already exists")

	// ErrTemplateAlreadyExists indicates a create for a template id that is taken
	ErrTemplateAlreadyExists = errors.New("template already exists")

	// ErrLockAlreadyExists indicates the lock is held by another holder
	ErrLockAlreadyExists = errors.New("lock already exists")

	// ErrConcurrency indicates an optimistic concurrency check failed
	ErrConcurrency = errors.New("version mismatch")

	// ErrInconsistent indicates an object does not match its template
	ErrInconsistent = errors.New("object is inconsistent with its template")

	// ErrInvalidOperation indicates a request that is not allowed in the current state
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrInvalidObjectElements indicates element values violate their constraints
	ErrInvalidObjectElements = errors.New("invalid object elements")

	// ErrInvalidTemplate indicates a template or template reference is not usable
	ErrInvalidTemplate = errors.New("invalid template")

	// ErrSessionExpired indicates an upload session is past its expiry
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidBinary indicates an uploaded file failed validation
	ErrInvalidBinary = errors.New("invalid binary")

	// ErrInvalidRequest indicates missing or malformed request fields
	ErrInvalidRequest = errors.New("invalid request")
)

// ObjectNotFoundError reports an absent object or object version.
type ObjectNotFoundError struct {
	ID        int64
	VersionID string
}

func (e *ObjectNotFoundError) Error() string {
	if e.VersionID != "" {
		return fmt.Sprintf("object %d version %s not found", e.ID, e.VersionID)
	}
	return fmt.Sprintf("object %d not found", e.ID)
}

func (e *ObjectNotFoundError) Unwrap() error {
	return ErrObjectNotFound
}

// TemplateNotFoundError reports an absent template or template version.
type TemplateNotFoundError struct {
	ID        int64
	VersionID string
}

func (e *TemplateNotFoundError) Error() string {
	if e.VersionID != "" {
		return fmt.Sprintf("template %d version %s not found", e.ID, e.VersionID)
	}
	return fmt.Sprintf("template %d not found", e.ID)
}

func (e *TemplateNotFoundError) Unwrap() error {
	return ErrTemplateNotFound
}

// ObjectAlreadyExistsError reports a create for an existing object id.
type ObjectAlreadyExistsError struct {
	ID int64
}

func (e *ObjectAlreadyExistsError) Error() string {
	return fmt.Sprintf("object %d already exists", e.ID)
}

func (e *ObjectAlreadyExistsError) Unwrap() error {
	return ErrObjectAlreadyExists
}

// TemplateAlreadyExistsError reports a create for an existing template id.
type TemplateAlreadyExistsError struct {
	ID int64
}

func (e *TemplateAlreadyExistsError) Error() string {
	return fmt.Sprintf("template %d already exists", e.ID)
}

func (e *TemplateAlreadyExistsError) Unwrap() error {
	return ErrTemplateAlreadyExists
}

// LockAlreadyExistsError reports that a lock key is held by another holder.
type LockAlreadyExistsError struct {
	Key string
}

func (e *LockAlreadyExistsError) Error() string {
	return fmt.Sprintf("lock %s already exists", e.Key)
}

func (e *LockAlreadyExistsError) Unwrap() error {
	return ErrLockAlreadyExists
}

// ConcurrencyError reports that the caller's expected version is not the current one.
type ConcurrencyError struct {
	ID              int64
	ExpectedVersion string
	CurrentVersion  string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency violation for %d: expected version %q, current version %q",
		e.ID, e.ExpectedVersion, e.CurrentVersion)
}

func (e *ConcurrencyError) Unwrap() error {
	return ErrConcurrency
}

// InconsistentObjectError reports an object/template shape mismatch.
type InconsistentObjectError struct {
	ID     int64
	Reason string
}

func (e *InconsistentObjectError) Error() string {
	return fmt.Sprintf("object %d is inconsistent: %s", e.ID, e.Reason)
}

func (e *InconsistentObjectError) Unwrap() error {
	return ErrInconsistent
}

// InvalidOperationError reports a request not allowed in the current state.
type InvalidOperationError struct {
	Op     string
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation %s: %s", e.Op, e.Reason)
}

func (e *InvalidOperationError) Unwrap() error {
	return ErrInvalidOperation
}

// InvalidRequestError reports missing or malformed request fields.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// InvalidTemplateError reports template descriptor problems or an unusable template reference.
type InvalidTemplateError struct {
	ID       int64
	Reason   string
	Elements []ElementValidationResult
}

func (e *InvalidTemplateError) Error() string {
	if len(e.Elements) > 0 {
		return fmt.Sprintf("template %d is invalid: %d element(s) have invalid constraints", e.ID, len(e.Elements))
	}
	return fmt.Sprintf("template %d is invalid: %s", e.ID, e.Reason)
}

func (e *InvalidTemplateError) Unwrap() error {
	return ErrInvalidTemplate
}

// InvalidObjectElementsError aggregates per-element validation failures of one request.
type InvalidObjectElementsError struct {
	ObjectID int64
	Elements []ElementValidationResult
}

func (e *InvalidObjectElementsError) Error() string {
	codes := make([]string, 0, len(e.Elements))
	for _, el := range e.Elements {
		codes = append(codes, fmt.Sprintf("%d", el.TemplateCode))
	}
	return fmt.Sprintf("object %d has invalid elements (template codes %s)", e.ObjectID, strings.Join(codes, ","))
}

func (e *InvalidObjectElementsError) Unwrap() error {
	return ErrInvalidObjectElements
}

// SessionNotFoundError reports an unknown upload session.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

func (e *SessionNotFoundError) Unwrap() error {
	return ErrSessionNotFound
}

// SessionExpiredError reports an upload session past its expiry.
type SessionExpiredError struct {
	SessionID string
	ExpiredAt time.Time
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session %s expired at %s", e.SessionID, e.ExpiredAt.Format(time.RFC3339))
}

func (e *SessionExpiredError) Unwrap() error {
	return ErrSessionExpired
}

// InvalidBinaryError reports an uploaded file that failed validation.
type InvalidBinaryError struct {
	TemplateCode int32
	Err          *ValidationError
}

func (e *InvalidBinaryError) Error() string {
	return fmt.Sprintf("invalid binary for element %d: %s", e.TemplateCode, e.Err.Error())
}

func (e *InvalidBinaryError) Unwrap() error {
	return ErrInvalidBinary
}

// StorageError represents an error related to blob store operations
type StorageError struct {
	Bucket string
	Key    string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s in bucket %s: %v", e.Op, e.Key, e.Bucket, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ErrorClass groups errors by how callers should react to them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassNotFound
	ClassConflict
	ClassPreconditionFailed
	ClassBadRequest
	ClassUnprocessable
	ClassGone
)

// Classify maps an error returned by this package onto the error taxonomy.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrConcurrency):
		return ClassPreconditionFailed
	case errors.Is(err, ErrSessionExpired):
		return ClassGone
	case errors.Is(err, ErrObjectAlreadyExists),
		errors.Is(err, ErrTemplateAlreadyExists),
		errors.Is(err, ErrLockAlreadyExists):
		return ClassConflict
	case errors.Is(err, ErrInvalidObjectElements),
		errors.Is(err, ErrInvalidBinary):
		return ClassUnprocessable
	case errors.Is(err, ErrInconsistent),
		errors.Is(err, ErrInvalidOperation),
		errors.Is(err, ErrInvalidTemplate),
		errors.Is(err, ErrInvalidRequest):
		return ClassBadRequest
	case errors.Is(err, ErrObjectNotFound),
		errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrSessionNotFound):
		return ClassNotFound
	default:
		return ClassInternal
	}
}

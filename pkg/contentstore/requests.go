package contentstore

import (
	"github.com/google/uuid"
)

// Request/Response DTOs

// CreateTemplateRequest contains parameters for publishing a new template
type CreateTemplateRequest struct {
	ID         int64
	Author     AuthorInfo
	Descriptor TemplateDescriptor
}

// ModifyTemplateRequest publishes a new version of a template.
// ExpectedVersionID must be the current latest version.
type ModifyTemplateRequest struct {
	ID                int64
	ExpectedVersionID string
	Author            AuthorInfo
	Descriptor        TemplateDescriptor
}

// CreateObjectRequest contains parameters for creating an object
type CreateObjectRequest struct {
	ID         int64
	Author     AuthorInfo
	Descriptor ObjectDescriptor
}

// ModifyObjectRequest contains parameters for writing a new object version.
// ExpectedVersionID must be the current manifest version (If-Match semantics).
type ModifyObjectRequest struct {
	ID                int64
	ExpectedVersionID string
	Author            AuthorInfo
	Descriptor        ObjectDescriptor
}

// ValidateElementsRequest validates element values without writing anything.
// With TemplateID zero, values are checked against their own constraints only.
type ValidateElementsRequest struct {
	TemplateID int64
	Language   Language
	Elements   []ObjectElementDescriptor
}

// SetupSessionRequest opens an upload session for a template and language.
// An empty TemplateVersionID selects the latest version.
type SetupSessionRequest struct {
	TemplateID        int64
	TemplateVersionID string
	Language          Language
	Author            AuthorInfo
}

// InitiateUploadRequest starts the upload of one file for a binary element
type InitiateUploadRequest struct {
	SessionID    uuid.UUID
	TemplateCode int32
	Filename     string
	ContentType  string
	Size         int64
}

// TemplateMetadataPage is one page of template listings
type TemplateMetadataPage struct {
	Items             []TemplateMetadata `json:"items"`
	ContinuationToken string             `json:"continuationToken,omitempty"`
}

// ObjectMetadataPage is one page of object listings
type ObjectMetadataPage struct {
	Items             []ObjectMetadata `json:"items"`
	ContinuationToken string           `json:"continuationToken,omitempty"`
}

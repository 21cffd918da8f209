package contentstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionDescriptor is the persisted, TTL-bound authorization to upload
// binary values for one template version and language.
type SessionDescriptor struct {
	ID                         uuid.UUID  `json:"id"`
	TemplateID                 int64      `json:"templateId"`
	TemplateVersionID          string     `json:"templateVersionId"`
	Language                   Language   `json:"language"`
	BinaryElementTemplateCodes []int32    `json:"binaryElementTemplateCodes"`
	ExpiresAt                  time.Time  `json:"expiresAt"`
	Author                     AuthorInfo `json:"author"`
}

// AllowsTemplateCode reports whether code names a binary element of the session's template.
func (d *SessionDescriptor) AllowsTemplateCode(code int32) bool {
	for _, c := range d.BinaryElementTemplateCodes {
		if c == code {
			return true
		}
	}
	return false
}

// MultipartUploadSession is the in-flight state of one file upload. It lives
// only for the request that streams the file and is completed exactly once.
type MultipartUploadSession struct {
	SessionID   uuid.UUID
	Session     *SessionDescriptor
	ExpiresAt   time.Time
	Element     ElementDescriptor
	FileKey     string
	Filename    string
	Format      FileFormat
	UploadID    string
	Parts       []CompletedPart
	Size        int64
	IsCompleted bool

	constraints ElementConstraints
}

// UploadedFile is a finalized, content-addressed upload.
type UploadedFile struct {
	SessionID    uuid.UUID `json:"sessionId"`
	TemplateCode int32     `json:"templateCode"`
	Key          string    `json:"key"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	DownloadURI  string    `json:"downloadUri,omitempty"`
}

// FileInfo is the metadata object commits read back for binary values.
type FileInfo struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func (s *service) SetupSession(ctx context.Context, req SetupSessionRequest) (*SessionDescriptor, error) {
	if req.TemplateID <= 0 {
		return nil, &InvalidRequestError{Field: "templateId", Reason: "must be positive"}
	}
	if req.Language == "" {
		return nil, &InvalidRequestError{Field: "language", Reason: "is required"}
	}

	template, err := s.GetTemplate(ctx, req.TemplateID, req.TemplateVersionID)
	if err != nil {
		return nil, err
	}

	desc := &SessionDescriptor{
		ID:                         uuid.New(),
		TemplateID:                 template.ID,
		TemplateVersionID:          template.VersionID,
		Language:                   req.Language,
		BinaryElementTemplateCodes: template.BinaryElementTemplateCodes(),
		ExpiresAt:                  s.now().UTC().Add(s.sessionTTL),
		Author:                     req.Author,
	}

	metadata := authorMetadata(req.Author)
	metadata[metaExpiresAt] = desc.ExpiresAt.Format(time.RFC3339)
	if _, err := s.sessions.putJSON(ctx, sessionKey(desc.ID), desc, metadata); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "session created", "session_id", desc.ID, "template_id", desc.TemplateID,
		"expires_at", desc.ExpiresAt)
	return desc, nil
}

// GetSession loads a session, failing with SessionExpiredError once it is past its expiry.
func (s *service) GetSession(ctx context.Context, id uuid.UUID) (*SessionDescriptor, error) {
	var desc SessionDescriptor
	if _, err := s.sessions.getJSON(ctx, sessionKey(id), "", &desc); err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, &SessionNotFoundError{SessionID: id.String()}
		}
		return nil, err
	}
	if s.now().After(desc.ExpiresAt) {
		return nil, &SessionExpiredError{SessionID: id.String(), ExpiredAt: desc.ExpiresAt}
	}
	return &desc, nil
}

package contentstore

import (
	"context"
	"io"
	"time"
)

// BlobStore is the contract of a versioned blob store bucket.
//
// Put does not report the version id it produced; callers learn it through
// ListVersions. An empty versionID in Get and GetMeta selects the latest
// version. Absent keys or versions are reported as ErrBlobNotFound.
type BlobStore interface {
	// Put writes a new version of key
	Put(ctx context.Context, key string, body io.Reader, params PutParams) error

	// Get opens a version of key; the caller closes the body
	Get(ctx context.Context, key, versionID string) (*Blob, error)

	// GetMeta returns the metadata of a version of key without its body
	GetMeta(ctx context.Context, key, versionID string) (*BlobMeta, error)

	// ListVersions returns every version and delete marker of keys under prefix
	ListVersions(ctx context.Context, prefix string) ([]VersionInfo, error)

	// List returns one page of the latest versions of keys under prefix
	List(ctx context.Context, params ListParams) (*ListPage, error)

	// Copy writes a version of srcKey as a new version of dstKey with replaced metadata
	Copy(ctx context.Context, srcKey, srcVersionID, dstKey string, params PutParams) error

	// Delete removes key (a delete marker on versioned stores)
	Delete(ctx context.Context, key string) error

	// CreateMultipartUpload starts a chunked upload of key
	CreateMultipartUpload(ctx context.Context, key string, params PutParams) (string, error)

	// UploadPart uploads one part and returns its ETag
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error)

	// CompleteMultipartUpload assembles the parts and returns the ETag of the result
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) (string, error)

	// AbortMultipartUpload discards an in-progress upload and its parts
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// PutParams carries the content type and user metadata of a write.
type PutParams struct {
	ContentType string
	Metadata    map[string]string
}

// BlobMeta describes one stored version.
type BlobMeta struct {
	Key          string
	VersionID    string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
	Metadata     map[string]string
}

// Blob is an opened version.
type Blob struct {
	BlobMeta
	Body io.ReadCloser
}

// VersionInfo is one entry of a version listing.
type VersionInfo struct {
	Key            string
	VersionID      string
	IsLatest       bool
	IsDeleteMarker bool
	LastModified   time.Time
}

// ListParams selects one page of a key listing.
type ListParams struct {
	Prefix            string
	ContinuationToken string
	MaxKeys           int
}

// ListPage is one page of a key listing.
type ListPage struct {
	Items             []ListItem
	ContinuationToken string
}

// ListItem is one key in a listing.
type ListItem struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// CompletedPart identifies an uploaded part when completing a multipart upload.
type CompletedPart struct {
	PartNumber int32
	ETag       string
}

// LockCoordinator is the contract of the distributed mutual-exclusion service.
type LockCoordinator interface {
	// Acquire takes the lock for key or fails with ErrLockAlreadyExists
	Acquire(ctx context.Context, key string) (LockHandle, error)

	// ListActive returns the keys of all held locks
	ListActive(ctx context.Context) ([]string, error)

	// ForceRelease drops a lock regardless of its holder (administrative)
	ForceRelease(ctx context.Context, key string) error
}

// LockHandle is a held lock. Release is idempotent.
type LockHandle interface {
	Key() string
	Release(ctx context.Context) error
}

// EventSink receives notifications about committed changes.
type EventSink interface {
	// TemplateCommitted is fired after a template version is written
	TemplateCommitted(ctx context.Context, template *TemplateMetadata) error

	// ObjectCommitted is fired after an object manifest version is written
	ObjectCommitted(ctx context.Context, record *ObjectVersionRecord) error

	// FileUploaded is fired after a staged upload is finalized
	FileUploaded(ctx context.Context, file *UploadedFile) error
}

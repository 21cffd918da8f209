package contentstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service defines the main interface of the content store
type Service interface {
	TemplateService
	ObjectService
	SessionService
}

// TemplateService reads and writes versioned templates
type TemplateService interface {
	GetTemplate(ctx context.Context, id int64, versionID string) (*Template, error)
	GetTemplateLatestVersion(ctx context.Context, id int64) (string, error)
	TemplateExists(ctx context.Context, id int64) (bool, error)
	ListTemplateMetadata(ctx context.Context, continuationToken string) (*TemplateMetadataPage, error)
	GetTemplateVersions(ctx context.Context, id int64) ([]TemplateVersionRecord, error)

	// Template writes are serialized per template id
	CreateTemplate(ctx context.Context, req CreateTemplateRequest) (*Template, error)
	ModifyTemplate(ctx context.Context, req ModifyTemplateRequest) (*Template, error)
}

// ObjectService creates, modifies and reconstructs versioned objects
type ObjectService interface {
	// Object writes are serialized per object id
	CreateObject(ctx context.Context, req CreateObjectRequest) (*ObjectVersionRecord, error)
	ModifyObject(ctx context.Context, req ModifyObjectRequest) (*ObjectVersionRecord, error)

	// Read-only views over the manifest history
	GetObjectDescriptor(ctx context.Context, id int64, versionID string) (*Object, error)
	IsObjectExists(ctx context.Context, id int64) (bool, error)
	ListObjectMetadata(ctx context.Context, continuationToken string) (*ObjectMetadataPage, error)
	GetAllRootVersions(ctx context.Context, id int64) ([]ObjectVersionRecord, error)

	ValidateElements(ctx context.Context, req ValidateElementsRequest) ([]ElementValidationResult, error)
}

// SessionService stages binary element values through upload sessions
type SessionService interface {
	SetupSession(ctx context.Context, req SetupSessionRequest) (*SessionDescriptor, error)
	GetSession(ctx context.Context, id uuid.UUID) (*SessionDescriptor, error)

	// Chunked upload state machine
	InitiateUpload(ctx context.Context, req InitiateUploadRequest) (*MultipartUploadSession, error)
	UploadPart(ctx context.Context, upload *MultipartUploadSession, chunk []byte) error
	CompleteUpload(ctx context.Context, upload *MultipartUploadSession) (*UploadedFile, error)
	AbortUpload(ctx context.Context, upload *MultipartUploadSession) error

	// UploadFile drives one upload from initiate to complete
	UploadFile(ctx context.Context, req InitiateUploadRequest, body io.Reader) (*UploadedFile, error)
	GetFileInfo(ctx context.Context, key string) (*FileInfo, error)
}

// Blob store roles
const (
	BucketObjects   = "objects"
	BucketTemplates = "templates"
	BucketSessions  = "sessions"
	BucketFiles     = "files"
)

// Defaults
const (
	DefaultSessionTTL     = 24 * time.Hour
	DefaultPartSize       = 5 << 20
	DefaultMaxParallelism = 16
	DefaultListPageSize   = 100
)

// service implements the Service interface
type service struct {
	blobStores     map[string]BlobStore
	objects        bucket
	templates      bucket
	sessions       bucket
	files          bucket
	locks          LockCoordinator
	eventSink      EventSink
	logger         *slog.Logger
	sessionTTL     time.Duration
	partSize       int64
	maxParallelism int
	listPageSize   int
	filesPublicURL string
	fileCache      *fileInfoCache
	now            func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the blob store for a role (BucketObjects, BucketTemplates, ...)
func WithBlobStore(role string, store BlobStore) Option {
	return func(s *service) {
		s.blobStores[role] = store
	}
}

// WithBlobStores uses one store for every role
func WithBlobStores(store BlobStore) Option {
	return func(s *service) {
		for _, role := range []string{BucketObjects, BucketTemplates, BucketSessions, BucketFiles} {
			s.blobStores[role] = store
		}
	}
}

// WithLockCoordinator sets the lock coordinator used to serialize writes
func WithLockCoordinator(locks LockCoordinator) Option {
	return func(s *service) {
		s.locks = locks
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithSessionTTL sets how long upload sessions stay valid
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.sessionTTL = ttl
	}
}

// WithPartSize sets the multipart chunk size used by UploadFile
func WithPartSize(size int64) Option {
	return func(s *service) {
		s.partSize = size
	}
}

// WithMaxParallelism bounds fan-out of per-element reads, writes and validation
func WithMaxParallelism(n int) Option {
	return func(s *service) {
		s.maxParallelism = n
	}
}

// WithListPageSize sets how many keys one listing page reads from the blob store
func WithListPageSize(n int) Option {
	return func(s *service) {
		s.listPageSize = n
	}
}

// WithFilesPublicURL sets the base URL download URIs of binary values are built from
func WithFilesPublicURL(baseURL string) Option {
	return func(s *service) {
		s.filesPublicURL = strings.TrimRight(baseURL, "/")
	}
}

// WithClock replaces time.Now, for session expiry tests
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores:     make(map[string]BlobStore),
		eventSink:      NewNoopEventSink(),
		logger:         slog.Default(),
		sessionTTL:     DefaultSessionTTL,
		partSize:       DefaultPartSize,
		maxParallelism: DefaultMaxParallelism,
		listPageSize:   DefaultListPageSize,
		now:            time.Now,
	}

	for _, option := range options {
		option(s)
	}

	for _, role := range []string{BucketObjects, BucketTemplates, BucketSessions, BucketFiles} {
		store, ok := s.blobStores[role]
		if !ok || store == nil {
			return nil, fmt.Errorf("blob store for %s is required", role)
		}
	}
	if s.locks == nil {
		return nil, fmt.Errorf("lock coordinator is required")
	}
	if s.sessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if s.partSize <= 0 {
		return nil, fmt.Errorf("part size must be positive")
	}
	if s.maxParallelism <= 0 {
		s.maxParallelism = DefaultMaxParallelism
	}
	if s.listPageSize <= 0 {
		s.listPageSize = DefaultListPageSize
	}

	s.objects = bucket{name: BucketObjects, store: s.blobStores[BucketObjects]}
	s.templates = bucket{name: BucketTemplates, store: s.blobStores[BucketTemplates]}
	s.sessions = bucket{name: BucketSessions, store: s.blobStores[BucketSessions]}
	s.files = bucket{name: BucketFiles, store: s.blobStores[BucketFiles]}
	s.fileCache = newFileInfoCache(s.now)

	return s, nil
}

// group returns an errgroup bounded by the configured parallelism.
func (s *service) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallelism)
	return g, gctx
}

func (s *service) downloadURI(key string) string {
	if s.filesPublicURL == "" || key == "" {
		return ""
	}
	return s.filesPublicURL + "/" + key
}

// Events never fail the operation that fired them.

func (s *service) fireTemplateCommitted(ctx context.Context, template *TemplateMetadata) {
	if err := s.eventSink.TemplateCommitted(ctx, template); err != nil {
		s.logger.WarnContext(ctx, "template event failed", "template_id", template.ID, "err", err)
	}
}

func (s *service) fireObjectCommitted(ctx context.Context, record *ObjectVersionRecord) {
	if err := s.eventSink.ObjectCommitted(ctx, record); err != nil {
		s.logger.WarnContext(ctx, "object event failed", "object_id", record.ID, "err", err)
	}
}

func (s *service) fireFileUploaded(ctx context.Context, file *UploadedFile) {
	if err := s.eventSink.FileUploaded(ctx, file); err != nil {
		s.logger.WarnContext(ctx, "file event failed", "session_id", file.SessionID, "err", err)
	}
}

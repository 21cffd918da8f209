// Package memory provides a versioned in-memory implementation of
// contentstore.BlobStore, including multipart uploads.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

const defaultMaxKeys = 1000

type version struct {
	id           string
	data         []byte
	contentType  string
	metadata     map[string]string
	etag         string
	lastModified time.Time
	deleteMarker bool
}

type multipartUpload struct {
	key    string
	params contentstore.PutParams
	parts  map[int32][]byte
}

// Backend is an in-memory implementation of the contentstore.BlobStore interface.
// Every write appends a version; Delete appends a delete marker.
type Backend struct {
	mu       sync.RWMutex
	objects  map[string][]*version // oldest first
	uploads  map[string]*multipartUpload
	lastTime time.Time
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string][]*version),
		uploads: make(map[string]*multipartUpload),
	}
}

var _ contentstore.BlobStore = (*Backend)(nil)

// tick returns a strictly increasing timestamp so version order is total.
func (b *Backend) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(b.lastTime) {
		now = b.lastTime.Add(time.Nanosecond)
	}
	b.lastTime = now
	return now
}

func notFound(key, versionID string) error {
	if versionID != "" {
		return fmt.Errorf("%w: %s version %s", contentstore.ErrBlobNotFound, key, versionID)
	}
	return fmt.Errorf("%w: %s", contentstore.ErrBlobNotFound, key)
}

func quotedMD5(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// appendVersion must be called with the write lock held.
func (b *Backend) appendVersion(key string, data []byte, params contentstore.PutParams, etag string) {
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b.objects[key] = append(b.objects[key], &version{
		id:           uuid.NewString(),
		data:         data,
		contentType:  contentType,
		metadata:     copyMetadata(params.Metadata),
		etag:         etag,
		lastModified: b.tick(),
	})
}

// find must be called with the lock held.
func (b *Backend) find(key, versionID string) (*version, error) {
	versions := b.objects[key]
	if len(versions) == 0 {
		return nil, notFound(key, versionID)
	}
	if versionID == "" {
		latest := versions[len(versions)-1]
		if latest.deleteMarker {
			return nil, notFound(key, "")
		}
		return latest, nil
	}
	for _, v := range versions {
		if v.id == versionID {
			if v.deleteMarker {
				return nil, notFound(key, versionID)
			}
			return v, nil
		}
	}
	return nil, notFound(key, versionID)
}

func meta(key string, v *version) contentstore.BlobMeta {
	return contentstore.BlobMeta{
		Key:          key,
		VersionID:    v.id,
		Size:         int64(len(v.data)),
		ContentType:  v.contentType,
		ETag:         v.etag,
		LastModified: v.lastModified,
		Metadata:     copyMetadata(v.metadata),
	}
}

// Put writes a new version of key
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, params contentstore.PutParams) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.appendVersion(key, data, params, quotedMD5(data))
	return nil
}

// Get opens a version of key
func (b *Backend) Get(ctx context.Context, key, versionID string) (*contentstore.Blob, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, err := b.find(key, versionID)
	if err != nil {
		return nil, err
	}
	return &contentstore.Blob{
		BlobMeta: meta(key, v),
		Body:     io.NopCloser(bytes.NewReader(v.data)),
	}, nil
}

// GetMeta returns the metadata of a version of key
func (b *Backend) GetMeta(ctx context.Context, key, versionID string) (*contentstore.BlobMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, err := b.find(key, versionID)
	if err != nil {
		return nil, err
	}
	m := meta(key, v)
	return &m, nil
}

// ListVersions returns all versions under prefix, keys ascending and versions newest first
func (b *Backend) ListVersions(ctx context.Context, prefix string) ([]contentstore.VersionInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := b.keysWithPrefix(prefix)
	var out []contentstore.VersionInfo
	for _, key := range keys {
		versions := b.objects[key]
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			out = append(out, contentstore.VersionInfo{
				Key:            key,
				VersionID:      v.id,
				IsLatest:       i == len(versions)-1,
				IsDeleteMarker: v.deleteMarker,
				LastModified:   v.lastModified,
			})
		}
	}
	return out, nil
}

// List returns one page of live keys under the prefix. The continuation token is the last key returned.
func (b *Backend) List(ctx context.Context, params contentstore.ListParams) (*contentstore.ListPage, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	maxKeys := params.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}

	page := &contentstore.ListPage{}
	for _, key := range b.keysWithPrefix(params.Prefix) {
		if params.ContinuationToken != "" && key <= params.ContinuationToken {
			continue
		}
		versions := b.objects[key]
		latest := versions[len(versions)-1]
		if latest.deleteMarker {
			continue
		}
		if len(page.Items) == maxKeys {
			page.ContinuationToken = page.Items[len(page.Items)-1].Key
			break
		}
		page.Items = append(page.Items, contentstore.ListItem{
			Key:          key,
			Size:         int64(len(latest.data)),
			LastModified: latest.lastModified,
		})
	}
	return page, nil
}

func (b *Backend) keysWithPrefix(prefix string) []string {
	var keys []string
	for key, versions := range b.objects {
		if len(versions) > 0 && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Copy writes a version of srcKey as a new version of dstKey
func (b *Backend) Copy(ctx context.Context, srcKey, srcVersionID, dstKey string, params contentstore.PutParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src, err := b.find(srcKey, srcVersionID)
	if err != nil {
		return err
	}
	b.appendVersion(dstKey, src.data, params, src.etag)
	return nil
}

// Delete places a delete marker on key. Deleting an absent key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	versions := b.objects[key]
	if len(versions) == 0 || versions[len(versions)-1].deleteMarker {
		return nil
	}
	b.objects[key] = append(versions, &version{
		id:           uuid.NewString(),
		deleteMarker: true,
		lastModified: b.tick(),
	})
	return nil
}

// CreateMultipartUpload starts a chunked upload of key
func (b *Backend) CreateMultipartUpload(ctx context.Context, key string, params contentstore.PutParams) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.uploads[id] = &multipartUpload{key: key, params: params, parts: make(map[int32][]byte)}
	return id, nil
}

func (b *Backend) upload(key, uploadID string) (*multipartUpload, error) {
	u, ok := b.uploads[uploadID]
	if !ok || u.key != key {
		return nil, fmt.Errorf("%w: multipart upload %s of %s", contentstore.ErrBlobNotFound, uploadID, key)
	}
	return u, nil
}

// UploadPart stores one part and returns its ETag
func (b *Backend) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("part %d: read %d bytes, expected %d", partNumber, len(data), size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.upload(key, uploadID)
	if err != nil {
		return "", err
	}
	u.parts[partNumber] = data
	return quotedMD5(data), nil
}

// CompleteMultipartUpload concatenates the listed parts into a new version of key.
// The ETag follows the S3 convention: md5 of the part digests, dash, part count.
func (b *Backend) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []contentstore.CompletedPart) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.upload(key, uploadID)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("multipart upload %s has no parts", uploadID)
	}

	var (
		data    []byte
		digests []byte
		prev    int32
	)
	for _, p := range parts {
		if p.PartNumber <= prev {
			return "", fmt.Errorf("part numbers must be ascending, got %d after %d", p.PartNumber, prev)
		}
		prev = p.PartNumber
		part, ok := u.parts[p.PartNumber]
		if !ok || quotedMD5(part) != p.ETag {
			return "", fmt.Errorf("invalid part %d", p.PartNumber)
		}
		sum := md5.Sum(part)
		digests = append(digests, sum[:]...)
		data = append(data, part...)
	}

	total := md5.Sum(digests)
	etag := fmt.Sprintf(`"%s-%d"`, hex.EncodeToString(total[:]), len(parts))
	b.appendVersion(key, data, u.params, etag)
	delete(b.uploads, uploadID)
	return etag, nil
}

// AbortMultipartUpload discards an in-progress upload and its parts
func (b *Backend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.upload(key, uploadID); err != nil {
		return err
	}
	delete(b.uploads, uploadID)
	return nil
}

// PendingUploads returns the number of multipart uploads neither completed nor aborted.
func (b *Backend) PendingUploads() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.uploads)
}

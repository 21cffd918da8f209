// Package fs provides a versioned filesystem implementation of
// contentstore.BlobStore.
//
// Every key is a directory under <BaseDir>/keys named by its path-escaped key.
// It holds one immutable file per version and an index.json listing the
// versions oldest first; rewriting the index is what commits a version.
// Multipart parts are staged under <BaseDir>/uploads/<uploadID>.
package fs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

const (
	keysDir         = "keys"
	uploadsDir      = "uploads"
	indexFile       = "index.json"
	uploadFile      = "upload.json"
	defaultMaxKeys  = 1000
	defaultFileMode = 0o644
)

// Backend is a filesystem implementation of the contentstore.BlobStore interface
type Backend struct {
	mu       sync.RWMutex
	baseDir  string
	lastTime time.Time
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing versions and staged parts
}

type versionRecord struct {
	ID           string            `json:"id"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	DeleteMarker bool              `json:"deleteMarker,omitempty"`
}

type uploadRecord struct {
	Key         string            `json:"key"`
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	for _, dir := range []string{keysDir, uploadsDir} {
		if err := os.MkdirAll(filepath.Join(config.BaseDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return &Backend{baseDir: config.BaseDir}, nil
}

var _ contentstore.BlobStore = (*Backend)(nil)

func notFound(key, versionID string) error {
	if versionID != "" {
		return fmt.Errorf("%w: %s version %s", contentstore.ErrBlobNotFound, key, versionID)
	}
	return fmt.Errorf("%w: %s", contentstore.ErrBlobNotFound, key)
}

func quoted(h hash.Hash) string {
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

func (b *Backend) keyDir(key string) string {
	return filepath.Join(b.baseDir, keysDir, url.PathEscape(key))
}

func (b *Backend) versionPath(key, versionID string) string {
	return filepath.Join(b.keyDir(key), versionID+".blob")
}

func (b *Backend) uploadDir(uploadID string) string {
	return filepath.Join(b.baseDir, uploadsDir, uploadID)
}

// tick returns a strictly increasing timestamp so version order is total.
// Must be called with the write lock held.
func (b *Backend) tick() time.Time {
	now := time.Now().UTC()
	if !now.After(b.lastTime) {
		now = b.lastTime.Add(time.Nanosecond)
	}
	b.lastTime = now
	return now
}

// writeJSON replaces path atomically
func writeJSON(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (b *Backend) readIndex(key string) ([]versionRecord, error) {
	data, err := os.ReadFile(filepath.Join(b.keyDir(key), indexFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index of %s: %w", key, err)
	}
	var records []versionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("corrupt index of %s: %w", key, err)
	}
	return records, nil
}

// appendVersion must be called with the write lock held.
func (b *Backend) appendVersion(key string, rec versionRecord) error {
	records, err := b.readIndex(key)
	if err != nil {
		return err
	}
	rec.LastModified = b.tick()
	records = append(records, rec)
	return writeJSON(filepath.Join(b.keyDir(key), indexFile), records)
}

// writeData streams body into a new version file of key. The file is not
// visible until its record is appended to the index.
func (b *Backend) writeData(key string, body io.Reader, h hash.Hash) (string, int64, error) {
	if err := os.MkdirAll(b.keyDir(key), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory: %w", err)
	}
	id := uuid.NewString()
	path := b.versionPath(key, id)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}

	w := io.Writer(file)
	if h != nil {
		w = io.MultiWriter(file, h)
	}
	size, err := io.Copy(w, body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write file: %w", err)
	}
	return id, size, nil
}

// find must be called with the lock held.
func (b *Backend) find(key, versionID string) (*versionRecord, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	records, err := b.readIndex(key)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, notFound(key, versionID)
	}
	if versionID == "" {
		latest := records[len(records)-1]
		if latest.DeleteMarker {
			return nil, notFound(key, "")
		}
		return &latest, nil
	}
	for _, rec := range records {
		if rec.ID == versionID {
			if rec.DeleteMarker {
				return nil, notFound(key, versionID)
			}
			return &rec, nil
		}
	}
	return nil, notFound(key, versionID)
}

func meta(key string, rec *versionRecord) contentstore.BlobMeta {
	metadata := make(map[string]string, len(rec.Metadata))
	for k, v := range rec.Metadata {
		metadata[k] = v
	}
	return contentstore.BlobMeta{
		Key:          key,
		VersionID:    rec.ID,
		Size:         rec.Size,
		ContentType:  rec.ContentType,
		ETag:         rec.ETag,
		LastModified: rec.LastModified,
		Metadata:     metadata,
	}
}

func newRecord(id string, size int64, params contentstore.PutParams, etag string) versionRecord {
	contentType := params.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return versionRecord{
		ID:          id,
		Size:        size,
		ContentType: contentType,
		Metadata:    params.Metadata,
		ETag:        etag,
	}
}

// Put writes a new version of key
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, params contentstore.PutParams) error {
	if err := checkKey(key); err != nil {
		return err
	}
	h := md5.New()
	id, size, err := b.writeData(key, body, h)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.appendVersion(key, newRecord(id, size, params, quoted(h))); err != nil {
		os.Remove(b.versionPath(key, id))
		return err
	}
	return nil
}

// Get opens a version of key
func (b *Backend) Get(ctx context.Context, key, versionID string) (*contentstore.Blob, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, err := b.find(key, versionID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(b.versionPath(key, rec.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return &contentstore.Blob{BlobMeta: meta(key, rec), Body: file}, nil
}

// GetMeta returns the metadata of a version of key
func (b *Backend) GetMeta(ctx context.Context, key, versionID string) (*contentstore.BlobMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, err := b.find(key, versionID)
	if err != nil {
		return nil, err
	}
	m := meta(key, rec)
	return &m, nil
}

func (b *Backend) keysWithPrefix(prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.baseDir, keysDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read keys: %w", err)
	}
	var keys []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key, err := url.PathUnescape(entry.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListVersions returns all versions under prefix, keys ascending and versions newest first
func (b *Backend) ListVersions(ctx context.Context, prefix string) ([]contentstore.VersionInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys, err := b.keysWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	var out []contentstore.VersionInfo
	for _, key := range keys {
		records, err := b.readIndex(key)
		if err != nil {
			return nil, err
		}
		for i := len(records) - 1; i >= 0; i-- {
			rec := records[i]
			out = append(out, contentstore.VersionInfo{
				Key:            key,
				VersionID:      rec.ID,
				IsLatest:       i == len(records)-1,
				IsDeleteMarker: rec.DeleteMarker,
				LastModified:   rec.LastModified,
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
	keys, err := b.keysWithPrefix(params.Prefix)
	if err != nil {
		return nil, err
	}

	page := &contentstore.ListPage{}
	for _, key := range keys {
		if params.ContinuationToken != "" && key <= params.ContinuationToken {
			continue
		}
		records, err := b.readIndex(key)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 || records[len(records)-1].DeleteMarker {
			continue
		}
		if len(page.Items) == maxKeys {
			page.ContinuationToken = page.Items[len(page.Items)-1].Key
			break
		}
		latest := records[len(records)-1]
		page.Items = append(page.Items, contentstore.ListItem{
			Key:          key,
			Size:         latest.Size,
			LastModified: latest.LastModified,
		})
	}
	return page, nil
}

// Copy writes a version of srcKey as a new version of dstKey
func (b *Backend) Copy(ctx context.Context, srcKey, srcVersionID, dstKey string, params contentstore.PutParams) error {
	if err := checkKey(dstKey); err != nil {
		return err
	}

	b.mu.RLock()
	src, err := b.find(srcKey, srcVersionID)
	b.mu.RUnlock()
	if err != nil {
		return err
	}

	// version files are immutable once indexed
	file, err := os.Open(b.versionPath(srcKey, src.ID))
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	id, size, err := b.writeData(dstKey, file, nil)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.appendVersion(dstKey, newRecord(id, size, params, src.ETag)); err != nil {
		os.Remove(b.versionPath(dstKey, id))
		return err
	}
	return nil
}

// Delete places a delete marker on key. Deleting an absent key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.readIndex(key)
	if err != nil {
		return err
	}
	if len(records) == 0 || records[len(records)-1].DeleteMarker {
		return nil
	}
	return b.appendVersion(key, versionRecord{ID: uuid.NewString(), DeleteMarker: true})
}

// CreateMultipartUpload starts a chunked upload of key
func (b *Backend) CreateMultipartUpload(ctx context.Context, key string, params contentstore.PutParams) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	id := uuid.NewString()
	dir := b.uploadDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	rec := uploadRecord{Key: key, ContentType: params.ContentType, Metadata: params.Metadata}
	if err := writeJSON(filepath.Join(dir, uploadFile), rec); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to write upload record: %w", err)
	}
	return id, nil
}

func (b *Backend) readUpload(key, uploadID string) (*uploadRecord, error) {
	missing := fmt.Errorf("%w: multipart upload %s of %s", contentstore.ErrBlobNotFound, uploadID, key)
	if _, err := uuid.Parse(uploadID); err != nil {
		return nil, missing
	}
	data, err := os.ReadFile(filepath.Join(b.uploadDir(uploadID), uploadFile))
	if os.IsNotExist(err) {
		return nil, missing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload record: %w", err)
	}
	var rec uploadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt upload record %s: %w", uploadID, err)
	}
	if rec.Key != key {
		return nil, missing
	}
	return &rec, nil
}

func (b *Backend) partPath(uploadID string, partNumber int32) string {
	return filepath.Join(b.uploadDir(uploadID), strconv.Itoa(int(partNumber))+".part")
}

// UploadPart stores one part and returns its ETag
func (b *Backend) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	if _, err := b.readUpload(key, uploadID); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(b.uploadDir(uploadID), ".part-*")
	if err != nil {
		return "", fmt.Errorf("failed to create part: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write part %d: %w", partNumber, err)
	}
	if n != size {
		return "", fmt.Errorf("part %d: read %d bytes, expected %d", partNumber, n, size)
	}
	if err := os.Rename(tmp.Name(), b.partPath(uploadID, partNumber)); err != nil {
		return "", fmt.Errorf("failed to store part %d: %w", partNumber, err)
	}
	return quoted(h), nil
}

// CompleteMultipartUpload concatenates the listed parts into a new version of key.
// The ETag follows the S3 convention: md5 of the part digests, dash, part count.
func (b *Backend) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []contentstore.CompletedPart) (string, error) {
	upload, err := b.readUpload(key, uploadID)
	if err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("multipart upload %s has no parts", uploadID)
	}
	var prev int32
	for _, p := range parts {
		if p.PartNumber <= prev {
			return "", fmt.Errorf("part numbers must be ascending, got %d after %d", p.PartNumber, prev)
		}
		prev = p.PartNumber
	}

	var digests []byte
	pr, pw := io.Pipe()
	go func() {
		for _, p := range parts {
			part, err := os.Open(b.partPath(uploadID, p.PartNumber))
			if err != nil {
				pw.CloseWithError(fmt.Errorf("invalid part %d", p.PartNumber))
				return
			}
			h := md5.New()
			_, err = io.Copy(io.MultiWriter(pw, h), part)
			part.Close()
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if quoted(h) != p.ETag {
				pw.CloseWithError(fmt.Errorf("invalid part %d", p.PartNumber))
				return
			}
			digests = append(digests, h.Sum(nil)...)
		}
		pw.Close()
	}()

	id, size, err := b.writeData(key, pr, nil)
	pr.Close()
	if err != nil {
		return "", err
	}

	total := md5.Sum(digests)
	etag := fmt.Sprintf(`"%s-%d"`, hex.EncodeToString(total[:]), len(parts))
	params := contentstore.PutParams{ContentType: upload.ContentType, Metadata: upload.Metadata}

	b.mu.Lock()
	err = b.appendVersion(key, newRecord(id, size, params, etag))
	b.mu.Unlock()
	if err != nil {
		os.Remove(b.versionPath(key, id))
		return "", err
	}

	os.RemoveAll(b.uploadDir(uploadID))
	return etag, nil
}

// AbortMultipartUpload discards an in-progress upload and its parts
func (b *Backend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if _, err := b.readUpload(key, uploadID); err != nil {
		return err
	}
	if err := os.RemoveAll(b.uploadDir(uploadID)); err != nil {
		return fmt.Errorf("failed to remove upload %s: %w", uploadID, err)
	}
	return nil
}

// PendingUploads returns the number of multipart uploads neither completed nor aborted.
func (b *Backend) PendingUploads() int {
	entries, err := os.ReadDir(filepath.Join(b.baseDir, uploadsDir))
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() {
			n++
		}
	}
	return n
}

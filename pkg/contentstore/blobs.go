package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// bucket binds a BlobStore to the name used in errors and logs.
type bucket struct {
	name  string
	store BlobStore
}

// latestVersion performs the follow-up lookup that learns the current version
// id of key. It returns ErrBlobNotFound when the key has no live version.
func (b bucket) latestVersion(ctx context.Context, key string) (*VersionInfo, error) {
	versions, err := b.store.ListVersions(ctx, key)
	if err != nil {
		return nil, &StorageError{Bucket: b.name, Key: key, Op: "list_versions", Err: err}
	}
	for i := range versions {
		v := versions[i]
		if v.Key != key || !v.IsLatest {
			continue
		}
		if v.IsDeleteMarker {
			return nil, ErrBlobNotFound
		}
		return &v, nil
	}
	return nil, ErrBlobNotFound
}

// versions returns the live (non delete-marker) versions of exactly key.
func (b bucket) versions(ctx context.Context, key string) ([]VersionInfo, error) {
	all, err := b.store.ListVersions(ctx, key)
	if err != nil {
		return nil, &StorageError{Bucket: b.name, Key: key, Op: "list_versions", Err: err}
	}
	var out []VersionInfo
	for _, v := range all {
		if v.Key == key && !v.IsDeleteMarker {
			out = append(out, v)
		}
	}
	return out, nil
}

// putJSON writes value as a new version of key and reads back the version id.
func (b bucket) putJSON(ctx context.Context, key string, value any, metadata map[string]string) (*VersionInfo, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	params := PutParams{ContentType: "application/json", Metadata: metadata}
	if err := b.store.Put(ctx, key, bytes.NewReader(data), params); err != nil {
		return nil, &StorageError{Bucket: b.name, Key: key, Op: "put", Err: err}
	}
	version, err := b.latestVersion(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, &StorageError{Bucket: b.name, Key: key, Op: "put", Err: fmt.Errorf("written version not visible: %w", err)}
		}
		return nil, err
	}
	return version, nil
}

// getJSON decodes a version of key into value and returns its metadata.
// Absent keys or versions are returned as ErrBlobNotFound.
func (b bucket) getJSON(ctx context.Context, key, versionID string, value any) (*BlobMeta, error) {
	blob, err := b.store.Get(ctx, key, versionID)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, &StorageError{Bucket: b.name, Key: key, Op: "get", Err: err}
	}
	defer blob.Body.Close()

	data, err := io.ReadAll(blob.Body)
	if err != nil {
		return nil, &StorageError{Bucket: b.name, Key: key, Op: "read", Err: err}
	}
	if err := json.Unmarshal(data, value); err != nil {
		return nil, fmt.Errorf("decode %s version %s: %w", key, blob.VersionID, err)
	}
	meta := blob.BlobMeta
	return &meta, nil
}

// getMeta returns metadata of a version of key, mapping absence to ErrBlobNotFound.
func (b bucket) getMeta(ctx context.Context, key, versionID string) (*BlobMeta, error) {
	meta, err := b.store.GetMeta(ctx, key, versionID)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, &StorageError{Bucket: b.name, Key: key, Op: "get_meta", Err: err}
	}
	return meta, nil
}

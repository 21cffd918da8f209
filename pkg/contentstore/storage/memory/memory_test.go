package memory_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/versioned-content/pkg/contentstore"
	memorystorage "github.com/tendant/versioned-content/pkg/contentstore/storage/memory"
)

func put(t *testing.T, b *memorystorage.Backend, key, data string) {
	t.Helper()
	require.NoError(t, b.Put(context.Background(), key, strings.NewReader(data), contentstore.PutParams{
		ContentType: "text/plain",
		Metadata:    map[string]string{"author": "tester"},
	}))
}

func read(t *testing.T, blob *contentstore.Blob) string {
	t.Helper()
	defer blob.Body.Close()
	data, err := io.ReadAll(blob.Body)
	require.NoError(t, err)
	return string(data)
}

func TestMemoryBackendVersions(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()

	put(t, backend, "1/object", "first")
	put(t, backend, "1/object", "second")
	put(t, backend, "10/object", "other")

	t.Run("ListVersions", func(t *testing.T) {
		versions, err := backend.ListVersions(ctx, "1/object")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.True(t, versions[0].IsLatest)
		assert.False(t, versions[1].IsLatest)
		assert.True(t, versions[0].LastModified.After(versions[1].LastModified))
	})

	t.Run("Get latest and by version", func(t *testing.T) {
		versions, err := backend.ListVersions(ctx, "1/object")
		require.NoError(t, err)

		latest, err := backend.Get(ctx, "1/object", "")
		require.NoError(t, err)
		assert.Equal(t, "second", read(t, latest))
		assert.Equal(t, versions[0].VersionID, latest.VersionID)

		old, err := backend.Get(ctx, "1/object", versions[1].VersionID)
		require.NoError(t, err)
		assert.Equal(t, "first", read(t, old))
		assert.Equal(t, "tester", old.Metadata["author"])
	})

	t.Run("Prefix listing includes longer keys", func(t *testing.T) {
		versions, err := backend.ListVersions(ctx, "1")
		require.NoError(t, err)
		assert.Len(t, versions, 3)
	})

	t.Run("Delete places a marker", func(t *testing.T) {
		put(t, backend, "2/object", "doomed")
		require.NoError(t, backend.Delete(ctx, "2/object"))

		_, err := backend.GetMeta(ctx, "2/object", "")
		assert.ErrorIs(t, err, contentstore.ErrBlobNotFound)

		versions, err := backend.ListVersions(ctx, "2/object")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.True(t, versions[0].IsDeleteMarker)
		assert.True(t, versions[0].IsLatest)

		assert.NoError(t, backend.Delete(ctx, "missing"))
	})

	t.Run("Unknown version", func(t *testing.T) {
		_, err := backend.Get(ctx, "1/object", "nope")
		assert.ErrorIs(t, err, contentstore.ErrBlobNotFound)
	})
}

func TestMemoryBackendList(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	for _, key := range []string{"a", "b", "c", "d"} {
		put(t, backend, key, key)
	}
	require.NoError(t, backend.Delete(ctx, "c"))

	page, err := backend.List(ctx, contentstore.ListParams{MaxKeys: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].Key)
	assert.Equal(t, "b", page.ContinuationToken)

	page, err = backend.List(ctx, contentstore.ListParams{MaxKeys: 2, ContinuationToken: page.ContinuationToken})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "d", page.Items[0].Key)
	assert.Empty(t, page.ContinuationToken)
}

func TestMemoryBackendCopy(t *testing.T) {
	ctx := context.Background()
	backend := memorystorage.New()
	put(t, backend, "src", "payload")

	require.NoError(t, backend.Copy(ctx, "src", "", "dst", contentstore.PutParams{
		ContentType: "image/png",
		Metadata:    map[string]string{"filename": "a.png"},
	}))

	blob, err := backend.Get(ctx, "dst", "")
	require.NoError(t, err)
	assert.Equal(t, "payload", read(t, blob))
	assert.Equal(t, "image/png", blob.ContentType)
	assert.Equal(t, "a.png", blob.Metadata["filename"])
}

func TestMemoryBackendMultipart(t *testing.T) {
	ctx := context.Background()

	upload := func(t *testing.T, b *memorystorage.Backend, key string, chunks ...string) string {
		t.Helper()
		id, err := b.CreateMultipartUpload(ctx, key, contentstore.PutParams{ContentType: "application/octet-stream"})
		require.NoError(t, err)
		var parts []contentstore.CompletedPart
		for i, c := range chunks {
			etag, err := b.UploadPart(ctx, key, id, int32(i+1), bytes.NewReader([]byte(c)), int64(len(c)))
			require.NoError(t, err)
			parts = append(parts, contentstore.CompletedPart{PartNumber: int32(i + 1), ETag: etag})
		}
		etag, err := b.CompleteMultipartUpload(ctx, key, id, parts)
		require.NoError(t, err)
		return etag
	}

	t.Run("Complete assembles parts", func(t *testing.T) {
		backend := memorystorage.New()
		etag := upload(t, backend, "staged", "hello ", "world")
		assert.True(t, strings.HasSuffix(etag, `-2"`))

		blob, err := backend.Get(ctx, "staged", "")
		require.NoError(t, err)
		assert.Equal(t, "hello world", read(t, blob))
		assert.Equal(t, 0, backend.PendingUploads())
	})

	t.Run("Same content gives same etag", func(t *testing.T) {
		backend := memorystorage.New()
		first := upload(t, backend, "one", "abc", "def")
		second := upload(t, backend, "two", "abc", "def")
		assert.Equal(t, first, second)
	})

	t.Run("Abort discards parts", func(t *testing.T) {
		backend := memorystorage.New()
		id, err := backend.CreateMultipartUpload(ctx, "k", contentstore.PutParams{})
		require.NoError(t, err)
		_, err = backend.UploadPart(ctx, "k", id, 1, strings.NewReader("x"), 1)
		require.NoError(t, err)
		assert.Equal(t, 1, backend.PendingUploads())

		require.NoError(t, backend.AbortMultipartUpload(ctx, "k", id))
		assert.Equal(t, 0, backend.PendingUploads())

		_, err = backend.GetMeta(ctx, "k", "")
		assert.ErrorIs(t, err, contentstore.ErrBlobNotFound)
	})
}

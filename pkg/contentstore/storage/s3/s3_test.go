package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
	})
}

func TestMetadataEncoding(t *testing.T) {
	in := map[string]string{"filename": "отчёт 2024.png", "author": "a@b"}
	encoded := encodeMetadata(in)
	for _, v := range encoded {
		for _, r := range v {
			assert.Less(t, r, rune(128))
		}
	}
	assert.Equal(t, in, decodeMetadata(encoded))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchVersion"}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "NoSuchKey"})))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// TestS3Backend_Integration runs against a versioned bucket when S3_TEST_BUCKET is set,
// for example a local MinIO with S3_TEST_ENDPOINT=http://localhost:9000.
func TestS3Backend_Integration(t *testing.T) {
	bucket := os.Getenv("S3_TEST_BUCKET")
	if bucket == "" {
		t.Skip("S3_TEST_BUCKET not set")
	}

	backend, err := New(Config{
		Region:                 os.Getenv("S3_TEST_REGION"),
		Bucket:                 bucket,
		AccessKeyID:            os.Getenv("S3_TEST_ACCESS_KEY_ID"),
		SecretAccessKey:        os.Getenv("S3_TEST_SECRET_ACCESS_KEY"),
		Endpoint:               os.Getenv("S3_TEST_ENDPOINT"),
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	key := fmt.Sprintf("it/%d/object", time.Now().UnixNano())

	t.Run("Versions", func(t *testing.T) {
		for _, body := range []string{"v1", "v2"} {
			require.NoError(t, backend.Put(ctx, key, strings.NewReader(body), contentstore.PutParams{
				ContentType: "application/json",
				Metadata:    map[string]string{"author": "tester"},
			}))
		}
		versions, err := backend.ListVersions(ctx, key)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.True(t, versions[0].IsLatest)

		blob, err := backend.Get(ctx, key, versions[1].VersionID)
		require.NoError(t, err)
		defer blob.Body.Close()
		data, err := io.ReadAll(blob.Body)
		require.NoError(t, err)
		assert.Equal(t, "v1", string(data))
		assert.Equal(t, "tester", blob.Metadata["author"])
	})

	t.Run("Multipart", func(t *testing.T) {
		staged := key + "-staged"
		id, err := backend.CreateMultipartUpload(ctx, staged, contentstore.PutParams{ContentType: "text/plain"})
		require.NoError(t, err)
		etag, err := backend.UploadPart(ctx, staged, id, 1, bytes.NewReader([]byte("part")), 4)
		require.NoError(t, err)
		_, err = backend.CompleteMultipartUpload(ctx, staged, id, []contentstore.CompletedPart{{PartNumber: 1, ETag: etag}})
		require.NoError(t, err)

		require.NoError(t, backend.Copy(ctx, staged, "", key+"-final", contentstore.PutParams{ContentType: "text/plain"}))
		require.NoError(t, backend.Delete(ctx, staged))

		_, err = backend.GetMeta(ctx, staged, "")
		assert.ErrorIs(t, err, contentstore.ErrBlobNotFound)
	})
}

// Package s3 implements contentstore.BlobStore on a versioned S3 bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/versioned-content/pkg/contentstore"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create the bucket with versioning enabled if it doesn't exist
}

// Backend is an S3-compatible implementation of the contentstore.BlobStore interface.
// The bucket must have versioning enabled.
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	config   Config
}

var _ contentstore.BlobStore = (*Backend)(nil)

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		// Use default credential chain
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		config:   config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist and enables versioning
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})

	if err != nil {
		var notFound *types.NotFound
		var noSuchBucket *types.NoSuchBucket

		if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
			!strings.Contains(err.Error(), "BadRequest") &&
			!strings.Contains(err.Error(), "NoSuchBucket") {
			return fmt.Errorf("failed to check bucket: %w", err)
		}

		createInput := &s3.CreateBucketInput{
			Bucket: aws.String(b.bucket),
		}

		// Add location constraint for regions other than us-east-1
		if b.config.Region != "us-east-1" {
			createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(b.config.Region),
			}
		}

		if _, err := b.client.CreateBucket(ctx, createInput); err != nil {
			if !strings.Contains(err.Error(), "BucketAlreadyExists") &&
				!strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
		}
	}

	_, err = b.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(b.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable versioning: %w", err)
	}
	return nil
}

// isNotFound reports S3 errors that mean the key, version or upload is absent.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchVersion", "NoSuchUpload", "MethodNotAllowed":
			return true
		}
	}
	return false
}

func (b *Backend) wrap(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", contentstore.ErrBlobNotFound, key)
	}
	return fmt.Errorf("s3 %s %s: %w", op, key, err)
}

func versionIDPtr(versionID string) *string {
	if versionID == "" {
		return nil
	}
	return aws.String(versionID)
}

// User metadata must be ASCII, so values are stored percent-encoded.
func encodeMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = url.QueryEscape(v)
	}
	return out
}

func decodeMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if decoded, err := url.QueryUnescape(v); err == nil {
			v = decoded
		}
		out[strings.ToLower(k)] = v
	}
	return out
}

func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// Put uploads a new version of key
func (b *Backend) Put(ctx context.Context, key string, body io.Reader, params contentstore.PutParams) error {
	input := &s3.PutObjectInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: encodeMetadata(params.Metadata),
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}
	b.applySSE(input)

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Get opens a version of key
func (b *Backend) Get(ctx context.Context, key, versionID string) (*contentstore.Blob, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket:    aws.String(b.bucket),
		Key:       aws.String(key),
		VersionId: versionIDPtr(versionID),
	})
	if err != nil {
		return nil, b.wrap("get", key, err)
	}

	return &contentstore.Blob{
		BlobMeta: contentstore.BlobMeta{
			Key:          key,
			VersionID:    aws.ToString(result.VersionId),
			Size:         aws.ToInt64(result.ContentLength),
			ContentType:  aws.ToString(result.ContentType),
			ETag:         aws.ToString(result.ETag),
			LastModified: aws.ToTime(result.LastModified),
			Metadata:     decodeMetadata(result.Metadata),
		},
		Body: result.Body,
	}, nil
}

// GetMeta returns the metadata of a version of key
func (b *Backend) GetMeta(ctx context.Context, key, versionID string) (*contentstore.BlobMeta, error) {
	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:    aws.String(b.bucket),
		Key:       aws.String(key),
		VersionId: versionIDPtr(versionID),
	})
	if err != nil {
		return nil, b.wrap("head", key, err)
	}

	return &contentstore.BlobMeta{
		Key:          key,
		VersionID:    aws.ToString(result.VersionId),
		Size:         aws.ToInt64(result.ContentLength),
		ContentType:  aws.ToString(result.ContentType),
		ETag:         aws.ToString(result.ETag),
		LastModified: aws.ToTime(result.LastModified),
		Metadata:     decodeMetadata(result.Metadata),
	}, nil
}

// ListVersions returns every version and delete marker under prefix
func (b *Backend) ListVersions(ctx context.Context, prefix string) ([]contentstore.VersionInfo, error) {
	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}

	var out []contentstore.VersionInfo
	for {
		result, err := b.client.ListObjectVersions(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3 list versions %s: %w", prefix, err)
		}
		for _, v := range result.Versions {
			out = append(out, contentstore.VersionInfo{
				Key:          aws.ToString(v.Key),
				VersionID:    aws.ToString(v.VersionId),
				IsLatest:     aws.ToBool(v.IsLatest),
				LastModified: aws.ToTime(v.LastModified),
			})
		}
		for _, m := range result.DeleteMarkers {
			out = append(out, contentstore.VersionInfo{
				Key:            aws.ToString(m.Key),
				VersionID:      aws.ToString(m.VersionId),
				IsLatest:       aws.ToBool(m.IsLatest),
				IsDeleteMarker: true,
				LastModified:   aws.ToTime(m.LastModified),
			})
		}
		if !aws.ToBool(result.IsTruncated) {
			break
		}
		input.KeyMarker = result.NextKeyMarker
		input.VersionIdMarker = result.NextVersionIdMarker
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// List returns one page of the latest versions under prefix
func (b *Backend) List(ctx context.Context, params contentstore.ListParams) (*contentstore.ListPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	}
	if params.Prefix != "" {
		input.Prefix = aws.String(params.Prefix)
	}
	if params.ContinuationToken != "" {
		input.ContinuationToken = aws.String(params.ContinuationToken)
	}
	if params.MaxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(params.MaxKeys))
	}

	result, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("s3 list %s: %w", params.Prefix, err)
	}

	page := &contentstore.ListPage{}
	for _, obj := range result.Contents {
		page.Items = append(page.Items, contentstore.ListItem{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	if aws.ToBool(result.IsTruncated) {
		page.ContinuationToken = aws.ToString(result.NextContinuationToken)
	}
	return page, nil
}

// Copy writes a version of srcKey as a new version of dstKey with replaced metadata
func (b *Backend) Copy(ctx context.Context, srcKey, srcVersionID, dstKey string, params contentstore.PutParams) error {
	source := (&url.URL{Path: b.bucket + "/" + srcKey}).EscapedPath()
	if srcVersionID != "" {
		source += "?versionId=" + url.QueryEscape(srcVersionID)
	}

	input := &s3.CopyObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(source),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata:          encodeMetadata(params.Metadata),
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}

	if _, err := b.client.CopyObject(ctx, input); err != nil {
		return b.wrap("copy", srcKey, err)
	}
	return nil
}

// Delete places a delete marker on key
func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// CreateMultipartUpload starts a multipart upload of key
func (b *Backend) CreateMultipartUpload(ctx context.Context, key string, params contentstore.PutParams) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		Metadata: encodeMetadata(params.Metadata),
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}

	result, err := b.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("s3 create multipart upload %s: %w", key, err)
	}
	return aws.ToString(result.UploadId), nil
}

// UploadPart uploads one part and returns its ETag
func (b *Backend) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.Reader, size int64) (string, error) {
	result, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", b.wrap("upload part", key, err)
	}
	return aws.ToString(result.ETag), nil
}

// CompleteMultipartUpload assembles the parts and returns the ETag of the result
func (b *Backend) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []contentstore.CompletedPart) (string, error) {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		})
	}

	result, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", b.wrap("complete multipart upload", key, err)
	}
	return aws.ToString(result.ETag), nil
}

// AbortMultipartUpload discards an in-progress upload and its parts
func (b *Backend) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return b.wrap("abort multipart upload", key, err)
	}
	return nil
}

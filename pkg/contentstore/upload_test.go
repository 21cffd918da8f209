package contentstore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/versioned-content/pkg/contentstore"
	"github.com/tendant/versioned-content/pkg/contentstore/sniff/snifftest"
)

const (
	codeVector  int32 = 4
	codeArticle int32 = 5
	codeIcon    int32 = 6
)

const filesURL = "https://cdn.example.com/files"

func mediaTemplate() contentstore.TemplateDescriptor {
	return contentstore.TemplateDescriptor{
		Properties: json.RawMessage(`{"name":"media"}`),
		Elements: []contentstore.ElementDescriptor{
			{
				Type:         contentstore.ElementTypeVectorImage,
				TemplateCode: codeVector,
				Constraints: contentstore.ConstraintSet{
					contentstore.LanguageUnspecified: &contentstore.BinaryElementConstraints{
						SupportedFileFormats: []contentstore.FileFormat{contentstore.FileFormatSvg, contentstore.FileFormatPdf},
					},
				},
			},
			{
				Type:         contentstore.ElementTypeArticle,
				TemplateCode: codeArticle,
				Constraints: contentstore.ConstraintSet{
					contentstore.LanguageUnspecified: &contentstore.BinaryElementConstraints{
						SupportedFileFormats: []contentstore.FileFormat{contentstore.FileFormatChm},
					},
				},
			},
			{
				Type:         contentstore.ElementTypeBitmapImage,
				TemplateCode: codeIcon,
				Constraints: contentstore.ConstraintSet{
					contentstore.LanguageUnspecified: &contentstore.BitmapImageElementConstraints{
						BinaryElementConstraints: contentstore.BinaryElementConstraints{
							SupportedFileFormats: []contentstore.FileFormat{contentstore.FileFormatPng},
						},
						SupportedImageSizes:    []contentstore.ImageSize{{Width: 4, Height: 4}},
						IsAlphaChannelRequired: true,
					},
				},
			},
		},
	}
}

func encodePNG(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: alpha})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

func setupSession(t *testing.T, env *testEnv, templateID int64) *contentstore.SessionDescriptor {
	t.Helper()
	session, err := env.svc.SetupSession(context.Background(), contentstore.SetupSessionRequest{
		TemplateID: templateID,
		Language:   "en",
		Author:     contentstore.AuthorInfo{Author: "u1"},
	})
	require.NoError(t, err)
	return session
}

func uploadFile(env *testEnv, session *contentstore.SessionDescriptor, code int32, filename string, data []byte) (*contentstore.UploadedFile, error) {
	return env.svc.UploadFile(context.Background(), contentstore.InitiateUploadRequest{
		SessionID:    session.ID,
		TemplateCode: code,
		Filename:     filename,
		Size:         int64(len(data)),
	}, bytes.NewReader(data))
}

// binaryErrorKind returns the violated rule of an InvalidBinaryError.
func binaryErrorKind(t *testing.T, err error) contentstore.ValidationErrorKind {
	t.Helper()
	var invalid *contentstore.InvalidBinaryError
	require.True(t, errors.As(err, &invalid), "expected InvalidBinaryError, got %v", err)
	return invalid.Err.Kind
}

func liveFiles(t *testing.T, env *testEnv) []string {
	t.Helper()
	page, err := env.files.List(context.Background(), contentstore.ListParams{})
	require.NoError(t, err)
	keys := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		keys = append(keys, item.Key)
	}
	return keys
}

func TestSetupSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	template := createTemplate(t, env, 1, bannerTemplate())

	session := setupSession(t, env, 1)
	assert.Equal(t, template.VersionID, session.TemplateVersionID)
	assert.Equal(t, []int32{codeBanner}, session.BinaryElementTemplateCodes)

	got, err := env.svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))

	_, err = env.svc.GetSession(ctx, uuid.New())
	assert.ErrorIs(t, err, contentstore.ErrSessionNotFound)

	_, err = env.svc.SetupSession(ctx, contentstore.SetupSessionRequest{TemplateID: 99, Language: "en"})
	assert.ErrorIs(t, err, contentstore.ErrTemplateNotFound)
}

func TestUpload_Bitmap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, contentstore.WithPartSize(256), contentstore.WithFilesPublicURL(filesURL+"/"))
	createTemplate(t, env, 1, bannerTemplate())
	session := setupSession(t, env, 1)

	t.Run("Unsupported size fails at completion", func(t *testing.T) {
		_, err := uploadFile(env, session, codeBanner, "banner.png", encodePNG(t, 600, 600, 255))
		assert.Equal(t, contentstore.ErrKindImageUnsupportedSize, binaryErrorKind(t, err))
		assert.Equal(t, contentstore.ClassUnprocessable, contentstore.Classify(err))
		assert.Equal(t, 0, env.files.PendingUploads())
		assert.Empty(t, liveFiles(t, env))
	})

	t.Run("Extension mismatch fails on first chunk", func(t *testing.T) {
		data := encodeJPEG(t, 512, 512)
		upload, err := env.svc.InitiateUpload(ctx, contentstore.InitiateUploadRequest{
			SessionID: session.ID, TemplateCode: codeBanner, Filename: "banner.png", Size: int64(len(data)),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, env.files.PendingUploads())

		err = env.svc.UploadPart(ctx, upload, data[:256])
		assert.Equal(t, contentstore.ErrKindBinaryExtensionMismatch, binaryErrorKind(t, err))
		assert.True(t, upload.IsCompleted)
		assert.Empty(t, upload.Parts)
		assert.Equal(t, 0, env.files.PendingUploads())

		err = env.svc.UploadPart(ctx, upload, data[256:512])
		assert.ErrorIs(t, err, contentstore.ErrInvalidOperation)
	})

	t.Run("Not an image", func(t *testing.T) {
		_, err := uploadFile(env, session, codeBanner, "banner.png", []byte("definitely not a png file"))
		assert.Equal(t, contentstore.ErrKindBinaryInvalidFormat, binaryErrorKind(t, err))
		assert.Equal(t, 0, env.files.PendingUploads())
	})

	t.Run("Declared size must match the body", func(t *testing.T) {
		data := encodePNG(t, 512, 512, 255)
		_, err := env.svc.UploadFile(ctx, contentstore.InitiateUploadRequest{
			SessionID: session.ID, TemplateCode: codeBanner, Filename: "banner.png", Size: int64(len(data)) + 1,
		}, bytes.NewReader(data))
		assert.ErrorIs(t, err, contentstore.ErrInvalidBinary)
		assert.Equal(t, 0, env.files.PendingUploads())
		assert.Empty(t, liveFiles(t, env))
	})

	data := encodePNG(t, 512, 512, 255)
	file, err := uploadFile(env, session, codeBanner, "Banner.PNG", data)
	require.NoError(t, err)

	t.Run("Valid upload is content addressed", func(t *testing.T) {
		assert.True(t, strings.HasSuffix(file.Key, ".png"))
		assert.Equal(t, "Banner.PNG", file.Filename)
		assert.Equal(t, int64(len(data)), file.Size)
		assert.Equal(t, "image/png", file.ContentType)
		assert.Equal(t, filesURL+"/"+file.Key, file.DownloadURI)
		assert.Equal(t, []string{file.Key}, liveFiles(t, env))
		assert.Equal(t, 0, env.files.PendingUploads())

		info, err := env.svc.GetFileInfo(ctx, file.Key)
		require.NoError(t, err)
		assert.Equal(t, "Banner.PNG", info.Filename)
		assert.Equal(t, int64(len(data)), info.Size)

		require.Len(t, env.events.files, 1)
		assert.Equal(t, file.Key, env.events.files[0].Key)
	})

	t.Run("Same content in another session gives the same key", func(t *testing.T) {
		other := setupSession(t, env, 1)
		again, err := uploadFile(env, other, codeBanner, "copy.png", data)
		require.NoError(t, err)
		assert.Equal(t, file.Key, again.Key)
	})

	t.Run("Object commit reads binary metadata from the upload", func(t *testing.T) {
		template, err := env.svc.GetTemplate(ctx, 1, "")
		require.NoError(t, err)
		sent := &contentstore.BinaryElementValue{Raw: file.Key, Filename: "spoofed.png", Filesize: 1, DownloadURI: "http://elsewhere/x"}
		desc := objectFor(template, map[int32]contentstore.ElementValue{codeBanner: sent})
		_, err = env.svc.CreateObject(ctx, contentstore.CreateObjectRequest{ID: 1, Descriptor: desc})
		require.NoError(t, err)

		// the request value is left as sent
		assert.Equal(t, "spoofed.png", sent.Filename)
		assert.Equal(t, int64(1), sent.Filesize)
		assert.Equal(t, "http://elsewhere/x", sent.DownloadURI)

		obj, err := env.svc.GetObjectDescriptor(ctx, 1, "")
		require.NoError(t, err)
		var banner *contentstore.BinaryElementValue
		for _, e := range obj.Elements {
			if v, ok := e.Value.(*contentstore.BinaryElementValue); ok {
				banner = v
			}
		}
		require.NotNil(t, banner)
		assert.Equal(t, file.Key, banner.Raw)
		assert.Equal(t, int64(len(data)), banner.Filesize)
		assert.Equal(t, filesURL+"/"+file.Key, banner.DownloadURI)
		assert.NotEqual(t, "spoofed.png", banner.Filename)
	})
}

func TestInitiateUpload_MetadataChecks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	createTemplate(t, env, 1, bannerTemplate())
	session := setupSession(t, env, 1)

	tests := []struct {
		name     string
		filename string
		size     int64
		expected contentstore.ValidationErrorKind
	}{
		{"Missing filename", "", 10, contentstore.ErrKindBinaryFilenameMissing},
		{"Filename too long", strings.Repeat("a", 70) + ".png", 10, contentstore.ErrKindBinaryFilenameTooLong},
		{"Empty file", "banner.png", 0, contentstore.ErrKindBinaryEmpty},
		{"Too large", "banner.png", 2 << 20, contentstore.ErrKindBinaryTooLarge},
		{"Unsupported extension", "banner.gif", 10, contentstore.ErrKindUnsupportedFileFormat},
		{"No extension", "banner", 10, contentstore.ErrKindUnsupportedFileFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.InitiateUpload(ctx, contentstore.InitiateUploadRequest{
				SessionID: session.ID, TemplateCode: codeBanner, Filename: tt.filename, Size: tt.size,
			})
			assert.Equal(t, tt.expected, binaryErrorKind(t, err))
			assert.Equal(t, 0, env.files.PendingUploads())
		})
	}

	t.Run("Element does not accept files", func(t *testing.T) {
		_, err := env.svc.InitiateUpload(ctx, contentstore.InitiateUploadRequest{
			SessionID: session.ID, TemplateCode: codeTitle, Filename: "a.png", Size: 10,
		})
		assert.ErrorIs(t, err, contentstore.ErrInvalidTemplate)
	})

	t.Run("Unknown session", func(t *testing.T) {
		_, err := env.svc.InitiateUpload(ctx, contentstore.InitiateUploadRequest{
			SessionID: uuid.New(), TemplateCode: codeBanner, Filename: "a.png", Size: 10,
		})
		assert.ErrorIs(t, err, contentstore.ErrSessionNotFound)
	})
}

func TestUpload_SessionExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t,
		contentstore.WithClock(func() time.Time { return now }),
		contentstore.WithSessionTTL(time.Hour),
	)
	createTemplate(t, env, 1, bannerTemplate())
	data := encodePNG(t, 512, 512, 255)

	t.Run("Expired session rejects new uploads", func(t *testing.T) {
		session := setupSession(t, env, 1)
		now = now.Add(2 * time.Hour)

		_, err := env.svc.GetSession(ctx, session.ID)
		assert.ErrorIs(t, err, contentstore.ErrSessionExpired)
		assert.Equal(t, contentstore.ClassGone, contentstore.Classify(err))

		_, err = uploadFile(env, session, codeBanner, "banner.png", data)
		assert.ErrorIs(t, err, contentstore.ErrSessionExpired)
	})

	t.Run("Expiry before completion discards the staged file", func(t *testing.T) {
		session := setupSession(t, env, 1)
		upload, err := env.svc.InitiateUpload(ctx, contentstore.InitiateUploadRequest{
			SessionID: session.ID, TemplateCode: codeBanner, Filename: "banner.png", Size: int64(len(data)),
		})
		require.NoError(t, err)
		require.NoError(t, env.svc.UploadPart(ctx, upload, data))

		now = now.Add(2 * time.Hour)
		_, err = env.svc.CompleteUpload(ctx, upload)
		assert.ErrorIs(t, err, contentstore.ErrSessionExpired)
		assert.Equal(t, 0, env.files.PendingUploads())
		assert.Empty(t, liveFiles(t, env))
	})

	t.Run("Cached file info expires with the session", func(t *testing.T) {
		session := setupSession(t, env, 1)
		file, err := uploadFile(env, session, codeBanner, "banner.png", data)
		require.NoError(t, err)

		now = now.Add(2 * time.Hour)
		// falls back to the files bucket once the cache entry is gone
		info, err := env.svc.GetFileInfo(ctx, file.Key)
		require.NoError(t, err)
		assert.Equal(t, "banner.png", info.Filename)
	})
}

func TestUpload_VectorArticleAndAlpha(t *testing.T) {
	env := newTestEnv(t, contentstore.WithPartSize(128))
	createTemplate(t, env, 2, mediaTemplate())
	session := setupSession(t, env, 2)

	const svgDoc = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10"><rect width="10" height="10" fill="#336699"/></svg>`

	tests := []struct {
		name     string
		code     int32
		filename string
		data     []byte
		expected contentstore.ValidationErrorKind // empty means success
	}{
		{"Valid svg", codeVector, "logo.svg", []byte(svgDoc), ""},
		{"Html named svg", codeVector, "logo.svg", []byte("<html><body>hi</body></html>"), contentstore.ErrKindVectorImageInvalid},
		{"Broken svg body", codeVector, "logo.svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg"><rect></svg>`), contentstore.ErrKindVectorImageInvalid},
		{"Valid pdf", codeVector, "logo.pdf", []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n%%EOF\n"), ""},
		{"Text named pdf", codeVector, "logo.pdf", []byte("hello world"), contentstore.ErrKindVectorImageInvalid},
		{"Chm with index", codeArticle, "help.chm", snifftest.BuildCHM("/index.html", "/page.htm"), ""},
		{"Chm with nested index", codeArticle, "manual.chm", snifftest.BuildCHM("/", "/docs/index.html"), ""},
		{"Chm without index", codeArticle, "help.chm", snifftest.BuildCHM("/page.htm"), contentstore.ErrKindArticleIncorrect},
		{"Not a chm", codeArticle, "help.chm", []byte("plain text pretending to be an archive"), contentstore.ErrKindArticleIncorrect},
		{"Translucent icon", codeIcon, "icon.png", encodePNG(t, 4, 4, 128), ""},
		{"Opaque icon", codeIcon, "icon.png", encodePNG(t, 4, 4, 255), contentstore.ErrKindImageMissingAlphaChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := uploadFile(env, session, tt.code, tt.filename, tt.data)
			if tt.expected == "" {
				require.NoError(t, err)
				assert.Equal(t, int64(len(tt.data)), file.Size)
			} else {
				assert.Equal(t, tt.expected, binaryErrorKind(t, err))
			}
			assert.Equal(t, 0, env.files.PendingUploads())
		})
	}
}

package contentstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
)

// abortTimeout bounds cleanup calls, which must run even if ctx is done.
const abortTimeout = lockReleaseTimeout

// InitiateUpload authorizes one file upload in a session, runs the checks that
// need no content and opens the backend multipart upload.
func (s *service) InitiateUpload(ctx context.Context, req InitiateUploadRequest) (*MultipartUploadSession, error) {
	session, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.AllowsTemplateCode(req.TemplateCode) {
		return nil, &InvalidTemplateError{
			ID:     session.TemplateID,
			Reason: fmt.Sprintf("element %d does not accept files", req.TemplateCode),
		}
	}

	template, err := s.GetTemplate(ctx, session.TemplateID, session.TemplateVersionID)
	if err != nil {
		return nil, err
	}
	element, ok := template.Element(req.TemplateCode)
	if !ok {
		return nil, &InvalidTemplateError{ID: template.ID, Reason: fmt.Sprintf("template has no element with code %d", req.TemplateCode)}
	}
	constraints, ok := element.Constraints.For(session.Language)
	if !ok {
		return nil, &InvalidTemplateError{
			ID:     template.ID,
			Reason: fmt.Sprintf("element %d has no constraints for language %q", req.TemplateCode, session.Language),
		}
	}
	binary, ok := binaryConstraintsOf(constraints)
	if !ok {
		return nil, &InvalidTemplateError{ID: template.ID, Reason: fmt.Sprintf("element %d has non-binary constraints", req.TemplateCode)}
	}

	format, verr := checkUploadMetadata(req.Filename, req.Size, binary)
	if verr != nil {
		return nil, &InvalidBinaryError{TemplateCode: req.TemplateCode, Err: verr}
	}

	key := stagedFileKey(session.ID, req.TemplateCode)
	uploadID, err := s.files.store.CreateMultipartUpload(ctx, key, PutParams{
		ContentType: format.ContentType(),
		Metadata: map[string]string{
			metaFilename:  req.Filename,
			metaSessionID: session.ID.String(),
		},
	})
	if err != nil {
		return nil, &StorageError{Bucket: s.files.name, Key: key, Op: "create_multipart_upload", Err: err}
	}

	s.logger.DebugContext(ctx, "upload initiated", "session_id", session.ID, "template_code", req.TemplateCode,
		"key", key, "filename", req.Filename)

	return &MultipartUploadSession{
		SessionID:   session.ID,
		Session:     session,
		ExpiresAt:   session.ExpiresAt,
		Element:     *element,
		FileKey:     key,
		Filename:    req.Filename,
		Format:      format,
		UploadID:    uploadID,
		constraints: constraints,
	}, nil
}

// UploadPart forwards one chunk. The first chunk is sniffed before it is sent.
func (s *service) UploadPart(ctx context.Context, upload *MultipartUploadSession, chunk []byte) error {
	if upload.IsCompleted {
		return &InvalidOperationError{Op: "upload_part", Reason: "upload is already completed"}
	}
	if len(chunk) == 0 {
		return nil
	}

	if len(upload.Parts) == 0 {
		if verr := sniffHeader(upload.Element.Type, upload.Format, chunk); verr != nil {
			return s.abortUpload(ctx, upload, &InvalidBinaryError{TemplateCode: upload.Element.TemplateCode, Err: verr})
		}
	}

	binary, _ := binaryConstraintsOf(upload.constraints)
	if binary.MaxSize != nil && upload.Size+int64(len(chunk)) > *binary.MaxSize {
		verr := newValidationError(ErrKindBinaryTooLarge, "file exceeds %d bytes", *binary.MaxSize).withLimit(*binary.MaxSize)
		return s.abortUpload(ctx, upload, &InvalidBinaryError{TemplateCode: upload.Element.TemplateCode, Err: verr})
	}

	partNumber := int32(len(upload.Parts) + 1)
	etag, err := s.files.store.UploadPart(ctx, upload.FileKey, upload.UploadID, partNumber, bytes.NewReader(chunk), int64(len(chunk)))
	if err != nil {
		return s.abortUpload(ctx, upload, &StorageError{Bucket: s.files.name, Key: upload.FileKey, Op: "upload_part", Err: err})
	}
	upload.Parts = append(upload.Parts, CompletedPart{PartNumber: partNumber, ETag: etag})
	upload.Size += int64(len(chunk))
	return nil
}

// CompleteUpload assembles the parts, validates the whole file and moves it
// to its content-addressed key.
func (s *service) CompleteUpload(ctx context.Context, upload *MultipartUploadSession) (*UploadedFile, error) {
	if upload.IsCompleted {
		return nil, &InvalidOperationError{Op: "complete_upload", Reason: "upload is already completed"}
	}
	code := upload.Element.TemplateCode
	if len(upload.Parts) == 0 {
		return nil, s.abortUpload(ctx, upload, &InvalidBinaryError{TemplateCode: code, Err: newValidationError(ErrKindBinaryEmpty, "file is empty")})
	}

	etag, err := s.files.store.CompleteMultipartUpload(ctx, upload.FileKey, upload.UploadID, upload.Parts)
	if err != nil {
		return nil, s.abortUpload(ctx, upload, &StorageError{Bucket: s.files.name, Key: upload.FileKey, Op: "complete_multipart_upload", Err: err})
	}
	upload.IsCompleted = true

	if now := s.now(); now.After(upload.ExpiresAt) {
		return nil, s.discardStaged(ctx, upload, &SessionExpiredError{SessionID: upload.SessionID.String(), ExpiredAt: upload.ExpiresAt})
	}

	blob, err := s.files.store.Get(ctx, upload.FileKey, "")
	if err != nil {
		return nil, s.discardStaged(ctx, upload, &StorageError{Bucket: s.files.name, Key: upload.FileKey, Op: "get", Err: err})
	}
	verr := inspectContent(upload.Element.Type, upload.Format, upload.constraints, blob.Body, upload.Size)
	blob.Body.Close()
	if verr != nil {
		return nil, s.discardStaged(ctx, upload, &InvalidBinaryError{TemplateCode: code, Err: verr})
	}

	finalKey := contentAddressedKey(etag, upload.Filename)
	err = s.files.store.Copy(ctx, upload.FileKey, "", finalKey, PutParams{
		ContentType: upload.Format.ContentType(),
		Metadata: map[string]string{
			metaFilename:  upload.Filename,
			metaSessionID: upload.SessionID.String(),
		},
	})
	if err != nil {
		return nil, s.discardStaged(ctx, upload, &StorageError{Bucket: s.files.name, Key: finalKey, Op: "copy", Err: err})
	}
	s.deleteStaged(ctx, upload)

	s.fileCache.put(FileInfo{Key: finalKey, Filename: upload.Filename, Size: upload.Size}, upload.ExpiresAt)

	file := &UploadedFile{
		SessionID:    upload.SessionID,
		TemplateCode: code,
		Key:          finalKey,
		Filename:     upload.Filename,
		Size:         upload.Size,
		ContentType:  upload.Format.ContentType(),
		DownloadURI:  s.downloadURI(finalKey),
	}
	s.logger.InfoContext(ctx, "upload completed", "session_id", upload.SessionID, "template_code", code,
		"key", finalKey, "size", upload.Size)
	s.fireFileUploaded(ctx, file)
	return file, nil
}

// AbortUpload cancels an upload that has not completed.
func (s *service) AbortUpload(ctx context.Context, upload *MultipartUploadSession) error {
	if upload.IsCompleted {
		return nil
	}
	upload.IsCompleted = true
	if err := s.files.store.AbortMultipartUpload(ctx, upload.FileKey, upload.UploadID); err != nil {
		return &StorageError{Bucket: s.files.name, Key: upload.FileKey, Op: "abort_multipart_upload", Err: err}
	}
	return nil
}

// UploadFile streams body through initiate, parts of the configured size and complete.
func (s *service) UploadFile(ctx context.Context, req InitiateUploadRequest, body io.Reader) (*UploadedFile, error) {
	upload, err := s.InitiateUpload(ctx, req)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, s.partSize)
	for {
		n, readErr := io.ReadFull(body, buf)
		if n > 0 {
			if err := s.UploadPart(ctx, upload, buf[:n]); err != nil {
				return nil, err
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return nil, s.abortUpload(ctx, upload, fmt.Errorf("read upload body: %w", readErr))
		}
	}

	if upload.Size != req.Size {
		verr := newValidationError(ErrKindBinaryInvalidFormat, "received %d bytes, declared %d", upload.Size, req.Size)
		return nil, s.abortUpload(ctx, upload, &InvalidBinaryError{TemplateCode: req.TemplateCode, Err: verr})
	}
	return s.CompleteUpload(ctx, upload)
}

// GetFileInfo returns the metadata of a finalized upload, from the session
// cache or the files bucket. Unknown keys return ErrBlobNotFound.
func (s *service) GetFileInfo(ctx context.Context, key string) (*FileInfo, error) {
	if info, ok := s.fileCache.get(key); ok {
		return &info, nil
	}
	meta, err := s.files.getMeta(ctx, key, "")
	if err != nil {
		return nil, err
	}
	filename := meta.Metadata[metaFilename]
	if filename == "" {
		filename = path.Base(key)
	}
	return &FileInfo{Key: key, Filename: filename, Size: meta.Size}, nil
}

// abortUpload aborts the backend upload and returns cause.
func (s *service) abortUpload(ctx context.Context, upload *MultipartUploadSession, cause error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := s.AbortUpload(cleanupCtx, upload); err != nil {
		s.logger.ErrorContext(ctx, "failed to abort upload", "session_id", upload.SessionID, "key", upload.FileKey, "err", err)
	}
	return cause
}

// discardStaged removes the assembled staging object after a failure past completion and returns cause.
func (s *service) discardStaged(ctx context.Context, upload *MultipartUploadSession, cause error) error {
	s.deleteStaged(ctx, upload)
	return cause
}

func (s *service) deleteStaged(ctx context.Context, upload *MultipartUploadSession) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	if err := s.files.store.Delete(cleanupCtx, upload.FileKey); err != nil {
		s.logger.WarnContext(ctx, "failed to delete staged file", "session_id", upload.SessionID, "key", upload.FileKey, "err", err)
	}
}

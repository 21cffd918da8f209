package contentstore

import (
	"bytes"
	"errors"
	"io"
	"unicode/utf8"

	"github.com/tendant/versioned-content/pkg/contentstore/sniff"
)

// checkUploadMetadata runs the checks that need no file content: filename,
// declared size and extension against the supported formats.
func checkUploadMetadata(filename string, size int64, constraints *BinaryElementConstraints) (FileFormat, *ValidationError) {
	if filename == "" {
		return "", newValidationError(ErrKindBinaryFilenameMissing, "filename is required")
	}
	if limit := constraints.MaxFilenameLength; limit != nil && utf8.RuneCountInString(filename) > *limit {
		return "", newValidationError(ErrKindBinaryFilenameTooLong, "filename %q is longer than %d symbols", filename, *limit).withLimit(*limit)
	}
	if size <= 0 {
		return "", newValidationError(ErrKindBinaryEmpty, "file is empty")
	}
	if limit := constraints.MaxSize; limit != nil && size > *limit {
		return "", newValidationError(ErrKindBinaryTooLarge, "file size %d exceeds %d bytes", size, *limit).withLimit(*limit)
	}

	format, ok := FileFormatFromFilename(filename)
	if !ok || !formatSupported(format, constraints.SupportedFileFormats) {
		return "", newValidationError(ErrKindUnsupportedFileFormat, "file %q has an unsupported extension", filename).
			withDetails(constraints.SupportedFileFormats)
	}
	return format, nil
}

func formatSupported(format FileFormat, supported []FileFormat) bool {
	for _, f := range supported {
		if f == format {
			return true
		}
	}
	return false
}

// sniffHeader rejects a first chunk that cannot belong to a file of the declared format.
func sniffHeader(elementType ElementType, declared FileFormat, header []byte) *ValidationError {
	switch elementType {
	case ElementTypeBitmapImage:
		detected, err := sniff.DetectBitmap(header)
		if err != nil {
			return newValidationError(ErrKindBinaryInvalidFormat, "content is not a supported bitmap image")
		}
		if FileFormat(detected) != declared {
			return newValidationError(ErrKindBinaryExtensionMismatch,
				"content is %s but the file extension declares %s", detected, declared).withDetails(string(detected))
		}
	case ElementTypeVectorImage:
		switch declared {
		case FileFormatSvg:
			if err := sniff.CheckSVGHeader(header); err != nil {
				return newValidationError(ErrKindVectorImageInvalid, "content is not an svg document")
			}
		case FileFormatPdf:
			if err := sniff.CheckPDFHeader(header); err != nil {
				return newValidationError(ErrKindVectorImageInvalid, "content is not a pdf document")
			}
		}
	}
	return nil
}

// inspectContent validates a complete file against the element constraints.
func inspectContent(elementType ElementType, declared FileFormat, constraints ElementConstraints, body io.Reader, size int64) *ValidationError {
	switch elementType {
	case ElementTypeBitmapImage:
		c, ok := constraints.(*BitmapImageElementConstraints)
		if !ok {
			return newValidationError(ErrKindConstraintsTypeMismatch, "bitmap element has %T constraints", constraints)
		}
		return inspectBitmap(c, declared, body)
	case ElementTypeVectorImage:
		if declared == FileFormatSvg {
			if err := sniff.InspectSVG(body); err != nil {
				return newValidationError(ErrKindVectorImageInvalid, "svg document is invalid: %v", err)
			}
		}
		return nil
	case ElementTypeArticle:
		data, err := io.ReadAll(io.LimitReader(body, size+1))
		if err != nil {
			return newValidationError(ErrKindArticleIncorrect, "article cannot be read: %v", err)
		}
		names, err := sniff.InspectCHM(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return newValidationError(ErrKindArticleIncorrect, "article is not a valid chm archive: %v", err)
		}
		if !sniff.HasEntry(names, sniff.CHMIndexEntry) {
			return newValidationError(ErrKindArticleIncorrect, "article has no %s entry", sniff.CHMIndexEntry)
		}
		return nil
	default:
		return newValidationError(ErrKindUnknownElementType, "element type %s has no file content", elementType)
	}
}

func inspectBitmap(c *BitmapImageElementConstraints, declared FileFormat, body io.Reader) *ValidationError {
	info, err := sniff.InspectBitmap(body)
	if err != nil {
		if errors.Is(err, sniff.ErrUnknownFormat) {
			return newValidationError(ErrKindBinaryInvalidFormat, "content is not a supported bitmap image")
		}
		return newValidationError(ErrKindImageCorrupted, "image cannot be decoded: %v", err)
	}
	if FileFormat(info.Format) != declared {
		return newValidationError(ErrKindBinaryExtensionMismatch,
			"content is %s but the file extension declares %s", info.Format, declared).withDetails(string(info.Format))
	}

	size := ImageSize{Width: info.Width, Height: info.Height}
	supported := false
	for _, s := range c.SupportedImageSizes {
		if s == size {
			supported = true
			break
		}
	}
	if !supported {
		return newValidationError(ErrKindImageUnsupportedSize, "image size %s is not supported", size).
			withDetails(c.SupportedImageSizes)
	}
	if c.IsAlphaChannelRequired && !info.HasAlpha {
		return newValidationError(ErrKindImageMissingAlphaChannel, "image must have an alpha channel")
	}
	return nil
}

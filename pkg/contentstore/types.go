package contentstore

import (
	"fmt"
	"path"
	"strings"
)

// ElementType identifies the kind of content an element slot holds.
type ElementType string

// Element type constants (typed).
const (
	ElementTypePlainText     ElementType = "plainText"
	ElementTypeFormattedText ElementType = "formattedText"
	ElementTypeFasComment    ElementType = "fasComment"
	ElementTypeBitmapImage   ElementType = "bitmapImage"
	ElementTypeVectorImage   ElementType = "vectorImage"
	ElementTypeArticle       ElementType = "article"
	ElementTypeDate          ElementType = "date"
	ElementTypeLink          ElementType = "link"
	ElementTypePhone         ElementType = "phone"
	ElementTypeVideoLink     ElementType = "videoLink"
	ElementTypeColor         ElementType = "color"
)

// ElementTypes lists every known element type.
var ElementTypes = []ElementType{
	ElementTypePlainText,
	ElementTypeFormattedText,
	ElementTypeFasComment,
	ElementTypeBitmapImage,
	ElementTypeVectorImage,
	ElementTypeArticle,
	ElementTypeDate,
	ElementTypeLink,
	ElementTypePhone,
	ElementTypeVideoLink,
	ElementTypeColor,
}

// constraintKind groups element types by the shape of their constraints and values.
type constraintKind int

const (
	kindText constraintKind = iota
	kindBinary
	kindBitmap
	kindPlain
)

func (t ElementType) kind() (constraintKind, error) {
	switch t {
	case ElementTypePlainText, ElementTypeFormattedText, ElementTypeFasComment, ElementTypeLink, ElementTypeVideoLink:
		return kindText, nil
	case ElementTypeVectorImage, ElementTypeArticle:
		return kindBinary, nil
	case ElementTypeBitmapImage:
		return kindBitmap, nil
	case ElementTypeDate, ElementTypePhone, ElementTypeColor:
		return kindPlain, nil
	default:
		return 0, fmt.Errorf("unknown element type %q", string(t))
	}
}

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	_, err := t.kind()
	return err == nil
}

// IsBinary reports whether values of this type reference an uploaded file.
func (t ElementType) IsBinary() bool {
	k, err := t.kind()
	return err == nil && (k == kindBinary || k == kindBitmap)
}

// FileFormat is a supported binary file format, named by its canonical extension.
type FileFormat string

// File format constants (typed).
const (
	FileFormatPng FileFormat = "png"
	FileFormatGif FileFormat = "gif"
	FileFormatJpg FileFormat = "jpg"
	FileFormatBmp FileFormat = "bmp"
	FileFormatSvg FileFormat = "svg"
	FileFormatPdf FileFormat = "pdf"
	FileFormatChm FileFormat = "chm"
)

// AllowedFileFormats returns the formats that may be configured for a binary element type.
func AllowedFileFormats(t ElementType) []FileFormat {
	switch t {
	case ElementTypeBitmapImage:
		return []FileFormat{FileFormatPng, FileFormatGif, FileFormatJpg, FileFormatBmp}
	case ElementTypeVectorImage:
		return []FileFormat{FileFormatSvg, FileFormatPdf}
	case ElementTypeArticle:
		return []FileFormat{FileFormatChm}
	default:
		return nil
	}
}

// FileFormatFromFilename maps a file name extension to a FileFormat.
// It returns false when the extension is missing or unknown.
func FileFormatFromFilename(filename string) (FileFormat, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	switch ext {
	case "png":
		return FileFormatPng, true
	case "gif":
		return FileFormatGif, true
	case "jpg", "jpeg":
		return FileFormatJpg, true
	case "bmp":
		return FileFormatBmp, true
	case "svg":
		return FileFormatSvg, true
	case "pdf":
		return FileFormatPdf, true
	case "chm":
		return FileFormatChm, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type stored with finalized files of this format.
func (f FileFormat) ContentType() string {
	switch f {
	case FileFormatPng:
		return "image/png"
	case FileFormatGif:
		return "image/gif"
	case FileFormatJpg:
		return "image/jpeg"
	case FileFormatBmp:
		return "image/bmp"
	case FileFormatSvg:
		return "image/svg+xml"
	case FileFormatPdf:
		return "application/pdf"
	case FileFormatChm:
		return "application/vnd.ms-htmlhelp"
	default:
		return "application/octet-stream"
	}
}

// Language is a content language code. Constraint sets are keyed by language.
type Language string

// LanguageUnspecified keys the constraints used when no language-specific ones exist.
const LanguageUnspecified Language = "unspecified"

// ImageSize is an allowed pixel size for bitmap images.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s ImageSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// AuthorInfo identifies who performed a mutation.
type AuthorInfo struct {
	Author      string `json:"author,omitempty"`
	AuthorLogin string `json:"authorLogin,omitempty"`
	AuthorName  string `json:"authorName,omitempty"`
}

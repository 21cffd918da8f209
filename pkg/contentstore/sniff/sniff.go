// Package sniff detects and inspects the binary formats accepted for
// uploaded element values: bitmap images, SVG and PDF vector images, and CHM
// help archives.
//
// Header functions work on the first chunk of an upload and only reject
// content that is certainly wrong. Inspect functions work on complete files.
package sniff

import (
	"bytes"
	"errors"
)

// Format is a detected file format, named like its canonical extension.
type Format string

const (
	FormatPng Format = "png"
	FormatGif Format = "gif"
	FormatJpg Format = "jpg"
	FormatBmp Format = "bmp"
	FormatSvg Format = "svg"
	FormatPdf Format = "pdf"
	FormatChm Format = "chm"
)

var (
	// ErrUnknownFormat indicates content that matches no supported format
	ErrUnknownFormat = errors.New("unknown file format")

	// ErrCorrupted indicates content that starts like a known format but cannot be decoded
	ErrCorrupted = errors.New("corrupted file")

	// ErrNotSVG indicates content whose root element is not svg
	ErrNotSVG = errors.New("not an svg document")

	// ErrNotPDF indicates content without a PDF header
	ErrNotPDF = errors.New("not a pdf document")

	// ErrNotCHM indicates content without a valid CHM structure
	ErrNotCHM = errors.New("not a chm archive")
)

var magics = []struct {
	format Format
	prefix []byte
}{
	{FormatPng, []byte("\x89PNG\r\n\x1a\n")},
	{FormatGif, []byte("GIF87a")},
	{FormatGif, []byte("GIF89a")},
	{FormatJpg, []byte{0xFF, 0xD8, 0xFF}},
	{FormatBmp, []byte("BM")},
}

// DetectBitmap identifies a bitmap format by its magic bytes.
func DetectBitmap(header []byte) (Format, error) {
	for _, m := range magics {
		if bytes.HasPrefix(header, m.prefix) {
			return m.format, nil
		}
	}
	return "", ErrUnknownFormat
}

var pdfMagic = []byte("%PDF-")

// CheckPDFHeader verifies the PDF signature at the start of header.
func CheckPDFHeader(header []byte) error {
	if !bytes.HasPrefix(header, pdfMagic) {
		return ErrNotPDF
	}
	return nil
}

package sniff

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
)

// ImageInfo describes a decoded bitmap header.
type ImageInfo struct {
	Format   Format
	Width    int
	Height   int
	HasAlpha bool
}

// InspectBitmap decodes the image header of r.
func InspectBitmap(r io.Reader) (*ImageInfo, error) {
	cfg, name, err := image.DecodeConfig(r)
	if err != nil {
		if err == image.ErrFormat {
			return nil, ErrUnknownFormat
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	var format Format
	switch name {
	case "png":
		format = FormatPng
	case "jpeg":
		format = FormatJpg
	case "gif":
		format = FormatGif
	case "bmp":
		format = FormatBmp
	default:
		return nil, ErrUnknownFormat
	}

	return &ImageInfo{
		Format:   format,
		Width:    cfg.Width,
		Height:   cfg.Height,
		HasAlpha: modelHasAlpha(cfg.ColorModel),
	}, nil
}

// modelHasAlpha reports whether pixels of model can carry transparency.
// Opaque truecolor PNGs decode to RGBA, so only non-premultiplied and pure
// alpha models count, plus palettes with a translucent entry.
func modelHasAlpha(m color.Model) bool {
	switch m {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

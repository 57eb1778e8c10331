package codec

import (
	"image"
	"io"
)

// ColorMode is the pixel representation of a decoded image.
type ColorMode int

const (
	ColorModeOpaque ColorMode = iota
	ColorModeAlpha
	ColorModePalette
)

// String returns the name of the color mode.
func (m ColorMode) String() string {
	switch m {
	case ColorModeAlpha:
		return "alpha"
	case ColorModePalette:
		return "palette"
	default:
		return "opaque"
	}
}

// Normalized is an image ready for WebP encoding.
type Normalized struct {
	Image    *image.NRGBA
	Source   ColorMode // mode of the decoded image
	HasAlpha bool      // encode with an alpha channel
}

// DecodeOptions tune how an input is decoded.
type DecodeOptions struct {
	// AutoOrient applies the EXIF orientation tag after the color mode is classified.
	AutoOrient bool
}

// Codec is the image codec capability the conversion worker relies on.
type Codec interface {
	// Decode reads an image in any supported raster format.
	Decode(r io.Reader, opts DecodeOptions) (image.Image, error)
	// Normalize applies the color mode policy.
	Normalize(img image.Image) Normalized
	// EncodeWebP lossy-encodes a normalized image at quality 1-100.
	EncodeWebP(n Normalized, quality int) ([]byte, error)
}

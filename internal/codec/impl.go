package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	// Decoders for the non-stdlib input formats.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// DefaultCodec decodes with imaging and encodes with libwebp.
type DefaultCodec struct{}

// NewDefaultCodec creates a new DefaultCodec instance.
func NewDefaultCodec() *DefaultCodec {
	return &DefaultCodec{}
}

// Decode reads the whole input and decodes it.
func (c *DefaultCodec) Decode(r io.Reader, opts DecodeOptions) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if !opts.AutoOrient {
		return img, nil
	}
	return &oriented{Image: img, orientation: ReadOrientation(bytes.NewReader(data))}, nil
}

// Normalize classifies the image and converts it to the encoder's input.
// Alpha-bearing images keep their transparency, palette images are
// expanded to full RGBA and everything else is flattened to opaque RGB.
func (c *DefaultCodec) Normalize(img image.Image) Normalized {
	src := img
	orientation := 1
	if o, ok := img.(*oriented); ok {
		src, orientation = o.Image, o.orientation
	}

	mode := ClassifyColorMode(src)
	pix := imaging.Clone(src)
	if orientation > 1 {
		pix = applyOrientation(pix, orientation)
	}

	switch mode {
	case ColorModeAlpha, ColorModePalette:
		return Normalized{Image: pix, Source: mode, HasAlpha: true}
	default:
		for i := 3; i < len(pix.Pix); i += 4 {
			pix.Pix[i] = 0xff
		}
		return Normalized{Image: pix, Source: mode, HasAlpha: false}
	}
}

// EncodeWebP lossy-encodes n at the given quality.
func (c *DefaultCodec) EncodeWebP(n Normalized, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality out of range: %d", quality)
	}
	if n.Image == nil {
		return nil, fmt.Errorf("encode webp: nil image")
	}
	if n.HasAlpha {
		return webp.EncodeRGBA(n.Image, float32(quality))
	}
	return webp.EncodeRGB(n.Image, float32(quality))
}

// ClassifyColorMode decides which normalization an image needs.
//
// Go decoders return *image.RGBA for opaque truecolor PNG, BMP and TIFF
// inputs and *image.NRGBA when the file carries an alpha channel, so
// premultiplied surfaces only count as alpha when they are not opaque.
func ClassifyColorMode(img image.Image) ColorMode {
	if o, ok := img.(*oriented); ok {
		img = o.Image
	}
	switch m := img.(type) {
	case *image.Paletted:
		return ColorModePalette
	case *image.RGBA:
		if m.Opaque() {
			return ColorModeOpaque
		}
		return ColorModeAlpha
	case *image.RGBA64:
		if m.Opaque() {
			return ColorModeOpaque
		}
		return ColorModeAlpha
	}

	switch img.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model, color.RGBAModel, color.RGBA64Model,
		color.AlphaModel, color.Alpha16Model, color.NYCbCrAModel:
		return ColorModeAlpha
	}
	if _, ok := img.ColorModel().(color.Palette); ok {
		return ColorModePalette
	}
	return ColorModeOpaque
}

// oriented carries a decoded image together with its pending EXIF orientation.
type oriented struct {
	image.Image
	orientation int
}

// ReadOrientation returns the EXIF orientation tag (1-8), or 1 when absent.
func ReadOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

func applyOrientation(img *image.NRGBA, orientation int) *image.NRGBA {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

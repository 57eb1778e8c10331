// Package icon renders the application icon and exports it as PNG and ICO files.
package icon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/vector"
)

const canvasSize = 512

var (
	circleColor = color.NRGBA{R: 114, G: 99, B: 242, A: 255} // #7263f2
	letterColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// DefaultSizes are the exported PNG sizes.
var DefaultSizes = []int{16, 32, 64, 128, 256, 512}

// maxICOSize is the largest image an ICO directory entry can describe.
const maxICOSize = 256

// Render draws the icon at its native 512x512 resolution: a filled circle
// with a stylized "W" stroked on top, on a transparent background.
func Render() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, canvasSize, canvasSize))
	s := float32(canvasSize)

	fillCircle(img, s/2, s/2, s/2-50, circleColor)

	points := [][2]float32{
		{s / 4, s / 3},
		{s / 2, s * 2 / 3},
		{s * 3 / 4, s / 3},
		{s * 2 / 3, s * 2 / 3},
		{s / 2, s / 3},
		{s / 3, s * 2 / 3},
	}
	strokePolyline(img, points, 30, letterColor)
	return img
}

// Generate writes icon_<size>.png for every size and app_icon.ico with the
// sizes an ICO can hold. It returns the written paths.
func Generate(outDir string, sizes []int) ([]string, error) {
	if len(sizes) == 0 {
		sizes = DefaultSizes
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	base := Render()
	var written []string
	var icoImages []*image.NRGBA

	for _, size := range sizes {
		if size <= 0 || size > canvasSize {
			return written, fmt.Errorf("invalid icon size: %d", size)
		}
		resized := imaging.Resize(base, size, size, imaging.Lanczos)
		path := filepath.Join(outDir, fmt.Sprintf("icon_%d.png", size))
		if err := imaging.Save(resized, path); err != nil {
			return written, fmt.Errorf("save %s: %w", path, err)
		}
		written = append(written, path)
		if size <= maxICOSize {
			icoImages = append(icoImages, resized)
		}
	}

	if len(icoImages) > 0 {
		path := filepath.Join(outDir, "app_icon.ico")
		f, err := os.Create(path)
		if err != nil {
			return written, fmt.Errorf("create %s: %w", path, err)
		}
		err = EncodeICO(f, icoImages)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

type icoHeader struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type icoEntry struct {
	Width      uint8
	Height     uint8
	ColorCount uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	Size       uint32
	Offset     uint32
}

// EncodeICO writes images as a PNG-compressed ICO file.
func EncodeICO(w io.Writer, images []*image.NRGBA) error {
	payloads := make([][]byte, len(images))
	for i, img := range images {
		if img.Bounds().Dx() > maxICOSize || img.Bounds().Dy() > maxICOSize {
			return fmt.Errorf("ico image %d too large: %v", i, img.Bounds())
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return err
		}
		payloads[i] = buf.Bytes()
	}

	if err := binary.Write(w, binary.LittleEndian, icoHeader{Type: 1, Count: uint16(len(images))}); err != nil {
		return err
	}

	offset := uint32(6 + 16*len(images))
	for i, img := range images {
		entry := icoEntry{
			Width:    uint8(img.Bounds().Dx() % maxICOSize), // 0 means 256
			Height:   uint8(img.Bounds().Dy() % maxICOSize),
			Planes:   1,
			BitCount: 32,
			Size:     uint32(len(payloads[i])),
			Offset:   offset,
		}
		if err := binary.Write(w, binary.LittleEndian, entry); err != nil {
			return err
		}
		offset += entry.Size
	}

	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func fillCircle(dst *image.NRGBA, cx, cy, r float32, c color.Color) {
	// Four cubic segments; k places control points for a quarter circle.
	const k = 0.5522847
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	z.MoveTo(cx+r, cy)
	z.CubeTo(cx+r, cy+k*r, cx+k*r, cy+r, cx, cy+r)
	z.CubeTo(cx-k*r, cy+r, cx-r, cy+k*r, cx-r, cy)
	z.CubeTo(cx-r, cy-k*r, cx-k*r, cy-r, cx, cy-r)
	z.CubeTo(cx+k*r, cy-r, cx+r, cy-k*r, cx+r, cy)
	z.ClosePath()
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// strokePolyline draws each segment as a filled quad and rounds the joints.
func strokePolyline(dst *image.NRGBA, points [][2]float32, width float32, c color.Color) {
	b := dst.Bounds()
	half := width / 2
	src := image.NewUniform(c)

	for i := 0; i+1 < len(points); i++ {
		x0, y0 := points[i][0], points[i][1]
		x1, y1 := points[i+1][0], points[i+1][1]
		dx, dy := x1-x0, y1-y0
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			continue
		}
		nx, ny := -dy/length*half, dx/length*half

		z := vector.NewRasterizer(b.Dx(), b.Dy())
		z.MoveTo(x0+nx, y0+ny)
		z.LineTo(x1+nx, y1+ny)
		z.LineTo(x1-nx, y1-ny)
		z.LineTo(x0-nx, y0-ny)
		z.ClosePath()
		z.Draw(dst, b, src, image.Point{})
	}

	for i := 1; i+1 < len(points); i++ {
		fillCircle(dst, points[i][0], points[i][1], half, c)
	}
}

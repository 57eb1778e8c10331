package extractor

import (
	"bytes"
	"fmt"
	"image"
	"strings"
	"time"

	"webp-converter-go/internal/codec"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// EXIFExtractor reads dimensions, color mode and EXIF data of an image.
type EXIFExtractor struct {
	fs     afero.Fs
	codec  codec.Codec
	logger *logrus.Logger
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(fs afero.Fs, c codec.Codec, logger *logrus.Logger) *EXIFExtractor {
	return &EXIFExtractor{fs: fs, codec: c, logger: logger}
}

// Describe decodes filePath and collects its details. Missing EXIF data
// is not an error; the capture date then falls back to the modification time.
func (e *EXIFExtractor) Describe(filePath string) (*Details, error) {
	info, err := e.fs.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	data, err := afero.ReadFile(e.fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	img, err := e.codec.Decode(bytes.NewReader(data), codec.DecodeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	normalized := e.codec.Normalize(img)

	d := &Details{
		Path:        filePath,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        info.Size(),
		ColorMode:   normalized.Source.String(),
		Target:      "RGB",
		Orientation: 1,
		TakenAt:     info.ModTime(),
		DateSource:  DateSourceFileModTime,
	}
	if normalized.HasAlpha {
		d.Target = "RGBA"
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		e.logger.Debugf("No EXIF data in %s: %v", filePath, err)
		return d, nil
	}
	e.fillFromEXIF(d, x)
	return d, nil
}

func (e *EXIFExtractor) fillFromEXIF(d *Details, x *exif.Exif) {
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			d.Orientation = v
		}
	}

	var camera []string
	for _, name := range []exif.FieldName{exif.Make, exif.Model} {
		if tag, err := x.Get(name); err == nil {
			if s, err := tag.StringVal(); err == nil && strings.TrimSpace(s) != "" {
				camera = append(camera, strings.TrimSpace(s))
			}
		}
	}
	d.Camera = strings.Join(camera, " ")

	if tm, err := x.DateTime(); err == nil {
		d.TakenAt, d.DateSource = tm, DateSourceEXIFDateTime
		return
	}
	sources := []struct {
		name   exif.FieldName
		source DateSource
	}{
		{exif.DateTimeOriginal, DateSourceEXIFDateTimeOriginal},
		{exif.DateTimeDigitized, DateSourceEXIFDateTimeDigitized},
	}
	for _, s := range sources {
		field, err := x.Get(s.name)
		if err != nil {
			continue
		}
		dateStr, err := field.StringVal()
		if err != nil {
			continue
		}
		if date := parseEXIFDateTime(dateStr); date != nil {
			d.TakenAt, d.DateSource = *date, s.source
			return
		}
	}
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		"2006-01-02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}

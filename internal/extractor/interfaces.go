package extractor

import (
	"time"
)

// DetailsExtractor describes a single input image.
type DetailsExtractor interface {
	Describe(filePath string) (*Details, error)
}

// DateSource represents the source of the extracted date.
type DateSource int

const (
	DateSourceUnknown DateSource = iota
	DateSourceEXIFDateTime
	DateSourceEXIFDateTimeOriginal
	DateSourceEXIFDateTimeDigitized
	DateSourceFileModTime
)

// Details is what `inspect` reports about an image.
type Details struct {
	Path        string
	Format      string
	Width       int
	Height      int
	Size        int64
	ColorMode   string
	Target      string // normalization target: "RGBA" or "RGB"
	Orientation int
	Camera      string
	TakenAt     time.Time
	DateSource  DateSource
}

// String returns a human-readable description of the date source.
func (ds DateSource) String() string {
	switch ds {
	case DateSourceEXIFDateTime:
		return "EXIF DateTime"
	case DateSourceEXIFDateTimeOriginal:
		return "EXIF DateTimeOriginal"
	case DateSourceEXIFDateTimeDigitized:
		return "EXIF DateTimeDigitized"
	case DateSourceFileModTime:
		return "File Modification Time"
	default:
		return "Unknown"
	}
}

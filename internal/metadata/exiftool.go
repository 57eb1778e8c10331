// Package metadata carries EXIF tags from a source image onto its WebP output.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/barasher/go-exiftool"
)

// DefaultTags are copied when no explicit list is given.
var DefaultTags = []string{
	"DateTimeOriginal",
	"CreateDate",
	"Make",
	"Model",
	"LensModel",
	"Artist",
	"Copyright",
	"ImageDescription",
	"GPSLatitude",
	"GPSLatitudeRef",
	"GPSLongitude",
	"GPSLongitudeRef",
}

// ExifToolCopier copies a fixed set of tags with a long-running exiftool process.
type ExifToolCopier struct {
	et    *exiftool.Exiftool
	tags  []string
	mutex sync.Mutex
}

// NewExifToolCopier starts exiftool. It fails when the binary is not installed.
func NewExifToolCopier(tags ...string) (*ExifToolCopier, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	if len(tags) == 0 {
		tags = DefaultTags
	}
	return &ExifToolCopier{et: et, tags: tags}, nil
}

// Copy writes the tags present on src onto dst.
func (c *ExifToolCopier) Copy(src, dst string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	read := c.et.ExtractMetadata(src)
	if len(read) == 0 {
		return errors.New("exiftool returned no metadata")
	}
	if read[0].Err != nil {
		return fmt.Errorf("read metadata: %w", read[0].Err)
	}

	out := exiftool.FileMetadata{File: dst, Fields: map[string]interface{}{}}
	for _, tag := range c.tags {
		v, err := read[0].GetString(tag)
		if err != nil || v == "" {
			continue
		}
		out.SetString(tag, v)
	}
	if len(out.Fields) == 0 {
		return nil
	}

	written := []exiftool.FileMetadata{out}
	c.et.WriteMetadata(written)
	_ = os.Remove(dst + "_original")
	if written[0].Err != nil {
		return fmt.Errorf("write metadata: %w", written[0].Err)
	}
	return nil
}

// Close stops the exiftool process.
func (c *ExifToolCopier) Close() error {
	return c.et.Close()
}

// Package scanner enumerates the convertible images of a single directory.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrDirectoryNotFound is returned when the input path is missing or is not a directory.
var ErrDirectoryNotFound = errors.New("directory not found")

// OutputExtension is appended to the base name of every converted file.
const OutputExtension = ".webp"

// SupportedExtensions lists the eligible input extensions, lowercase, without the dot.
var SupportedExtensions = []string{"png", "jpg", "jpeg", "tiff", "bmp"}

// ImageFile is an eligible input discovered by a scan.
type ImageFile struct {
	Name      string // base name inside the directory
	Path      string // Name joined with the scanned directory
	Extension string // lowercase, without the dot
	Size      int64
}

// OutputPath returns the sibling .webp path the file converts to.
func (f ImageFile) OutputPath() string {
	return OutputPathFor(f.Path)
}

// OutputPathFor swaps the extension of path for .webp. Leading dots of the
// base name do not start an extension, so ".png" maps to ".png.webp".
func OutputPathFor(path string) string {
	if !strings.Contains(strings.TrimLeft(filepath.Base(path), "."), ".") {
		return path + OutputExtension
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + OutputExtension
}

// Scanner lists eligible images in a directory.
type Scanner struct {
	fs      afero.Fs
	allowed map[string]struct{}
}

// New returns a Scanner reading from fs.
func New(fs afero.Fs) *Scanner {
	allowed := make(map[string]struct{}, len(SupportedExtensions))
	for _, ext := range SupportedExtensions {
		allowed[ext] = struct{}{}
	}
	return &Scanner{fs: fs, allowed: allowed}
}

// IsEligible reports whether name has one of the supported extensions, case-insensitively.
func (s *Scanner) IsEligible(name string) bool {
	_, ok := s.allowed[extensionOf(name)]
	return ok
}

// Scan returns every regular file directly inside dir whose extension is
// eligible, ordered by name. Symlinks to regular files are included;
// subdirectories and dangling links are skipped.
func (s *Scanner) Scan(dir string) ([]ImageFile, error) {
	info, err := s.fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryNotFound, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryNotFound, dir)
	}

	// afero.ReadDir sorts entries by name.
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	files := make([]ImageFile, 0, len(entries))
	for _, entry := range entries {
		if !s.IsEligible(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if entry.Mode()&os.ModeSymlink != 0 {
			target, err := s.fs.Stat(path)
			if err != nil {
				continue
			}
			entry = target
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		files = append(files, ImageFile{
			Name:      filepath.Base(path),
			Path:      path,
			Extension: extensionOf(path),
			Size:      entry.Size(),
		})
	}
	return files, nil
}

func extensionOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

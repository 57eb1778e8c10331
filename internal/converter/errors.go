package converter

import (
	"errors"

	"webp-converter-go/internal/scanner"
)

var (
	// ErrDirectoryNotFound is returned when the input directory is missing or not a directory.
	ErrDirectoryNotFound = scanner.ErrDirectoryNotFound
	// ErrInvalidArgument is returned for out-of-range job parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBusy is returned when a job is started while another one is running.
	ErrBusy = errors.New("a conversion is already running")
)

// ErrorKind classifies per-file failures.
type ErrorKind string

const (
	KindDecodeFailure        ErrorKind = "decode failure"
	KindEncodeOrWriteFailure ErrorKind = "encode or write failure"
)

// FileError describes the failure of a single input file.
type FileError struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func decodeError(op, path string, err error) error {
	return &FileError{Kind: KindDecodeFailure, Op: op, Path: path, Err: err}
}

func writeError(op, path string, err error) error {
	return &FileError{Kind: KindEncodeOrWriteFailure, Op: op, Path: path, Err: err}
}

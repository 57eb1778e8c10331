package converter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"webp-converter-go/internal/codec"
	"webp-converter-go/internal/logger"
	"webp-converter-go/internal/scanner"
	"webp-converter-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// MetadataCopier copies image metadata from a source file onto a converted output.
type MetadataCopier interface {
	Copy(src, dst string) error
}

// Worker converts one directory at a time to WebP.
type Worker struct {
	fs       afero.Fs
	scanner  *scanner.Scanner
	codec    codec.Codec
	metadata MetadataCopier
	logger   *logrus.Logger

	running atomic.Bool

	statsMutex sync.RWMutex
	stats      *statistics.Statistics
}

// Option configures a Worker.
type Option func(*Worker)

// WithFs sets the filesystem the worker reads from and writes to.
func WithFs(fs afero.Fs) Option {
	return func(w *Worker) { w.fs = fs }
}

// WithCodec replaces the default image codec.
func WithCodec(c codec.Codec) Option {
	return func(w *Worker) { w.codec = c }
}

// WithMetadataCopier enables metadata copying for jobs that ask for it.
func WithMetadataCopier(m MetadataCopier) Option {
	return func(w *Worker) { w.metadata = m }
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// NewWorker returns a Worker on the OS filesystem with the default codec.
func NewWorker(opts ...Option) *Worker {
	w := &Worker{
		fs:     afero.NewOsFs(),
		codec:  codec.NewDefaultCodec(),
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.scanner = scanner.New(w.fs)
	return w
}

// Running reports whether a job is in progress.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Stats returns the statistics of the current or most recent run, or nil.
func (w *Worker) Stats() *statistics.Statistics {
	w.statsMutex.RLock()
	defer w.statsMutex.RUnlock()
	return w.stats
}

// Start runs job in its own goroutine and streams its events. The channel
// is closed after the terminal event; callers must drain it.
// Cancelling ctx stops the batch before the next file. Progress for a file
// that was already written is still delivered.
func (w *Worker) Start(ctx context.Context, job Job) <-chan Event {
	events := make(chan Event, 1)
	go func() {
		defer close(events)
		_ = w.Run(ctx, job, func(ev Event) {
			events <- ev
		})
	}()
	return events
}

// Run executes job synchronously, calling emit for every event in order.
// It returns the error carried by the terminal error event, or nil.
// The worker is idle again by the time the terminal event is emitted.
func (w *Worker) Run(ctx context.Context, job Job, emit func(Event)) error {
	if !w.running.CompareAndSwap(false, true) {
		emit(Event{Type: EventError, Message: ErrBusy.Error(), Err: ErrBusy})
		return ErrBusy
	}

	var terminal Event
	func() {
		defer w.running.Store(false)
		terminal = w.run(ctx, job, emit)
	}()

	emit(terminal)
	return terminal.Err
}

// run emits progress events and returns the terminal event without emitting it.
func (w *Worker) run(ctx context.Context, job Job, emit func(Event)) Event {
	jobID := uuid.NewString()
	log := logger.WithJob(w.logger, jobID).WithField("directory", job.InputDirectory)

	stats := statistics.NewStatistics()
	w.statsMutex.Lock()
	w.stats = stats
	w.statsMutex.Unlock()
	defer stats.Finalize()

	fail := func(path, operation string, err error) Event {
		stats.AddError(path, operation, err.Error())
		log.WithError(err).Error("Conversion failed")
		return Event{Type: EventError, JobID: jobID, Message: err.Error(), Err: err}
	}

	if err := job.Validate(); err != nil {
		return fail("", "validate", err)
	}

	files, err := w.scanner.Scan(job.InputDirectory)
	if err != nil {
		return fail(job.InputDirectory, "scan", err)
	}

	total := len(files)
	stats.SetFilesFound(total)
	log.WithFields(logrus.Fields{"quality": job.Quality, "files": total}).Info("Starting conversion")
	warnCollisions(log, files)

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return fail(file.Path, "cancel", fmt.Errorf("conversion cancelled: %w", err))
		}

		out, written, mode, err := w.convertFile(job, file, log)
		if err != nil {
			stats.IncrementFilesFailed()
			op := "convert"
			if fe, ok := err.(*FileError); ok {
				op = fe.Op
			}
			return fail(file.Path, op, err)
		}

		stats.IncrementFilesConverted()
		stats.IncrementColorMode(mode.String())
		stats.AddBytes(file.Size, written)

		emit(Event{
			Type:    EventProgress,
			JobID:   jobID,
			Percent: Percent(i+1, total),
			File:    file.Name,
			Output:  out,
		})
	}

	log.Info("Conversion completed")
	return Event{Type: EventCompleted, JobID: jobID, Percent: 100}
}

// convertFile decodes, normalizes, encodes and writes a single image.
func (w *Worker) convertFile(job Job, file scanner.ImageFile, log logrus.FieldLogger) (string, int64, codec.ColorMode, error) {
	entry := logger.WithFileOperation(log, file.Path, "convert")
	entry.Debug("Processing file")

	in, err := w.fs.Open(file.Path)
	if err != nil {
		return "", 0, 0, decodeError("open", file.Path, err)
	}
	img, err := w.codec.Decode(in, codec.DecodeOptions{AutoOrient: job.AutoOrient})
	in.Close()
	if err != nil {
		return "", 0, 0, decodeError("decode", file.Path, err)
	}

	normalized := w.codec.Normalize(img)
	data, err := w.codec.EncodeWebP(normalized, job.Quality)
	if err != nil {
		return "", 0, 0, writeError("encode", file.Path, err)
	}

	out := file.OutputPath()
	if err := w.writeOutput(out, data); err != nil {
		return "", 0, 0, writeError("write", out, err)
	}

	if job.PreserveMetadata && w.metadata != nil {
		if err := w.metadata.Copy(file.Path, out); err != nil {
			entry.WithError(err).Warn("Metadata not copied")
		}
	}

	entry.WithFields(logrus.Fields{
		"output":     out,
		"color_mode": normalized.Source.String(),
		"bytes":      len(data),
	}).Info("Converted file")
	return out, int64(len(data)), normalized.Source, nil
}

// writeOutput writes data next to path's final name and renames it into
// place, so a failed write never leaves a partial output behind.
func (w *Worker) writeOutput(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := w.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = w.fs.Remove(tmpPath)
		return err
	}

	if err := w.fs.Rename(tmpPath, path); err != nil {
		_ = w.fs.Remove(tmpPath)
		return err
	}
	return nil
}

// warnCollisions logs inputs that map to the same output name; the later
// file in scan order overwrites the earlier one.
func warnCollisions(log logrus.FieldLogger, files []scanner.ImageFile) {
	seen := make(map[string]string, len(files))
	for _, f := range files {
		out := f.OutputPath()
		if prev, ok := seen[out]; ok {
			log.WithFields(logrus.Fields{
				"output": out,
				"first":  prev,
				"second": f.Path,
			}).Warn("Inputs share an output name, the later file wins")
		}
		seen[out] = f.Path
	}
}

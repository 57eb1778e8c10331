package converter

import "fmt"

// Job is one batch: every eligible image directly inside InputDirectory
// converted to WebP at Quality.
type Job struct {
	InputDirectory   string
	Quality          int
	AutoOrient       bool
	PreserveMetadata bool
}

// NewJob returns a Job with the optional behaviors disabled.
func NewJob(dir string, quality int) Job {
	return Job{InputDirectory: dir, Quality: quality}
}

// Validate checks the caller-supplied arguments.
func (j Job) Validate() error {
	if j.Quality < 1 || j.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 1 and 100, got %d", ErrInvalidArgument, j.Quality)
	}
	return nil
}

// EventType discriminates worker events.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
)

// Event is emitted by the worker while a job runs. A run produces zero or
// more progress events followed by exactly one completed or error event.
type Event struct {
	Type    EventType `json:"type"`
	JobID   string    `json:"job_id"`
	Percent int       `json:"percent"`
	File    string    `json:"file,omitempty"`
	Output  string    `json:"output,omitempty"`
	Message string    `json:"message,omitempty"`
	Err     error     `json:"-"`
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}

// Percent returns done/total as a percentage rounded half up.
// It reaches exactly 100 when done == total.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return (done*200 + total) / (2 * total)
}

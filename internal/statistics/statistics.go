package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics contains all statistics for one conversion run.
type Statistics struct {
	FilesFound     int64
	FilesConverted int64
	FilesFailed    int64
	BytesRead      int64
	BytesWritten   int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64
	SavedPercent   float64

	Errors []StatError

	ColorModeStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string    `json:"file_path"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy safe to serialize.
type Snapshot struct {
	FilesFound     int64            `json:"files_found"`
	FilesConverted int64            `json:"files_converted"`
	FilesFailed    int64            `json:"files_failed"`
	BytesRead      int64            `json:"bytes_read"`
	BytesWritten   int64            `json:"bytes_written"`
	Duration       string           `json:"duration"`
	FilesPerSecond float64          `json:"files_per_second"`
	SavedPercent   float64          `json:"saved_percent"`
	ColorModes     map[string]int64 `json:"color_modes"`
	Errors         []StatError      `json:"errors"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:      time.Now(),
		ColorModeStats: make(map[string]int64),
		Errors:         make([]StatError, 0),
	}
}

// SetFilesFound records the size of the scanned batch.
func (s *Statistics) SetFilesFound(n int) {
	atomic.StoreInt64(&s.FilesFound, int64(n))
}

// IncrementFilesConverted increases the count of converted files by 1.
func (s *Statistics) IncrementFilesConverted() {
	atomic.AddInt64(&s.FilesConverted, 1)
}

// IncrementFilesFailed increases the count of failed files by 1.
func (s *Statistics) IncrementFilesFailed() {
	atomic.AddInt64(&s.FilesFailed, 1)
}

// AddBytes adds input and output sizes of a converted file.
func (s *Statistics) AddBytes(read, written int64) {
	atomic.AddInt64(&s.BytesRead, read)
	atomic.AddInt64(&s.BytesWritten, written)
}

// IncrementColorMode increases the count for a source color mode by 1.
func (s *Statistics) IncrementColorMode(mode string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.ColorModeStats[mode]++
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
}

// Finalize calculates duration, throughput and savings.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	converted := atomic.LoadInt64(&s.FilesConverted)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(converted) / s.Duration.Seconds()
	}

	read := atomic.LoadInt64(&s.BytesRead)
	written := atomic.LoadInt64(&s.BytesWritten)
	if read > 0 {
		s.SavedPercent = float64(read-written) * 100 / float64(read)
	}
}

// Snapshot returns a copy of the current values.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	modes := make(map[string]int64, len(s.ColorModeStats))
	for k, v := range s.ColorModeStats {
		modes[k] = v
	}
	errs := make([]StatError, len(s.Errors))
	copy(errs, s.Errors)

	return Snapshot{
		FilesFound:     atomic.LoadInt64(&s.FilesFound),
		FilesConverted: atomic.LoadInt64(&s.FilesConverted),
		FilesFailed:    atomic.LoadInt64(&s.FilesFailed),
		BytesRead:      atomic.LoadInt64(&s.BytesRead),
		BytesWritten:   atomic.LoadInt64(&s.BytesWritten),
		Duration:       s.Duration.String(),
		FilesPerSecond: s.FilesPerSecond,
		SavedPercent:   s.SavedPercent,
		ColorModes:     modes,
		Errors:         errs,
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	snap := s.Snapshot()
	return fmt.Sprintf(`WebP Converter Statistics Summary:

Files:
		Found: %d
		Converted: %d
		Failed: %d

Size:
		Read: %s
		Written: %s
		Saved: %.1f%%

Performance:
		Duration: %s
		Files/Second: %.2f

%s`,
		snap.FilesFound,
		snap.FilesConverted,
		snap.FilesFailed,
		formatBytes(snap.BytesRead),
		formatBytes(snap.BytesWritten),
		snap.SavedPercent,
		snap.Duration,
		snap.FilesPerSecond,
		s.GetColorModeBreakdown())
}

// GetColorModeBreakdown returns a formatted breakdown of source color modes.
func (s *Statistics) GetColorModeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.ColorModeStats) == 0 {
		return "No color mode statistics available"
	}

	modes := make([]string, 0, len(s.ColorModeStats))
	for mode := range s.ColorModeStats {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	var b strings.Builder
	b.WriteString("Color Modes:\n")
	for _, mode := range modes {
		fmt.Fprintf(&b, "  %s: %d\n", mode, s.ColorModeStats[mode])
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for _, err := range s.Errors {
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

package statistics

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Statistics collects live counters for a compression run. Counters are
// atomic so progress can be read while workers report.
type Statistics struct {
	TotalFiles       int64
	ImagesFound      int64
	UnsupportedFound int64
	FilesCompleted   int64
	FilesCompressed  int64
	FilesFailed      int64
	FilesCopied      int64
	FilesSkipped     int64

	InputBytes  int64
	OutputBytes int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	ProfileStats map[string]int64

	mutex sync.RWMutex
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:    time.Now(),
		Errors:       make([]StatError, 0),
		ProfileStats: make(map[string]int64),
	}
}

// SetDiscovered records how many files the walker found.
func (s *Statistics) SetDiscovered(images, unsupported int) {
	atomic.StoreInt64(&s.ImagesFound, int64(images))
	atomic.StoreInt64(&s.UnsupportedFound, int64(unsupported))
	atomic.StoreInt64(&s.TotalFiles, int64(images+unsupported))
}

// RecordCompressed counts a successful encode and its byte sizes.
func (s *Statistics) RecordCompressed(profileName string, inBytes, outBytes int64) {
	atomic.AddInt64(&s.FilesCompleted, 1)
	atomic.AddInt64(&s.FilesCompressed, 1)
	atomic.AddInt64(&s.InputBytes, inBytes)
	atomic.AddInt64(&s.OutputBytes, outBytes)

	s.mutex.Lock()
	s.ProfileStats[profileName]++
	s.mutex.Unlock()
}

// RecordFailed counts a failed image and keeps the reason.
func (s *Statistics) RecordFailed(filePath, operation, errorMsg string) {
	atomic.AddInt64(&s.FilesCompleted, 1)
	atomic.AddInt64(&s.FilesFailed, 1)
	s.AddError(filePath, operation, errorMsg)
}

// IncrementFilesCopied increases the count of copied files by 1.
func (s *Statistics) IncrementFilesCopied() {
	atomic.AddInt64(&s.FilesCopied, 1)
}

// IncrementFilesSkipped increases the count of skipped files by 1.
func (s *Statistics) IncrementFilesSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
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

// Finalize stops the clock.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Run derives the report block from the counters.
func (s *Statistics) Run() RunStatistics {
	s.mutex.RLock()
	duration := s.Duration
	s.mutex.RUnlock()

	return Compute(
		atomic.LoadInt64(&s.InputBytes),
		atomic.LoadInt64(&s.OutputBytes),
		int(atomic.LoadInt64(&s.ImagesFound)),
		int(atomic.LoadInt64(&s.FilesCompressed)),
		int(atomic.LoadInt64(&s.FilesFailed)),
		duration,
	)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalFiles      int64   `json:"total_files"`
	ImagesFound     int64   `json:"images_found"`
	FilesCompleted  int64   `json:"files_completed"`
	FilesCompressed int64   `json:"files_compressed"`
	FilesFailed     int64   `json:"files_failed"`
	FilesCopied     int64   `json:"files_copied"`
	InputBytes      int64   `json:"input_bytes"`
	OutputBytes     int64   `json:"output_bytes"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// Snapshot returns the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	elapsed := s.Duration
	if s.EndTime.IsZero() {
		elapsed = time.Since(s.StartTime)
	}
	s.mutex.RUnlock()

	return Snapshot{
		TotalFiles:      atomic.LoadInt64(&s.TotalFiles),
		ImagesFound:     atomic.LoadInt64(&s.ImagesFound),
		FilesCompleted:  atomic.LoadInt64(&s.FilesCompleted),
		FilesCompressed: atomic.LoadInt64(&s.FilesCompressed),
		FilesFailed:     atomic.LoadInt64(&s.FilesFailed),
		FilesCopied:     atomic.LoadInt64(&s.FilesCopied),
		InputBytes:      atomic.LoadInt64(&s.InputBytes),
		OutputBytes:     atomic.LoadInt64(&s.OutputBytes),
		ElapsedSeconds:  elapsed.Seconds(),
	}
}

// GetSummary returns a formatted summary of the run.
func (s *Statistics) GetSummary() string {
	run := s.Run()
	in := atomic.LoadInt64(&s.InputBytes)
	out := atomic.LoadInt64(&s.OutputBytes)

	return fmt.Sprintf(`Photo Compresser Statistics Summary:

Files:
		Total Found: %d
		Images: %d
		Unsupported: %d
		Compressed: %d
		Failed: %d
		Copied: %d
		Skipped: %d

Size:
		Input: %s
		Output: %s
		Saved: %s
		Compression Ratio: %.2f%%

Performance:
		Duration: %s`,
		atomic.LoadInt64(&s.TotalFiles),
		atomic.LoadInt64(&s.ImagesFound),
		atomic.LoadInt64(&s.UnsupportedFound),
		atomic.LoadInt64(&s.FilesCompressed),
		atomic.LoadInt64(&s.FilesFailed),
		atomic.LoadInt64(&s.FilesCopied),
		atomic.LoadInt64(&s.FilesSkipped),
		humanize.IBytes(uint64(max(in, 0))),
		humanize.IBytes(uint64(max(out, 0))),
		formatSigned(in-out),
		run.CompressionRatioPercent,
		run.ConversionTime)
}

// GetProfileBreakdown lists how many images each profile produced.
func (s *Statistics) GetProfileBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.ProfileStats) == 0 {
		return "No profile statistics available"
	}

	var b strings.Builder
	b.WriteString("Profile Breakdown:\n")
	for name, count := range s.ProfileStats {
		fmt.Fprintf(&b, "  %s: %s\n", name, humanize.Comma(count))
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

	var b strings.Builder
	fmt.Fprintf(&b, "Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			fmt.Fprintf(&b, "  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		fmt.Fprintf(&b, "  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return b.String()
}

func formatSigned(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// RunStatistics is the aggregate block persisted in the run report.
type RunStatistics struct {
	InputSizeMB             float64       `json:"input_size_mb"`
	OutputSizeMB            float64       `json:"output_size_mb"`
	SpaceSavedMB            float64       `json:"space_saved_mb"`
	CompressionRatioPercent float64       `json:"compression_ratio_percent"`
	TotalFiles              int           `json:"total_files"`
	CompressedFiles         int           `json:"compressed_files"`
	FailedFiles             int           `json:"failed_files_count"`
	ConversionTime          string        `json:"conversion_time"`
	Duration                time.Duration `json:"-"`
}

const bytesPerMB = 1024 * 1024

// Compute builds RunStatistics from byte totals over successful pairs.
// Sizes are rounded to two decimals; the ratio is 0 when nothing was read.
func Compute(inBytes, outBytes int64, total, compressed, failed int, duration time.Duration) RunStatistics {
	inMB := float64(inBytes) / bytesPerMB
	outMB := float64(outBytes) / bytesPerMB

	var ratio float64
	if inBytes > 0 {
		ratio = float64(inBytes-outBytes) / float64(inBytes) * 100
	}

	return RunStatistics{
		InputSizeMB:             round2(inMB),
		OutputSizeMB:            round2(outMB),
		SpaceSavedMB:            round2(inMB - outMB),
		CompressionRatioPercent: round2(ratio),
		TotalFiles:              total,
		CompressedFiles:         compressed,
		FailedFiles:             failed,
		ConversionTime:          FormatDuration(duration),
		Duration:                duration,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatDuration renders d as "<d>d <h>h <m>m <s>s". Zero units are left
// out and "0s" is returned for durations under a second.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, " ")
}

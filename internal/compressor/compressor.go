package compressor

import (
	"context"
	"time"

	"github.com/Ewasince/photo-compresser/internal/extractor"
	"github.com/Ewasince/photo-compresser/internal/profile"
)

// Task is one image to compress. Destination is already collision-free.
type Task struct {
	Source      string
	Destination string
	Profile     profile.Profile
	ProfileName string
	Conditions  map[string]bool
	Properties  extractor.ImageProperties
}

// Result describes the outcome of one task.
type Result struct {
	Source      string
	Destination string
	ProfileName string
	Conditions  map[string]bool
	InputBytes  int64
	OutputBytes int64
	Success     bool
	Error       error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Failure is a task that did not produce an output.
type Failure struct {
	Source string `json:"path"`
	Error  string `json:"error"`
}

// Attribution records which profile produced an output and why.
type Attribution struct {
	Profile    string
	Conditions map[string]bool
}

// Pair links a source to the output it produced.
type Pair struct {
	Source      string
	Output      string
	Profile     string
	Conditions  map[string]bool
	InputBytes  int64
	OutputBytes int64
}

// Status is the final state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusCancelled Status = "cancelled"
)

// Results aggregates a run. Outputs, Pairs and Failures follow task order.
type Results struct {
	Total       int
	Succeeded   int
	Outputs     []string
	Pairs       []Pair
	Failures    []Failure
	Attribution map[string]Attribution
	Status      Status
}

// Failed returns the number of failed tasks.
func (r Results) Failed() int {
	return len(r.Failures)
}

// ProgressFunc is called after every completed task, from a single
// goroutine.
type ProgressFunc func(completed, total int)

// Processor runs a single task. Implementations must not share mutable
// state between calls.
type Processor interface {
	Process(ctx context.Context, task Task) Result
}

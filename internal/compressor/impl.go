package compressor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures a Driver.
type Options struct {
	// Workers is the pool size; 0 means runtime.NumCPU(), 1 is sequential.
	Workers int
}

// Driver runs tasks across a bounded pool of workers.
type Driver struct {
	logger    *logrus.Logger
	processor Processor
	workers   int
}

// NewDriver creates a Driver.
func NewDriver(logger *logrus.Logger, processor Processor, opts Options) *Driver {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Driver{logger: logger, processor: processor, workers: workers}
}

// Workers returns the pool size.
func (d *Driver) Workers() int {
	return d.workers
}

// Run executes tasks and blocks until every dispatched task has finished.
// Cancelling ctx stops dispatch; tasks already running complete and the
// status is StatusCancelled. A failing task never affects the others.
func (d *Driver) Run(ctx context.Context, tasks []Task, progress ProgressFunc) Results {
	total := len(tasks)
	results := Results{
		Total:       total,
		Attribution: make(map[string]Attribution),
		Status:      StatusCompleted,
	}
	if total == 0 {
		if ctx.Err() != nil {
			results.Status = StatusCancelled
		}
		return results
	}

	type job struct {
		index int
		task  Task
	}
	type outcome struct {
		index  int
		result Result
	}

	numWorkers := min(d.workers, total)
	jobs := make(chan job)
	done := make(chan outcome, numWorkers)

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				done <- outcome{index: j.index, result: d.process(ctx, j.task)}
			}
		}()
	}

	slots := make([]*Result, total)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		completed := 0
		for o := range done {
			r := o.result
			slots[o.index] = &r
			completed++
			if progress != nil {
				progress(completed, total)
			}
		}
	}()

	cancelled := false
dispatch:
	for i, t := range tasks {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case jobs <- job{index: i, task: t}:
		case <-ctx.Done():
			cancelled = true
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	close(done)
	<-collected

	dispatched := 0
	for _, r := range slots {
		if r == nil {
			continue
		}
		dispatched++
		if r.Success {
			results.Succeeded++
			results.Outputs = append(results.Outputs, r.Destination)
			results.Pairs = append(results.Pairs, Pair{
				Source:      r.Source,
				Output:      r.Destination,
				Profile:     r.ProfileName,
				Conditions:  r.Conditions,
				InputBytes:  r.InputBytes,
				OutputBytes: r.OutputBytes,
			})
			results.Attribution[r.Destination] = Attribution{Profile: r.ProfileName, Conditions: r.Conditions}
			continue
		}
		results.Failures = append(results.Failures, Failure{Source: r.Source, Error: errorText(r.Error)})
	}

	switch {
	case cancelled:
		results.Status = StatusCancelled
	case len(results.Failures) > 0:
		results.Status = StatusPartial
	}

	d.logger.WithFields(logrus.Fields{
		"total":      total,
		"dispatched": dispatched,
		"succeeded":  results.Succeeded,
		"failed":     len(results.Failures),
		"status":     results.Status,
	}).Info("Compression finished")
	return results
}

// process runs one task and turns a panic into a failed result.
func (d *Driver) process(ctx context.Context, task Task) (result Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("file", task.Source).Errorf("Task panicked: %v", r)
			result = Result{
				Source:      task.Source,
				Destination: task.Destination,
				ProfileName: task.ProfileName,
				Error:       fmt.Errorf("panic: %v", r),
				StartedAt:   started,
				FinishedAt:  time.Now(),
			}
		}
	}()
	return d.processor.Process(ctx, task)
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

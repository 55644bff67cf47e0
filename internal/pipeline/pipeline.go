// Package pipeline runs a whole directory compression: discovery, profile
// selection, parallel encoding, unsupported file handling and the report.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Ewasince/photo-compresser/internal/compressor"
	"github.com/Ewasince/photo-compresser/internal/extractor"
	"github.com/Ewasince/photo-compresser/internal/fsutil"
	"github.com/Ewasince/photo-compresser/internal/logger"
	"github.com/Ewasince/photo-compresser/internal/organizer"
	"github.com/Ewasince/photo-compresser/internal/profile"
	"github.com/Ewasince/photo-compresser/internal/report"
	"github.com/Ewasince/photo-compresser/internal/statistics"
)

// Archiver stores a finished report somewhere outside the output tree.
type Archiver interface {
	Archive(ctx context.Context, runID, reportPath string) (string, error)
}

// Options describe one run.
type Options struct {
	RunID             string
	InputRoot         string
	OutputRoot        string
	PreserveStructure bool
	Policy            organizer.UnsupportedPolicy
	UnsupportedRoot   string
	Profiles          profile.Registry
	Workers           int
	Progress          compressor.ProgressFunc
	// Statistics receives live counters when set.
	Statistics *statistics.Statistics
	Archiver   Archiver
}

// Outcome is the result of a run that got as far as dispatching.
type Outcome struct {
	RunID           string
	Status          compressor.Status
	OutputRoot      string
	UnsupportedRoot string
	Results         compressor.Results
	Failures        []compressor.Failure
	Copied          []string
	Skipped         int
	Stats           statistics.RunStatistics
	ReportPath      string
	ArchiveLocation string
}

// Pipeline wires discovery, selection and the compression driver.
type Pipeline struct {
	logger    *logrus.Logger
	extractor extractor.Extractor
	processor compressor.Processor
}

// New creates a Pipeline.
func New(logger *logrus.Logger, ext extractor.Extractor, processor compressor.Processor) *Pipeline {
	return &Pipeline{logger: logger, extractor: ext, processor: processor}
}

// Run compresses opts.InputRoot into opts.OutputRoot. Per-file problems are
// reported in the Outcome; an error means nothing was dispatched.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Outcome, error) {
	opts, err := p.prepare(opts)
	if err != nil {
		return nil, err
	}

	stats := opts.Statistics
	if stats == nil {
		stats = statistics.NewStatistics()
	}

	files, err := organizer.NewWalker(p.logger).Walk(opts.InputRoot)
	if err != nil {
		return nil, err
	}
	images, unsupported := organizer.Split(files)
	stats.SetDiscovered(len(images), len(unsupported))

	namer := organizer.NewNamer(organizer.Layout{
		InputRoot:         opts.InputRoot,
		OutputRoot:        opts.OutputRoot,
		PreserveStructure: opts.PreserveStructure,
		Policy:            opts.Policy,
		UnsupportedRoot:   opts.UnsupportedRoot,
	})

	outcome := &Outcome{
		RunID:           opts.RunID,
		OutputRoot:      opts.OutputRoot,
		UnsupportedRoot: opts.UnsupportedRoot,
	}

	measured := p.extractAll(images, opts.Workers)

	entries := make(map[string]organizer.FileEntry, len(images))
	tasks := make([]compressor.Task, 0, len(images))
	var extractFailures []compressor.Failure
	for i, entry := range images {
		entries[entry.Path] = entry

		m := measured[i]
		if m.err != nil {
			logger.WithFileOperation(p.logger, entry.Path, "extract").WithError(m.err).Warn("Failed to read image properties")
			extractFailures = append(extractFailures, compressor.Failure{Source: entry.Path, Error: m.err.Error()})
			stats.RecordFailed(entry.Path, "extract", m.err.Error())
			continue
		}

		selected, name, conditions := p.choose(m.props, opts)
		tasks = append(tasks, compressor.Task{
			Source:      entry.Path,
			Destination: namer.ImageDestination(entry, selected.OutputFormat.Extension()),
			Profile:     selected,
			ProfileName: name,
			Conditions:  conditions,
			Properties:  m.props,
		})
	}

	// Unsupported files are named before dispatch so image outputs and
	// copies never race for the same path.
	type copyJob struct {
		src, dst string
	}
	var copies []copyJob
	for _, entry := range unsupported {
		dst, ok := namer.CopyDestination(entry)
		if !ok {
			outcome.Skipped++
			stats.IncrementFilesSkipped()
			continue
		}
		copies = append(copies, copyJob{src: entry.Path, dst: dst})
	}

	if err := os.MkdirAll(opts.OutputRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	driver := compressor.NewDriver(p.logger, &recordingProcessor{next: p.processor, stats: stats}, compressor.Options{Workers: opts.Workers})
	results := driver.Run(ctx, tasks, opts.Progress)
	outcome.Results = results
	outcome.Failures = append(extractFailures, results.Failures...)

	outcome.Status = results.Status
	if outcome.Status == compressor.StatusCompleted && len(outcome.Failures) > 0 {
		outcome.Status = compressor.StatusPartial
	}

	if outcome.Status != compressor.StatusCancelled {
		for _, f := range outcome.Failures {
			dst, ok := namer.CopyDestination(entries[f.Source])
			if !ok {
				continue
			}
			copies = append(copies, copyJob{src: f.Source, dst: dst})
		}
		for _, c := range copies {
			if err := fsutil.CopyFile(c.src, c.dst); err != nil {
				logger.WithFileOperation(p.logger, c.src, "copy").WithError(err).Warn("Failed to copy file")
				stats.AddError(c.src, "copy", err.Error())
				continue
			}
			outcome.Copied = append(outcome.Copied, c.dst)
			stats.IncrementFilesCopied()
		}
	}

	stats.Finalize()
	outcome.Stats = stats.Run()

	path, err := report.Write(opts.OutputRoot, report.Report{
		RunID:  opts.RunID,
		Status: outcome.Status,
		Settings: report.Settings{
			InputDirectory:       opts.InputRoot,
			OutputDirectory:      opts.OutputRoot,
			PreserveStructure:    opts.PreserveStructure,
			UnsupportedPolicy:    string(opts.Policy),
			CopyUnsupported:      opts.Policy != organizer.PolicySkip,
			CopyUnsupportedToDir: opts.Policy == organizer.PolicyRedirect,
			UnsupportedDir:       opts.UnsupportedRoot,
			Workers:              driver.Workers(),
		},
		Profiles:        opts.Profiles,
		CompressionDate: time.Now(),
		ImagePairs:      report.PairsFrom(results.Pairs),
		FailedFiles:     outcome.Failures,
		Stats:           outcome.Stats,
	})
	if err != nil {
		logger.WithOperation(logger.WithRun(p.logger, opts.RunID), "report").WithError(err).Error("Failed to write report")
	} else {
		outcome.ReportPath = path
		// A cancelled run still archives the report it wrote.
		if opts.Archiver != nil {
			location, err := opts.Archiver.Archive(context.WithoutCancel(ctx), opts.RunID, path)
			if err != nil {
				logger.WithOperation(logger.WithRun(p.logger, opts.RunID), "archive").WithError(err).Warn("Failed to archive report")
			} else {
				outcome.ArchiveLocation = location
			}
		}
	}

	logger.WithRun(p.logger, opts.RunID).WithFields(logrus.Fields{
		"status":     outcome.Status,
		"compressed": results.Succeeded,
		"failed":     len(outcome.Failures),
		"copied":     len(outcome.Copied),
		"skipped":    outcome.Skipped,
		"duration":   outcome.Stats.ConversionTime,
	}).Info("Run finished")
	return outcome, nil
}

type measurement struct {
	props extractor.ImageProperties
	err   error
}

// extractAll reads properties of every image. Reads run concurrently;
// results keep the order of images so naming stays deterministic.
func (p *Pipeline) extractAll(images []organizer.FileEntry, workers int) []measurement {
	out := make([]measurement, len(images))
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, entry := range images {
		g.Go(func() error {
			out[i].props, out[i].err = p.extractor.Extract(entry.Path)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// prepare fills defaults and rejects runs that must not start.
func (p *Pipeline) prepare(opts Options) (Options, error) {
	if err := organizer.CheckInputRoot(opts.InputRoot); err != nil {
		return opts, err
	}
	if err := opts.Profiles.Validate(); err != nil {
		return opts, err
	}

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.OutputRoot == "" {
		opts.OutputRoot = organizer.DefaultOutputRoot(opts.InputRoot, time.Now())
	}
	if err := organizer.CheckOutputRoot(opts.OutputRoot); err != nil {
		return opts, err
	}

	if opts.Policy == "" {
		opts.Policy = organizer.PolicyCopy
	}
	if opts.Policy == organizer.PolicyRedirect {
		if opts.UnsupportedRoot == "" {
			opts.UnsupportedRoot = organizer.DefaultUnsupportedRoot(opts.OutputRoot)
		}
		if err := organizer.CheckOutputRoot(opts.UnsupportedRoot); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// choose picks the profile for an image. Without a match the image is
// encoded with the first registry profile's parameters, or the built-in raw
// profile for an empty registry, and attributed as Raw either way.
func (p *Pipeline) choose(props extractor.ImageProperties, opts Options) (profile.Profile, string, map[string]bool) {
	sel := profile.SelectWithResults(props.Conditions(), opts.Profiles)
	if sel.Matched() {
		return *sel.Profile, sel.Profile.Name, sel.ConditionResults()
	}

	logger.WithFileOperation(p.logger, props.Path, "select").Debug("No profile matched, using fallback")
	fallback, ok := opts.Profiles.Default()
	if !ok {
		fallback = profile.Raw()
	}
	return fallback, profile.RawProfileName, map[string]bool{}
}

// recordingProcessor feeds live statistics from worker results.
type recordingProcessor struct {
	next  compressor.Processor
	stats *statistics.Statistics
}

func (r *recordingProcessor) Process(ctx context.Context, task compressor.Task) compressor.Result {
	res := r.next.Process(ctx, task)
	if res.Success {
		r.stats.RecordCompressed(res.ProfileName, res.InputBytes, res.OutputBytes)
	} else {
		msg := "unknown error"
		if res.Error != nil {
			msg = res.Error.Error()
		}
		r.stats.RecordFailed(task.Source, "compress", msg)
	}
	return res
}

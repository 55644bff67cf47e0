package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Ewasince/photo-compresser/internal/compressor"
	"github.com/Ewasince/photo-compresser/internal/organizer"
	"github.com/Ewasince/photo-compresser/internal/pipeline"
	"github.com/Ewasince/photo-compresser/internal/statistics"
)

var (
	inputDir       string
	outputDir      string
	flatten        bool
	unsupported    string
	unsupportedDir string
	workers        int
)

// compressCmd runs the compression pipeline over a directory.
var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress every image under a directory into a new output tree",
	Long: `Compress walks the input directory, picks a profile for every image and
re-encodes it into the output directory, which must not exist yet.
Unsupported files are copied, redirected or skipped. A report named
compression_settings.json is written into the output directory.

Press Ctrl+C to stop: running files finish, queued files are not started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd)
	},
}

func init() {
	compressCmd.Flags().StringVar(&inputDir, "input", "", "input directory (default from config)")
	compressCmd.Flags().StringVar(&outputDir, "output", "", "output directory (default: <input>_compressed_<timestamp>)")
	compressCmd.Flags().BoolVar(&flatten, "flatten", false, "put every output file directly in the output directory")
	compressCmd.Flags().StringVar(&unsupported, "unsupported", "", "unsupported files policy: copy, redirect or skip")
	compressCmd.Flags().StringVar(&unsupportedDir, "unsupported-dir", "", "target directory for the redirect policy")
	compressCmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers (default from config)")
}

// runCompress executes one pipeline run.
func runCompress(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if inputDir != "" {
		cfg.InputDirectory = inputDir
	}
	if outputDir != "" {
		cfg.OutputDirectory = outputDir
	}
	if cmd.Flags().Changed("flatten") {
		cfg.PreserveStructure = !flatten
	}
	if unsupported != "" {
		cfg.Unsupported.Policy = unsupported
	}
	if unsupportedDir != "" {
		cfg.Unsupported.Directory = unsupportedDir
	}
	if workers > 0 {
		cfg.Performance.Workers = workers
	}
	if cfg.InputDirectory == "" {
		return fmt.Errorf("no input directory: pass --input or set input_directory")
	}
	policy, err := organizer.ParsePolicy(cfg.Unsupported.Policy)
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	profiles, err := loadProfiles(cfg, log)
	if err != nil {
		return err
	}
	archiver, err := newArchiver(cfg, log)
	if err != nil {
		return err
	}

	ext := newExtractor(cfg, log)
	defer ext.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := statistics.NewStatistics()
	bar := newProgress(quiet)

	outcome, err := newPipeline(cfg, log, ext).Run(ctx, pipeline.Options{
		InputRoot:         cfg.InputDirectory,
		OutputRoot:        cfg.OutputDirectory,
		PreserveStructure: cfg.PreserveStructure,
		Policy:            policy,
		UnsupportedRoot:   cfg.Unsupported.Directory,
		Profiles:          profiles,
		Workers:           cfg.Performance.Workers,
		Progress:          bar.update,
		Statistics:        stats,
		Archiver:          archiver,
	})
	bar.finish()
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	printOutcome(log, outcome, stats)
	return nil
}

func printOutcome(log *logrus.Logger, outcome *pipeline.Outcome, stats *statistics.Statistics) {
	if quiet {
		return
	}

	fmt.Println("\n" + stats.GetSummary())
	fmt.Println("\n" + stats.GetProfileBreakdown())
	if len(outcome.Failures) > 0 {
		fmt.Println("\n" + stats.GetErrorSummary())
	}

	fmt.Printf("\nStatus: %s\n", outcome.Status)
	fmt.Printf("Output: %s\n", outcome.OutputRoot)
	if outcome.UnsupportedRoot != "" {
		fmt.Printf("Unsupported files: %s\n", outcome.UnsupportedRoot)
	}
	if outcome.ReportPath != "" {
		fmt.Printf("Report: %s\n", outcome.ReportPath)
	}
	if outcome.ArchiveLocation != "" {
		fmt.Printf("Archived report: %s\n", outcome.ArchiveLocation)
	}
	if outcome.Status == compressor.StatusCancelled {
		log.Warn("Run was cancelled before all images were processed")
	}
}

// progress draws a bar once the total is known.
type progress struct {
	disabled bool
	bar      *progressbar.ProgressBar
}

func newProgress(disabled bool) *progress {
	return &progress{disabled: disabled}
}

// update is called from a single goroutine by the driver.
func (p *progress) update(completed, total int) {
	if p.disabled {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Compressing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("img"),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}
	_ = p.bar.Set(completed)
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Ewasince/photo-compresser/internal/compressor"
	"github.com/Ewasince/photo-compresser/internal/config"
	"github.com/Ewasince/photo-compresser/internal/encoder"
	"github.com/Ewasince/photo-compresser/internal/extractor"
	"github.com/Ewasince/photo-compresser/internal/logger"
	"github.com/Ewasince/photo-compresser/internal/pipeline"
	"github.com/Ewasince/photo-compresser/internal/profile"
	"github.com/Ewasince/photo-compresser/internal/storage"
)

var (
	cfgFile      string
	profilesFile string
	verbose      bool
	quiet        bool
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "photo-compresser",
	Short: "Batch compress image folders with rule based profiles",
	Long: `photo-compresser re-encodes every image under a directory into a fresh
output tree. Each image gets the last profile whose conditions it satisfies,
so general profiles go first and specific overrides after them.

Features:
- JPEG, WEBP and AVIF output with per-format parameters
- Conditions on size, orientation, aspect ratio, format, transparency and EXIF
- Optional flattening with collision free names
- Unsupported files copied, redirected or skipped
- A JSON report pairing every original with its compressed file`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles", "", "profile file (default from config)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads configuration and applies the persistent flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if profilesFile != "" {
		cfg.ProfilesFile = profilesFile
	}
	return cfg, nil
}

// setupLogger configures and returns a logger. The console mirror is only
// enabled with --verbose so it does not fight the progress bar.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := cfg.LoggerConfig()
	loggerCfg.Level = logger.LevelFromFlags(loggerCfg.Level, verbose, quiet)
	loggerCfg.Console = verbose

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logger, using stderr: %v\n", err)
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// loadProfiles reads and validates the configured profile file. An absent
// file yields the starter registry.
func loadProfiles(cfg *config.Config, log logrus.FieldLogger) (profile.Registry, error) {
	reg, err := profile.Load(cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if len(reg) == 0 {
		log.WithField("file", cfg.ProfilesFile).Warn("No profiles found, using the default profile")
		reg = profile.DefaultRegistry()
	}
	return reg, nil
}

func newExtractor(cfg *config.Config, log *logrus.Logger) *extractor.PropertyExtractor {
	return extractor.NewPropertyExtractor(log, extractor.Options{UseExiftool: cfg.Extractor.UseExiftool})
}

func newPipeline(cfg *config.Config, log *logrus.Logger, ext extractor.Extractor) *pipeline.Pipeline {
	enc := encoder.New(log, encoder.Options{AvifencPath: cfg.Encoder.AvifencPath})
	return pipeline.New(log, ext, compressor.NewImageProcessor(log, enc))
}

// newArchiver returns the report archiver, or nil when archival is off.
func newArchiver(cfg *config.Config, log *logrus.Logger) (pipeline.Archiver, error) {
	if !cfg.Storage.MinIO.Enabled {
		return nil, nil
	}
	archiver, err := storage.NewReportArchiver(log, cfg.StorageConfig())
	if err != nil {
		return nil, err
	}
	return archiver, nil
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var cfgErr *profile.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, "Check the profile file with: photo-compresser profiles validate FILE")
		}
		os.Exit(1)
	}
}

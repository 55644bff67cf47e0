package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ewasince/photo-compresser/internal/cache"
	"github.com/Ewasince/photo-compresser/internal/logger"
	"github.com/Ewasince/photo-compresser/internal/organizer"
	"github.com/Ewasince/photo-compresser/internal/storage"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// PHOTO_COMPRESSER_PERFORMANCE_WORKERS.
const EnvPrefix = "PHOTO_COMPRESSER"

// Config represents the main configuration structure
type Config struct {
	InputDirectory    string            `mapstructure:"input_directory"`
	OutputDirectory   string            `mapstructure:"output_directory"`
	PreserveStructure bool              `mapstructure:"preserve_structure"`
	Unsupported       UnsupportedConfig `mapstructure:"unsupported"`
	ProfilesFile      string            `mapstructure:"profiles_file"`
	Performance       PerformanceConfig `mapstructure:"performance"`
	Extractor         ExtractorConfig   `mapstructure:"extractor"`
	Encoder           EncoderConfig     `mapstructure:"encoder"`
	Cache             CacheConfig       `mapstructure:"cache"`
	Server            ServerConfig      `mapstructure:"server"`
	Storage           StorageConfig     `mapstructure:"storage"`
	Logging           LoggingConfig     `mapstructure:"logging"`
}

// UnsupportedConfig controls files that are not compressed
type UnsupportedConfig struct {
	Policy    string `mapstructure:"policy"`
	Directory string `mapstructure:"directory"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	Workers int `mapstructure:"workers"`
}

// ExtractorConfig contains property extraction settings
type ExtractorConfig struct {
	UseExiftool bool `mapstructure:"use_exiftool"`
}

// EncoderConfig contains encoder settings
type EncoderConfig struct {
	AvifencPath string `mapstructure:"avifenc_path"`
}

// CacheConfig points at the viewer cache limits file
type CacheConfig struct {
	ConfigFile string `mapstructure:"config_file"`
}

// ServerConfig contains viewer API settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// StorageConfig contains report archival settings
type StorageConfig struct {
	MinIO MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig describes the bucket reports are archived to
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		PreserveStructure: true,
		Unsupported: UnsupportedConfig{
			Policy: string(organizer.PolicyCopy),
		},
		ProfilesFile: "profiles.json",
		Performance: PerformanceConfig{
			Workers: runtime.NumCPU(),
		},
		Encoder: EncoderConfig{
			AvifencPath: "avifenc",
		},
		Cache: CacheConfig{
			ConfigFile: cache.ConfigFileName,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			MinIO: MinIOConfig{
				Bucket: "photo-compresser",
				Prefix: "reports",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "photo-compresser.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.photo-compresser")
		v.AddConfigPath("/etc/photo-compresser")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so environment variables are honoured
// even when the file does not mention them.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("input_directory", c.InputDirectory)
	v.SetDefault("output_directory", c.OutputDirectory)
	v.SetDefault("preserve_structure", c.PreserveStructure)
	v.SetDefault("unsupported.policy", c.Unsupported.Policy)
	v.SetDefault("unsupported.directory", c.Unsupported.Directory)
	v.SetDefault("profiles_file", c.ProfilesFile)
	v.SetDefault("performance.workers", c.Performance.Workers)
	v.SetDefault("extractor.use_exiftool", c.Extractor.UseExiftool)
	v.SetDefault("encoder.avifenc_path", c.Encoder.AvifencPath)
	v.SetDefault("cache.config_file", c.Cache.ConfigFile)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("storage.minio.enabled", c.Storage.MinIO.Enabled)
	v.SetDefault("storage.minio.endpoint", c.Storage.MinIO.Endpoint)
	v.SetDefault("storage.minio.access_key", c.Storage.MinIO.AccessKey)
	v.SetDefault("storage.minio.secret_key", c.Storage.MinIO.SecretKey)
	v.SetDefault("storage.minio.bucket", c.Storage.MinIO.Bucket)
	v.SetDefault("storage.minio.use_ssl", c.Storage.MinIO.UseSSL)
	v.SetDefault("storage.minio.prefix", c.Storage.MinIO.Prefix)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	c.InputDirectory = expandPath(c.InputDirectory)
	c.OutputDirectory = expandPath(c.OutputDirectory)
	c.Unsupported.Directory = expandPath(c.Unsupported.Directory)
	c.ProfilesFile = expandPath(c.ProfilesFile)

	policy, err := organizer.ParsePolicy(c.Unsupported.Policy)
	if err != nil {
		return err
	}
	c.Unsupported.Policy = string(policy)

	if c.Performance.Workers <= 0 {
		c.Performance.Workers = runtime.NumCPU()
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Storage.MinIO.Enabled {
		if err := c.StorageConfig().Validate(); err != nil {
			return err
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// Policy returns the parsed unsupported file policy.
func (c *Config) Policy() organizer.UnsupportedPolicy {
	policy, err := organizer.ParsePolicy(c.Unsupported.Policy)
	if err != nil {
		return organizer.PolicyCopy
	}
	return policy
}

// StorageConfig converts the MinIO section for the storage package.
func (c *Config) StorageConfig() storage.Config {
	m := c.Storage.MinIO
	return storage.Config{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		UseSSL:    m.UseSSL,
		Prefix:    m.Prefix,
	}
}

// LoggerConfig converts the logging section for the logger package.
func (c *Config) LoggerConfig() logger.LoggerConfig {
	return logger.LoggerConfig{
		Level:      c.Logging.Level,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}

// Helper functions

func expandPath(path string) string {
	if path == "" {
		return ""
	}
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return expanded
		}
		expanded = filepath.Join(home, expanded[1:])
	}
	return expanded
}

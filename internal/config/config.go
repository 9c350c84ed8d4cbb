// Package config loads the docmerge configuration from YAML, applies
// DOCMERGE_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file looked up in the working directory.
	FileName = "docmerge.yaml"

	envPrefix = "DOCMERGE_"
)

// OutputConfig controls how the merged document is written.
type OutputConfig struct {
	AddMetadata bool   `yaml:"add_metadata"`
	Compression bool   `yaml:"compression"`
	Overwrite   bool   `yaml:"overwrite"`
	Bookmarks   bool   `yaml:"bookmarks"`
	DefaultName string `yaml:"default_name"`
}

// OCRConfig configures the recognition tool.
type OCRConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Command       string        `yaml:"command"`
	Languages     []string      `yaml:"languages"`
	// DPI is passed as --image-dpi, which ocrmypdf applies to image inputs
	// only. It does not change how PDF pages are rasterized.
	DPI           int           `yaml:"dpi"`
	SkipTextPages bool          `yaml:"skip_text_pages"`
	Timeout       time.Duration `yaml:"timeout"`
	ExtraArgs     []string      `yaml:"extra_args,omitempty"`
	Workers       int           `yaml:"workers"`
	SamplePages   int           `yaml:"sample_pages"`
}

// ConversionConfig configures the word-processor converter. Command "auto"
// picks the platform default.
type ConversionConfig struct {
	Command string        `yaml:"command"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

type ProcessingConfig struct {
	FailFast bool   `yaml:"fail_fast"`
	TempDir  string `yaml:"temp_dir,omitempty"`
}

// CatalogConfig controls which files are picked up and in which order.
type CatalogConfig struct {
	Recursive       bool     `yaml:"recursive"`
	Include         []string `yaml:"include,omitempty"`
	Exclude         []string `yaml:"exclude,omitempty"`
	Sort            string   `yaml:"sort"`
	CustomOrderFile string   `yaml:"custom_order_file,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// PublishConfig holds the cloud settings used by the publisher and the
// merge function.
type PublishConfig struct {
	ProjectID        string `yaml:"project_id,omitempty"`
	InputBucket      string `yaml:"input_bucket,omitempty"`
	Bucket           string `yaml:"bucket,omitempty"`
	Collection       string `yaml:"collection"`
	WorkflowID       string `yaml:"workflow_id,omitempty"`
	WorkflowLocation string `yaml:"workflow_location"`
}

// Config is the full docmerge configuration.
type Config struct {
	Output     OutputConfig     `yaml:"output"`
	OCR        OCRConfig        `yaml:"ocr"`
	Conversion ConversionConfig `yaml:"conversion"`
	Processing ProcessingConfig `yaml:"processing"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Logging    LoggingConfig    `yaml:"logging"`
	History    HistoryConfig    `yaml:"history"`
	Publish    PublishConfig    `yaml:"publish"`

	// Path is the file the configuration was loaded from, if any.
	Path string `yaml:"-"`
}

// Sort orders accepted by the catalog.
const (
	SortName   = "name"
	SortDate   = "date"
	SortSize   = "size"
	SortCustom = "custom"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			AddMetadata: true,
			Compression: true,
			DefaultName: "combined.pdf",
		},
		OCR: OCRConfig{
			Enabled:       true,
			Command:       "ocrmypdf",
			Languages:     []string{"eng"},
			DPI:           300,
			SkipTextPages: true,
			Timeout:       300 * time.Second,
			Workers:       2,
			SamplePages:   3,
		},
		Conversion: ConversionConfig{
			Command: "auto",
			Workers: 4,
			Timeout: 120 * time.Second,
		},
		Catalog: CatalogConfig{Sort: SortName},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		History: HistoryConfig{Enabled: true},
		Publish: PublishConfig{
			Collection:       "merges",
			WorkflowLocation: "us-central1",
		},
	}
}

// DefaultPaths lists where Load looks when no explicit file is given.
func DefaultPaths() []string {
	paths := []string{FileName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "docmerge", "config.yaml"))
	}
	return paths
}

// Load reads path over the defaults. With an empty path the first existing
// file from DefaultPaths is used, and no file at all yields the defaults.
// Environment overrides are applied and the result validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	} else {
		for _, candidate := range DefaultPaths() {
			err := cfg.readFile(candidate)
			if err == nil {
				break
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	c.Path = path
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ApplyEnv overrides fields from DOCMERGE_* variables. List values are
// comma separated.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(name string, dst *string) {
		*dst = GetEnv(envPrefix+name, *dst)
	}
	boolean := func(name string, dst *bool) {
		if v := GetEnv(envPrefix+name, ""); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(name string, dst *int) {
		if v := GetEnv(envPrefix+name, ""); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := GetEnv(envPrefix+name, ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = splitList(v)
		}
	}

	boolean("ADD_METADATA", &c.Output.AddMetadata)
	boolean("COMPRESSION", &c.Output.Compression)
	boolean("OVERWRITE", &c.Output.Overwrite)
	boolean("BOOKMARKS", &c.Output.Bookmarks)
	boolean("OCR_ENABLED", &c.OCR.Enabled)
	str("OCR_COMMAND", &c.OCR.Command)
	list("OCR_LANGUAGES", &c.OCR.Languages)
	integer("OCR_DPI", &c.OCR.DPI)
	duration("OCR_TIMEOUT", &c.OCR.Timeout)
	integer("OCR_WORKERS", &c.OCR.Workers)
	str("CONVERSION_COMMAND", &c.Conversion.Command)
	integer("CONVERSION_WORKERS", &c.Conversion.Workers)
	duration("CONVERSION_TIMEOUT", &c.Conversion.Timeout)
	boolean("FAIL_FAST", &c.Processing.FailFast)
	str("TEMP_DIR", &c.Processing.TempDir)
	boolean("RECURSIVE", &c.Catalog.Recursive)
	str("SORT", &c.Catalog.Sort)
	list("INCLUDE", &c.Catalog.Include)
	list("EXCLUDE", &c.Catalog.Exclude)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)
	boolean("HISTORY_ENABLED", &c.History.Enabled)
	str("HISTORY_PATH", &c.History.Path)
	str("PROJECT_ID", &c.Publish.ProjectID)
	str("INPUT_BUCKET", &c.Publish.InputBucket)
	str("OUTPUT_BUCKET", &c.Publish.Bucket)
	str("FIRESTORE_COLLECTION", &c.Publish.Collection)
	str("WORKFLOW_ID", &c.Publish.WorkflowID)
	str("WORKFLOW_LOCATION", &c.Publish.WorkflowLocation)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.OCR.DPI < 72 || c.OCR.DPI > 600 {
		errs = append(errs, fmt.Errorf("ocr.dpi must be between 72 and 600, got %d", c.OCR.DPI))
	}
	if len(c.OCR.Languages) == 0 {
		errs = append(errs, errors.New("ocr.languages must not be empty"))
	}
	if c.OCR.Timeout <= 0 {
		errs = append(errs, errors.New("ocr.timeout must be positive"))
	}
	if c.OCR.Workers < 1 {
		errs = append(errs, fmt.Errorf("ocr.workers must be at least 1, got %d", c.OCR.Workers))
	}
	if c.OCR.SamplePages < 1 {
		errs = append(errs, fmt.Errorf("ocr.sample_pages must be at least 1, got %d", c.OCR.SamplePages))
	}
	if c.Conversion.Workers < 1 {
		errs = append(errs, fmt.Errorf("conversion.workers must be at least 1, got %d", c.Conversion.Workers))
	}
	if c.Conversion.Timeout <= 0 {
		errs = append(errs, errors.New("conversion.timeout must be positive"))
	}
	switch c.Catalog.Sort {
	case SortName, SortDate, SortSize:
	case SortCustom:
		if c.Catalog.CustomOrderFile == "" {
			errs = append(errs, errors.New("catalog.custom_order_file is required when sort is custom"))
		}
	default:
		errs = append(errs, fmt.Errorf("catalog.sort must be one of name, date, size, custom; got %q", c.Catalog.Sort))
	}
	for _, p := range append(append([]string{}, c.Catalog.Include...), c.Catalog.Exclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("invalid pattern %q: %w", p, err))
		}
	}
	if !strings.EqualFold(filepath.Ext(c.Output.DefaultName), ".pdf") {
		errs = append(errs, fmt.Errorf("output.default_name must end in .pdf, got %q", c.Output.DefaultName))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error; got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HistoryPath resolves the ledger location, defaulting to the user cache dir.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "docmerge", "history.db")
}

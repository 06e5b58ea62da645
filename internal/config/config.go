// Package config holds the settings of an ecomlake run.
//
// Values are layered, later sources winning: built-in defaults, a YAML or
// JSON file, ECOMLAKE_ environment variables, then explicitly set CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/paveg/ecomlake/internal/common"
	dfio "github.com/paveg/ecomlake/internal/io"
	"github.com/paveg/ecomlake/internal/logging"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ECOMLAKE_"

// Output modes.
const (
	ModeOverwrite = "overwrite"
	ModeError     = "error"
	ModeIgnore    = "ignore"
)

// Default configuration values
const (
	DefaultOrdersPath      = "archive/olist_orders_dataset.csv"
	DefaultOrderItemsPath  = "archive/olist_order_items_dataset.csv"
	DefaultStorageRoot     = "/ecommerce"
	DefaultDeliveredStatus = "delivered"
	DefaultFillValue       = "unknown"
	DefaultTopN            = 5
	DefaultCompression     = "snappy"
)

// Config represents the configuration of a pipeline run.
type Config struct {
	Input    InputConfig    `json:"input" yaml:"input" koanf:"input"`
	Storage  StorageConfig  `json:"storage" yaml:"storage" koanf:"storage"`
	Engine   EngineConfig   `json:"engine" yaml:"engine" koanf:"engine"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" koanf:"pipeline"`
	Output   OutputConfig   `json:"output" yaml:"output" koanf:"output"`
	Log      LogConfig      `json:"log" yaml:"log" koanf:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" koanf:"metrics"`
	Ledger   LedgerConfig   `json:"ledger" yaml:"ledger" koanf:"ledger"`
}

// InputConfig locates the local source files.
type InputConfig struct {
	Orders     string `json:"orders" yaml:"orders" koanf:"orders"`
	OrderItems string `json:"order_items" yaml:"order_items" koanf:"order_items"`
	Delimiter  string `json:"delimiter" yaml:"delimiter" koanf:"delimiter"`
}

// StorageConfig selects the shared namespace.
type StorageConfig struct {
	Backend    string `json:"backend" yaml:"backend" koanf:"backend"`
	Root       string `json:"root" yaml:"root" koanf:"root"`
	HDFSBin    string `json:"hdfs_bin" yaml:"hdfs_bin" koanf:"hdfs_bin"`
	S3Bucket   string `json:"s3_bucket" yaml:"s3_bucket" koanf:"s3_bucket"`
	S3Region   string `json:"s3_region" yaml:"s3_region" koanf:"s3_region"`
	S3Endpoint string `json:"s3_endpoint" yaml:"s3_endpoint" koanf:"s3_endpoint"`
}

// EngineConfig selects the execution engine.
type EngineConfig struct {
	Name       string `json:"name" yaml:"name" koanf:"name"`
	Workers    int    `json:"workers" yaml:"workers" koanf:"workers"` // 0 = one per CPU
	DuckDBPath string `json:"duckdb_path" yaml:"duckdb_path" koanf:"duckdb_path"`
}

// PipelineConfig tunes the transformation.
type PipelineConfig struct {
	TimestampFormat string `json:"timestamp_format" yaml:"timestamp_format" koanf:"timestamp_format"`
	DeliveredStatus string `json:"delivered_status" yaml:"delivered_status" koanf:"delivered_status"`
	FillValue       string `json:"fill_value" yaml:"fill_value" koanf:"fill_value"`
	TopN            int    `json:"top_n" yaml:"top_n" koanf:"top_n"`
	OverwriteRaw    bool   `json:"overwrite_raw" yaml:"overwrite_raw" koanf:"overwrite_raw"`
}

// OutputConfig controls the Parquet output.
type OutputConfig struct {
	Mode        string `json:"mode" yaml:"mode" koanf:"mode"`
	Compression string `json:"compression" yaml:"compression" koanf:"compression"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" koanf:"level"`
	Format string `json:"format" yaml:"format" koanf:"format"`
}

// MetricsConfig selects the metric sinks; all are optional.
type MetricsConfig struct {
	Textfile    string `json:"textfile" yaml:"textfile" koanf:"textfile"`
	Pushgateway string `json:"pushgateway" yaml:"pushgateway" koanf:"pushgateway"`
	Listen      string `json:"listen" yaml:"listen" koanf:"listen"`
}

// LedgerConfig enables the run history.
type LedgerConfig struct {
	Path string `json:"path" yaml:"path" koanf:"path"` // empty disables the ledger
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		Input: InputConfig{
			Orders:     DefaultOrdersPath,
			OrderItems: DefaultOrderItemsPath,
			Delimiter:  ",",
		},
		Storage: StorageConfig{
			Backend: "local",
			Root:    DefaultStorageRoot,
			HDFSBin: "hdfs",
		},
		Engine: EngineConfig{
			Name: "native",
		},
		Pipeline: PipelineConfig{
			TimestampFormat: string(common.DefaultTimestampPattern),
			DeliveredStatus: DefaultDeliveredStatus,
			FillValue:       DefaultFillValue,
			TopN:            DefaultTopN,
			OverwriteRaw:    true,
		},
		Output: OutputConfig{
			Mode:        ModeOverwrite,
			Compression: DefaultCompression,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
	}
}

// defaultsMap flattens NewConfig into koanf keys.
func defaultsMap() map[string]any {
	d := NewConfig()
	return map[string]any{
		"input.orders":              d.Input.Orders,
		"input.order_items":         d.Input.OrderItems,
		"input.delimiter":           d.Input.Delimiter,
		"storage.backend":           d.Storage.Backend,
		"storage.root":              d.Storage.Root,
		"storage.hdfs_bin":          d.Storage.HDFSBin,
		"engine.name":               d.Engine.Name,
		"engine.workers":            d.Engine.Workers,
		"pipeline.timestamp_format": d.Pipeline.TimestampFormat,
		"pipeline.delivered_status": d.Pipeline.DeliveredStatus,
		"pipeline.fill_value":       d.Pipeline.FillValue,
		"pipeline.top_n":            d.Pipeline.TopN,
		"pipeline.overwrite_raw":    d.Pipeline.OverwriteRaw,
		"output.mode":               d.Output.Mode,
		"output.compression":        d.Output.Compression,
		"log.level":                 d.Log.Level,
		"log.format":                d.Log.Format,
	}
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.Input.Orders == "" || c.Input.OrderItems == "" {
		return fmt.Errorf("input.orders and input.order_items must be set")
	}
	if utf8.RuneCountInString(c.Input.Delimiter) != 1 {
		return fmt.Errorf("input.delimiter must be a single character, got %q", c.Input.Delimiter)
	}

	if err := oneOf("storage.backend", c.Storage.Backend, "local", "hdfs", "s3"); err != nil {
		return err
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root must be set")
	}
	if c.Storage.Backend == "s3" && c.Storage.S3Bucket == "" {
		return fmt.Errorf("storage.s3_bucket is required for the s3 backend")
	}

	if err := oneOf("engine.name", c.Engine.Name, "native", "duckdb"); err != nil {
		return err
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be non-negative, got %d", c.Engine.Workers)
	}

	if _, err := common.DateTimePattern(c.Pipeline.TimestampFormat).Layout(); err != nil {
		return fmt.Errorf("pipeline.timestamp_format: %w", err)
	}
	if c.Pipeline.DeliveredStatus == "" {
		return fmt.Errorf("pipeline.delivered_status must be set")
	}
	if c.Pipeline.TopN <= 0 {
		return fmt.Errorf("pipeline.top_n must be positive, got %d", c.Pipeline.TopN)
	}

	if err := oneOf("output.mode", c.Output.Mode, ModeOverwrite, ModeError, ModeIgnore); err != nil {
		return err
	}
	if _, err := dfio.ParseCompression(c.Output.Compression); err != nil {
		return fmt.Errorf("output.compression: %w", err)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return oneOf("log.format", c.Log.Format, logging.FormatText, logging.FormatJSON)
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	d := NewConfig()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.Input.Orders, d.Input.Orders)
	fill(&c.Input.OrderItems, d.Input.OrderItems)
	fill(&c.Input.Delimiter, d.Input.Delimiter)
	fill(&c.Storage.Backend, d.Storage.Backend)
	fill(&c.Storage.Root, d.Storage.Root)
	fill(&c.Storage.HDFSBin, d.Storage.HDFSBin)
	fill(&c.Engine.Name, d.Engine.Name)
	fill(&c.Pipeline.TimestampFormat, d.Pipeline.TimestampFormat)
	fill(&c.Pipeline.DeliveredStatus, d.Pipeline.DeliveredStatus)
	fill(&c.Pipeline.FillValue, d.Pipeline.FillValue)
	fill(&c.Output.Mode, d.Output.Mode)
	fill(&c.Output.Compression, d.Output.Compression)
	fill(&c.Log.Level, d.Log.Level)
	fill(&c.Log.Format, d.Log.Format)
	if c.Pipeline.TopN == 0 {
		c.Pipeline.TopN = d.Pipeline.TopN
	}
	return c
}

// Delimiter returns the CSV delimiter as a rune.
func (c *Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.Input.Delimiter)
	return r
}

// TimestampPattern returns the configured parse pattern.
func (c *Config) TimestampPattern() common.DateTimePattern {
	return common.DateTimePattern(c.Pipeline.TimestampFormat)
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yamlv3.Marshal(c)
}

// LoadFromFile loads a configuration from a JSON or YAML file on top of the
// defaults.
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	config := NewConfig()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yamlv3.Unmarshal(data, &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"engine":     "engine.name",
	"storage":    "storage.backend",
	"root":       "storage.root",
	"log-level":  "log.level",
	"log-format": "log.format",
	"ledger":     "ledger.path",
	"workers":    "engine.workers",
	"output":     "output.mode",
}

// envKey maps ECOMLAKE_STORAGE_S3_BUCKET to storage.s3_bucket: the first
// segment names the section.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

// Load layers defaults, the config file at path (optional), environment
// variables and the explicitly set flags, then validates the result.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml", ".json":
			// YAML is a superset of JSON.
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", path, err)
			}
		default:
			return nil, fmt.Errorf("unsupported config file format: %s", ext)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

package conf

import (
	"fmt"
	"runtime"

	"github.com/jaywalker76/LocustDB/errors"
	"github.com/jaywalker76/LocustDB/log"
)

const (
	DefaultCacheMaxBytes     = 256 * 1024 * 1024
	DefaultDecodePermits     = 4
	DefaultBatchRows         = 65536
	DefaultMaxDictionarySize = 1 << 16
	DefaultMinRunLength      = 4
	DefaultSampleFraction    = 0.05
)

// Config is the configuration surface consumed by the engine. It is
// supplied once at startup and never reloaded mid-query.
type Config struct {
	DataDir string `help:"Directory for persisted column segments. If empty, the engine runs purely in memory." default:""`

	// Query execution
	WorkerPoolSize int   `help:"Number of workers executing batch tasks. Defaults to the number of CPUs." default:"0"`
	DecodePermits  int64 `help:"Maximum number of batches concurrently decoding large segments." default:"4"`
	CacheMaxBytes  int64 `help:"Memory budget in bytes for decoded segments kept resident." default:"268435456"`

	// Codec selection
	MaxDictionarySize int     `help:"Maximum distinct values for a column to be eligible for dictionary encoding." default:"65536"`
	MinRunLength      float64 `help:"Minimum average run length for a column to prefer run-length encoding." default:"4"`
	SampleFraction    float64 `help:"Fraction of values sampled when choosing a codec at encode time." default:"0.05"`

	BatchRows int `help:"Target row count per ingested batch." default:"65536"`

	EnableMetrics         bool   `help:"Serve prometheus metrics over HTTP." default:"false"`
	MetricsHTTPListenAddr string `help:"Listen address for the prometheus metrics endpoint." default:"localhost:2112"`

	Log log.Config `embed:"" prefix:"log-"`
}

func (c *Config) ApplyDefaults() {
	if c.WorkerPoolSize == 0 {
		c.WorkerPoolSize = runtime.NumCPU()
	}
	if c.DecodePermits == 0 {
		c.DecodePermits = DefaultDecodePermits
	}
	if c.CacheMaxBytes == 0 {
		c.CacheMaxBytes = DefaultCacheMaxBytes
	}
	if c.MaxDictionarySize == 0 {
		c.MaxDictionarySize = DefaultMaxDictionarySize
	}
	if c.MinRunLength == 0 {
		c.MinRunLength = DefaultMinRunLength
	}
	if c.SampleFraction == 0 {
		c.SampleFraction = DefaultSampleFraction
	}
	if c.BatchRows == 0 {
		c.BatchRows = DefaultBatchRows
	}
}

func (c *Config) Validate() error { //nolint:gocyclo
	if c.WorkerPoolSize < 1 {
		return errors.NewInvalidConfigurationError("WorkerPoolSize must be >= 1")
	}
	if c.DecodePermits < 1 {
		return errors.NewInvalidConfigurationError("DecodePermits must be >= 1")
	}
	if c.CacheMaxBytes < 1024 {
		return errors.NewInvalidConfigurationError("CacheMaxBytes must be >= 1024")
	}
	if c.MaxDictionarySize < 2 {
		return errors.NewInvalidConfigurationError("MaxDictionarySize must be >= 2")
	}
	if c.MinRunLength < 1 {
		return errors.NewInvalidConfigurationError("MinRunLength must be >= 1")
	}
	if c.SampleFraction <= 0 || c.SampleFraction > 1 {
		return errors.NewInvalidConfigurationError(fmt.Sprintf("SampleFraction must be in (0, 1], got %f", c.SampleFraction))
	}
	if c.BatchRows < 1 {
		return errors.NewInvalidConfigurationError("BatchRows must be >= 1")
	}
	if c.EnableMetrics && c.MetricsHTTPListenAddr == "" {
		return errors.NewInvalidConfigurationError("MetricsHTTPListenAddr must be specified when metrics are enabled")
	}
	return nil
}

// NewTestConfig returns a config suitable for in-process tests: in-memory
// storage, small cache, deterministic codec thresholds.
func NewTestConfig() Config {
	cfg := Config{
		WorkerPoolSize:    4,
		DecodePermits:     2,
		CacheMaxBytes:     8 * 1024 * 1024,
		MaxDictionarySize: 1024,
		MinRunLength:      4,
		SampleFraction:    1.0,
		BatchRows:         1024,
	}
	return cfg
}

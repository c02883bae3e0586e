// Package config loads the pipeline tuning from a YAML file with environment
// overrides. The zero configuration is usable: every field falls back to the
// documented default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"safegraph/internal/pipeline"
	"safegraph/pkg/domain"
)

// Config carries the tunable ingestion parameters.
type Config struct {
	// ErrorThreshold is the maximum tolerated excluded-record ratio before
	// the quality gate rejects a batch. The boundary is inclusive.
	ErrorThreshold float64 `yaml:"error_threshold"`
	// BatchSize is the number of graph upserts per storage transaction.
	BatchSize int `yaml:"batch_size"`
	// TxTimeout bounds each storage transaction.
	TxTimeout time.Duration `yaml:"tx_timeout"`
	// StrictCardinality makes cardinality violations errors, not warnings.
	StrictCardinality bool `yaml:"strict_cardinality"`
	// Workers caps concurrent batch runs.
	Workers int `yaml:"workers"`
	// Weights combine the quality dimension scores.
	Weights domain.Weights `yaml:"weights"`
	// SchemaPath optionally points at a schema registry document; empty
	// means the built-in safety schema.
	SchemaPath string `yaml:"schema_path"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		ErrorThreshold:    0.10,
		BatchSize:         100,
		TxTimeout:         30 * time.Second,
		StrictCardinality: true,
		Workers:           4,
		Weights:           domain.DefaultWeights(),
	}
}

// Load reads the configuration: defaults, then the YAML file at path (when
// non-empty), then environment overrides. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Environment overrides:
//
//	SAFEGRAPH_ERROR_THRESHOLD
//	SAFEGRAPH_BATCH_SIZE
//	SAFEGRAPH_TX_TIMEOUT (Go duration, e.g. 30s)
//	SAFEGRAPH_STRICT_CARDINALITY
//	SAFEGRAPH_WORKERS
//	SAFEGRAPH_SCHEMA_PATH
func (c *Config) applyEnv() error {
	if v := os.Getenv("SAFEGRAPH_ERROR_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SAFEGRAPH_ERROR_THRESHOLD: %w", err)
		}
		c.ErrorThreshold = f
	}
	if v := os.Getenv("SAFEGRAPH_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SAFEGRAPH_BATCH_SIZE: %w", err)
		}
		c.BatchSize = n
	}
	if v := os.Getenv("SAFEGRAPH_TX_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SAFEGRAPH_TX_TIMEOUT: %w", err)
		}
		c.TxTimeout = d
	}
	if v := os.Getenv("SAFEGRAPH_STRICT_CARDINALITY"); v != "" {
		c.StrictCardinality = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SAFEGRAPH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SAFEGRAPH_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("SAFEGRAPH_SCHEMA_PATH"); v != "" {
		c.SchemaPath = v
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.ErrorThreshold < 0 || c.ErrorThreshold > 1 {
		return fmt.Errorf("error_threshold must be within [0, 1], got %g", c.ErrorThreshold)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("tx_timeout must be positive, got %s", c.TxTimeout)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return c.Weights.Validate()
}

// ToPipelineOptions converts the configuration into pipeline tuning.
func (c Config) ToPipelineOptions() pipeline.Options {
	return pipeline.Options{
		Weights:           c.Weights,
		ErrorThreshold:    c.ErrorThreshold,
		BatchSize:         c.BatchSize,
		TxTimeout:         c.TxTimeout,
		StrictCardinality: c.StrictCardinality,
		Workers:           c.Workers,
	}
}

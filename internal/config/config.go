package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the flat sectioned configuration file described by spec.md §6.
// Parsing uses github.com/BurntSushi/toml, already present in the pack's
// dependency graph (an indirect dependency of the teacher's root go.mod
// and of sql/export's build graph); we promote it to a direct dependency
// here since we now actually decode with it, rather than merely pull it in
// transitively.
type Config struct {
	Extractor    ExtractorSection    `toml:"extractor"`
	Sinker       SinkerSection       `toml:"sinker"`
	Filter       FilterSection       `toml:"filter"`
	Parallelizer ParallelizerSection `toml:"parallelizer"`
	Pipeline     PipelineSection     `toml:"pipeline"`
	Runtime      RuntimeSection      `toml:"runtime"`
	Checkpoint   CheckpointSection   `toml:"checkpoint"`
}

type ExtractorSection struct {
	DbType              string `toml:"db_type"`
	ExtractType         string `toml:"extract_type"`
	URL                 string `toml:"url"`
	HeartbeatIntervalMs int64  `toml:"heartbeat_interval_ms"`
	HeartbeatKey        string `toml:"heartbeat_key"`
	BufferSize          int    `toml:"buffer_size"`
	BatchSize           int    `toml:"batch_size"`
	BatchSinkIntervalMs int64  `toml:"batch_sink_interval_ms"`
}

type SinkerSection struct {
	DbType              string `toml:"db_type"`
	SinkType            string `toml:"sink_type"`
	URL                 string `toml:"url"`
	ConflictPolicy      string `toml:"conflict_policy"`
	MaxRetries          int    `toml:"max_retries"`
	MergeBatchFileCount int    `toml:"merge_batch_file_count"`
}

type FilterSection struct {
	DoDbs        []string            `toml:"do_dbs"`
	IgnoreDbs    []string            `toml:"ignore_dbs"`
	DoTables     []string            `toml:"do_tables"`
	IgnoreTables []string            `toml:"ignore_tables"`
	DoColumns    map[string][]string `toml:"do_columns"`
}

type ParallelizerSection struct {
	ParallelType string `toml:"parallel_type"`
	ParallelSize int    `toml:"parallel_size"`
}

type PipelineSection struct {
	TaskID               string `toml:"task_id"`
	CheckpointIntervalMs int64  `toml:"checkpoint_interval_ms"`
}

type RuntimeSection struct {
	ShutdownTimeoutMs int64 `toml:"shutdown_timeout_ms"`
}

// CheckpointSection selects and configures the pluggable checkpoint store
// (spec.md §6: "internal/checkpoint defines a Store interface... plus an
// in-memory implementation for tests and a file-backed JSON implementation
// for single-node operation"). StoreType is one of "memory", "file",
// "redis"; empty defaults to "file".
type CheckpointSection struct {
	StoreType string `toml:"store_type"`
	FileDir   string `toml:"file_dir"`
	RedisURL  string `toml:"redis_url"`
	RedisKey  string `toml:"redis_key"`
}

// HeartbeatInterval returns the configured heartbeat cadence, defaulting to
// one second if unset.
func (s ExtractorSection) HeartbeatInterval() time.Duration {
	if s.HeartbeatIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(s.HeartbeatIntervalMs) * time.Millisecond
}

// BatchSinkInterval returns the configured batch flush interval, defaulting
// to 200ms if unset.
func (s ExtractorSection) BatchSinkInterval() time.Duration {
	if s.BatchSinkIntervalMs <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(s.BatchSinkIntervalMs) * time.Millisecond
}

// CheckpointInterval returns the configured checkpoint cadence, defaulting
// to 5s if unset.
func (s PipelineSection) CheckpointInterval() time.Duration {
	if s.CheckpointIntervalMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.CheckpointIntervalMs) * time.Millisecond
}

// ShutdownTimeout returns the configured hard cancellation deadline,
// defaulting to 30s if unset.
func (s RuntimeSection) ShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ShutdownTimeoutMs) * time.Millisecond
}

// Load decodes a Config from a TOML file at path.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf(`config: decode %s: %w`, path, err)
	}
	return &c, nil
}

// ParseAll validates every enum-typed field against its recognized set
// (except ConflictPolicy, which by design never fails -- see
// ParseConflictPolicy), surfacing a Config error (spec.md §7's Config error
// kind) early, before any component starts.
func (c *Config) ParseAll() error {
	if _, err := ParseDbType(c.Extractor.DbType); err != nil {
		return fmt.Errorf(`config: extractor: %w`, err)
	}
	if _, err := ParseExtractType(c.Extractor.ExtractType); err != nil {
		return fmt.Errorf(`config: extractor: %w`, err)
	}
	if _, err := ParseDbType(c.Sinker.DbType); err != nil {
		return fmt.Errorf(`config: sinker: %w`, err)
	}
	if _, err := ParseSinkType(c.Sinker.SinkType); err != nil {
		return fmt.Errorf(`config: sinker: %w`, err)
	}
	if _, err := ParseParallelType(c.Parallelizer.ParallelType); err != nil {
		return fmt.Errorf(`config: parallelizer: %w`, err)
	}
	if c.Parallelizer.ParallelSize <= 0 {
		return fmt.Errorf(`config: parallelizer: parallel_size must be positive, got %d`, c.Parallelizer.ParallelSize)
	}
	return nil
}

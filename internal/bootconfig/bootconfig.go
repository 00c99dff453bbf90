// Package bootconfig loads the operator-facing YAML file that seeds a
// freshly-initialised council: where to persist the bench, how often to
// dump it, and the default bucket/log-filter runtime subtrees. It has
// no bearing on the bench's own schema-validated runtime map once the
// council is running — this is strictly a bootstrap-time convenience,
// grounded on the decode-defaults-validate shape of the teacher's
// internal/attractor/engine/config.go.
package bootconfig

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk operator configuration shape.
type Config struct {
	Version int `yaml:"version"`

	Persistence struct {
		Path           string `yaml:"path"`
		DumpTimeoutMin int    `yaml:"dump_timeout_min"`
		VlogDumpGapSec int    `yaml:"vlog_dump_gap_sec"`
		BackupKeep     int    `yaml:"backup_keep"`
	} `yaml:"persistence"`

	Bucket struct {
		MinGap       int64 `yaml:"min_gap"`
		MinChangeGap int64 `yaml:"min_change_gap"`
		Gap          int64 `yaml:"gap"`
	} `yaml:"bucket"`

	LogFilter struct {
		MaxLevel    int64 `yaml:"maxlevel"`
		BufferLines int64 `yaml:"buffer_lines"`
		FitLines    int64 `yaml:"fit_lines"`
	} `yaml:"log_filter"`
}

// Load decodes path strictly (unknown fields are rejected, matching the
// teacher's decodeYAMLStrict) and applies defaults.
func Load(path string, read func(string) ([]byte, error)) (*Config, error) {
	b, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := decodeStrict(b, &cfg); err != nil {
		return nil, fmt.Errorf("bootconfig: decode %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("bootconfig: %s: %w", path, err)
	}
	return &cfg, nil
}

func decodeStrict(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Persistence.DumpTimeoutMin == 0 {
		cfg.Persistence.DumpTimeoutMin = 720
	}
	if cfg.Persistence.VlogDumpGapSec == 0 {
		cfg.Persistence.VlogDumpGapSec = 60
	}
	if cfg.Persistence.BackupKeep == 0 {
		cfg.Persistence.BackupKeep = 5
	}
	if cfg.Bucket.MinGap == 0 {
		cfg.Bucket.MinGap = 10
	}
	if cfg.Bucket.MinChangeGap == 0 {
		cfg.Bucket.MinChangeGap = 10
	}
	if cfg.Bucket.Gap == 0 {
		cfg.Bucket.Gap = 30
	}
	if cfg.LogFilter.MaxLevel == 0 {
		cfg.LogFilter.MaxLevel = 3
	}
	if cfg.LogFilter.BufferLines == 0 {
		cfg.LogFilter.BufferLines = 2048
	}
	if cfg.LogFilter.FitLines == 0 {
		cfg.LogFilter.FitLines = 16
	}
}

func validate(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Persistence.Path) == "" {
		return fmt.Errorf("persistence.path is required")
	}
	if cfg.Persistence.DumpTimeoutMin < 1 {
		return fmt.Errorf("persistence.dump_timeout_min must be >= 1")
	}
	if cfg.Persistence.VlogDumpGapSec < 1 {
		return fmt.Errorf("persistence.vlog_dump_gap_sec must be >= 1")
	}
	if cfg.Persistence.BackupKeep < 0 {
		return fmt.Errorf("persistence.backup_keep must be >= 0")
	}
	if cfg.Bucket.MinGap < 1 || cfg.Bucket.MinChangeGap < 1 || cfg.Bucket.Gap < 1 {
		return fmt.Errorf("bucket.min_gap, min_change_gap, gap must all be >= 1")
	}
	if cfg.LogFilter.MaxLevel < -9 || cfg.LogFilter.MaxLevel > 9 {
		return fmt.Errorf("log_filter.maxlevel must be in [-9,9]")
	}
	if cfg.LogFilter.BufferLines < 1 {
		return fmt.Errorf("log_filter.buffer_lines must be >= 1")
	}
	if cfg.LogFilter.FitLines < 0 {
		return fmt.Errorf("log_filter.fit_lines must be >= 0")
	}
	return nil
}

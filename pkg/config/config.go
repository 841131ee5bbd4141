// Package config loads and validates the YAML configuration file the
// engine reads from the working directory at startup.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/block/dbsentinel/pkg/fetch"
	"github.com/block/dbsentinel/pkg/sentinelerr"
)

// DBConnConfig is the connection configuration for one side of a job.
type DBConnConfig struct {
	Dialect  string `yaml:"dialect"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DSN      string `yaml:"dsn"`
}

// TableConfig is the YAML shape of one TableSpec entry.
type TableConfig struct {
	Schema         string   `yaml:"schema"`
	Table          string   `yaml:"table"`
	PrimaryKeys    []string `yaml:"primary_keys"`
	Columns        []string `yaml:"columns"`
	Filter         string   `yaml:"filter"`
	BatchSize      int      `yaml:"batch_size"`
	ExcludeColumns []string `yaml:"exclude_columns"`
	MaxThreads     int      `yaml:"max_threads"`
}

// ToTableSpec converts the YAML shape into the engine's internal type.
func (c TableConfig) ToTableSpec() fetch.TableSpec {
	return fetch.TableSpec{
		Schema:         c.Schema,
		Table:          c.Table,
		PKColumns:      c.PrimaryKeys,
		Columns:        c.Columns,
		Filter:         c.Filter,
		BatchSize:      c.BatchSize,
		ExcludeColumns: c.ExcludeColumns,
		MaxThreads:     c.MaxThreads,
	}
}

// Paths configures where auxiliary output lives.
type Paths struct {
	AuditLog      string `yaml:"audit_log"`
	AuditTable    string `yaml:"audit_table"`
	MetadataTable string `yaml:"metadata_table"`
	SourceSQLDir  string `yaml:"source_sql_dir"`
	TargetSQLDir  string `yaml:"target_sql_dir"`
	ReportDir     string `yaml:"report_dir"`
}

// Flags toggles optional behavior.
type Flags struct {
	EnableAuditTable    bool `yaml:"enable_audit_table"`
	EnableRestart       bool `yaml:"enable_restart"`
	EnableReverification bool `yaml:"enable_reverification"`
	Debug               bool `yaml:"debug"`
}

// Config is the root of config.yaml.
type Config struct {
	SourceDB    DBConnConfig  `yaml:"source_db"`
	TargetDB    DBConnConfig  `yaml:"target_db"`
	TableConfig []TableConfig `yaml:"table_config"`
	Paths       Paths         `yaml:"paths"`
	Flags       Flags         `yaml:"flags"`
	MaxThreads  int           `yaml:"max_threads"`
}

const defaultMaxThreads = 4

// Load reads and validates path, returning a sentinelerr.ConfigError on any
// structural problem — this is the one class of failure that is fatal at
// startup rather than per-table.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &sentinelerr.ConfigError{Cause: err}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &sentinelerr.ConfigError{Cause: fmt.Errorf("parse %s: %w", path, err)}
	}
	if err := cfg.validate(); err != nil {
		return nil, &sentinelerr.ConfigError{Cause: err}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MaxThreads <= 0 {
		c.MaxThreads = defaultMaxThreads
	}
	if c.Paths.AuditTable == "" {
		c.Paths.AuditTable = "DB_SENTINEL_AUDIT"
	}
	if c.Paths.MetadataTable == "" {
		c.Paths.MetadataTable = "DB_SENTINEL_METADATA"
	}
	if c.Paths.SourceSQLDir == "" {
		c.Paths.SourceSQLDir = "./output"
	}
	if c.Paths.TargetSQLDir == "" {
		c.Paths.TargetSQLDir = "./output"
	}
	if c.Paths.ReportDir == "" {
		c.Paths.ReportDir = "./output"
	}
	if c.Paths.AuditLog == "" {
		c.Paths.AuditLog = "./output/audit.log"
	}
	for i := range c.TableConfig {
		if c.TableConfig[i].BatchSize <= 0 {
			c.TableConfig[i].BatchSize = 1000
		}
	}
}

func (c *Config) validate() error {
	if c.SourceDB.DSN == "" {
		return fmt.Errorf("source_db.dsn is required")
	}
	if c.TargetDB.DSN == "" {
		return fmt.Errorf("target_db.dsn is required")
	}
	if len(c.TableConfig) == 0 {
		return fmt.Errorf("table_config must be a non-empty list")
	}
	for i, tc := range c.TableConfig {
		if tc.Schema == "" || tc.Table == "" {
			return fmt.Errorf("table_config[%d]: schema and table are required", i)
		}
		if len(tc.PrimaryKeys) == 0 {
			return fmt.Errorf("table_config[%d] (%s.%s): primary_keys must be non-empty", i, tc.Schema, tc.Table)
		}
		if tc.BatchSize < 0 {
			return fmt.Errorf("table_config[%d] (%s.%s): batch_size must be positive", i, tc.Schema, tc.Table)
		}
	}
	return nil
}

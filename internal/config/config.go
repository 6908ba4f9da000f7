// Package config resolves settings from an optional HCL file overlaid by
// environment variables. Command-line flags are applied on top by cmd.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config holds everything a build, publish or serve run needs.
type Config struct {
	Store   Store
	Output  Output
	Build   Build
	Log     Log
	Metrics Metrics
}

// Store selects the record store.
type Store struct {
	Driver   string `hcl:"driver,optional"`   // sqlite, postgres or json
	DSN      string `hcl:"dsn,optional"`      // file path or connection string
	Table    string `hcl:"table,optional"`    // record table (sqlite, postgres)
	Selector string `hcl:"selector,optional"` // JSONPath to the record array (json)
}

// Output selects where serialized trees are published.
type Output struct {
	Path string `hcl:"path,optional"`
	S3   *S3    `hcl:"s3,block"`
}

// S3 configures the optional object storage sink.
type S3 struct {
	Bucket    string `hcl:"bucket"`
	Key       string `hcl:"key,optional"`
	Region    string `hcl:"region,optional"`
	Endpoint  string `hcl:"endpoint,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
}

// Build tunes the builder.
type Build struct {
	Heuristic string `hcl:"heuristic,optional"` // extension or file
	Workers   int    `hcl:"workers,optional"`   // 0 means GOMAXPROCS
}

// Log configures the zap logger.
type Log struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Addr string `hcl:"addr,optional"` // empty disables the endpoint
}

// file mirrors the on-disk layout; every block is optional.
type file struct {
	Store   *Store   `hcl:"store,block"`
	Output  *Output  `hcl:"output,block"`
	Build   *Build   `hcl:"build,block"`
	Log     *Log     `hcl:"log,block"`
	Metrics *Metrics `hcl:"metrics,block"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Store:  Store{Driver: "sqlite", DSN: "filetree.db", Table: "Hello", Selector: "$"},
		Output: Output{Path: "tree.json"},
		Build:  Build{Heuristic: "extension"},
		Log:    Log{Level: "info", Format: "console"},
	}
}

// Load reads path (when non-empty) over the defaults, then applies the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var f file
		if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		cfg.merge(&f)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) merge(f *file) {
	if s := f.Store; s != nil {
		setString(&c.Store.Driver, s.Driver)
		setString(&c.Store.DSN, s.DSN)
		setString(&c.Store.Table, s.Table)
		setString(&c.Store.Selector, s.Selector)
	}
	if o := f.Output; o != nil {
		setString(&c.Output.Path, o.Path)
		if o.S3 != nil {
			c.Output.S3 = o.S3
		}
	}
	if b := f.Build; b != nil {
		setString(&c.Build.Heuristic, b.Heuristic)
		if b.Workers > 0 {
			c.Build.Workers = b.Workers
		}
	}
	if l := f.Log; l != nil {
		setString(&c.Log.Level, l.Level)
		setString(&c.Log.Format, l.Format)
	}
	if m := f.Metrics; m != nil {
		setString(&c.Metrics.Addr, m.Addr)
	}
}

func (c *Config) applyEnv() {
	c.Store.Driver = envOr("FILETREE_STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = envOr("FILETREE_DB_PATH", envOr("DB_PATH", c.Store.DSN))
	c.Store.Table = envOr("FILETREE_DB_TABLE", envOr("DB_TABLE", c.Store.Table))
	c.Output.Path = envOr("FILETREE_OUTPUT_PATH", envOr("OUTPUT_PATH", c.Output.Path))
	c.Build.Heuristic = envOr("FILETREE_HEURISTIC", c.Build.Heuristic)
	c.Build.Workers = envInt("FILETREE_WORKERS", c.Build.Workers)
	c.Log.Level = envOr("FILETREE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("FILETREE_LOG_FORMAT", c.Log.Format)
	c.Metrics.Addr = envOr("FILETREE_METRICS_ADDR", c.Metrics.Addr)

	if bucket := os.Getenv("FILETREE_S3_BUCKET"); bucket != "" {
		if c.Output.S3 == nil {
			c.Output.S3 = &S3{}
		}
		c.Output.S3.Bucket = bucket
	}
	if s := c.Output.S3; s != nil {
		s.Key = envOr("FILETREE_S3_KEY", s.Key)
		s.Region = envOr("FILETREE_S3_REGION", s.Region)
		s.Endpoint = envOr("FILETREE_S3_ENDPOINT", s.Endpoint)
		s.AccessKey = envOr("FILETREE_S3_ACCESS_KEY", s.AccessKey)
		s.SecretKey = envOr("FILETREE_S3_SECRET_KEY", s.SecretKey)
		if s.Key == "" {
			s.Key = "tree.json"
		}
		if s.Region == "" {
			s.Region = "us-east-1"
		}
	}
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "json":
	default:
		return fmt.Errorf("store driver %q: want sqlite, postgres or json", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store dsn is required")
	}
	if c.Store.Driver != "json" && c.Store.Table == "" {
		return fmt.Errorf("store table is required for %s", c.Store.Driver)
	}
	switch c.Build.Heuristic {
	case "extension", "file":
	default:
		return fmt.Errorf("build heuristic %q: want extension or file", c.Build.Heuristic)
	}
	if c.Build.Workers < 0 {
		return fmt.Errorf("build workers must not be negative")
	}
	if c.Output.Path == "" && c.Output.S3 == nil {
		return fmt.Errorf("no output configured")
	}
	if c.Output.S3 != nil && c.Output.S3.Bucket == "" {
		return fmt.Errorf("s3 output needs a bucket")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Package config loads the optional probe configuration file. Every setting
// has a default, so probes run without a file; credentials are never read here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag or INFRAPROBE_CONFIG is given.
// It is not an error for it to be missing.
const DefaultPath = "/etc/infraprobe/config.yaml"

// Default values applied when fields are absent from the config file.
const (
	DefaultLogDir       = "/var/log/infraprobe"
	DefaultLogLevel     = "info"
	DefaultLogMaxSize   = "10MB"
	DefaultFormat       = "maas"
	DefaultMySQLPath    = "/usr/bin/mysql"
	DefaultDefaultsFile = "/root/.my.cnf"
	DefaultCephPath     = "ceph"

	// DefaultCephClusterNamespace keeps the namespace existing alarms match on.
	DefaultCephClusterNamespace = "ceph_culster"
)

// Config is the top-level configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Output    OutputConfig    `yaml:"output"`
	Galera    GaleraConfig    `yaml:"galera"`
	OpenStack OpenStackConfig `yaml:"openstack"`
	Ceph      CephConfig      `yaml:"ceph"`
}

// LogConfig controls the diagnostic log file.
type LogConfig struct {
	// Dir holds the rotating log file. Empty disables logging.
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`

	// MaxSize is the size at which the log file is rotated, e.g. "10MB".
	MaxSize string `yaml:"max_size"`
}

// MaxSizeBytes parses MaxSize.
func (c LogConfig) MaxSizeBytes() (int64, error) {
	n, err := units.RAMInBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("log.max_size: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("log.max_size: must be positive, got %q", c.MaxSize)
	}
	return n, nil
}

// OutputConfig selects the output protocol: maas | prometheus.
type OutputConfig struct {
	Format string `yaml:"format"`
}

// GaleraConfig configures how the database probe reaches the local node.
type GaleraConfig struct {
	MySQLPath    string `yaml:"mysql_path"`
	DefaultsFile string `yaml:"defaults_file"`

	// DSN switches the probe from the mysql client to a direct connection,
	// e.g. "monitor:secret@tcp(127.0.0.1:3306)/".
	DSN string `yaml:"dsn"`
}

// OpenStackConfig configures the control-plane probes. Authentication comes
// from the OS_* environment.
type OpenStackConfig struct {
	Region string `yaml:"region"`
}

// CephConfig configures the storage cluster probe.
type CephConfig struct {
	Path string `yaml:"path"`

	// ClusterNamespace is ceph_culster or ceph_cluster.
	ClusterNamespace string `yaml:"cluster_namespace"`
}

// Load reads and parses the YAML config file at path. If path is
// DefaultPath and the file does not exist, defaults are returned.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if path == DefaultPath && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Log: LogConfig{
			Dir:     DefaultLogDir,
			Level:   DefaultLogLevel,
			MaxSize: DefaultLogMaxSize,
		},
		Output: OutputConfig{Format: DefaultFormat},
		Galera: GaleraConfig{
			MySQLPath:    DefaultMySQLPath,
			DefaultsFile: DefaultDefaultsFile,
		},
		Ceph: CephConfig{
			Path:             DefaultCephPath,
			ClusterNamespace: DefaultCephClusterNamespace,
		},
	}
}

// validate checks structural constraints.
func validate(cfg *Config) error {
	switch cfg.Output.Format {
	case "maas", "prometheus":
	default:
		return fmt.Errorf("output.format: unknown format %q", cfg.Output.Format)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	if _, err := cfg.Log.MaxSizeBytes(); err != nil {
		return err
	}
	if cfg.Galera.DSN == "" && cfg.Galera.MySQLPath == "" {
		return fmt.Errorf("galera.mysql_path is required when galera.dsn is not set")
	}
	if cfg.Ceph.Path == "" {
		return fmt.Errorf("ceph.path must not be empty")
	}
	switch cfg.Ceph.ClusterNamespace {
	case "ceph_culster", "ceph_cluster":
	default:
		return fmt.Errorf("ceph.cluster_namespace: unknown namespace %q", cfg.Ceph.ClusterNamespace)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
log:
  dir: /tmp/probe-logs
  level: debug
output:
  format: prometheus
galera:
  mysql_path: /opt/mysql/bin/mysql
  defaults_file: /etc/mysql/monitor.cnf
openstack:
  region: RegionTwo
ceph:
  path: /usr/local/bin/ceph
`
	cfg := loadFromString(t, yaml)

	if cfg.Log.Dir != "/tmp/probe-logs" {
		t.Errorf("log.dir: got %q", cfg.Log.Dir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level: got %q", cfg.Log.Level)
	}
	if cfg.Output.Format != "prometheus" {
		t.Errorf("output.format: got %q", cfg.Output.Format)
	}
	if cfg.Galera.MySQLPath != "/opt/mysql/bin/mysql" {
		t.Errorf("galera.mysql_path: got %q", cfg.Galera.MySQLPath)
	}
	if cfg.Galera.DefaultsFile != "/etc/mysql/monitor.cnf" {
		t.Errorf("galera.defaults_file: got %q", cfg.Galera.DefaultsFile)
	}
	if cfg.OpenStack.Region != "RegionTwo" {
		t.Errorf("openstack.region: got %q", cfg.OpenStack.Region)
	}
	if cfg.Ceph.Path != "/usr/local/bin/ceph" {
		t.Errorf("ceph.path: got %q", cfg.Ceph.Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "openstack:\n  region: RegionOne\n")

	if cfg.Log.Dir != DefaultLogDir {
		t.Errorf("default log.dir: got %q, want %q", cfg.Log.Dir, DefaultLogDir)
	}
	if cfg.Output.Format != DefaultFormat {
		t.Errorf("default output.format: got %q, want %q", cfg.Output.Format, DefaultFormat)
	}
	if cfg.Galera.MySQLPath != DefaultMySQLPath {
		t.Errorf("default galera.mysql_path: got %q, want %q", cfg.Galera.MySQLPath, DefaultMySQLPath)
	}
	if cfg.Galera.DefaultsFile != DefaultDefaultsFile {
		t.Errorf("default galera.defaults_file: got %q, want %q", cfg.Galera.DefaultsFile, DefaultDefaultsFile)
	}
	if cfg.Ceph.Path != DefaultCephPath {
		t.Errorf("default ceph.path: got %q, want %q", cfg.Ceph.Path, DefaultCephPath)
	}
}

func TestLoad_LogMaxSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"10MB", 10 << 20, false},
		{"512k", 512 << 10, false},
		{"1g", 1 << 30, false},
		{"0", 0, true},
		{"huge", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cfg, err := loadStringErr(t, "log:\n  max_size: \""+tt.in+"\"\n")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for max_size %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			got, err := cfg.Log.MaxSizeBytes()
			if err != nil {
				t.Fatalf("MaxSizeBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d bytes, got %d", tt.want, got)
			}
		})
	}
}

func TestLoad_CephClusterNamespace(t *testing.T) {
	cfg := loadFromString(t, "ceph:\n  path: ceph\n")
	if cfg.Ceph.ClusterNamespace != "ceph_culster" {
		t.Errorf("default ceph.cluster_namespace: got %q", cfg.Ceph.ClusterNamespace)
	}

	cfg = loadFromString(t, "ceph:\n  cluster_namespace: ceph_cluster\n")
	if cfg.Ceph.ClusterNamespace != "ceph_cluster" {
		t.Errorf("ceph.cluster_namespace: got %q", cfg.Ceph.ClusterNamespace)
	}

	if _, err := loadStringErr(t, "ceph:\n  cluster_namespace: ceph\n"); err == nil {
		t.Fatal("expected error for unknown cluster namespace")
	}
}

func TestLoad_UnknownFormat(t *testing.T) {
	if _, err := loadStringErr(t, "output:\n  format: json\n"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoad_UnknownLevel(t *testing.T) {
	if _, err := loadStringErr(t, "log:\n  level: verbose\n"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestLoad_MissingMySQLWithoutDSN(t *testing.T) {
	if _, err := loadStringErr(t, "galera:\n  mysql_path: \"\"\n"); err == nil {
		t.Fatal("expected error when neither mysql_path nor dsn is set")
	}
	cfg := loadFromString(t, "galera:\n  mysql_path: \"\"\n  dsn: \"root@tcp(127.0.0.1:3306)/\"\n")
	if cfg.Galera.DSN == "" {
		t.Error("expected dsn to be set")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := loadStringErr(t, "log: [unclosed\n"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return Load(path)
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shardstore/shardstore/internal/chunker"
)

// Duration lets yaml carry values like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// NodeConfig describes one statically configured storage node.
type NodeConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Capacity int64  `yaml:"capacity"`
}

type Config struct {
	ChunkSize         int64    `yaml:"chunk_size"`
	MaxChunkSize      int64    `yaml:"max_chunk_size"`
	ReplicationFactor int      `yaml:"replication_factor"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	VerifyInterval    Duration `yaml:"verify_interval"`
	HeartbeatTTL      Duration `yaml:"heartbeat_ttl"`

	ListenAddress  string `yaml:"listen_address"`
	MetricsAddress string `yaml:"metrics_address"`
	DataDir        string `yaml:"data_dir"`
	SpoolDir       string `yaml:"spool_dir"`
	LogLevel       string `yaml:"log_level"`

	Nodes         []NodeConfig `yaml:"nodes"`
	EtcdEndpoints []string     `yaml:"etcd_endpoints"`
}

func DefaultConfig() *Config {
	return &Config{
		ChunkSize:         4 * 1024 * 1024,
		MaxChunkSize:      8 * 1024 * 1024,
		ReplicationFactor: 3,
		WriteTimeout:      Duration(30 * time.Second),
		VerifyInterval:    Duration(15 * time.Minute),
		HeartbeatTTL:      Duration(30 * time.Second),
		ListenAddress:     ":8080",
		MetricsAddress:    ":9090",
		DataDir:           "data",
		SpoolDir:          os.TempDir(),
		LogLevel:          "info",
	}
}

// LoadConfig reads path over the defaults. A missing path yields the
// defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize%chunker.AlignmentUnit != 0 {
		return fmt.Errorf("chunk_size must be a positive multiple of %d, got %d", chunker.AlignmentUnit, c.ChunkSize)
	}
	if c.MaxChunkSize < c.ChunkSize {
		return fmt.Errorf("max_chunk_size %d is smaller than chunk_size %d", c.MaxChunkSize, c.ChunkSize)
	}
	if c.ReplicationFactor < 1 {
		return fmt.Errorf("replication_factor must be at least 1, got %d", c.ReplicationFactor)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}
	if c.VerifyInterval <= 0 {
		return fmt.Errorf("verify_interval must be positive")
	}
	if c.HeartbeatTTL <= 0 {
		return fmt.Errorf("heartbeat_ttl must be positive")
	}
	for i, node := range c.Nodes {
		if node.Name == "" || node.Host == "" || node.Port <= 0 {
			return fmt.Errorf("nodes[%d]: name, host and port are required", i)
		}
		if node.Capacity <= 0 {
			return fmt.Errorf("nodes[%d]: capacity must be positive", i)
		}
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds intake/shard identity configuration.
type ServerConfig struct {
	NodeID          string        `yaml:"node_id"`
	ShardID         uint64        `yaml:"shard_id"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	MaxConnections  int           `yaml:"max_connections"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Config represents the complete configuration for a validator node.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	ClusterTime  ClusterTimeConfig  `yaml:"cluster_time"`
	Sequencer    SequencerConfig    `yaml:"sequencer"`
	SSN          SSNConfig          `yaml:"ssn"`
	TxLog        TxLogConfig        `yaml:"txlog"`
	Reaper       ReaperConfig       `yaml:"reaper"`
	PeerExchange PeerExchangeConfig `yaml:"peer_exchange"`
	Validator    ValidatorConfig    `yaml:"validator"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ClusterTimeConfig holds clustertime.Clock configuration. The clock
// itself has no tunables beyond its counter width, which is a package
// constant; this block exists for forward-compatible YAML shape parity
// with the teacher's per-component config blocks.
type ClusterTimeConfig struct{}

// SequencerConfig holds sequencer configuration.
type SequencerConfig struct {
	Delta uint64 `yaml:"delta"`
}

// SSNConfig holds the sizing for the active transaction set and the
// three-tier distributed transaction set, carried forward from
// DistributedTxSet.h's concrete constants. It is loaded and validated,
// but activetxset and distributedtxset size themselves from their own
// package constants and do not read it.
type SSNConfig struct {
	ActiveSetSize        uint64 `yaml:"active_set_size"`
	ActiveSetMaxCount    uint32 `yaml:"active_set_max_count"`
	IndependentQueueSize int    `yaml:"independent_queue_size"`
	ColdQueueSize        int    `yaml:"cold_queue_size"`
	HotQueueSize         int    `yaml:"hot_queue_size"`
	IndependentCBFSize   uint64 `yaml:"independent_cbf_size"`
	ColdCBFSize          uint64 `yaml:"cold_cbf_size"`
	HotCBFSize           uint64 `yaml:"hot_cbf_size"`
	HotThreshold         uint32 `yaml:"hot_threshold"`
}

// TxLogConfig holds the append-only durable log configuration.
type TxLogConfig struct {
	Dir         string        `yaml:"dir"`
	ChunkSize   int64         `yaml:"chunk_size"`
	SyncWrites  bool          `yaml:"sync_writes"`
	RotateCheck time.Duration `yaml:"rotate_check"`
}

// ReaperConfig holds the low-water-mark sweeper configuration.
type ReaperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// PeerExchangeConfig holds the memberlist gossip transport
// configuration, the validator-domain equivalent of the teacher's
// GossipConfig.
type PeerExchangeConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BindAddr      string        `yaml:"bind_addr"`
	BindPort      int           `yaml:"bind_port"`
	SeedNodes     []string      `yaml:"seed_nodes"`
	JoinRetries   int           `yaml:"join_retries"`
	JoinRetryWait time.Duration `yaml:"join_retry_wait"`
}

// ValidatorConfig holds the validation pipeline's own tunables.
type ValidatorConfig struct {
	PoolSize        int           `yaml:"pool_size"`
	QueueSize       int           `yaml:"queue_size"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PeerWaitTimeout time.Duration `yaml:"peer_wait_timeout"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file, falling back to
// CONFIG_PATH (default ./config.yaml) when filePath is empty.
func LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		filePath = os.Getenv("CONFIG_PATH")
	}
	if filePath == "" {
		filePath = "./config.yaml"
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration,
// applying env var overrides for the tunables operators most commonly
// need to adjust per-deployment.
func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 50052
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = 1000
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Sequencer.Delta == 0 {
		cfg.Sequencer.Delta = 1000
	}
	if v := os.Getenv("SEQUENCER_DELTA"); v != "" {
		if n, err := parseUint(v); err == nil {
			cfg.Sequencer.Delta = n
		}
	}

	if cfg.SSN.ActiveSetSize == 0 {
		cfg.SSN.ActiveSetSize = 1 << 18
	}
	if cfg.SSN.ActiveSetMaxCount == 0 {
		cfg.SSN.ActiveSetMaxCount = 255
	}
	if cfg.SSN.IndependentQueueSize == 0 {
		cfg.SSN.IndependentQueueSize = 65536
	}
	if cfg.SSN.ColdQueueSize == 0 {
		cfg.SSN.ColdQueueSize = 65536
	}
	if cfg.SSN.HotQueueSize == 0 {
		cfg.SSN.HotQueueSize = 1000000
	}
	if cfg.SSN.IndependentCBFSize == 0 {
		cfg.SSN.IndependentCBFSize = 1 << 18
	}
	if cfg.SSN.ColdCBFSize == 0 {
		cfg.SSN.ColdCBFSize = 1 << 15
	}
	if cfg.SSN.HotCBFSize == 0 {
		cfg.SSN.HotCBFSize = 1 << 10
	}
	if cfg.SSN.HotThreshold == 0 {
		cfg.SSN.HotThreshold = 255
	}
	if v := os.Getenv("HOT_THRESHOLD"); v != "" {
		if n, err := parseUint(v); err == nil {
			cfg.SSN.HotThreshold = uint32(n)
		}
	}

	if cfg.TxLog.Dir == "" {
		cfg.TxLog.Dir = "/dev/shm/txlog"
	}
	if v := os.Getenv("TXLOG_DIR"); v != "" {
		cfg.TxLog.Dir = v
	}
	if cfg.TxLog.ChunkSize == 0 {
		cfg.TxLog.ChunkSize = 1 << 30
	}
	if cfg.TxLog.RotateCheck == 0 {
		cfg.TxLog.RotateCheck = 30 * time.Second
	}

	if cfg.Reaper.Interval == 0 {
		cfg.Reaper.Interval = 5 * time.Second
	}

	if cfg.PeerExchange.BindPort == 0 {
		cfg.PeerExchange.BindPort = 7946
	}
	if cfg.PeerExchange.JoinRetries == 0 {
		cfg.PeerExchange.JoinRetries = 5
	}
	if cfg.PeerExchange.JoinRetryWait == 0 {
		cfg.PeerExchange.JoinRetryWait = 2 * time.Second
	}

	if cfg.Validator.PoolSize == 0 {
		cfg.Validator.PoolSize = 16
	}
	if cfg.Validator.QueueSize == 0 {
		cfg.Validator.QueueSize = 1024
	}
	if cfg.Validator.PollInterval == 0 {
		cfg.Validator.PollInterval = time.Millisecond
	}
	if cfg.Validator.PeerWaitTimeout == 0 {
		cfg.Validator.PeerWaitTimeout = 5 * time.Second
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func parseUint(s string) (uint64, error) {
	var n uint64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return fmt.Errorf("server.node_id is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.SSN.HotThreshold == 0 {
		return fmt.Errorf("ssn.hot_threshold must be greater than 0")
	}
	if c.TxLog.Dir == "" {
		return fmt.Errorf("txlog.dir is required")
	}
	return nil
}

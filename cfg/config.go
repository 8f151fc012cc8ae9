package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// BusType selects the message bus backend
type BusType string

const (
	BusNATS   BusType = "nats"   // Core NATS subscription
	BusKafka  BusType = "kafka"  // Kafka consumer, one reader per channel
	BusMemory BusType = "memory" // In-process hub, for tests and embedded hosts
)

// DatabaseConfiguration controls the relational connection pool
type DatabaseConfiguration struct {
	Enabled            bool   `toml:"enabled"`
	Driver             string `toml:"driver"` // "sqlite3" or "mysql"
	DSN                string `toml:"dsn"`
	PoolSize           int    `toml:"pool_size"`             // Max open connections
	MaxIdleTimeSeconds int    `toml:"max_idle_time_seconds"` // Max time connection can be idle
	MaxLifetimeSeconds int    `toml:"max_lifetime_seconds"`  // Max lifetime of a connection
}

// BusConfiguration controls the pub/sub bus client
type BusConfiguration struct {
	Type            BusType  `toml:"type"`
	NatsURL         string   `toml:"nats_url"`
	KafkaBrokers    []string `toml:"kafka_brokers"`
	KafkaGroupID    string   `toml:"kafka_group_id"`
	PayloadFormat   string   `toml:"payload_format"`    // "json" or "msgpack"
	ReconnectWaitMS int      `toml:"reconnect_wait_ms"` // Wait between reconnect attempts
	MaxReconnects   int      `toml:"max_reconnects"`    // -1 = unlimited
}

// RelayConfiguration controls the channel subscription relay
type RelayConfiguration struct {
	Channels              []string `toml:"channels"`                // Channels subscribed at startup
	HandlerTimeoutSeconds int      `toml:"handler_timeout_seconds"` // 0 = no per-message deadline
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the main configuration structure
type Configuration struct {
	InstanceID uint64 `toml:"instance_id"`

	Database   DatabaseConfiguration   `toml:"database"`
	Bus        BusConfiguration        `toml:"bus"`
	Relay      RelayConfiguration      `toml:"relay"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	NatsURLFlag    = flag.String("nats-url", "", "NATS server URL (overrides config)")
	DBDSNFlag      = flag.String("db-dsn", "", "Database DSN (overrides config)")
	VerboseFlag    = flag.Bool("verbose", false, "Enable debug logging (overrides config)")
)

// Default configuration
var Config = &Configuration{
	InstanceID: 0, // Auto-generate

	Database: DatabaseConfiguration{
		Enabled:            true,
		Driver:             "sqlite3",
		DSN:                "./marriagebot.db",
		PoolSize:           4,
		MaxIdleTimeSeconds: 10,
		MaxLifetimeSeconds: 300,
	},

	Bus: BusConfiguration{
		Type:            BusNATS,
		NatsURL:         "nats://127.0.0.1:4222",
		KafkaBrokers:    []string{},
		KafkaGroupID:    "marriagebot-relay",
		PayloadFormat:   "json",
		ReconnectWaitMS: 1000,
		MaxReconnects:   -1,
	},

	Relay: RelayConfiguration{
		Channels: []string{
			"DBLVote",
			"ProposalCacheAdd",
			"ProposalCacheRemove",
			"TreeMemberUpdate",
		},
		HandlerTimeoutSeconds: 30,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: false,
		Address: "0.0.0.0",
		Port:    9090,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *NatsURLFlag != "" {
		Config.Bus.NatsURL = *NatsURLFlag
	}
	if *DBDSNFlag != "" {
		Config.Database.DSN = *DBDSNFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	// Auto-generate instance ID if not set
	if Config.InstanceID == 0 {
		var err error
		Config.InstanceID, err = generateInstanceID()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}
		log.Info().Uint64("instance_id", Config.InstanceID).Msg("Auto-generated instance ID")
	}

	return nil
}

// generateInstanceID creates a unique instance ID based on machine ID
func generateInstanceID() (uint64, error) {
	id, err := machineid.ProtectedID("marriagebot")
	if err != nil {
		return 0, err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	switch Config.Database.Driver {
	case "sqlite3", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", Config.Database.Driver)
	}

	if Config.Database.DSN == "" {
		return fmt.Errorf("database DSN must not be empty")
	}

	if Config.Database.PoolSize < 1 {
		return fmt.Errorf("connection pool size must be >= 1")
	}

	if Config.Database.MaxIdleTimeSeconds < 0 {
		return fmt.Errorf("connection pool max idle time must be >= 0")
	}

	if Config.Database.MaxLifetimeSeconds < 0 {
		return fmt.Errorf("connection pool max lifetime must be >= 0")
	}

	switch Config.Bus.Type {
	case BusNATS:
		if Config.Bus.NatsURL == "" {
			return fmt.Errorf("nats bus requires nats_url")
		}
	case BusKafka:
		if len(Config.Bus.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka bus requires at least one broker address")
		}
	case BusMemory:
	default:
		return fmt.Errorf("unknown bus type: %s", Config.Bus.Type)
	}

	switch Config.Bus.PayloadFormat {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown payload format: %s", Config.Bus.PayloadFormat)
	}

	if Config.Bus.ReconnectWaitMS < 0 {
		return fmt.Errorf("bus reconnect wait must be >= 0")
	}

	if Config.Relay.HandlerTimeoutSeconds < 0 {
		return fmt.Errorf("relay handler timeout must be >= 0")
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	return nil
}

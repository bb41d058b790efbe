package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all settings for the realtime delivery process.
type Config struct {
	ListenAddr string `env:"LOOM_LISTEN_ADDR" envDefault:":8080"`

	Redis  RedisConfig
	Bridge BridgeConfig
	Stream StreamConfig
}

// RedisConfig holds connection settings for the notification source.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	// Prefix namespaces the mutation topics, e.g. "loom:message".
	Prefix string `env:"REDIS_TOPIC_PREFIX" envDefault:"loom:"`
}

// BridgeConfig holds notification-bridge tuning knobs.
type BridgeConfig struct {
	// ReconnectDelay is the fixed wait between reconnect attempts.
	ReconnectDelay time.Duration `env:"BRIDGE_RECONNECT_DELAY" envDefault:"3s"`
	// BufferCapacity bounds the number of events held while disconnected.
	// When full, the oldest event is dropped.
	BufferCapacity int `env:"BRIDGE_BUFFER_CAPACITY" envDefault:"256"`
}

// StreamConfig holds per-connection stream settings.
type StreamConfig struct {
	// HeartbeatInterval is how often keepalive frames are written so
	// intermediaries do not close idle connections.
	HeartbeatInterval time.Duration `env:"STREAM_HEARTBEAT_INTERVAL" envDefault:"30s"`
	// SinkBuffer is the per-client event buffer. A client that falls this
	// far behind starts losing events rather than stalling the bus.
	SinkBuffer int `env:"STREAM_SINK_BUFFER" envDefault:"64"`
}

// Load reads configuration from the environment, falling back to defaults
// for anything unset.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every value at its default.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "loom:",
		},
		Bridge: BridgeConfig{
			ReconnectDelay: 3 * time.Second,
			BufferCapacity: 256,
		},
		Stream: StreamConfig{
			HeartbeatInterval: 30 * time.Second,
			SinkBuffer:        64,
		},
	}
}

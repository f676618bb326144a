package config

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	Development         bool   `mapstructure:"development"`
	// Inbound websocket events per second tolerated per connection.
	WSEventsPerSecond int `mapstructure:"ws_events_per_second"`
}

type MongoCfg struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaCfg struct {
	Brokers    []string `mapstructure:"brokers"`
	IndexTopic string   `mapstructure:"index_topic"`
}

type JwtCfg struct {
	Secret string `mapstructure:"secret"`
}

type DedupCfg struct {
	TTLSeconds int `mapstructure:"ttl_seconds"`
}

type PushCfg struct {
	// Per-endpoint delivery deadline.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Notification kinds pushed even when the recipient is online.
	AlwaysKinds []string `mapstructure:"always_kinds"`
}

type PinCfg struct {
	// When true, pinning a message unpins the previous active pin of
	// the scope.
	SinglePerScope bool `mapstructure:"single_per_scope"`
}

type KeysCfg struct {
	// Hex-encoded 32-byte master key wrapping the persisted envelope.
	MasterKeyHex string `mapstructure:"master_key_hex"`
}

type Config struct {
	Server ServerCfg `mapstructure:"server"`
	Mongo  MongoCfg  `mapstructure:"mongo"`
	Redis  RedisCfg  `mapstructure:"redis"`
	Kafka  KafkaCfg  `mapstructure:"kafka"`
	JWT    JwtCfg    `mapstructure:"jwt"`
	Dedup  DedupCfg  `mapstructure:"dedup"`
	Push   PushCfg   `mapstructure:"push"`
	Pin    PinCfg    `mapstructure:"pin"`
	Keys   KeysCfg   `mapstructure:"keys"`

	// Derived
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DedupTTL     time.Duration
	PushTimeout  time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Server.WSEventsPerSecond == 0 {
		cfg.Server.WSEventsPerSecond = 20
	}
	if cfg.Dedup.TTLSeconds == 0 {
		cfg.Dedup.TTLSeconds = 3600
	}
	if cfg.Push.TimeoutSeconds == 0 {
		cfg.Push.TimeoutSeconds = 10
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	cfg.DedupTTL = time.Duration(cfg.Dedup.TTLSeconds) * time.Second
	cfg.PushTimeout = time.Duration(cfg.Push.TimeoutSeconds) * time.Second
	return &cfg, nil
}

// MasterKey decodes the configured master key material.
func (c *Config) MasterKey() ([]byte, error) {
	key, err := hex.DecodeString(c.Keys.MasterKeyHex)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, errors.New("keys.master_key_hex must decode to 32 bytes")
	}
	return key, nil
}

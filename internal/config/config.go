package config

import "time"

// Config is the root configuration for the bringit server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Push      PushConfig      `yaml:"push"`
	Uploads   UploadsConfig   `yaml:"uploads"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WebSocketConfig tunes the connection registry. The sweep runs every
// PingInterval; connections quiet for longer than LivenessTimeout are
// evicted.
type WebSocketConfig struct {
	PingInterval    time.Duration `yaml:"ping_interval"`
	LivenessTimeout time.Duration `yaml:"liveness_timeout"`
}

// PushConfig points at an Expo-compatible push gateway. When disabled the
// server still runs; offline users rely on polling instead.
type PushConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

type UploadsConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8490,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Path: "~/.config/bringit/bringit.db",
		},
		WebSocket: WebSocketConfig{
			PingInterval:    30 * time.Second,
			LivenessTimeout: 60 * time.Second,
		},
		Push: PushConfig{
			Enabled:  false,
			Endpoint: "https://exp.host/--/api/v2/push/send",
		},
		Uploads: UploadsConfig{
			Dir:      "~/.config/bringit/uploads",
			MaxBytes: 10 << 20, // 10MB
		},
	}
}

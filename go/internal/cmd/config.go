package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/fearless/go/internal/draft/bus"
	"github.com/mcdev12/fearless/go/internal/draft/gateway"
	"github.com/mcdev12/fearless/go/internal/draft/orchestrator"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	Draft struct {
		TurnDurationSeconds int  `yaml:"turn_duration_seconds"`
		Workers             int  `yaml:"workers"`
		QueueSize           int  `yaml:"queue_size"`
		SeriesAutoAdvance   bool `yaml:"series_auto_advance"`
	} `yaml:"draft"`

	NATS struct {
		Enabled        bool   `yaml:"enabled"`
		URL            string `yaml:"url"`
		Stream         string `yaml:"stream"`
		SubjectPrefix  string `yaml:"subject_prefix"`
		CommandSubject string `yaml:"command_subject"`
	} `yaml:"nats"`

	WebSocket struct {
		SendBufferSize      int   `yaml:"send_buffer_size"`
		BroadcastBuffer     int   `yaml:"broadcast_buffer"`
		MaxMessageSize      int64 `yaml:"max_message_size"`
		WriteTimeoutSeconds int   `yaml:"write_timeout_seconds"`
		ReadTimeoutSeconds  int   `yaml:"read_timeout_seconds"`
		PingIntervalSeconds int   `yaml:"ping_interval_seconds"`
	} `yaml:"websocket"`
}

func defaultConfig() *Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.LogLevel = "info"

	cfg.Draft.TurnDurationSeconds = int(orchestrator.DefaultTurnDuration / time.Second)
	cfg.Draft.Workers = 4
	cfg.Draft.QueueSize = 100

	natsDefaults := bus.DefaultConfig()
	cfg.NATS.URL = natsDefaults.URL
	cfg.NATS.Stream = natsDefaults.StreamName
	cfg.NATS.SubjectPrefix = natsDefaults.SubjectPrefix
	cfg.NATS.CommandSubject = natsDefaults.CommandSubject

	wsDefaults := gateway.DefaultConnectionConfig()
	cfg.WebSocket.SendBufferSize = wsDefaults.SendBufferSize
	cfg.WebSocket.BroadcastBuffer = wsDefaults.BroadcastBuffer
	cfg.WebSocket.MaxMessageSize = wsDefaults.MaxMessageSize
	cfg.WebSocket.WriteTimeoutSeconds = int(wsDefaults.WriteTimeout / time.Second)
	cfg.WebSocket.ReadTimeoutSeconds = int(wsDefaults.ReadTimeout / time.Second)
	cfg.WebSocket.PingIntervalSeconds = int(wsDefaults.PingInterval / time.Second)
	return &cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyEnv()
	return config, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)

	c.Draft.TurnDurationSeconds = getEnvAsInt("TURN_DURATION_SECONDS", c.Draft.TurnDurationSeconds)
	c.Draft.Workers = getEnvAsInt("ORCHESTRATOR_WORKERS", c.Draft.Workers)
	c.Draft.QueueSize = getEnvAsInt("ORCHESTRATOR_QUEUE_SIZE", c.Draft.QueueSize)
	c.Draft.SeriesAutoAdvance = getEnvAsBool("SERIES_AUTO_ADVANCE", c.Draft.SeriesAutoAdvance)

	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Stream = getEnv("NATS_STREAM", c.NATS.Stream)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.NATS.CommandSubject = getEnv("NATS_COMMAND_SUBJECT", c.NATS.CommandSubject)

	c.WebSocket.SendBufferSize = getEnvAsInt("WS_SEND_BUFFER_SIZE", c.WebSocket.SendBufferSize)
	c.WebSocket.BroadcastBuffer = getEnvAsInt("WS_BROADCAST_BUFFER", c.WebSocket.BroadcastBuffer)
	c.WebSocket.WriteTimeoutSeconds = getEnvAsInt("WS_WRITE_TIMEOUT_SECONDS", c.WebSocket.WriteTimeoutSeconds)
	c.WebSocket.ReadTimeoutSeconds = getEnvAsInt("WS_READ_TIMEOUT_SECONDS", c.WebSocket.ReadTimeoutSeconds)
	c.WebSocket.PingIntervalSeconds = getEnvAsInt("WS_PING_INTERVAL_SECONDS", c.WebSocket.PingIntervalSeconds)
}

func (c *Config) logLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Server.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) orchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		TurnDuration: time.Duration(c.Draft.TurnDurationSeconds) * time.Second,
		NumWorkers:   c.Draft.Workers,
		QueueSize:    c.Draft.QueueSize,
	}
}

func (c *Config) busConfig() bus.Config {
	cfg := bus.DefaultConfig()
	cfg.URL = c.NATS.URL
	cfg.StreamName = c.NATS.Stream
	cfg.SubjectPrefix = c.NATS.SubjectPrefix
	cfg.CommandSubject = c.NATS.CommandSubject
	return cfg
}

func (c *Config) gatewayConfig() gateway.Config {
	cfg := gateway.DefaultConfig()
	ws := &cfg.ConnectionConfig
	ws.SendBufferSize = c.WebSocket.SendBufferSize
	ws.BroadcastBuffer = c.WebSocket.BroadcastBuffer
	if c.WebSocket.MaxMessageSize > 0 {
		ws.MaxMessageSize = c.WebSocket.MaxMessageSize
	}
	if c.WebSocket.WriteTimeoutSeconds > 0 {
		ws.WriteTimeout = time.Duration(c.WebSocket.WriteTimeoutSeconds) * time.Second
	}
	if c.WebSocket.ReadTimeoutSeconds > 0 {
		ws.ReadTimeout = time.Duration(c.WebSocket.ReadTimeoutSeconds) * time.Second
	}
	if c.WebSocket.PingIntervalSeconds > 0 {
		ws.PingInterval = time.Duration(c.WebSocket.PingIntervalSeconds) * time.Second
	}
	return cfg
}

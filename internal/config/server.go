package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "./config/config.yaml"

type HTTP struct {
	Addr            string   `yaml:"addr"`
	ShutdownTimeout string   `yaml:"shutdownTimeout"`
	AllowedOrigins  []string `yaml:"allowedOrigins"`
}

type Logging struct {
	Level     string `yaml:"level"`   // debug|info|warn|error
	Backend   string `yaml:"backend"` // text|json|zap
	Service   string `yaml:"service"`
	AddSource bool   `yaml:"addSource"`
}

type Rooms struct {
	ChatHistoryLimit int    `yaml:"chatHistoryLimit"`
	MaxMessageBytes  int    `yaml:"maxMessageBytes"`
	NamePolicy       string `yaml:"namePolicy"` // words|guest
}

type WebSocket struct {
	ReadBufferSize  int    `yaml:"readBufferSize"`
	WriteBufferSize int    `yaml:"writeBufferSize"`
	MaxMessageBytes int64  `yaml:"maxMessageBytes"`
	SendQueue       int    `yaml:"sendQueue"`
	PingInterval    string `yaml:"pingInterval"`
}

// Server is the relay configuration.
type Server struct {
	HTTP      HTTP      `yaml:"http"`
	Logging   Logging   `yaml:"logging"`
	Rooms     Rooms     `yaml:"rooms"`
	WebSocket WebSocket `yaml:"websocket"`
}

// LoadServer reads the relay config from CONFIG_PATH (default
// ./config/config.yaml). A missing default file is not an error; an explicitly
// named file must exist. PINCH_HTTP_ADDR and LOG_LEVEL override the file.
func LoadServer() (*Server, error) {
	path := os.Getenv("CONFIG_PATH")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	var cfg Server
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("PINCH_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Server) validate() error {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8000"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "pinch-server"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Backend {
	case "":
		c.Logging.Backend = "text"
	case "text", "json", "zap":
	default:
		return fmt.Errorf("logging.backend %q is not one of text, json, zap", c.Logging.Backend)
	}

	if c.Rooms.ChatHistoryLimit < 0 {
		return errors.New("rooms.chatHistoryLimit must not be negative")
	}
	if c.Rooms.ChatHistoryLimit == 0 {
		c.Rooms.ChatHistoryLimit = 200
	}
	if c.Rooms.MaxMessageBytes <= 0 {
		c.Rooms.MaxMessageBytes = 4000
	}
	switch c.Rooms.NamePolicy {
	case "":
		c.Rooms.NamePolicy = "words"
	case "words", "guest":
	default:
		return fmt.Errorf("rooms.namePolicy %q is not one of words, guest", c.Rooms.NamePolicy)
	}

	if c.WebSocket.ReadBufferSize <= 0 {
		c.WebSocket.ReadBufferSize = 64 * 1024
	}
	if c.WebSocket.WriteBufferSize <= 0 {
		c.WebSocket.WriteBufferSize = 64 * 1024
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		c.WebSocket.MaxMessageBytes = 64 * 1024
	}
	if c.WebSocket.SendQueue <= 0 {
		c.WebSocket.SendQueue = 256
	}
	return nil
}

// PingInterval is the websocket keepalive period.
func (c *Server) PingInterval() time.Duration {
	return parseDurationOr(30*time.Second, c.WebSocket.PingInterval)
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Server) ShutdownTimeout() time.Duration {
	return parseDurationOr(10*time.Second, c.HTTP.ShutdownTimeout)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

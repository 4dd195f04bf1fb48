package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Default client configuration values
const (
	DefaultServer = "ws://localhost:8000/ws"
	DefaultSTUN   = "stun:stun.l.google.com:19302"
	DefaultCodec  = "json"
)

// Client holds participant configuration
type Client struct {
	// ServerURL is the relay websocket endpoint, e.g. wss://pinch.example/ws
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	Codec string
	Name  string

	// NegotiationTimeout destroys links that never connect. Zero disables it.
	NegotiationTimeout time.Duration
}

// ClientOptions carry CLI flag overrides
type ClientOptions struct {
	Server             string
	STUNServer         string
	TURNServer         string
	TURNUser           string
	TURNPass           string
	ForceRelay         bool
	Codec              string
	Name               string
	NegotiationTimeout string
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

// LoadClient reads configuration with the following priority:
// 1. CLI flags (passed via ClientOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadClient(opts ClientOptions) (*Client, error) {
	serverURL, err := normalizeServerURL(pick(opts.Server, "PINCH_SERVER", DefaultServer))
	if err != nil {
		return nil, err
	}

	codec := strings.ToLower(pick(opts.Codec, "PINCH_CODEC", DefaultCodec))
	if codec != "json" && codec != "msgpack" {
		return nil, fmt.Errorf("codec %q is not one of json, msgpack", codec)
	}

	cfg := &Client{
		ServerURL:  serverURL,
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay: opts.ForceRelay,
		Codec:      codec,
		Name:       pick(opts.Name, "PINCH_NAME", ""),
	}

	if raw := pick(opts.NegotiationTimeout, "PINCH_NEGOTIATION_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid negotiation timeout %q", raw)
		}
		cfg.NegotiationTimeout = d
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("relay-only mode needs a TURN server")
	}
	return cfg, nil
}

// normalizeServerURL accepts ws(s):// or http(s):// and a bare host, and
// defaults the path to /ws.
func normalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// SignalingURL is ServerURL with the codec query parameter applied.
func (c *Client) SignalingURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	q := u.Query()
	q.Set("codec", c.Codec)
	u.RawQuery = q.Encode()
	return u.String()
}

// HTTPBase returns the relay's plain HTTP origin, e.g. https://pinch.example
func (c *Client) HTTPBase() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

// GetRoomLink returns the shareable link for a room ID
func (c *Client) GetRoomLink(roomID string) string {
	return c.HTTPBase() + "/room/" + url.PathEscape(roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare host is
// expanded to the usual udp, tcp and tls variants.
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	server := c.TURNServer
	if !strings.HasPrefix(server, "turn:") && !strings.HasPrefix(server, "turns:") {
		server = "turn:" + server
	}
	host := strings.TrimPrefix(strings.TrimPrefix(server, "turns:"), "turn:")
	if strings.ContainsAny(host, ":?") {
		return []string{server}
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

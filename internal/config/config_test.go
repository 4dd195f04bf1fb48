package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearClientEnv(t *testing.T) {
	for _, k := range []string{"PINCH_SERVER", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME",
		"TURN_PASSWORD", "PINCH_CODEC", "PINCH_NAME", "PINCH_NEGOTIATION_TIMEOUT"} {
		t.Setenv(k, "")
	}
}

func TestLoadClientDefaults(t *testing.T) {
	clearClientEnv(t)

	cfg, err := LoadClient(ClientOptions{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != DefaultServer || cfg.Codec != DefaultCodec || cfg.STUNServer != DefaultSTUN {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.GetTURNServers() != nil {
		t.Fatalf("no TURN servers expected by default")
	}
	if cfg.NegotiationTimeout != 0 {
		t.Fatalf("timeout should be disabled by default")
	}
}

func TestLoadClientPriority(t *testing.T) {
	clearClientEnv(t)
	t.Setenv("PINCH_SERVER", "https://env.example")
	t.Setenv("PINCH_CODEC", "msgpack")
	t.Setenv("PINCH_NAME", "Env Name")

	cfg, err := LoadClient(ClientOptions{Name: "Flag Name", NegotiationTimeout: "15s"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerURL != "wss://env.example/ws" {
		t.Errorf("server url = %q", cfg.ServerURL)
	}
	if cfg.Codec != "msgpack" {
		t.Errorf("codec = %q", cfg.Codec)
	}
	if cfg.Name != "Flag Name" {
		t.Errorf("flag should win over env, got %q", cfg.Name)
	}
	if cfg.NegotiationTimeout != 15*time.Second {
		t.Errorf("timeout = %v", cfg.NegotiationTimeout)
	}
	if got := cfg.SignalingURL(); got != "wss://env.example/ws?codec=msgpack" {
		t.Errorf("signaling url = %q", got)
	}
	if got := cfg.GetRoomLink("abc"); got != "https://env.example/room/abc" {
		t.Errorf("room link = %q", got)
	}
}

func TestLoadClientRejectsBadInput(t *testing.T) {
	clearClientEnv(t)

	if _, err := LoadClient(ClientOptions{Codec: "xml"}); err == nil {
		t.Errorf("expected codec error")
	}
	if _, err := LoadClient(ClientOptions{Server: "ftp://x"}); err == nil {
		t.Errorf("expected scheme error")
	}
	if _, err := LoadClient(ClientOptions{ForceRelay: true}); err == nil {
		t.Errorf("relay-only without TURN must fail")
	}
	if _, err := LoadClient(ClientOptions{NegotiationTimeout: "soon"}); err == nil {
		t.Errorf("expected duration error")
	}
}

func TestTURNServerExpansion(t *testing.T) {
	c := &Client{TURNServer: "turn.example.com"}
	got := c.GetTURNServers()
	if len(got) != 3 || got[0] != "turn:turn.example.com:3478?transport=udp" || got[2] != "turns:turn.example.com:5349?transport=tcp" {
		t.Errorf("unexpected expansion: %v", got)
	}

	c.TURNServer = "turn:turn.example.com:443?transport=tcp"
	if got := c.GetTURNServers(); len(got) != 1 || got[0] != c.TURNServer {
		t.Errorf("explicit url should be kept, got %v", got)
	}
}

func TestLoadServerDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PINCH_HTTP_ADDR", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8000" || cfg.Rooms.ChatHistoryLimit != 200 || cfg.Rooms.MaxMessageBytes != 4000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.PingInterval() != 30*time.Second || cfg.WebSocket.SendQueue != 256 {
		t.Errorf("unexpected websocket defaults: %+v", cfg.WebSocket)
	}
}

func TestLoadServerFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	yaml := `
http:
  addr: ":9000"
logging:
  backend: zap
rooms:
  chatHistoryLimit: 50
  namePolicy: guest
websocket:
  pingInterval: 5s
  sendQueue: 32
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PINCH_HTTP_ADDR", "127.0.0.1:7000")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != "127.0.0.1:7000" {
		t.Errorf("env should override addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Logging.Backend != "zap" || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected logging: %+v", cfg.Logging)
	}
	if cfg.Rooms.ChatHistoryLimit != 50 || cfg.Rooms.NamePolicy != "guest" {
		t.Errorf("unexpected rooms: %+v", cfg.Rooms)
	}
	if cfg.PingInterval() != 5*time.Second || cfg.WebSocket.SendQueue != 32 {
		t.Errorf("unexpected websocket: %+v", cfg.WebSocket)
	}
}

func TestLoadServerExplicitMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := LoadServer(); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadServerRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	os.WriteFile(path, []byte("logging:\n  backend: syslog\n"), 0o600)
	t.Setenv("CONFIG_PATH", path)
	if _, err := LoadServer(); err == nil {
		t.Fatalf("expected validation error")
	}
}

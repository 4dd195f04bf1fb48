package engine

import (
	"net"
	"testing"

	"github.com/Rogue-56/pinch/internal/config"
)

func TestBehindTunnel(t *testing.T) {
	lan := iface{name: "eth0", up: true, addrs: []net.IP{net.ParseIP("192.168.1.20")}}
	cases := []struct {
		name string
		ifs  []iface
		want bool
	}{
		{"plain lan", []iface{lan}, false},
		{"wireguard", []iface{lan, {name: "wg0", up: true}}, true},
		{"wireguard down", []iface{lan, {name: "wg0"}}, false},
		{"cgnat address", []iface{{name: "eth1", up: true, addrs: []net.IP{net.ParseIP("100.101.2.3")}}}, true},
		{"loopback ignored", []iface{{name: "lo", up: true, loop: true, addrs: []net.IP{net.ParseIP("100.64.0.1")}}}, false},
	}
	for _, tc := range cases {
		if got := behindTunnel(tc.ifs); got != tc.want {
			t.Errorf("%s: behindTunnel = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestConfigFromClientRelayPolicy(t *testing.T) {
	old := restrictedNetwork
	defer func() { restrictedNetwork = old }()

	restrictedNetwork = func() bool { return true }
	cfg := &config.Client{STUNServer: "stun:stun.example:3478"}
	if ConfigFromClient(cfg, nil).RelayOnly {
		t.Fatalf("relay-only needs a TURN server")
	}

	cfg.TURNServer = "turn.example"
	cfg.TURNUser, cfg.TURNPass = "u", "p"
	pc := ConfigFromClient(cfg, nil)
	if !pc.RelayOnly {
		t.Fatalf("a tunnelled host with TURN should go relay-only")
	}
	if len(pc.ICEServers) != 2 || pc.ICEServers[1].Username != "u" || len(pc.ICEServers[1].URLs) != 3 {
		t.Fatalf("unexpected ICE servers %+v", pc.ICEServers)
	}

	restrictedNetwork = func() bool { return false }
	if ConfigFromClient(cfg, nil).RelayOnly {
		t.Fatalf("open network without --relay should allow direct candidates")
	}
	cfg.ForceRelay = true
	if !ConfigFromClient(cfg, nil).RelayOnly {
		t.Fatalf("--relay should force relay-only")
	}
}

package engine

import (
	"net"
	"strings"
)

// tunnelHints are interface name fragments of VPN and tunnel adapters.
var tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// cgnat is 100.64.0.0/10, used by carrier NAT, Tailscale and WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// iface is the part of a network interface the relay heuristic looks at.
type iface struct {
	name  string
	up    bool
	loop  bool
	addrs []net.IP
}

// restrictedNetwork is swapped out in tests.
var restrictedNetwork = hostBehindTunnel

// hostBehindTunnel reports whether this machine looks like it sits behind a
// VPN or carrier-grade NAT, where direct candidates rarely connect.
func hostBehindTunnel() bool {
	ifs, err := net.Interfaces()
	if err != nil {
		return false
	}
	list := make([]iface, 0, len(ifs))
	for _, i := range ifs {
		entry := iface{
			name: i.Name,
			up:   i.Flags&net.FlagUp != 0,
			loop: i.Flags&net.FlagLoopback != 0,
		}
		addrs, err := i.Addrs()
		if err == nil {
			for _, a := range addrs {
				switch v := a.(type) {
				case *net.IPNet:
					entry.addrs = append(entry.addrs, v.IP)
				case *net.IPAddr:
					entry.addrs = append(entry.addrs, v.IP)
				}
			}
		}
		list = append(list, entry)
	}
	return behindTunnel(list)
}

func behindTunnel(ifs []iface) bool {
	for _, i := range ifs {
		if !i.up || i.loop {
			continue
		}
		name := strings.ToLower(i.name)
		for _, hint := range tunnelHints {
			if strings.Contains(name, hint) {
				return true
			}
		}
		for _, ip := range i.addrs {
			if cgnat.Contains(ip) {
				return true
			}
		}
	}
	return false
}

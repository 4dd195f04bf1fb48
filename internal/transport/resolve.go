package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// fallbackDNS are queried directly when the system resolver cannot find the
// relay, which happens on captive or broken home networks.
var fallbackDNS = []string{
	"1.1.1.1",
	"1.0.0.1",
	"8.8.8.8",
	"8.8.4.4",
	"9.9.9.9",
	"[2606:4700:4700::1111]",
	"[2001:4860:4860::8888]",
}

type lookupFunc func(ctx context.Context, host string) ([]string, error)

// resolver looks hosts up with the system first, then races fallback servers.
type resolver struct {
	system   lookupFunc
	via      func(server string) lookupFunc
	servers  []string
	timeout  time.Duration
	fallback time.Duration
}

func newResolver() *resolver {
	return &resolver{
		system:   (&net.Resolver{}).LookupHost,
		via:      serverLookup,
		servers:  fallbackDNS,
		timeout:  time.Second,
		fallback: 2 * time.Second,
	}
}

func serverLookup(server string) lookupFunc {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(trimBrackets(server), "53"))
		},
	}
	return r.LookupHost
}

func trimBrackets(s string) string {
	if len(s) > 1 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1]
	}
	return s
}

// lookup returns one address for host, preferring IPv4.
func (r *resolver) lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	sysCtx, cancel := context.WithTimeout(ctx, r.timeout)
	ips, err := r.system(sysCtx, host)
	cancel()
	if err == nil && len(ips) > 0 {
		return pickIP(ips), nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return r.race(ctx, host)
}

func (r *resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.servers) == 0 {
		return "", fmt.Errorf("resolve %s: no fallback servers", host)
	}
	ctx, cancel := context.WithTimeout(ctx, r.fallback)
	defer cancel()

	type result struct {
		ips []string
		err error
	}
	results := make(chan result, len(r.servers))
	for _, server := range r.servers {
		go func(server string) {
			ips, err := r.via(server)(ctx, host)
			results <- result{ips: ips, err: err}
		}(server)
	}

	for range r.servers {
		select {
		case res := <-results:
			if res.err == nil && len(res.ips) > 0 {
				return pickIP(res.ips), nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: %w", host, errAllResolversFailed)
}

var errAllResolversFailed = errors.New("every fallback resolver failed")

func pickIP(ips []string) string {
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip
		}
	}
	return ips[0]
}

// dialContext resolves addr with r before dialing it.
func (r *resolver) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := r.lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedLookup(ips []string, err error) lookupFunc {
	return func(context.Context, string) ([]string, error) { return ips, err }
}

func testResolver(system lookupFunc, servers map[string]lookupFunc) *resolver {
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	return &resolver{
		system:   system,
		via:      func(server string) lookupFunc { return servers[server] },
		servers:  names,
		timeout:  time.Second,
		fallback: time.Second,
	}
}

func TestResolverPrefersSystemAndIPv4(t *testing.T) {
	r := testResolver(fixedLookup([]string{"2001:db8::1", "203.0.113.7"}, nil), nil)
	ip, err := r.lookup(context.Background(), "relay.example")
	if err != nil || ip != "203.0.113.7" {
		t.Fatalf("lookup = %q, %v", ip, err)
	}

	ip, err = r.lookup(context.Background(), "127.0.0.1")
	if err != nil || ip != "127.0.0.1" {
		t.Fatalf("literal addresses should pass through, got %q, %v", ip, err)
	}
}

func TestResolverFallsBack(t *testing.T) {
	broken := fixedLookup(nil, errors.New("no such host"))
	r := testResolver(broken, map[string]lookupFunc{
		"a": fixedLookup(nil, errors.New("refused")),
		"b": fixedLookup([]string{"198.51.100.4"}, nil),
	})
	ip, err := r.lookup(context.Background(), "relay.example")
	if err != nil || ip != "198.51.100.4" {
		t.Fatalf("fallback lookup = %q, %v", ip, err)
	}

	r = testResolver(broken, map[string]lookupFunc{
		"a": fixedLookup(nil, errors.New("refused")),
	})
	if _, err := r.lookup(context.Background(), "relay.example"); !errors.Is(err, errAllResolversFailed) {
		t.Fatalf("expected every resolver to fail, got %v", err)
	}
}

func TestTrimBrackets(t *testing.T) {
	if trimBrackets("[2606:4700:4700::1111]") != "2606:4700:4700::1111" || trimBrackets("1.1.1.1") != "1.1.1.1" {
		t.Fatalf("trimBrackets misbehaves")
	}
}

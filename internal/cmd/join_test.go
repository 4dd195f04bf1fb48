package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Rogue-56/pinch/internal/capture"
)

func TestParseRoomInput(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "abc123", want: "abc123"},
		{in: "  calm-otter-brave ", want: "calm-otter-brave"},
		{in: "https://pinch.example/room/abc123", want: "abc123"},
		{in: "http://localhost:8000/room/abc123/", want: "abc123"},
		{in: "pinch.example/room/with%20space", want: "with space"},
		{in: "https://pinch.example/rooms", wantErr: true},
		{in: "https://pinch.example/room/", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseRoomInput(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseRoomInput(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseRoomInput(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestFetchRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rooms" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"abc123","members":2,"sharing":1}]`))
	}))
	defer srv.Close()

	rooms, err := fetchRooms(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("fetchRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "abc123" || rooms[0].Members != 2 || rooms[0].Sharing != 1 {
		t.Fatalf("unexpected rooms %+v", rooms)
	}

	_, err = fetchRooms(context.Background(), srv.Client(), srv.URL+"/nope")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected a status error, got %v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"join", "rooms", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
	if f := joinCmd.Flags().Lookup("negotiation-timeout"); f == nil {
		t.Fatalf("join should accept --negotiation-timeout")
	}
}

func TestAfterCameraMic(t *testing.T) {
	calls := 0
	p := afterCameraMic(capture.Synthetic{}, func() { calls++ })

	s, err := p.Acquire(context.Background(), capture.KindScreen)
	if err != nil {
		t.Fatalf("acquire screen: %v", err)
	}
	s.Stop()
	if calls != 0 {
		t.Fatalf("screen capture should not advance the join steps")
	}

	s, err = p.Acquire(context.Background(), capture.KindCameraMic)
	if err != nil {
		t.Fatalf("acquire camera: %v", err)
	}
	s.Stop()
	if calls != 1 {
		t.Fatalf("camera capture should advance the join steps once, got %d", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Acquire(ctx, capture.KindCameraMic); err == nil || calls != 1 {
		t.Fatalf("failed acquire should not advance, err=%v calls=%d", err, calls)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rogue-56/pinch/internal/config"
	"github.com/Rogue-56/pinch/internal/logging"
	"github.com/Rogue-56/pinch/internal/room"
	"github.com/Rogue-56/pinch/internal/server"
	"github.com/Rogue-56/pinch/internal/signaling"
	"github.com/Rogue-56/pinch/internal/version"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Init(logging.Config{
		Service:   cfg.Logging.Service,
		Version:   version.Version,
		Level:     logging.ParseLevel(cfg.Logging.Level, slog.LevelInfo),
		Backend:   logging.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Output:    os.Stdout,
	})

	namer, err := room.NamerByPolicy(cfg.Rooms.NamePolicy)
	if err != nil {
		log.Fatalf("rooms: %v", err)
	}
	registry := room.NewRegistry(room.Options{
		ChatHistoryLimit: cfg.Rooms.ChatHistoryLimit,
		MaxMessageBytes:  cfg.Rooms.MaxMessageBytes,
		Namer:            namer,
	})

	hub := signaling.NewHub(registry, signaling.Options{
		SendQueue:       cfg.WebSocket.SendQueue,
		PingInterval:    cfg.PingInterval(),
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
	}, logger)

	ctx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(ctx)

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: server.NewRouter(hub, server.Options{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			AllowedOrigins:  cfg.HTTP.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr, "version", version.Version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	// websockets are hijacked, so Shutdown does not wait for them; stopping
	// the hub closes every client queue and with it the connections.
	_ = httpSrv.Shutdown(ctxShutdown)
	stopHub()
	slog.Info("stopped")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kassa/internal/backend"
	"kassa/internal/cart"
	"kassa/internal/config"
	"kassa/internal/connectivity"
	httpapi "kassa/internal/http"
	"kassa/internal/service"
	"kassa/internal/storage"
	"kassa/internal/sync"
)

func main() {
	cfg, err := config.Load(os.Getenv("KASSA_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store storage.Store
	if cfg.RedisURL != "" {
		rs, err := storage.NewRedisStore(cfg.RedisURL, "kassa")
		if err != nil {
			log.Fatalf("redis store: %v", err)
		}
		defer rs.Close()
		store = rs
	} else {
		log.Printf("no redis configured, queue and cache will not survive restart")
		store = storage.NewMemoryStore()
	}

	client := backend.New(cfg.BackendURL, cfg.RequestTimeout)
	signalConn := connectivity.NewSignal(connectivity.Offline)

	outbox, err := sync.NewOutbox(context.Background(), store, client)
	if err != nil {
		log.Fatalf("outbox: %v", err)
	}
	fetcher := sync.NewFetcher(store, client, signalConn)

	pos := service.NewPOSService(cart.New(), fetcher, outbox, client, signalConn, cfg.BranchID)

	probeCtx, stopProbe := context.WithCancel(context.Background())
	defer stopProbe()
	prober := connectivity.NewProber(signalConn, cfg.BackendURL+cfg.HealthPath, cfg.ProbeInterval, cfg.RequestTimeout)
	go prober.Run(probeCtx)

	srv := httpapi.NewServer(pos)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Engine(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

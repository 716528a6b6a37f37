package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"huddle/internal/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	addr := flag.String("addr", cfg.Addr, "server listen address")
	wsPath := flag.String("ws-path", cfg.WSPath, "websocket endpoint path")
	blobPath := flag.String("blobs", cfg.BlobPath, "attachment store path")
	idleTTL := flag.Duration("idle-ttl", cfg.IdleTTL, "empty room lifetime before reaping")
	sweep := flag.Duration("sweep", cfg.SweepInterval, "reaper sweep interval")
	flag.Parse()

	cfg.Addr = *addr
	cfg.WSPath = *wsPath
	cfg.BlobPath = *blobPath
	cfg.IdleTTL = *idleTTL
	cfg.SweepInterval = *sweep

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("huddle server listening on %s (ws at %s)", handle.Addr(), cfg.WSPath)
	if err := handle.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	intrnl "huddle/internal"
	"huddle/internal/blob"
	"huddle/internal/chat"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	blobs  *blob.Store
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	h.cancel()
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the blob store, wires the engine, reaper and transport
// together, and starts serving in the background. Call Stop/Wait to
// manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	if cfg.BlobPath == "" {
		cfg.BlobPath = DefaultBlobPath()
	}
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)
	if cfg.APIRateLimit <= 0 {
		cfg.APIRateLimit = 60
	}
	if cfg.APIRateWindow <= 0 {
		cfg.APIRateWindow = time.Minute
	}

	if err := os.MkdirAll(filepath.Dir(cfg.BlobPath), 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	blobs, err := blob.NewStore(cfg.BlobPath)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	if err := blobs.Migrate(context.Background()); err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("migrate blob store: %w", err)
	}

	engine := chat.NewEngine(chat.NewStore(), blobs)
	server := intrnl.NewServer(engine, blobs, cfg.APIRateLimit, cfg.APIRateWindow)

	reaper := chat.NewReaper(engine, cfg.IdleTTL, cfg.SweepInterval)
	reaper.OnReap = func(roomIDs []string) {
		server.Metrics().AddReaped(len(roomIDs))
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux, cfg.WSPath)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: intrnl.WithCORS(mux),
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = blobs.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		blobs:  blobs,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go reaper.Run(runCtx)

	go func() {
		<-runCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	go handle.serve(listener)

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	defer h.cancel()
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if closeErr := h.blobs.Close(); closeErr != nil {
		log.Printf("blob store close error: %v", closeErr)
	}
	h.err = err
}

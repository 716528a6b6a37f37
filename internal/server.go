package internal

import (
	"net"
	"net/http"
	"strings"
	"time"

	"huddle/internal/blob"
	"huddle/internal/chat"
)

// Server owns the websocket endpoint and the small HTTP API around the
// chat engine.
type Server struct {
	engine     *chat.Engine
	blobs      *blob.Store
	metrics    *Metrics
	apiLimiter *RateLimiter
	startedAt  time.Time
}

func NewServer(engine *chat.Engine, blobs *blob.Store, apiLimit int, apiWindow time.Duration) *Server {
	return &Server{
		engine:     engine,
		blobs:      blobs,
		metrics:    NewMetrics(),
		apiLimiter: NewRateLimiter(apiLimit, apiWindow),
		startedAt:  time.Now(),
	}
}

// Metrics exposes the counter set so the lifecycle wiring can record
// reaper sweeps.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// RegisterRoutes mounts the websocket endpoint and the HTTP API on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux, wsPath string) {
	mux.HandleFunc(wsPath, s.ServeWS)
	mux.HandleFunc("/", s.HandleIndex)
	mux.HandleFunc("/api/stats", s.HandleStats)
	mux.HandleFunc("/api/room/", s.HandleRoomExists)
	mux.HandleFunc("/api/files/", s.HandleFileDownload)
	mux.HandleFunc("/metrics", s.HandleMetrics)
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

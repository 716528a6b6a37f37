package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"huddle/internal/chat"
)

type indexResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Status      string `json:"status"`
	ActiveRooms int    `json:"activeRooms"`
	ActiveUsers int    `json:"activeUsers"`
	UptimeSec   int64  `json:"uptimeSeconds"`
	Timestamp   int64  `json:"timestamp"`
}

type roomExistsResponse struct {
	RoomID    string `json:"roomId"`
	Exists    bool   `json:"exists"`
	UserCount int    `json:"userCount"`
	MaxUsers  int    `json:"maxUsers"`
}

// HandleIndex serves a small liveness document at the root path.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	stats := s.engine.Stats()
	writeJSON(w, http.StatusOK, indexResponse{
		Name:        "huddle",
		Version:     Version,
		Status:      "online",
		ActiveRooms: stats.TotalRooms,
		ActiveUsers: stats.TotalUsers,
		UptimeSec:   int64(time.Since(s.startedAt).Seconds()),
		Timestamp:   time.Now().UnixMilli(),
	})
}

// HandleStats reports room and user totals. Rate limited because it walks
// every room.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.apiLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// HandleRoomExists answers GET /api/room/{id}/exists without joining or
// touching the room's activity clock.
func (s *Server) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.apiLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/room/")
	roomID, ok := strings.CutSuffix(rest, "/exists")
	if !ok || roomID == "" || strings.Contains(roomID, "/") {
		http.NotFound(w, r)
		return
	}
	roomID = strings.ToUpper(roomID)
	if !chat.ValidRoomID(roomID) {
		writeError(w, http.StatusBadRequest, errors.New("malformed room id"))
		return
	}
	resp := roomExistsResponse{RoomID: roomID}
	if info, err := s.engine.RoomInfo(roomID); err == nil {
		resp.Exists = true
		resp.UserCount = info.UserCount
		resp.MaxUsers = info.MaxUsers
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleFileDownload streams a stored attachment by handle.
func (s *Server) HandleFileDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	handle := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if handle == "" || strings.Contains(handle, "/") {
		http.NotFound(w, r)
		return
	}
	b, err := s.blobs.Get(r.Context(), handle)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if b == nil {
		http.NotFound(w, r)
		return
	}
	mime := b.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(b.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b.Data)
}

// HandleMetrics merges the transport counters with a live look at the
// engine.
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	stats := s.engine.Stats()
	payload := s.metrics.snapshot()
	payload["active_rooms"] = stats.TotalRooms
	payload["active_users"] = stats.TotalUsers
	if stored, err := s.blobs.Count(r.Context()); err == nil {
		payload["stored_files"] = stored
	}
	writeJSON(w, http.StatusOK, payload)
}

// WithCORS opens the API to browser clients on any origin.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

package app

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ServerConfig defines how the backend should run. Every field can be set
// through the environment with the HUDDLE_ prefix.
type ServerConfig struct {
	Addr          string        `envconfig:"ADDR" default:":8080"`
	WSPath        string        `envconfig:"WS_PATH" default:"/ws"`
	BlobPath      string        `envconfig:"BLOB_PATH"`
	IdleTTL       time.Duration `envconfig:"ROOM_IDLE_TTL" default:"1h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	APIRateLimit  int           `envconfig:"API_RATE_LIMIT" default:"60"`
	APIRateWindow time.Duration `envconfig:"API_RATE_WINDOW" default:"1m"`
}

// LoadConfig reads a .env file if one is present, then the environment.
func LoadConfig() (ServerConfig, error) {
	_ = godotenv.Load()
	var cfg ServerConfig
	if err := envconfig.Process("huddle", &cfg); err != nil {
		return ServerConfig{}, err
	}
	if cfg.BlobPath == "" {
		cfg.BlobPath = DefaultBlobPath()
	}
	return cfg, nil
}

// DefaultBlobPath returns a per-user data path for the attachment store.
func DefaultBlobPath() string {
	if env := os.Getenv("HUDDLE_DATA_DIR"); env != "" {
		return filepath.Join(env, "blobs.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "huddle", "blobs.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Huddle", "blobs.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Huddle", "blobs.db")
		}
		return filepath.Join(home, ".local", "share", "huddle", "blobs.db")
	}
	return filepath.Join(".", ".huddle", "blobs.db")
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}

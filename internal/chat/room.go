package chat

import (
	"strings"
	"time"
)

// Kind tags who authored a message and how the text should be rendered.
type Kind string

const (
	KindText   Kind = "text"
	KindFile   Kind = "file"
	KindSystem Kind = "system"
)

// SystemAuthor is the author name used for join/leave notices.
const SystemAuthor = "system"

// Settings are per-room and mutable by any member.
type Settings struct {
	MaxUsers   int  `json:"maxUsers"`
	AllowFiles bool `json:"allowFiles"`
	AllowVoice bool `json:"allowVoice"`
}

// SettingsPatch carries only the fields the client wants to change.
// Nil fields are left untouched (shallow merge).
type SettingsPatch struct {
	MaxUsers   *int  `json:"maxUsers"`
	AllowFiles *bool `json:"allowFiles"`
	AllowVoice *bool `json:"allowVoice"`
}

func defaultSettings() Settings {
	return Settings{MaxUsers: 10, AllowFiles: true, AllowVoice: false}
}

// FileMeta describes an attachment. The payload itself lives in the blob
// store; only the handle travels with the message so the log stays small.
type FileMeta struct {
	Name   string `json:"fileName"`
	Type   string `json:"fileType"`
	Size   int64  `json:"fileSize"`
	Handle string `json:"handle"`
}

// Message is one entry in a room's log. IDs are unique within the room
// and sort in append order.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Color     string    `json:"color,omitempty"`
	File      *FileMeta `json:"file,omitempty"`
}

// Member is a connection's presence inside one room.
type Member struct {
	ConnID   string    `json:"-"`
	Name     string    `json:"username"`
	Color    string    `json:"color"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Room holds everything the server knows about one chat room. The store
// owns all Room values; nothing outside the chat package mutates them.
type Room struct {
	ID           string
	Name         string
	Members      []Member
	Log          []Message
	Settings     Settings
	CreatedAt    time.Time
	LastActivity time.Time
	IsPublic     bool

	// IdleSince is set when the last member leaves and cleared on join.
	// The reaper uses it to decide when the room is eligible for deletion.
	IdleSince time.Time

	seq int64
}

func (r *Room) memberIndex(connID string) int {
	for i := range r.Members {
		if r.Members[i].ConnID == connID {
			return i
		}
	}
	return -1
}

func (r *Room) hasName(name string) bool {
	for i := range r.Members {
		if strings.EqualFold(r.Members[i].Name, name) {
			return true
		}
	}
	return false
}

// Tail returns the most recent n log entries in append order.
func (r *Room) Tail(n int) []Message {
	if n <= 0 || n >= len(r.Log) {
		n = len(r.Log)
	}
	tail := make([]Message, n)
	copy(tail, r.Log[len(r.Log)-n:])
	return tail
}

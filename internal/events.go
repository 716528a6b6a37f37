package internal

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"huddle/internal/chat"
)

// Envelope frames every websocket message in both directions as
// {"event": ..., "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound payload shapes. Required-field checks run at the boundary so a
// malformed frame becomes a validation error instead of a surprise deeper
// in the engine.

type createRoomPayload struct {
	Username string `json:"username" validate:"required"`
	RoomName string `json:"roomName"`
}

type joinRoomPayload struct {
	Username string `json:"username" validate:"required"`
	RoomID   string `json:"roomId" validate:"required"`
}

type sendMessagePayload struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type sendFilePayload struct {
	FileName string `json:"fileName" validate:"required"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize" validate:"gte=0"`
	FileData string `json:"fileData"`
}

type changeSettingsPayload struct {
	Settings chat.SettingsPatch `json:"settings"`
}

type roomInfoPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type roomCreatedReply struct {
	RoomID string `json:"roomId"`
}

var payloadValidator = validator.New()

// decodePayload unmarshals and validates one event payload. A missing
// data field decodes as an empty object so required-field validation does
// the rejecting.
func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return err
	}
	return payloadValidator.Struct(out)
}

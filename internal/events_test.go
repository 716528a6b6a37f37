package internal

import (
	"encoding/json"
	"testing"
)

func TestDecodePayloadRequiredFields(t *testing.T) {
	var create createRoomPayload
	if err := decodePayload(json.RawMessage(`{"username":"Alice","roomName":"Den"}`), &create); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if create.Username != "Alice" || create.RoomName != "Den" {
		t.Errorf("unexpected decode: %+v", create)
	}

	create = createRoomPayload{}
	if err := decodePayload(json.RawMessage(`{"roomName":"Den"}`), &create); err == nil {
		t.Error("missing username should fail validation")
	}

	var join joinRoomPayload
	if err := decodePayload(json.RawMessage(`{"username":"Bob"}`), &join); err == nil {
		t.Error("missing roomId should fail validation")
	}
}

func TestDecodePayloadEmptyData(t *testing.T) {
	// absent data decodes as an empty object, so required fields reject it
	var info roomInfoPayload
	if err := decodePayload(nil, &info); err == nil {
		t.Error("empty payload should fail required-field validation")
	}

	// but a payload with no required fields passes
	var msg sendMessagePayload
	if err := decodePayload(nil, &msg); err != nil {
		t.Errorf("empty send-message payload should decode: %v", err)
	}
}

func TestDecodePayloadFileShape(t *testing.T) {
	var file sendFilePayload
	raw := json.RawMessage(`{"fileName":"cat.png","fileType":"image/png","fileSize":-5}`)
	if err := decodePayload(raw, &file); err == nil {
		t.Error("negative declared size should fail validation")
	}

	raw = json.RawMessage(`{"fileName":"cat.png","fileType":"image/png","fileSize":12,"fileData":"abc"}`)
	if err := decodePayload(raw, &file); err != nil {
		t.Fatalf("valid file payload rejected: %v", err)
	}
}

func TestDecodePayloadMalformedJSON(t *testing.T) {
	var create createRoomPayload
	if err := decodePayload(json.RawMessage(`{"username":`), &create); err == nil {
		t.Error("truncated json should fail")
	}
}

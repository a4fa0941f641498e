package protocol

import (
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	frame, err := Encode(EventJoinChat, JoinChatPayload{ChatID: "c1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Event != EventJoinChat {
		t.Fatalf("expected %s, got %s", EventJoinChat, env.Event)
	}
	if string(env.Data) != `{"chatId":"c1"}` {
		t.Fatalf("unexpected payload: %s", env.Data)
	}
}

func TestEncodeWithoutPayload(t *testing.T) {
	frame, err := Encode(EventChatError, nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 0 {
		t.Fatalf("expected empty payload, got %s", env.Data)
	}
}

func TestDecodeRejectsMissingEvent(t *testing.T) {
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected error for envelope without event")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

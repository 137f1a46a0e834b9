package domain

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeKeepsPayloadsOpaque(t *testing.T) {
	raw := `{"type":"offer","roomId":"r1","offer":{"type":"offer","sdp":"v=0\r\n","extensions":{"x":1}}}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != MsgOffer || env.RoomID != "r1" {
		t.Fatalf("head fields wrong: %+v", env)
	}
	want := `{"type":"offer","sdp":"v=0\r\n","extensions":{"x":1}}`
	if string(env.Offer) != want {
		t.Fatalf("offer body re-interpreted:\n want %s\n got %s", want, env.Offer)
	}
}

func TestNewRoomIDDistinct(t *testing.T) {
	if NewRoomID() == NewRoomID() {
		t.Fatal("consecutive room ids collided")
	}
	if len(NewRoomID()) != 36 {
		t.Fatal("room id is not a uuid string")
	}
}

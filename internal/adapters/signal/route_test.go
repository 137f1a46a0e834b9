package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("undecodable outbound frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := c.decoded(t)
	if len(msgs) == 0 {
		t.Fatal("no outbound frames")
	}
	return msgs[len(msgs)-1]
}

func newTestController() (*SignalWSController, *app.Registry, *app.RoomManager) {
	cfg := &config.Config{
		MaxRooms:    100,
		StunServers: []string{"stun:stun.example.org:3478"},
	}
	reg := app.NewRegistry()
	rooms := app.NewRoomManager(cfg.MaxRooms)
	return NewSignalWSController(cfg, reg, rooms), reg, rooms
}

func bind(reg *app.Registry, id core.ConnID) *fakeConn {
	c := &fakeConn{}
	reg.Bind(id, c, nil)
	return c
}

func createRoom(t *testing.T, ctl *SignalWSController, id core.ConnID, c *fakeConn) string {
	t.Helper()
	ctl.handleFrame(id, c, core.Frame(`{"type":"create-room"}`))
	msg := c.last(t)
	if msg["type"] != "room-created" {
		t.Fatalf("want room-created, got %v", msg)
	}
	roomID, _ := msg["roomId"].(string)
	if roomID == "" {
		t.Fatalf("room-created without roomId: %v", msg)
	}
	return roomID
}

func joinRoom(t *testing.T, ctl *SignalWSController, id core.ConnID, c *fakeConn, roomID string) {
	t.Helper()
	ctl.handleFrame(id, c, core.Frame(fmt.Sprintf(`{"type":"join-room","roomId":%q}`, roomID)))
}

func TestCallSetupScenario(t *testing.T) {
	ctl, reg, rooms := newTestController()
	a := bind(reg, "A")
	b := bind(reg, "B")

	roomID := createRoom(t, ctl, "A", a)

	joinRoom(t, ctl, "B", b, roomID)
	if msg := b.last(t); msg["type"] != "room-joined" || msg["roomId"] != roomID {
		t.Fatalf("B: want room-joined for %s, got %v", roomID, msg)
	}
	if msg := a.last(t); msg["type"] != "peer-joined" {
		t.Fatalf("A: want peer-joined, got %v", msg)
	}

	// The offer reaches B exactly as A sent it, opaque payload included.
	offer := core.Frame(fmt.Sprintf(`{"type":"offer","roomId":%q,"offer":{"type":"offer","sdp":"v=0\r\no=- 46117 2 IN IP4 127.0.0.1"}}`, roomID))
	before := b.count()
	ctl.handleFrame("A", a, offer)
	if b.count() != before+1 {
		t.Fatalf("B: want one relayed frame, got %d new", b.count()-before)
	}
	b.mu.Lock()
	relayed := b.frames[len(b.frames)-1]
	b.mu.Unlock()
	if !bytes.Equal(relayed, offer) {
		t.Fatalf("relay not verbatim:\n sent %s\n got %s", offer, relayed)
	}

	// B drops its transport. A hears about it once; the room survives with
	// A alone and dies when A goes too.
	ctl.disconnect("B", b)
	if msg := a.last(t); msg["type"] != "peer-left" {
		t.Fatalf("A: want peer-left, got %v", msg)
	}
	if !b.closed {
		t.Fatal("disconnect must close the transport")
	}
	if n, ok := rooms.Occupants(domain.RoomID(roomID)); !ok || n != 1 {
		t.Fatalf("room should hold A alone, got %d (exists=%v)", n, ok)
	}

	ctl.disconnect("A", a)
	if rooms.RoomCount() != 0 {
		t.Fatalf("emptied room must be gone, %d remain", rooms.RoomCount())
	}
}

func TestJoinNonexistentRoom(t *testing.T) {
	ctl, reg, rooms := newTestController()
	c := bind(reg, "A")

	joinRoom(t, ctl, "A", c, "nonexistent")
	msg := c.last(t)
	if msg["type"] != "error" || msg["message"] != "Room not found" {
		t.Fatalf("want error 'Room not found', got %v", msg)
	}
	if rooms.RoomCount() != 0 {
		t.Fatal("failed join must not create or mutate rooms")
	}
}

func TestJoinFullRoom(t *testing.T) {
	ctl, reg, _ := newTestController()
	a := bind(reg, "A")
	b := bind(reg, "B")
	c := bind(reg, "C")

	roomID := createRoom(t, ctl, "A", a)
	joinRoom(t, ctl, "B", b, roomID)

	joinRoom(t, ctl, "C", c, roomID)
	msg := c.last(t)
	if msg["type"] != "error" || msg["message"] != "Room is full" {
		t.Fatalf("want error 'Room is full', got %v", msg)
	}
}

func TestJoinWhileAlreadyInRoom(t *testing.T) {
	ctl, reg, _ := newTestController()
	a := bind(reg, "A")
	b := bind(reg, "B")

	roomA := createRoom(t, ctl, "A", a)
	roomB := createRoom(t, ctl, "B", b)

	for _, target := range []string{roomB, roomA} {
		joinRoom(t, ctl, "A", a, target)
		msg := a.last(t)
		if msg["type"] != "error" || msg["message"] != "You are already in a room" {
			t.Fatalf("join %s: want error 'You are already in a room', got %v", target, msg)
		}
	}
}

func TestMalformedInput(t *testing.T) {
	ctl, reg, _ := newTestController()
	c := bind(reg, "A")

	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"broken json", `{"type":`, "Invalid message format"},
		{"missing type", `{"roomId":"r"}`, "Missing message type"},
		{"unknown type", `{"type":"bogus"}`, "Unknown message type: bogus"},
		{"join without roomId", `{"type":"join-room"}`, "Missing roomId"},
		{"leave without roomId", `{"type":"leave-room"}`, "Missing roomId"},
		{"offer without roomId", `{"type":"offer","offer":{}}`, "Missing roomId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl.handleFrame("A", c, core.Frame(tc.frame))
			msg := c.last(t)
			if msg["type"] != "error" || msg["message"] != tc.want {
				t.Fatalf("want error %q, got %v", tc.want, msg)
			}
		})
	}
}

func TestForwardOneToOne(t *testing.T) {
	ctl, reg, _ := newTestController()
	a := bind(reg, "A")
	b := bind(reg, "B")
	outsider := bind(reg, "Z")

	roomID := createRoom(t, ctl, "A", a)
	joinRoom(t, ctl, "B", b, roomID)

	aBefore, bBefore, zBefore := a.count(), b.count(), outsider.count()
	ctl.handleFrame("B", b, core.Frame(fmt.Sprintf(`{"type":"candidate","roomId":%q,"candidate":{"candidate":"candidate:1 1 UDP 2122252543 192.0.2.1 54400 typ host"}}`, roomID)))

	if a.count() != aBefore+1 {
		t.Fatalf("A: want exactly one relayed frame, got %d new", a.count()-aBefore)
	}
	if b.count() != bBefore {
		t.Fatal("sender must never receive its own signal back")
	}
	if outsider.count() != zBefore {
		t.Fatal("clients outside the room must receive nothing")
	}
}

func TestForwardSilentDrops(t *testing.T) {
	ctl, reg, _ := newTestController()
	a := bind(reg, "A")
	stranger := bind(reg, "S")

	roomID := createRoom(t, ctl, "A", a)
	aBefore, sBefore := a.count(), stranger.count()

	// No second occupant yet.
	ctl.handleFrame("A", a, core.Frame(fmt.Sprintf(`{"type":"offer","roomId":%q,"offer":{}}`, roomID)))
	// Sender is not an occupant.
	ctl.handleFrame("S", stranger, core.Frame(fmt.Sprintf(`{"type":"offer","roomId":%q,"offer":{}}`, roomID)))
	// Room does not exist.
	ctl.handleFrame("S", stranger, core.Frame(`{"type":"answer","roomId":"gone","answer":{}}`))

	if a.count() != aBefore || stranger.count() != sBefore {
		t.Fatal("undeliverable signals must drop silently, no error envelopes")
	}
}

func TestLeaveThenDisconnectNotifiesOnce(t *testing.T) {
	ctl, reg, _ := newTestController()
	a := bind(reg, "A")
	b := bind(reg, "B")

	roomID := createRoom(t, ctl, "A", a)
	joinRoom(t, ctl, "B", b, roomID)
	aBefore := a.count()

	ctl.handleFrame("B", b, core.Frame(fmt.Sprintf(`{"type":"leave-room","roomId":%q}`, roomID)))
	ctl.disconnect("B", b)

	var peerLefts int
	for _, msg := range a.decoded(t)[aBefore:] {
		if msg["type"] == "peer-left" {
			peerLefts++
		}
	}
	if peerLefts != 1 {
		t.Fatalf("want exactly one peer-left for B's departure, got %d", peerLefts)
	}
}

func TestCreateWhileInRoomVacates(t *testing.T) {
	ctl, reg, rooms := newTestController()
	a := bind(reg, "A")
	b := bind(reg, "B")

	first := createRoom(t, ctl, "A", a)
	joinRoom(t, ctl, "B", b, first)
	bBefore := b.count()

	second := createRoom(t, ctl, "A", a)
	if second == first {
		t.Fatal("new create must mint a new room id")
	}
	if msg := b.last(t); msg["type"] != "peer-left" {
		t.Fatalf("B: want peer-left after A moved on, got %v", msg)
	}
	if b.count() != bBefore+1 {
		t.Fatalf("B: want exactly one notification, got %d new", b.count()-bBefore)
	}
	if n, _ := rooms.Occupants(domain.RoomID(first)); n != 1 {
		t.Fatalf("old room should keep B alone, got %d", n)
	}
}

func TestPingPong(t *testing.T) {
	ctl, reg, _ := newTestController()
	c := bind(reg, "A")

	ctl.handleFrame("A", c, core.Frame(`{"type":"ping"}`))
	if msg := c.last(t); msg["type"] != "pong" {
		t.Fatalf("want pong, got %v", msg)
	}
}

func TestRoomCap(t *testing.T) {
	cfg := &config.Config{MaxRooms: 1}
	reg := app.NewRegistry()
	ctl := NewSignalWSController(cfg, reg, app.NewRoomManager(cfg.MaxRooms))
	a := bind(reg, "A")
	b := bind(reg, "B")

	createRoom(t, ctl, "A", a)
	ctl.handleFrame("B", b, core.Frame(`{"type":"create-room"}`))
	if msg := b.last(t); msg["type"] != "error" || msg["message"] != "Maximum rooms reached" {
		t.Fatalf("want error 'Maximum rooms reached', got %v", msg)
	}
}

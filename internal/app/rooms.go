package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// RoomManager owns the room table and the reverse index from connection to
// room. Both maps mutate under one mutex so that a join racing a leave, or
// a disconnect racing an explicit leave, always observes a consistent pair.
// No other component touches the tables directly.
type RoomManager struct {
	mu       sync.Mutex
	rooms    map[domain.RoomID]map[core.ConnID]struct{}
	byConn   map[core.ConnID]domain.RoomID
	maxRooms int
}

// NewRoomManager creates an empty manager. maxRooms caps concurrently live
// rooms; zero or negative means unlimited.
func NewRoomManager(maxRooms int) *RoomManager {
	return &RoomManager{
		rooms:    make(map[domain.RoomID]map[core.ConnID]struct{}),
		byConn:   make(map[core.ConnID]domain.RoomID),
		maxRooms: maxRooms,
	}
}

// CreateRoom makes a fresh room occupied by creator alone and returns its
// id. A creator still occupying another room vacates it first; prevPeer is
// the occupant it left behind there, if any, and owes a peer-left.
func (m *RoomManager) CreateRoom(creator core.ConnID) (id domain.RoomID, prevPeer core.ConnID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The implicit vacate frees a slot when the creator sits alone in its
	// current room, so count that before enforcing the cap.
	current, inRoom := m.byConn[creator]
	frees := inRoom && len(m.rooms[current]) == 1
	if m.maxRooms > 0 && len(m.rooms) >= m.maxRooms && !frees {
		return "", "", domain.ErrTooManyRooms
	}

	if inRoom {
		prevPeer, _ = m.removeLocked(creator, current)
	}

	id = domain.NewRoomID()
	m.rooms[id] = map[core.ConnID]struct{}{creator: {}}
	m.byConn[creator] = id
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(creator)).Int("rooms", len(m.rooms)).Msg("room created")
	return id, prevPeer, nil
}

// JoinRoom adds who to the room and returns the occupant already there, so
// the caller can notify it. Failures resolve in order: unknown room, full
// room, requester already occupying a room. A connection occupies at most
// one room at a time; re-joining the current room is rejected too.
func (m *RoomManager) JoinRoom(who core.ConnID, id domain.RoomID) (peer core.ConnID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	occ, ok := m.rooms[id]
	if !ok {
		return "", domain.ErrRoomNotFound
	}
	if len(occ) >= domain.RoomCapacity {
		return "", domain.ErrRoomFull
	}
	if _, ok := m.byConn[who]; ok {
		return "", domain.ErrAlreadyInRoom
	}

	for c := range occ {
		peer = c
	}
	occ[who] = struct{}{}
	m.byConn[who] = id
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(who)).Int("occupants", len(occ)).Msg("joined room")
	return peer, nil
}

// LeaveRoom removes who from the room. Idempotent: an unknown room or a
// non-occupant is a no-op, since disconnect cleanup races are expected.
// peer is the remaining occupant to notify; left reports whether this call
// was the one that actually removed who, so each departure notifies at
// most once.
func (m *RoomManager) LeaveRoom(who core.ConnID, id domain.RoomID) (peer core.ConnID, left bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(who, id)
}

// LeaveByConnection runs leave logic for an abruptly closed connection,
// using the reverse index to find its room. No-op when who occupies none.
func (m *RoomManager) LeaveByConnection(who core.ConnID) (peer core.ConnID, left bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byConn[who]
	if !ok {
		return "", false
	}
	return m.removeLocked(who, id)
}

func (m *RoomManager) removeLocked(who core.ConnID, id domain.RoomID) (peer core.ConnID, left bool) {
	occ, ok := m.rooms[id]
	if !ok {
		return "", false
	}
	if _, ok := occ[who]; !ok {
		return "", false
	}
	delete(occ, who)
	delete(m.byConn, who)

	if len(occ) == 0 {
		delete(m.rooms, id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
		return "", true
	}
	for c := range occ {
		peer = c
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(who)).Msg("left room")
	return peer, true
}

// PeerOf returns the other occupant of the room, for relaying a signaling
// frame. ok is false when the room is gone, who is not an occupant, or who
// is alone; the recipient comes from membership only, never from anything
// the client asserted.
func (m *RoomManager) PeerOf(who core.ConnID, id domain.RoomID) (peer core.ConnID, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	occ, found := m.rooms[id]
	if !found {
		return "", false
	}
	if _, found := occ[who]; !found {
		return "", false
	}
	for c := range occ {
		if c != who {
			return c, true
		}
	}
	return "", false
}

// RoomOf reports which room a connection currently occupies.
func (m *RoomManager) RoomOf(who core.ConnID) (domain.RoomID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byConn[who]
	return id, ok
}

func (m *RoomManager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Occupants reports the occupant count of a room, and whether it exists.
func (m *RoomManager) Occupants(id domain.RoomID) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	occ, ok := m.rooms[id]
	return len(occ), ok
}

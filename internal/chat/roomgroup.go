package chat

import "sync"

// RoomGroup is the process-wide registry of live named rooms. The
// invariant group.members(name) == r holds for every room r currently
// alive; rooms with zero members never appear here.
type RoomGroup struct {
	mu    sync.Mutex
	rooms map[string]*Room
	null  *Room
}

// NewRoomGroup constructs an empty registry with its null-room
// singleton.
func NewRoomGroup() *RoomGroup {
	g := &RoomGroup{rooms: make(map[string]*Room)}
	g.null = newRoom("", g)
	return g
}

// NullRoom returns the singleton room for unrouted connections.
func (g *RoomGroup) NullRoom() *Room { return g.null }

// Lookup returns the named room if it currently exists, without
// creating it.
func (g *RoomGroup) Lookup(name string) (*Room, bool) {
	if name == "" {
		return g.null, true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[name]
	return r, ok
}

// findOrCreateLocked returns the named room, creating it if absent.
// Caller must hold g.mu.
func (g *RoomGroup) findOrCreateLocked(name string) *Room {
	if r, ok := g.rooms[name]; ok {
		return r
	}
	r := newRoom(name, g)
	g.rooms[name] = r
	return r
}

// AllClients returns every currently connected client across every
// room, including the null room. Used only by server shutdown to
// notify everyone before severing sockets.
func (g *RoomGroup) AllClients() []*Client {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms)+1)
	rooms = append(rooms, g.null)
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	var out []*Client
	for _, r := range rooms {
		r.mu.Lock()
		r.forEachLocked(func(c *Client) { out = append(out, c) })
		r.mu.Unlock()
	}
	return out
}

// dropIfEmptyLocked removes r from the registry if it has become
// empty. Caller must hold g.mu. The null room is never removed.
func (g *RoomGroup) dropIfEmptyLocked(r *Room) {
	if r.IsNull() {
		return
	}
	r.mu.Lock()
	empty := len(r.members) == 0
	r.mu.Unlock()
	if !empty {
		return
	}
	if current, ok := g.rooms[r.Name]; ok && current == r {
		delete(g.rooms, r.Name)
	}
}

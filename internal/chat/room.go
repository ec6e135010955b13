package chat

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrNoSuchRoom is returned by operations that require a named room
// (e.g. broadcasting on the null room).
var ErrNoSuchRoom = errors.New("chat: no such room")

// ErrNoSuchMember is returned by SendUnicast when the target
// ConnectionID is not currently a member of the room.
var ErrNoSuchMember = errors.New("chat: no such member")

// Member is a snapshot of a single room occupant, returned by
// Room.Snapshot.
type Member struct {
	UID  string `json:"uid"`
	Nick string `json:"nick"`
}

// Room is a named set of connected clients sharing a broadcast channel.
// A Room with an empty Name is the null room: singleton, broadcast
// always fails on it, unicast is still permitted.
type Room struct {
	Name      string
	CreatedAt time.Time

	group *RoomGroup

	mu      sync.Mutex
	members map[uint64]*Client
}

func newRoom(name string, group *RoomGroup) *Room {
	return &Room{
		Name:      name,
		CreatedAt: time.Now(),
		group:     group,
		members:   make(map[uint64]*Client),
	}
}

// IsNull reports whether r is the null room.
func (r *Room) IsNull() bool { return r.Name == "" }

// Snapshot returns a consistent view of current members under the
// room's lock.
func (r *Room) Snapshot() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, 0, len(r.members))
	for id, c := range r.members {
		out = append(out, Member{UID: strconv.FormatUint(id, 10), Nick: c.Nick()})
	}
	return out
}

// Members returns the number of currently connected clients.
func (r *Room) Members() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// hasLocked reports whether client is already a member, without taking the
// lock twice from callers that already hold it.
func (r *Room) hasLocked(id uint64) bool {
	_, ok := r.members[id]
	return ok
}

// addLocked inserts client into the membership set. Caller holds r.mu.
func (r *Room) addLocked(c *Client) {
	r.members[c.ConnectionID] = c
}

// removeLocked deletes a client from the membership set and reports
// whether the room is now empty. Caller holds r.mu.
func (r *Room) removeLocked(id uint64) bool {
	delete(r.members, id)
	return len(r.members) == 0
}

// forEachLocked invokes fn for every current member. Caller holds r.mu.
// Broadcasts never take a Client's own lock, only push to its queue, so
// it is safe to hold the room lock for the whole scan.
func (r *Room) forEachLocked(fn func(*Client)) {
	for _, c := range r.members {
		fn(c)
	}
}

// memberLocked looks up a member by ConnectionID. Caller holds r.mu.
func (r *Room) memberLocked(id uint64) (*Client, bool) {
	c, ok := r.members[id]
	return c, ok
}

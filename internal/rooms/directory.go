package rooms

import (
	"hash/fnv"
	"sync"
)

// shardCount trades memory for contention: joins/leaves for the same room
// always serialize on the same shard, while unrelated rooms almost always
// proceed in parallel.
const shardCount = 32

type memberSet map[string]struct{}

type roomShard struct {
	mu    sync.Mutex
	rooms map[string]memberSet
}

type identityShard struct {
	mu sync.Mutex
	// occupied maps an identity to the set of room ids it is currently in.
	// This is the reverse index used for disconnect cleanup; it is maintained
	// alongside every forward mutation so cleanup never scans all rooms.
	occupied map[string]memberSet
}

// Directory is the sole owner of the room -> members mapping.
//
// A room exists if and only if it has at least one member: rooms are created
// implicitly by the first Join and deleted implicitly when the last member
// leaves. There is no explicit create/destroy operation.
//
// All methods are safe for concurrent use. Mutations for the same room are
// serialized per shard rather than behind a single directory-wide lock.
type Directory struct {
	byRoom     [shardCount]roomShard
	byIdentity [shardCount]identityShard
}

func NewDirectory() *Directory {
	d := &Directory{}
	for i := range d.byRoom {
		d.byRoom[i].rooms = make(map[string]memberSet)
	}
	for i := range d.byIdentity {
		d.byIdentity[i].occupied = make(map[string]memberSet)
	}
	return d
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// Join adds identity to the room, creating the room if it does not exist yet,
// and returns the member set as it existed immediately before this join.
//
// The pre-join snapshot is what the joining peer is told to send offers to:
// the newcomer always initiates toward pre-existing members, which is the
// tie-break that avoids signaling glare. Re-joining a room the identity is
// already in is a no-op beyond returning the current other members.
func (d *Directory) Join(roomID, identity string) []string {
	rs := &d.byRoom[shardIndex(roomID)]

	rs.mu.Lock()
	members, ok := rs.rooms[roomID]
	if !ok {
		members = make(memberSet)
		rs.rooms[roomID] = members
	}
	existing := make([]string, 0, len(members))
	for id := range members {
		if id != identity {
			existing = append(existing, id)
		}
	}
	members[identity] = struct{}{}
	rs.mu.Unlock()

	is := &d.byIdentity[shardIndex(identity)]
	is.mu.Lock()
	occupied, ok := is.occupied[identity]
	if !ok {
		occupied = make(memberSet)
		is.occupied[identity] = occupied
	}
	occupied[roomID] = struct{}{}
	is.mu.Unlock()

	return existing
}

// Leave removes identity from the room and deletes the room when its member
// set becomes empty. It reports whether the identity was actually a member;
// a second leave for the same pair (a normal consequence of disconnect races)
// is a no-op and returns false, so callers can suppress duplicate broadcasts.
func (d *Directory) Leave(roomID, identity string) bool {
	rs := &d.byRoom[shardIndex(roomID)]

	rs.mu.Lock()
	members, ok := rs.rooms[roomID]
	removed := false
	if ok {
		if _, wasMember := members[identity]; wasMember {
			delete(members, identity)
			removed = true
		}
		if len(members) == 0 {
			delete(rs.rooms, roomID)
		}
	}
	rs.mu.Unlock()

	is := &d.byIdentity[shardIndex(identity)]
	is.mu.Lock()
	if occupied, ok := is.occupied[identity]; ok {
		delete(occupied, roomID)
		if len(occupied) == 0 {
			delete(is.occupied, identity)
		}
	}
	is.mu.Unlock()

	return removed
}

// RoomsContaining returns every room the identity currently occupies. The
// protocol only ever puts a connection in one room, but the directory does
// not assume that cardinality.
func (d *Directory) RoomsContaining(identity string) []string {
	is := &d.byIdentity[shardIndex(identity)]

	is.mu.Lock()
	defer is.mu.Unlock()

	occupied := is.occupied[identity]
	out := make([]string, 0, len(occupied))
	for roomID := range occupied {
		out = append(out, roomID)
	}
	return out
}

// Members returns the current member set of the room, or nil if the room does
// not exist.
func (d *Directory) Members(roomID string) []string {
	rs := &d.byRoom[shardIndex(roomID)]

	rs.mu.Lock()
	defer rs.mu.Unlock()

	members, ok := rs.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Exists reports whether the room is present in the directory.
func (d *Directory) Exists(roomID string) bool {
	rs := &d.byRoom[shardIndex(roomID)]

	rs.mu.Lock()
	defer rs.mu.Unlock()

	_, ok := rs.rooms[roomID]
	return ok
}

// RoomCount returns the number of live rooms across all shards.
func (d *Directory) RoomCount() int {
	n := 0
	for i := range d.byRoom {
		rs := &d.byRoom[i]
		rs.mu.Lock()
		n += len(rs.rooms)
		rs.mu.Unlock()
	}
	return n
}

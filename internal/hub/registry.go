package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
)

// ReleaseFunc runs when a broadcaster's claim is released by leave or
// disconnect. It is called with the room write lock held and receives the
// room state after the release and the remaining members. It must not call
// back into the Registry for the same room.
type ReleaseFunc func(ctx context.Context, state RoomState, previous Claim, members []*Connection)

// CommitFunc completes a live transition. It has the same locking contract
// as ReleaseFunc.
type CommitFunc func(ctx context.Context, state RoomState, members []*Connection)

// FanoutOptions controls who may publish and who receives.
type FanoutOptions struct {
	// RequireMember rejects publishers that are not in the room.
	RequireMember bool
	// RequireClaim rejects publishers that do not hold the broadcaster claim.
	RequireClaim bool
	// ExcludeSender skips the publisher's own connection.
	ExcludeSender bool
}

// FanoutResult tallies one fan-out.
type FanoutResult struct {
	Delivered     int
	EvictedFrames int
	Rejected      int
}

// Registry owns every live room on this instance.
// Lock order: Registry.mu, then Room.mu, then Connection.mu.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[string]*Room
	onRelease ReleaseFunc
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// SetReleaseHook installs fn. Call before serving traffic.
func (r *Registry) SetReleaseHook(fn ReleaseFunc) {
	r.onRelease = fn
}

func (r *Registry) lookup(roomID string) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

func (r *Registry) getOrCreate(roomID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		return room, false
	}
	room := newRoom(roomID)
	r.rooms[roomID] = room
	return room, true
}

// Join adds c to roomID, creating the room if needed. It reports whether
// the room was created by this call. Joining twice is a no-op.
func (r *Registry) Join(c *Connection, roomID string) bool {
	for {
		room, created := r.getOrCreate(roomID)

		room.mu.Lock()
		if room.evicted {
			room.mu.Unlock()
			continue
		}
		room.members[c.ID] = c
		c.addRoom(roomID)
		room.mu.Unlock()

		return created
	}
}

// Leave removes c from roomID. It releases the broadcaster claim if c held
// it and reports whether the room was evicted as a result.
func (r *Registry) Leave(ctx context.Context, c *Connection, roomID string) bool {
	room := r.lookup(roomID)
	if room == nil {
		c.removeRoom(roomID)
		return false
	}

	room.mu.Lock()
	if _, ok := room.members[c.ID]; !ok {
		room.mu.Unlock()
		c.removeRoom(roomID)
		return false
	}
	delete(room.members, c.ID)
	c.removeRoom(roomID)

	if room.claimedBy(c) {
		previous := *room.claim
		room.claim = nil
		room.live = false
		if r.onRelease != nil {
			r.onRelease(ctx, room.stateLocked(), previous, room.membersLocked())
		}
	}
	idle := room.idleLocked()
	room.mu.Unlock()

	if !idle {
		return false
	}
	return r.evictIfIdle(room)
}

// LeaveAll removes c from every room it belongs to and returns the ids of
// rooms that were evicted.
func (r *Registry) LeaveAll(ctx context.Context, c *Connection) []string {
	var evicted []string
	for _, roomID := range c.Rooms() {
		if r.Leave(ctx, c, roomID) {
			evicted = append(evicted, roomID)
		}
	}
	return evicted
}

func (r *Registry) evictIfIdle(room *Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.evicted || !room.idleLocked() || r.rooms[room.id] != room {
		return false
	}
	room.evicted = true
	delete(r.rooms, room.id)
	return true
}

// MembersOf returns a snapshot of the room's members, sorted by id.
func (r *Registry) MembersOf(roomID string) []*Connection {
	room := r.lookup(roomID)
	if room == nil {
		return nil
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.membersLocked()
}

// ClaimBroadcaster makes c the broadcaster of roomID without changing the
// live flag.
func (r *Registry) ClaimBroadcaster(c *Connection, roomID string) error {
	room := r.lookup(roomID)
	if room == nil {
		return domain.ErrUnknownRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if err := room.authorizeClaimLocked(c); err != nil {
		return err
	}
	room.claim = claimFor(c)
	return nil
}

// Transition sets the live flag of roomID on behalf of c. Going live claims
// the room; going offline releases the claim. commit runs before the room
// lock is released so nothing published afterwards can overtake it.
func (r *Registry) Transition(ctx context.Context, c *Connection, roomID string, live bool, commit CommitFunc) error {
	room := r.lookup(roomID)
	if room == nil {
		return domain.ErrUnknownRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if err := room.authorizeClaimLocked(c); err != nil {
		return err
	}

	if live {
		room.claim = claimFor(c)
	} else {
		room.claim = nil
	}
	room.live = live

	if commit != nil {
		commit(ctx, room.stateLocked(), room.membersLocked())
	}
	return nil
}

// Fanout enqueues data for the members of roomID on behalf of from. from
// may be nil for messages that do not originate from a connection.
func (r *Registry) Fanout(roomID string, from *Connection, opts FanoutOptions, class Class, data []byte) (FanoutResult, error) {
	var res FanoutResult

	room := r.lookup(roomID)
	if room == nil {
		return res, domain.ErrUnknownRoom
	}

	room.mu.RLock()
	defer room.mu.RUnlock()

	if room.evicted || len(room.members) == 0 {
		return res, domain.ErrUnknownRoom
	}
	if opts.RequireMember {
		if from == nil {
			return res, domain.ErrNotMember
		}
		if _, ok := room.members[from.ID]; !ok {
			return res, domain.ErrNotMember
		}
	}
	if opts.RequireClaim && !room.claimedBy(from) {
		return res, domain.ErrNotAuthorized
	}

	for id, m := range room.members {
		if opts.ExcludeSender && from != nil && id == from.ID {
			continue
		}
		pr := m.Enqueue(class, data)
		switch {
		case !pr.Accepted:
			res.Rejected++
		default:
			res.Delivered++
		}
		if pr.EvictedFrame {
			res.EvictedFrames++
		}
	}
	return res, nil
}

// State returns a snapshot of roomID.
func (r *Registry) State(roomID string) (RoomState, bool) {
	room := r.lookup(roomID)
	if room == nil {
		return RoomState{}, false
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	if room.evicted {
		return RoomState{}, false
	}
	return room.stateLocked(), true
}

// Rooms returns the ids of all registered rooms, sorted.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

package hub

import (
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
)

// Claim identifies the connection currently broadcasting into a room.
type Claim struct {
	ConnectionID string
	UserID       string
	DisplayName  string
}

// RoomState is a point-in-time view of a room.
type RoomState struct {
	ID          string
	Live        bool
	Broadcaster *Claim
	MemberCount int
}

// Room is a live session keyed by stream id. All fields are guarded by mu.
// A room flagged evicted has been removed from the registry and must not
// accept new members.
type Room struct {
	id      string
	mu      sync.RWMutex
	live    bool
	claim   *Claim
	members map[string]*Connection
	evicted bool
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[string]*Connection),
	}
}

func (r *Room) stateLocked() RoomState {
	st := RoomState{
		ID:          r.id,
		Live:        r.live,
		MemberCount: len(r.members),
	}
	if r.claim != nil {
		c := *r.claim
		st.Broadcaster = &c
	}
	return st
}

func (r *Room) membersLocked() []*Connection {
	out := make([]*Connection, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Room) claimedBy(c *Connection) bool {
	return c != nil && r.claim != nil && r.claim.ConnectionID == c.ID
}

func (r *Room) idleLocked() bool {
	return len(r.members) == 0 && r.claim == nil
}

// authorizeClaimLocked checks that c may hold the broadcaster claim.
func (r *Room) authorizeClaimLocked(c *Connection) error {
	if r.evicted {
		return domain.ErrUnknownRoom
	}
	if _, ok := r.members[c.ID]; !ok {
		return domain.ErrNotMember
	}
	if !c.Principal.CanBroadcast {
		return domain.ErrNotAuthorized
	}
	if r.claim != nil && !r.claimedBy(c) {
		return domain.ErrNotAuthorized
	}
	return nil
}

func claimFor(c *Connection) *Claim {
	return &Claim{
		ConnectionID: c.ID,
		UserID:       c.Principal.UserID,
		DisplayName:  c.Principal.DisplayName,
	}
}

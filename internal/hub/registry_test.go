package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
)

func newTestConn(id string, canBroadcast bool) *Connection {
	return NewConnection(id, domain.Principal{
		UserID:       "user-" + id,
		DisplayName:  "name-" + id,
		CanBroadcast: canBroadcast,
	}, nil, config.WebSocketConfig{}, config.RelayConfig{FrameQueueSize: 64, ControlQueueSize: 1024})
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newTestConn("a", false)

	require.True(t, reg.Join(c, "1"))
	require.False(t, reg.Join(c, "1"))

	require.Len(t, reg.MembersOf("1"), 1)
	require.Equal(t, []string{"1"}, c.Rooms())
	require.Equal(t, 1, reg.Len())
}

func TestRegistry_LeaveEvictsEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	a := newTestConn("a", false)
	b := newTestConn("b", false)
	ctx := context.Background()

	reg.Join(a, "1")
	reg.Join(b, "1")

	require.False(t, reg.Leave(ctx, a, "1"))
	require.False(t, a.InRoom("1"))
	require.True(t, reg.Leave(ctx, b, "1"))

	_, ok := reg.State("1")
	require.False(t, ok)
	require.Empty(t, reg.Rooms())

	// Leaving again is harmless.
	require.False(t, reg.Leave(ctx, b, "1"))
}

func TestRegistry_RecreatedRoomStartsOffline(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	s := newTestConn("s", true)

	reg.Join(s, "1")
	require.NoError(t, reg.Transition(ctx, s, "1", true, nil))
	require.True(t, reg.Leave(ctx, s, "1"))

	v := newTestConn("v", false)
	require.True(t, reg.Join(v, "1"))
	st, ok := reg.State("1")
	require.True(t, ok)
	require.False(t, st.Live)
	require.Nil(t, st.Broadcaster)
}

func TestRegistry_TransitionAuthorization(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	s1 := newTestConn("s1", true)
	s2 := newTestConn("s2", true)
	v := newTestConn("v", false)
	outsider := newTestConn("o", true)

	reg.Join(s1, "1")
	reg.Join(s2, "1")
	reg.Join(v, "1")

	require.ErrorIs(t, reg.Transition(ctx, v, "1", true, nil), domain.ErrNotAuthorized)
	require.ErrorIs(t, reg.Transition(ctx, outsider, "1", true, nil), domain.ErrNotMember)
	require.ErrorIs(t, reg.Transition(ctx, s1, "9", true, nil), domain.ErrUnknownRoom)

	require.NoError(t, reg.Transition(ctx, s1, "1", true, nil))
	require.ErrorIs(t, reg.Transition(ctx, s2, "1", true, nil), domain.ErrNotAuthorized)

	st, _ := reg.State("1")
	require.True(t, st.Live)
	require.Equal(t, "s1", st.Broadcaster.ConnectionID)

	require.NoError(t, reg.Transition(ctx, s1, "1", false, nil))
	st, _ = reg.State("1")
	require.False(t, st.Live)
	require.Nil(t, st.Broadcaster)

	// Claim is free again.
	require.NoError(t, reg.Transition(ctx, s2, "1", true, nil))
}

func TestRegistry_TransitionCommitSeesMembers(t *testing.T) {
	reg := NewRegistry()
	s := newTestConn("s", true)
	v := newTestConn("v", false)
	reg.Join(s, "1")
	reg.Join(v, "1")

	var got RoomState
	var members []*Connection
	err := reg.Transition(context.Background(), s, "1", true, func(_ context.Context, st RoomState, m []*Connection) {
		got = st
		members = m
	})
	require.NoError(t, err)
	require.True(t, got.Live)
	require.Equal(t, 2, got.MemberCount)
	require.Len(t, members, 2)
}

func TestRegistry_ClaimBroadcaster(t *testing.T) {
	reg := NewRegistry()
	s := newTestConn("s", true)
	v := newTestConn("v", false)
	reg.Join(s, "1")
	reg.Join(v, "1")

	require.ErrorIs(t, reg.ClaimBroadcaster(v, "1"), domain.ErrNotAuthorized)
	require.NoError(t, reg.ClaimBroadcaster(s, "1"))
	require.NoError(t, reg.ClaimBroadcaster(s, "1"))

	st, _ := reg.State("1")
	require.False(t, st.Live)
	require.Equal(t, "user-s", st.Broadcaster.UserID)
}

func TestRegistry_DisconnectReleasesClaim(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	s := newTestConn("s", true)
	v := newTestConn("v", false)
	reg.Join(s, "1")
	reg.Join(s, "2")
	reg.Join(v, "1")

	var released []Claim
	var remaining int
	reg.SetReleaseHook(func(_ context.Context, st RoomState, prev Claim, members []*Connection) {
		require.False(t, st.Live)
		require.Nil(t, st.Broadcaster)
		released = append(released, prev)
		remaining = len(members)
	})

	require.NoError(t, reg.Transition(ctx, s, "1", true, nil))

	evicted := reg.LeaveAll(ctx, s)
	require.Equal(t, []string{"2"}, evicted)
	require.Empty(t, s.Rooms())

	require.Len(t, released, 1)
	require.Equal(t, "s", released[0].ConnectionID)
	require.Equal(t, 1, remaining)

	st, ok := reg.State("1")
	require.True(t, ok)
	require.False(t, st.Live)
}

func TestRegistry_FanoutOptions(t *testing.T) {
	reg := NewRegistry()
	s := newTestConn("s", true)
	v := newTestConn("v", false)
	outsider := newTestConn("o", false)
	reg.Join(s, "1")
	reg.Join(v, "1")

	_, err := reg.Fanout("1", outsider, FanoutOptions{RequireMember: true}, ClassControl, []byte("x"))
	require.ErrorIs(t, err, domain.ErrNotMember)

	_, err = reg.Fanout("1", s, FanoutOptions{RequireMember: true, RequireClaim: true}, ClassFrame, []byte("f"))
	require.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = reg.Fanout("9", nil, FanoutOptions{}, ClassControl, []byte("x"))
	require.ErrorIs(t, err, domain.ErrUnknownRoom)

	require.NoError(t, reg.ClaimBroadcaster(s, "1"))
	res, err := reg.Fanout("1", s, FanoutOptions{RequireMember: true, RequireClaim: true, ExcludeSender: true}, ClassFrame, []byte("f"))
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	require.Equal(t, 0, s.Outbox().Len())
	require.Equal(t, [][]byte{[]byte("f")}, v.Outbox().Drain())

	res, err = reg.Fanout("1", nil, FanoutOptions{}, ClassControl, []byte("tip"))
	require.NoError(t, err)
	require.Equal(t, 2, res.Delivered)
}

func TestRegistry_StatusPrecedesLaterFrames(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()
	s := newTestConn("s", true)
	v := newTestConn("v", false)
	reg.Join(s, "1")
	reg.Join(v, "1")

	err := reg.Transition(ctx, s, "1", true, func(_ context.Context, _ RoomState, members []*Connection) {
		for _, m := range members {
			m.Enqueue(ClassControl, []byte("live"))
		}
	})
	require.NoError(t, err)

	_, err = reg.Fanout("1", s, FanoutOptions{RequireMember: true, RequireClaim: true, ExcludeSender: true}, ClassFrame, []byte("f1"))
	require.NoError(t, err)

	require.Equal(t, [][]byte{[]byte("live"), []byte("f1")}, v.Outbox().Drain())
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newTestConn(fmt.Sprintf("c%d", i), false)
			for j := 0; j < 20; j++ {
				reg.Join(c, "1")
				reg.Leave(ctx, c, "1")
			}
			reg.Join(c, "1")
		}(i)
	}
	wg.Wait()

	require.Len(t, reg.MembersOf("1"), 50)
	for _, m := range reg.MembersOf("1") {
		require.True(t, m.InRoom("1"))
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/pubsub"
)

func TestTipSubscriber_InjectsConfirmedTips(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ps := pubsub.NewRedisPubSubFromClient(client, 16)
	defer ps.Close()

	f := newFixture(t, config.RelayConfig{})
	a := f.conn("a", "alice", false)
	join(t, f, "7", a)

	ctx, cancel := context.WithCancel(context.Background())
	sub := NewTipSubscriber(ps, f.gateway)
	require.NoError(t, sub.Start(ctx))

	ignored, err := pubsub.NewEvent("something_else", "7", map[string]string{})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, pubsub.RoomTipsChannel("7"), ignored))

	evt, err := pubsub.NewEvent(pubsub.EventTipConfirmed, "7", pubsub.TipConfirmedPayload{Username: "Mario", Amount: 10})
	require.NoError(t, err)
	require.NoError(t, ps.Publish(ctx, pubsub.RoomTipsChannel("7"), evt))

	require.Eventually(t, func() bool { return a.Outbox().Len() > 0 }, time.Second, 10*time.Millisecond)
	got := drain(t, a)
	require.Len(t, got, 1)
	require.Equal(t, domain.MsgTypeNewTip, got[0].Type)
	require.Equal(t, "Mario", got[0].Username)
	require.Equal(t, 10.0, got[0].Amount)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
	require.Eventually(t, func() bool { return mr.PubSubNumPat() == 0 }, time.Second, 10*time.Millisecond)
}

func TestTipSubscriber_ChannelDecidesRoom(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ps := pubsub.NewRedisPubSubFromClient(client, 16)
	defer ps.Close()

	f := newFixture(t, config.RelayConfig{})
	a := f.conn("a", "alice", false)
	b := f.conn("b", "bob", false)
	join(t, f, "7", a)
	join(t, f, "8", b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewTipSubscriber(ps, f.gateway).Start(ctx))

	publish := func(channelRoom, envelopeRoom, donor string) {
		evt, err := pubsub.NewEvent(pubsub.EventTipConfirmed, envelopeRoom, pubsub.TipConfirmedPayload{Username: donor, Amount: 1})
		require.NoError(t, err)
		require.NoError(t, ps.Publish(ctx, pubsub.RoomTipsChannel(channelRoom), evt))
	}

	publish("7", "8", "mismatch")
	publish("7", "", "no-envelope-room")
	publish("8", "8", "matching")

	require.Eventually(t, func() bool {
		return a.Outbox().Len() > 0 && b.Outbox().Len() > 0
	}, time.Second, 10*time.Millisecond)

	gotA := drain(t, a)
	require.Len(t, gotA, 1)
	require.Equal(t, "7", gotA[0].RoomID)
	require.Equal(t, "no-envelope-room", gotA[0].Username)

	gotB := drain(t, b)
	require.Len(t, gotB, 1)
	require.Equal(t, "matching", gotB[0].Username)
}

type stubSubscriber struct {
	events       chan *pubsub.Event
	unsubscribed chan string
}

func (s *stubSubscriber) SubscribePattern(ctx context.Context, pattern string) (<-chan *pubsub.Event, error) {
	return s.events, nil
}

func (s *stubSubscriber) Unsubscribe(ctx context.Context, pattern string) error {
	s.unsubscribed <- pattern
	return nil
}

func TestTipSubscriber_UnsubscribesWhenStreamEnds(t *testing.T) {
	f := newFixture(t, config.RelayConfig{})
	stub := &stubSubscriber{
		events:       make(chan *pubsub.Event),
		unsubscribed: make(chan string, 1),
	}

	sub := NewTipSubscriber(stub, f.gateway)
	require.NoError(t, sub.Start(context.Background()))
	close(stub.events)

	select {
	case pattern := <-stub.unsubscribed:
		require.Equal(t, pubsub.PatternRoomTips, pattern)
	case <-time.After(time.Second):
		t.Fatal("subscription was not released")
	}
	<-sub.Done()
}

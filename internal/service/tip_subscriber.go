package service

import (
	"context"
	"fmt"

	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/pubsub"
)

// TipSubscriber feeds tip confirmations published on Redis into the
// Gateway.
type TipSubscriber struct {
	sub     pubsub.Subscriber
	gateway *Gateway
	done    chan struct{}
}

func NewTipSubscriber(sub pubsub.Subscriber, gateway *Gateway) *TipSubscriber {
	return &TipSubscriber{
		sub:     sub,
		gateway: gateway,
		done:    make(chan struct{}),
	}
}

// Start subscribes to every room's tip channel and consumes in the
// background until ctx is cancelled, then drops the subscription.
func (s *TipSubscriber) Start(ctx context.Context) error {
	events, err := s.sub.SubscribePattern(ctx, pubsub.PatternRoomTips)
	if err != nil {
		return fmt.Errorf("failed to subscribe to tips: %w", err)
	}

	go s.run(ctx, events)

	l := log.L()
	l.Info().Str("pattern", pubsub.PatternRoomTips).Msg("tip subscriber started")
	return nil
}

// Done is closed once the consumer loop has exited.
func (s *TipSubscriber) Done() <-chan struct{} {
	return s.done
}

func (s *TipSubscriber) run(ctx context.Context, events <-chan *pubsub.Event) {
	defer close(s.done)

	for evt := range events {
		s.handle(ctx, evt)
	}

	if err := s.sub.Unsubscribe(context.Background(), pubsub.PatternRoomTips); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("pattern", pubsub.PatternRoomTips).Msg("failed to unsubscribe from tips")
	}
}

func (s *TipSubscriber) handle(ctx context.Context, evt *pubsub.Event) {
	l := log.Ctx(ctx)

	if evt.Type != pubsub.EventTipConfirmed {
		l.Debug().Str(log.FieldEventType, evt.Type).Msg("ignoring event on tip channel")
		return
	}

	// The channel decides the room. An envelope naming another room is dropped.
	roomID, ok := pubsub.RoomFromTipsChannel(evt.Channel)
	if !ok {
		l.Warn().Str("channel", evt.Channel).Msg("tip on unexpected channel")
		return
	}
	if evt.RoomID != "" && evt.RoomID != roomID {
		l.Warn().
			Str(log.FieldRoomID, roomID).
			Str("envelope_room_id", evt.RoomID).
			Msg("tip envelope does not match its channel")
		return
	}

	var payload pubsub.TipConfirmedPayload
	if err := evt.UnmarshalPayload(&payload); err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("invalid tip payload")
		return
	}

	// InjectTip logs its own failures.
	_ = s.gateway.InjectTip(ctx, roomID, payload.Username, payload.Amount)
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-live/relay-service/internal/audit"
	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/directory"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/relay-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

const eventTypeUnknown = "unknown"

// Router authorizes inbound events and fans them out to room members.
// Every method returns nil or one of the domain errors; none of them ever
// closes the connection.
type Router struct {
	registry   *hub.Registry
	reconciler *Reconciler
	directory  directory.Directory
	metrics    *metrics.Metrics
	cfg        config.RelayConfig
}

// NewRouter creates a Router and installs its claim-release hook on reg.
// dir may be nil.
func NewRouter(reg *hub.Registry, rec *Reconciler, dir directory.Directory, m *metrics.Metrics, cfg config.RelayConfig) *Router {
	r := &Router{
		registry:   reg,
		reconciler: rec,
		directory:  dir,
		metrics:    m,
		cfg:        cfg,
	}
	reg.SetReleaseHook(r.onClaimReleased)
	return r
}

// Connect records a newly authenticated connection.
func (r *Router) Connect(ctx context.Context, c *hub.Connection) {
	r.metrics.IncConnections()
	audit.Log(ctx, audit.ActionConnect, c.Principal.UserID, "connection opened")
}

// HandleMessage decodes one raw client message and routes it.
func (r *Router) HandleMessage(ctx context.Context, c *hub.Connection, data []byte) error {
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return r.reject(ctx, c, eventTypeUnknown, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err))
	}

	if base.Type == domain.MsgTypePing {
		r.send(c, &domain.PongMessage{Type: domain.MsgTypePong})
		return nil
	}

	evt, err := domain.DecodeEvent(base.Type, data)
	if err != nil {
		eventType := base.Type
		if eventType == "" {
			eventType = eventTypeUnknown
		}
		return r.reject(ctx, c, eventType, err)
	}
	return r.HandleEvent(ctx, c, evt)
}

// HandleEvent dispatches a decoded event to its handler.
func (r *Router) HandleEvent(ctx context.Context, c *hub.Connection, evt domain.Event) error {
	eventType := string(evt.Type())
	if err := evt.Validate(); err != nil {
		return r.reject(ctx, c, eventType, err)
	}

	var err error
	switch e := evt.(type) {
	case domain.Join:
		err = r.Join(ctx, c, e)
	case domain.Leave:
		err = r.Leave(ctx, c, e)
	case domain.Frame:
		err = r.Frame(ctx, c, e)
	case domain.StatusChange:
		err = r.StatusChange(ctx, c, e)
	case domain.ChatMessage:
		err = r.Chat(ctx, c, e)
	case domain.Tip:
		err = r.Tip(ctx, c, e)
	default:
		err = fmt.Errorf("%w: unsupported event %s", domain.ErrMalformedEvent, eventType)
	}

	if err != nil {
		return r.reject(ctx, c, eventType, err)
	}
	r.metrics.IncEvent(eventType)
	return nil
}

// Join adds c to the room, creating it on first join. Nothing is fanned out.
func (r *Router) Join(ctx context.Context, c *hub.Connection, e domain.Join) error {
	created := r.registry.Join(c, e.RoomID)
	r.metrics.SetRooms(r.registry.Len())

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoomID, e.RoomID).Bool("created", created).Msg("joined room")

	if created && r.directory != nil {
		if err := r.directory.Register(ctx, e.RoomID); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, e.RoomID).Msg("failed to register room in directory")
		}
	}
	return nil
}

// Leave removes c from the room, releasing its claim if it held one.
func (r *Router) Leave(ctx context.Context, c *hub.Connection, e domain.Leave) error {
	if !c.InRoom(e.RoomID) {
		return fmt.Errorf("leave %s: %w", e.RoomID, domain.ErrNotMember)
	}
	if r.registry.Leave(ctx, c, e.RoomID) {
		r.roomEvicted(ctx, e.RoomID)
	}
	r.metrics.SetRooms(r.registry.Len())
	return nil
}

// Frame relays a video frame to every other member of the room.
func (r *Router) Frame(ctx context.Context, c *hub.Connection, e domain.Frame) error {
	opts := hub.FanoutOptions{
		RequireMember: true,
		RequireClaim:  r.cfg.FramePolicy != config.FramePolicyMember,
		ExcludeSender: true,
	}
	return r.Publish(e.RoomID, c, opts, hub.ClassFrame, domain.NewVideoUpdate(e.RoomID, e.Payload))
}

// StatusChange flips the room's live flag, persists it and tells every
// member, the publisher included. The durable write happens inside the
// transition so a frame published afterwards cannot overtake the update.
func (r *Router) StatusChange(ctx context.Context, c *hub.Connection, e domain.StatusChange) error {
	data, err := json.Marshal(domain.NewStatusUpdate(e.RoomID, e.Live))
	if err != nil {
		return err
	}

	var persistErr error
	err = r.registry.Transition(ctx, c, e.RoomID, e.Live, func(ctx context.Context, st hub.RoomState, members []*hub.Connection) {
		persistErr = r.reconciler.PersistLive(ctx, st.ID, st.Live, c.Principal.UserID)
		r.deliver(members, hub.ClassControl, data)
	})
	if err != nil {
		return err
	}

	action := audit.ActionGoOffline
	if e.Live {
		action = audit.ActionGoLive
	}
	audit.LogRoom(ctx, action, c.Principal.UserID, e.RoomID, "stream status changed")

	return persistErr
}

// Chat relays a chat message to every member of the room.
func (r *Router) Chat(ctx context.Context, c *hub.Connection, e domain.ChatMessage) error {
	msg := domain.NewChatOut(e.RoomID, c.Principal.DisplayName, e.Text)
	return r.Publish(e.RoomID, c, hub.FanoutOptions{RequireMember: true}, hub.ClassControl, msg)
}

// Tip relays a connection-originated tip to every member of the room.
func (r *Router) Tip(ctx context.Context, c *hub.Connection, e domain.Tip) error {
	msg := domain.NewTipOut(e.RoomID, c.Principal.DisplayName, e.Amount)
	return r.Publish(e.RoomID, c, hub.FanoutOptions{RequireMember: true}, hub.ClassControl, msg)
}

// Disconnect removes c from every room. Claims it held are released through
// the registry's release hook.
func (r *Router) Disconnect(ctx context.Context, c *hub.Connection) {
	for _, roomID := range r.registry.LeaveAll(ctx, c) {
		r.roomEvicted(ctx, roomID)
	}
	r.metrics.SetRooms(r.registry.Len())
	r.metrics.DecConnections()
	audit.Log(ctx, audit.ActionDisconnect, c.Principal.UserID, "connection closed")
}

// Publish serializes msg once and fans it out to roomID. from may be nil.
func (r *Router) Publish(roomID string, from *hub.Connection, opts hub.FanoutOptions, class hub.Class, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", class, err)
	}

	res, err := r.registry.Fanout(roomID, from, opts, class, data)
	if err != nil {
		return err
	}
	r.recordDrops(class, res.EvictedFrames, res.Rejected)
	return nil
}

// onClaimReleased runs under the room lock when a broadcaster leaves or
// disconnects without going offline first.
func (r *Router) onClaimReleased(ctx context.Context, st hub.RoomState, prev hub.Claim, members []*hub.Connection) {
	// The error is already logged and counted by the reconciler.
	_ = r.reconciler.PersistLive(ctx, st.ID, false, prev.UserID)

	data, err := json.Marshal(domain.NewStatusUpdate(st.ID, false))
	if err == nil {
		r.deliver(members, hub.ClassControl, data)
	}
	audit.LogRoom(ctx, audit.ActionClaimReleased, prev.UserID, st.ID, "broadcaster left, stream set offline")
}

func (r *Router) roomEvicted(ctx context.Context, roomID string) {
	if r.directory == nil {
		return
	}
	if err := r.directory.Deregister(ctx, roomID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to deregister room from directory")
	}
}

func (r *Router) deliver(members []*hub.Connection, class hub.Class, data []byte) {
	var evicted, rejected int
	for _, m := range members {
		res := m.Enqueue(class, data)
		if !res.Accepted {
			rejected++
		}
		if res.EvictedFrame {
			evicted++
		}
	}
	r.recordDrops(class, evicted, rejected)
}

func (r *Router) recordDrops(class hub.Class, evictedFrames, rejected int) {
	r.metrics.AddDroppedFrames(evictedFrames)
	if class == hub.ClassControl {
		r.metrics.AddDroppedControl(rejected)
	}
}

func (r *Router) send(c *hub.Connection, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if res := c.Enqueue(hub.ClassControl, data); !res.Accepted {
		r.metrics.AddDroppedControl(1)
	}
}

// reject logs and counts a failed event and, when configured, tells the
// publisher why. Durable write failures are reported only in logs.
func (r *Router) reject(ctx context.Context, c *hub.Connection, eventType string, err error) error {
	reason := domain.Reason(err)
	r.metrics.IncRejection(eventType, reason)

	l := log.Ctx(ctx)
	ev := l.Info()
	if reason == domain.ReasonMalformed || reason == domain.ReasonOther {
		ev = l.Warn()
	}
	ev.Err(err).
		Str(log.FieldClientID, c.ID).
		Str(log.FieldEventType, eventType).
		Str(log.FieldReason, reason).
		Msg("event rejected")

	if r.cfg.RejectUnauthorized {
		if code, ok := errorCode(err); ok {
			r.send(c, domain.NewErrorMessage(code, err.Error()))
		}
	}
	return err
}

func errorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrMalformedEvent):
		return domain.ErrCodeBadRequest, true
	case errors.Is(err, domain.ErrNotAuthorized), errors.Is(err, domain.ErrNotMember):
		return domain.ErrCodeForbidden, true
	case errors.Is(err, domain.ErrUnknownRoom):
		return domain.ErrCodeNotFound, true
	default:
		return "", false
	}
}

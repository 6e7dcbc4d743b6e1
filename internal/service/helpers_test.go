package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/relay-service/internal/metrics"
)

var errDBDown = errors.New("db down")

type setLiveCall struct {
	ID            string
	Live          bool
	BroadcasterID string
}

type fakeStreamRepo struct {
	mu    sync.Mutex
	calls []setLiveCall
	fail  bool
	delay time.Duration
	stale []string
}

func (f *fakeStreamRepo) GetByID(ctx context.Context, id string) (*domain.Stream, error) {
	return &domain.Stream{ID: id}, nil
}

func (f *fakeStreamRepo) List(ctx context.Context) ([]domain.Stream, error) {
	return nil, nil
}

func (f *fakeStreamRepo) SetLive(ctx context.Context, id string, live bool, broadcasterID string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errDBDown
	}
	f.calls = append(f.calls, setLiveCall{ID: id, Live: live, BroadcasterID: broadcasterID})
	return nil
}

func (f *fakeStreamRepo) Seed(ctx context.Context, streams []domain.Stream) (int, error) {
	return 0, nil
}

func (f *fakeStreamRepo) ClearLive(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errDBDown
	}
	ids := f.stale
	f.stale = nil
	return ids, nil
}

func (f *fakeStreamRepo) Calls() []setLiveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setLiveCall(nil), f.calls...)
}

type fakeProducer struct {
	mu     sync.Mutex
	events []*domain.LifecycleEvent
}

func (p *fakeProducer) ProduceLifecycle(ctx context.Context, evt *domain.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

type fixture struct {
	cfg      config.RelayConfig
	registry *hub.Registry
	repo     *fakeStreamRepo
	producer *fakeProducer
	metrics  *metrics.Metrics
	router   *Router
	gateway  *Gateway
}

func newFixture(t *testing.T, cfg config.RelayConfig) *fixture {
	t.Helper()
	if cfg.FramePolicy == "" {
		cfg.FramePolicy = config.FramePolicyBroadcaster
	}
	if cfg.FrameQueueSize == 0 {
		cfg.FrameQueueSize = 64
	}
	if cfg.ControlQueueSize == 0 {
		cfg.ControlQueueSize = 1024
	}
	if cfg.PersistTimeout == 0 {
		cfg.PersistTimeout = time.Second
	}

	f := &fixture{
		cfg:      cfg,
		registry: hub.NewRegistry(),
		repo:     &fakeStreamRepo{},
		producer: &fakeProducer{},
		metrics:  metrics.New(),
	}
	rec := NewReconciler(f.repo, f.producer, f.metrics, cfg.PersistTimeout)
	f.router = NewRouter(f.registry, rec, nil, f.metrics, cfg)
	f.gateway = NewGateway(f.router, f.metrics)
	return f
}

func (f *fixture) conn(id, name string, canBroadcast bool) *hub.Connection {
	return hub.NewConnection(id, domain.Principal{
		UserID:       "user-" + id,
		DisplayName:  name,
		CanBroadcast: canBroadcast,
	}, nil, config.WebSocketConfig{}, f.cfg)
}

type outMsg struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"room_id"`
	Payload  json.RawMessage `json:"payload"`
	IsLive   bool            `json:"is_live"`
	Username string          `json:"username"`
	Message  string          `json:"message"`
	Amount   float64         `json:"amount"`
	Code     string          `json:"code"`
}

func drain(t *testing.T, c *hub.Connection) []outMsg {
	t.Helper()
	var out []outMsg
	for _, data := range c.Outbox().Drain() {
		var m outMsg
		require.NoError(t, json.Unmarshal(data, &m))
		out = append(out, m)
	}
	return out
}

func ofType(msgs []outMsg, typ string) []outMsg {
	var out []outMsg
	for _, m := range msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

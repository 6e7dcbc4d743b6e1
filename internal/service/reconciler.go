package service

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/internal/kafka"
	"github.com/weiawesome/wes-io-live/relay-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/relay-service/internal/repository"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

// Reconciler writes a room's live flag through to the durable registry.
// In-memory state is never rolled back when the write fails.
//
// Live flags only reach the database on transitions, so a process that dies
// while a room is live leaves is_live=true behind with no room hosting it.
// ResetStaleLive clears those rows at startup; with several instances
// sharing one database it must stay disabled, because it cannot tell a dead
// instance's rooms from a live one's.
type Reconciler struct {
	repo     repository.StreamRepository
	producer kafka.LifecycleProducer
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// NewReconciler creates a Reconciler. producer may be nil.
func NewReconciler(repo repository.StreamRepository, producer kafka.LifecycleProducer, m *metrics.Metrics, timeout time.Duration) *Reconciler {
	return &Reconciler{
		repo:     repo,
		producer: producer,
		metrics:  m,
		timeout:  timeout,
	}
}

// PersistLive stores live for roomID. Failures wrap
// domain.ErrDurabilityWriteFailed and are not retried.
func (r *Reconciler) PersistLive(ctx context.Context, roomID string, live bool, broadcasterID string) error {
	l := log.Ctx(ctx)

	writeCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.repo.SetLive(writeCtx, roomID, live, broadcasterID); err != nil {
		r.metrics.IncDurableFailures()
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Bool("is_live", live).Msg("failed to persist live state")
		return fmt.Errorf("%w: room %s: %w", domain.ErrDurabilityWriteFailed, roomID, err)
	}

	if r.producer != nil {
		evt := domain.NewLifecycleEvent(roomID, live, broadcasterID)
		if err := r.producer.ProduceLifecycle(ctx, evt); err != nil {
			r.metrics.IncLifecyclePublishFailures()
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to produce lifecycle event")
		}
	}

	return nil
}

// ResetStaleLive marks every stream still flagged live as offline and
// announces each as a stream_offline lifecycle event. It returns how many
// streams were reset.
func (r *Reconciler) ResetStaleLive(ctx context.Context) (int, error) {
	l := log.Ctx(ctx)

	writeCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ids, err := r.repo.ClearLive(writeCtx)
	if err != nil {
		r.metrics.IncDurableFailures()
		return 0, fmt.Errorf("%w: clear stale live streams: %w", domain.ErrDurabilityWriteFailed, err)
	}

	for _, id := range ids {
		l.Warn().Str(log.FieldRoomID, id).Msg("stream was left live by a previous run, set offline")
		if r.producer == nil {
			continue
		}
		if err := r.producer.ProduceLifecycle(ctx, domain.NewLifecycleEvent(id, false, "")); err != nil {
			r.metrics.IncLifecyclePublishFailures()
			l.Warn().Err(err).Str(log.FieldRoomID, id).Msg("failed to produce lifecycle event")
		}
	}
	return len(ids), nil
}

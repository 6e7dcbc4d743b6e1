package service

import (
	"context"
	"strings"

	"github.com/weiawesome/wes-io-live/relay-service/internal/audit"
	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/relay-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
)

const (
	anonymousDonor  = "Anonymous"
	outcomeAccepted = "accepted"
)

// Gateway lets trusted collaborators push events into a room without a
// connection. Callers are authenticated at the ingress, not here.
type Gateway struct {
	router  *Router
	metrics *metrics.Metrics
}

func NewGateway(router *Router, m *metrics.Metrics) *Gateway {
	return &Gateway{
		router:  router,
		metrics: m,
	}
}

// InjectTip announces a confirmed tip to every member of roomID. A room
// with no members yields domain.ErrUnknownRoom and the tip is dropped.
func (g *Gateway) InjectTip(ctx context.Context, roomID, donor string, amount float64) error {
	l := log.Ctx(ctx)

	if err := (domain.Tip{RoomID: roomID, Amount: amount}).Validate(); err != nil {
		g.metrics.IncTipsInjected(domain.Reason(err))
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("rejected injected tip")
		return err
	}

	donor = strings.TrimSpace(donor)
	if donor == "" {
		donor = anonymousDonor
	}

	msg := domain.NewTipOut(roomID, donor, amount)
	if err := g.router.Publish(roomID, nil, hub.FanoutOptions{}, hub.ClassControl, msg); err != nil {
		g.metrics.IncTipsInjected(domain.Reason(err))
		l.Info().Err(err).Str(log.FieldRoomID, roomID).Msg("dropped injected tip")
		return err
	}

	g.metrics.IncTipsInjected(outcomeAccepted)
	// The donor is a display name from the payment collaborator, not a user id.
	audit.LogRoomWithDetail(ctx, audit.ActionTipInjected, "", roomID, "donor="+donor, "tip injected")
	return nil
}

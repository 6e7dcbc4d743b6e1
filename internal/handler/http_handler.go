package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/relay-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/relay-service/internal/repository"
	"github.com/weiawesome/wes-io-live/relay-service/internal/service"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/middleware"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/response"
)

// HTTPHandler serves the stream catalogue, the internal tip ingress,
// health and metrics.
type HTTPHandler struct {
	repo          repository.StreamRepository
	registry      *hub.Registry
	gateway       *service.Gateway
	metrics       *metrics.Metrics
	internalToken string
}

func NewHTTPHandler(repo repository.StreamRepository, reg *hub.Registry, gateway *service.Gateway, m *metrics.Metrics, internalToken string) *HTTPHandler {
	return &HTTPHandler{
		repo:          repo,
		registry:      reg,
		gateway:       gateway,
		metrics:       m,
		internalToken: internalToken,
	}
}

// InjectTipRequest is sent by the payment collaborator once a payment is
// confirmed.
type InjectTipRequest struct {
	Username string        `json:"username"`
	Amount   domain.Amount `json:"amount"`
}

// RegisterRoutes registers all routes.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler(func() {
		h.metrics.SetRooms(h.registry.Len())
	})))

	api := r.Group("/api/v1")
	{
		streams := api.Group("/streams")
		{
			streams.GET("", h.ListStreams)
			streams.GET("/:id", h.GetStream)
		}
	}

	internal := r.Group("/internal/v1", middleware.RequireInternalToken(h.internalToken))
	{
		internal.POST("/streams/:id/tips", h.InjectTip)
	}
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rooms":  h.registry.Len(),
		"time":   time.Now().UTC(),
	})
}

// ListStreams returns every durable stream overlaid with live room state.
func (h *HTTPHandler) ListStreams(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	streams, err := h.repo.List(ctx)
	if err != nil {
		l.Error().Err(err).Msg("failed to list streams")
		response.InternalError(c, "failed to list streams")
		return
	}

	out := make([]domain.StreamResponse, len(streams))
	for i := range streams {
		out[i] = h.overlay(streams[i])
	}
	response.Success(c, out)
}

func (h *HTTPHandler) GetStream(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	stream, err := h.repo.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrStreamNotFound) {
			response.NotFound(c, "stream not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoomID, c.Param("id")).Msg("failed to get stream")
		response.InternalError(c, "failed to get stream")
		return
	}

	response.Success(c, h.overlay(*stream))
}

// InjectTip pushes a confirmed tip into a room through the gateway.
func (h *HTTPHandler) InjectTip(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)
	roomID := c.Param("id")

	var req InjectTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind inject tip request")
		response.BadRequest(c, "invalid tip payload")
		return
	}

	err := h.gateway.InjectTip(ctx, roomID, req.Username, float64(req.Amount))
	switch {
	case err == nil:
		response.Accepted(c, gin.H{"room_id": roomID})
	case errors.Is(err, domain.ErrMalformedEvent):
		response.BadRequest(c, err.Error())
	case errors.Is(err, domain.ErrUnknownRoom):
		response.NotFound(c, "room has no members")
	default:
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to inject tip")
		response.InternalError(c, "failed to inject tip")
	}
}

// overlay replaces the durable live flag with the in-memory one while the
// room is hosted here.
func (h *HTTPHandler) overlay(s domain.Stream) domain.StreamResponse {
	resp := domain.StreamResponse{Stream: s}
	if st, ok := h.registry.State(s.ID); ok {
		resp.IsLive = st.Live
		resp.ViewerCount = st.MemberCount
	}
	return resp
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-live/relay-service/internal/audit"
	"github.com/weiawesome/wes-io-live/relay-service/internal/config"
	"github.com/weiawesome/wes-io-live/relay-service/internal/hub"
	"github.com/weiawesome/wes-io-live/relay-service/internal/identity"
	"github.com/weiawesome/wes-io-live/relay-service/internal/service"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/log"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/middleware"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	router   *service.Router
	identity identity.Provider
	wsCfg    config.WebSocketConfig
	relayCfg config.RelayConfig
}

func NewWSHandler(router *service.Router, provider identity.Provider, wsCfg config.WebSocketConfig, relayCfg config.RelayConfig) *WSHandler {
	return &WSHandler{
		router:   router,
		identity: provider,
		wsCfg:    wsCfg,
		relayCfg: relayCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the caller, upgrades the connection and
// starts its pumps. The principal is fixed for the connection's lifetime.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	principal, err := h.identity.Authenticate(ctx, middleware.BearerToken(c))
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionAuthFailed, "", err.Error(), "websocket authentication failed")
		response.Unauthorized(c, "invalid or missing token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.New().String()

	// The request context ends when this handler returns.
	connLogger := l.With().
		Str(log.FieldClientID, id).
		Str(log.FieldUserID, principal.UserID).
		Logger()
	connCtx := log.WithLogger(context.Background(), connLogger)

	client := hub.NewConnection(id, principal, conn, h.wsCfg, h.relayCfg)
	client.SetDisconnectHandler(func(cl *hub.Connection) {
		h.router.Disconnect(connCtx, cl)
	})
	h.router.Connect(connCtx, client)

	go client.WritePump()
	go client.ReadPump(func(cl *hub.Connection, message []byte) {
		// Errors are logged and counted by the router; the connection stays open.
		_ = h.router.HandleMessage(connCtx, cl, message)
	})
}

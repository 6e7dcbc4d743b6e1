package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/relay-service/pkg/response"
)

const (
	AuthHeaderKey     = "Authorization"
	BearerPrefix      = "Bearer "
	TokenQueryKey     = "token"
	InternalHeaderKey = "X-Internal-Token"
)

// BearerToken extracts the access token from the Authorization header,
// falling back to the token query parameter used by browser WebSocket
// clients that cannot set headers.
func BearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader(AuthHeaderKey); strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
	}
	return c.Query(TokenQueryKey)
}

// RequireInternalToken returns a Gin middleware that admits only callers
// presenting the shared internal token. An empty expected token rejects
// every request.
func RequireInternalToken(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(InternalHeaderKey)
		if got == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing internal token")
			return
		}

		if expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			response.AbortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid internal token")
			return
		}

		c.Next()
	}
}

package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/weiawesome/wes-io-live/relay-service/internal/domain"
	"github.com/weiawesome/wes-io-live/relay-service/pkg/jwt"
)

// ErrUnauthenticated is returned for missing, invalid or expired tokens.
var ErrUnauthenticated = errors.New("unauthenticated")

// Provider resolves a bearer token into a Principal.
type Provider interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

// JWTProvider validates tokens signed with the shared secret. Holders of
// broadcasterRole may broadcast.
type JWTProvider struct {
	manager         *jwt.Manager
	broadcasterRole string
}

func NewJWTProvider(manager *jwt.Manager, broadcasterRole string) *JWTProvider {
	return &JWTProvider{
		manager:         manager,
		broadcasterRole: broadcasterRole,
	}
}

func (p *JWTProvider) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	claims, err := p.manager.ValidateToken(token)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	name := claims.Username
	if name == "" {
		name = claims.UserID
	}

	return domain.Principal{
		UserID:       claims.UserID,
		DisplayName:  name,
		CanBroadcast: p.broadcasterRole != "" && claims.HasRole(p.broadcasterRole),
	}, nil
}

package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager("s3cret", time.Minute, "wes-io-live")
	require.NoError(t, err)

	token, err := m.GenerateAccessToken("u-1", "Mario", []string{"viewer", "streamer"})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "Mario", claims.Username)
	require.True(t, claims.HasRole("streamer"))
	require.False(t, claims.HasRole("admin"))
}

func TestManager_RejectsForeignSecret(t *testing.T) {
	issuer, err := NewManager("one", time.Minute, "wes-io-live")
	require.NoError(t, err)
	verifier, err := NewManager("two", time.Minute, "wes-io-live")
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken("u-1", "Mario", nil)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_Expired(t *testing.T) {
	m, err := NewManager("s3cret", -time.Minute, "wes-io-live")
	require.NoError(t, err)

	token, err := m.GenerateAccessToken("u-1", "Mario", nil)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewManager_EmptySecret(t *testing.T) {
	_, err := NewManager("", time.Minute, "")
	require.ErrorIs(t, err, ErrEmptySecret)
}

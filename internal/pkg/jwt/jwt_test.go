package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(tok, secret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, "u1", claims.Subject)
}

func TestToken_WrongSecret(t *testing.T) {
	tok, err := GenerateToken("u1", []byte("a"), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(tok, []byte("b"))
	require.Error(t, err)
}

func TestToken_NonPositiveTTLNeverExpires(t *testing.T) {
	tok, err := GenerateToken("u1", []byte("a"), -time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(tok, []byte("a"))
	require.NoError(t, err)
}

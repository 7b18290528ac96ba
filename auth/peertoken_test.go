package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func parseClaims(t *testing.T, secret []byte, tokenString string) *PeerClaims {
	t.Helper()
	claims := &PeerClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) { return secret, nil })
	require.NoError(t, err)
	return claims
}

func TestPeerTokenIssuerMintAndVerifyRoundTrip(t *testing.T) {
	issuer := PeerTokenIssuer{Secret: []byte("shared-secret"), Issuer: "txnode"}

	token, err := issuer.Mint("alice", "sess-1")
	require.NoError(t, err)

	caller, err := issuer.Verify(token, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "alice", caller)
}

func TestPeerTokenIssuerRejectsWrongSession(t *testing.T) {
	issuer := PeerTokenIssuer{Secret: []byte("shared-secret")}
	token, err := issuer.Mint("alice", "sess-1")
	require.NoError(t, err)

	_, err = issuer.Verify(token, "sess-2")
	require.ErrorIs(t, err, ErrWrongSession)
}

func TestPeerTokenIssuerRejectsWrongSecret(t *testing.T) {
	issuer := PeerTokenIssuer{Secret: []byte("secret-a")}
	token, err := issuer.Mint("alice", "sess-1")
	require.NoError(t, err)

	other := PeerTokenIssuer{Secret: []byte("secret-b")}
	_, err = other.Verify(token, "sess-1")
	require.Error(t, err)
}

func TestPeerTokenIssuerRejectsExpiredToken(t *testing.T) {
	issuer := PeerTokenIssuer{Secret: []byte("shared-secret"), TokenTTL: -1 * time.Minute}
	token, err := issuer.Mint("alice", "sess-1")
	require.NoError(t, err)

	_, err = issuer.Verify(token, "sess-1")
	require.Error(t, err)
}

func TestPeerTokenIssuerRejectsGarbageToken(t *testing.T) {
	issuer := PeerTokenIssuer{Secret: []byte("shared-secret")}
	_, err := issuer.Verify("not-a-jwt", "sess-1")
	require.Error(t, err)
}

func TestPeerTokenIssuerDefaultsTTL(t *testing.T) {
	issuer := PeerTokenIssuer{Secret: []byte("shared-secret")}
	require.Equal(t, 5*time.Minute, issuer.ttl())
}

func TestPeerTokenIssuerMintsUniqueTokenIDPerCall(t *testing.T) {
	secret := []byte("shared-secret")
	issuer := PeerTokenIssuer{Secret: secret}

	token1, err := issuer.Mint("alice", "sess-1")
	require.NoError(t, err)
	token2, err := issuer.Mint("alice", "sess-1")
	require.NoError(t, err)

	claims1 := parseClaims(t, secret, token1)
	claims2 := parseClaims(t, secret, token2)

	require.NotEmpty(t, claims1.ID)
	require.NotEmpty(t, claims2.ID)
	require.NotEqual(t, claims1.ID, claims2.ID, "each minted token should carry a unique jti")
}

// Package auth mints and verifies short-lived JWTs that authenticate one
// node to another over the gossip transport (p2p.Pusher), scoped to a
// single sessionCode so a leaked token cannot be replayed against a
// different transaction.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jwt "github.com/golang-jwt/jwt/v5"
)

// PeerClaims identifies the calling node and the session its gossip calls
// are scoped to.
type PeerClaims struct {
	jwt.RegisteredClaims
	SessionCode string `json:"sid"`
}

// PeerTokenIssuer mints and verifies peer gossip tokens using a shared HMAC
// secret, mirroring the gateway's HMAC-JWT middleware convention.
type PeerTokenIssuer struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
}

func (i PeerTokenIssuer) ttl() time.Duration {
	if i.TokenTTL <= 0 {
		return 5 * time.Minute
	}
	return i.TokenTTL
}

// Mint issues a token identifying callerKey as the caller, scoped to
// sessionCode.
func (i PeerTokenIssuer) Mint(callerKey, sessionCode string) (string, error) {
	now := time.Now()
	claims := PeerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   callerKey,
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl())),
		},
		SessionCode: sessionCode,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign peer token: %w", err)
	}
	return signed, nil
}

// Verify validates a gossip token and returns the caller key and session it
// is scoped to. The token must be for the expected session, or
// ErrWrongSession is returned.
func (i PeerTokenIssuer) Verify(tokenString, expectedSessionCode string) (callerKey string, err error) {
	claims := &PeerClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return i.Secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: parse peer token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid peer token")
	}
	if claims.SessionCode != expectedSessionCode {
		return "", ErrWrongSession
	}
	return claims.Subject, nil
}

// ErrWrongSession is returned when a token presented for one session was
// minted for another.
var ErrWrongSession = errors.New("auth: peer token scoped to a different session")

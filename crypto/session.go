package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/hkdf"

	"nhbchain/core/protocol"
)

// SessionSigner implements core/protocol.Signer. It resolves spec §9's open
// question of how sessionCode maps to a node's per-transaction key: this
// node's root private key is never used directly for promise/commit
// signatures; instead each session derives its own secp256k1 key via
// HKDF-SHA256 over the root key, keyed by sessionCode, so that node identity
// is not linkable across transactions from the signing key alone.
type SessionSigner struct {
	Root *PrivateKey
}

// NewSessionSigner wraps a node's root key for session-scoped signing.
func NewSessionSigner(root *PrivateKey) SessionSigner {
	return SessionSigner{Root: root}
}

// deriveSessionKey derives a secp256k1 scalar from the root key and
// sessionCode via HKDF-SHA256, rejecting (by looping, as the standard
// rejection-sampling technique) any candidate scalar outside the curve
// order.
func (s SessionSigner) deriveSessionKey(sessionCode string) (*ecdsa.PrivateKey, error) {
	curve := gethcrypto.S256()
	reader := hkdf.New(sha256.New, s.Root.Bytes(), []byte(sessionCode), []byte("nhbchain/core/protocol session key v1"))
	for attempt := 0; attempt < 8; attempt++ {
		buf := make([]byte, 32)
		if _, err := io.ReadFull(reader, buf); err != nil {
			return nil, fmt.Errorf("crypto: derive session key: %w", err)
		}
		d := new(big.Int).SetBytes(buf)
		if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
			continue
		}
		priv := new(ecdsa.PrivateKey)
		priv.PublicKey.Curve = curve
		priv.D = d
		priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(d.Bytes())
		return priv, nil
	}
	return nil, fmt.Errorf("crypto: could not derive a valid session key for session %q", sessionCode)
}

// GetOurKey derives this node's public key for sessionCode.
func (s SessionSigner) GetOurKey(ctx context.Context, sessionCode string) (protocol.Key, error) {
	priv, err := s.deriveSessionKey(sessionCode)
	if err != nil {
		return "", err
	}
	return keyFromPublic(&priv.PublicKey), nil
}

// Sign produces a signature over digest (a base64 SHA-256 string) under
// this node's session-derived key.
func (s SessionSigner) Sign(ctx context.Context, sessionCode string, digest string) ([]byte, error) {
	priv, err := s.deriveSessionKey(sessionCode)
	if err != nil {
		return nil, err
	}
	hash, err := digestHash(digest)
	if err != nil {
		return nil, err
	}
	return gethcrypto.Sign(hash, priv)
}

// Verify reports whether value is a valid signature over digest under key.
// Because per-session keys are not known to the verifier in advance, keys
// are self-certifying: the signature recovers a public key which must
// equal the claimed key.
func (s SessionSigner) Verify(ctx context.Context, key protocol.Key, digest string, value []byte) (bool, error) {
	hash, err := digestHash(digest)
	if err != nil {
		return false, err
	}
	if len(value) != 65 {
		return false, nil
	}
	pub, err := gethcrypto.SigToPub(hash, value)
	if err != nil {
		return false, nil
	}
	return keyFromPublic(pub) == key, nil
}

func keyFromPublic(pub *ecdsa.PublicKey) protocol.Key {
	return protocol.Key(base64.RawURLEncoding.EncodeToString(gethcrypto.CompressPubkey(pub)))
}

func digestHash(digest string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return nil, fmt.Errorf("crypto: digest is not valid base64: %w", err)
	}
	return gethcrypto.Keccak256(raw), nil
}

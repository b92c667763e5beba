// Package identity provides ed25519 signing credentials compatible with the
// Solana CLI keypair file format.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/Alibek10599/token-vault/internal/solana"
)

// ErrInvalidKey is returned for malformed key material.
var ErrInvalidKey = errors.New("invalid key material")

// Signer produces signatures for a single identity.
// Implementations never expose private key bytes to callers that only need to sign.
type Signer interface {
	PublicKey() solana.Pubkey
	Sign(message []byte) []byte
}

// Keypair is an ed25519 keypair.
type Keypair struct {
	priv ed25519.PrivateKey
}

// Generate creates a random keypair.
func Generate() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// FromSeed derives a keypair from a 32-byte seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// FromPrivateKey builds a keypair from the 64-byte seed||public form.
// The embedded public key must match the seed.
func FromPrivateKey(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, ed25519.PrivateKeySize, len(b))
	}
	kp, err := FromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	pub := kp.priv.Public().(ed25519.PublicKey)
	if !pub.Equal(ed25519.PublicKey(b[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("%w: public key does not match seed", ErrInvalidKey)
	}
	return kp, nil
}

// FromBase58 parses a base58 encoded 64-byte private key, as exported by wallets.
func FromBase58(s string) (*Keypair, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return FromPrivateKey(b)
}

// PublicKey returns the keypair's address.
func (k *Keypair) PublicKey() solana.Pubkey {
	var pk solana.Pubkey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// Bytes returns a copy of the 64-byte private key.
func (k *Keypair) Bytes() []byte {
	b := make([]byte, ed25519.PrivateKeySize)
	copy(b, k.priv)
	return b
}

// Verify reports whether sig is a valid signature of message by pub.
func Verify(pub solana.Pubkey, message, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig)
}

// Verify interface compliance at compile time.
var _ Signer = (*Keypair)(nil)

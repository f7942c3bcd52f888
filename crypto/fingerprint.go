package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// fingerprintSize is the number of digest bytes kept in an identifier.
const fingerprintSize = 20

// ErrInvalidKeyBlob indicates an armored public key that is not structurally
// valid (bad encoding or wrong length).
var ErrInvalidKeyBlob = errors.New("invalid armored key blob")

// DeriveIdentifier computes the fingerprint of an armored public key:
// base58-encoded truncated BLAKE2b-256 of the raw key bytes. It is a pure
// function; the same key always yields the same identifier, and it fails only
// when the blob itself is malformed.
//
// The identifier doubles as the local connection address and as the expected
// signer identity for the remote peer.
func DeriveIdentifier(armoredPub string) (string, error) {
	raw, err := hex.DecodeString(armoredPub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeyBlob, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyBlob, len(raw), ed25519.PublicKeySize)
	}

	sum := blake2b.Sum256(raw)
	return base58.Encode(sum[:fingerprintSize]), nil
}

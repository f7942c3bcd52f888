package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrSigning indicates that a single outgoing message could not be signed.
// The message is dropped; connection state is untouched.
var ErrSigning = errors.New("message signing failed")

// SignDetached creates an armored Ed25519 detached signature over text using
// an armored private key blob (hex-encoded 32-byte seed).
func SignDetached(text, armoredPriv string) (string, error) {
	seed, err := hex.DecodeString(armoredPriv)
	if err != nil {
		return "", fmt.Errorf("%w: parsing private key: %v", ErrSigning, err)
	}
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: private key is %d bytes, want %d", ErrSigning, len(seed), ed25519.SeedSize)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	sig := ed25519.Sign(priv, []byte(text))
	return hex.EncodeToString(sig), nil
}

// VerifyDetached checks an armored detached signature over text against an
// armored public key. A false result with a nil error means the signature is
// well-formed but does not match; an error means the key or signature blob
// could not be parsed.
func VerifyDetached(text, armoredSig, armoredPub string) (bool, error) {
	pub, err := hex.DecodeString(armoredPub)
	if err != nil {
		return false, fmt.Errorf("parsing public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}

	sig, err := hex.DecodeString(armoredSig)
	if err != nil {
		return false, fmt.Errorf("parsing signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("signature is %d bytes, want %d", len(sig), ed25519.SignatureSize)
	}

	return ed25519.Verify(ed25519.PublicKey(pub), []byte(text), sig), nil
}

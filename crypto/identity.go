// Package crypto implements the signing identity layer for peerchat.
//
// This package handles keypair generation, armored key encoding, fingerprint
// derivation, and detached message signatures using Ed25519.
//
// Example:
//
//	id, err := crypto.GenerateIdentity("alice")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Fingerprint:", id.Fingerprint)
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// TestModeEnv is the environment variable that enables the automated-test
// bypass: key generation is skipped and a fixed placeholder identifier is
// used instead.
const TestModeEnv = "PEERCHAT_TEST_MODE"

// TestModeIdentifier is the placeholder identifier used when TestModeEnv is set.
const TestModeIdentifier = "peerchat-test-peer"

// ErrKeySetup indicates that identity key generation or parsing failed.
// The session can still receive and display unauthenticated payloads, but it
// cannot sign outgoing messages.
var ErrKeySetup = errors.New("identity key setup failed")

// Identity holds the local signing keypair and the identifier derived from it.
// Generated once per process lifetime and never persisted.
//
// PublicKey is the armored (hex, text-safe) public key blob embedded in
// outgoing envelopes. The private key stays unexported; signing goes through
// the Sign method.
type Identity struct {
	Label       string
	PublicKey   string
	Fingerprint string

	privateKey string
}

// GenerateIdentity creates a fresh Ed25519 signing identity with the given
// display label. Any entropy or library failure is wrapped in ErrKeySetup
// rather than propagated raw.
//
// When TestModeEnv is set, a placeholder identity with no key material is
// returned; it cannot sign.
func GenerateIdentity(label string) (*Identity, error) {
	if os.Getenv(TestModeEnv) != "" {
		logrus.WithFields(logrus.Fields{
			"function": "GenerateIdentity",
			"label":    label,
		}).Warn("Test mode enabled, using placeholder identity")
		return &Identity{Label: label, Fingerprint: TestModeIdentifier}, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetup, err)
	}

	armoredPub := hex.EncodeToString(pub)
	fingerprint, err := DeriveIdentifier(armoredPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetup, err)
	}

	id := &Identity{
		Label:       label,
		PublicKey:   armoredPub,
		Fingerprint: fingerprint,
		privateKey:  hex.EncodeToString(priv.Seed()),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "GenerateIdentity",
		"label":       label,
		"fingerprint": fingerprint,
	}).Info("Generated signing identity")

	return id, nil
}

// Sign produces an armored detached signature over text with the identity's
// private key. Failures wrap ErrSigning.
func (id *Identity) Sign(text string) (string, error) {
	if id == nil || id.privateKey == "" {
		return "", fmt.Errorf("%w: no private key material", ErrSigning)
	}
	return SignDetached(text, id.privateKey)
}

// CanSign reports whether the identity holds usable private key material.
func (id *Identity) CanSign() bool {
	return id != nil && id.privateKey != ""
}

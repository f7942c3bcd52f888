// Package codec implements the peerchat wire envelope.
//
// An envelope carries a text message, an armored detached signature over that
// text, and the armored public key of the signer. Inbound payloads are
// classified into signed envelopes, legacy plain-text messages, and malformed
// payloads; classification never fails and never panics, so a hostile peer
// cannot crash the receiver with a crafted payload.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerchat/crypto"
)

// Envelope is the signed-message wire structure. Signature is a detached
// signature over exactly Text, produced with the private key matching
// PublicKey. Envelopes are constructed fresh per message and never mutated.
type Envelope struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

// Kind classifies an inbound payload.
type Kind uint8

const (
	// KindEnvelope is a well-formed signed envelope.
	KindEnvelope Kind = iota
	// KindLegacy is an unauthenticated plain-text payload, accepted for
	// backward compatibility with peers that send unsigned messages.
	KindLegacy
	// KindMalformed is a payload matching neither form; the raw bytes are
	// preserved as opaque display text and verification is never attempted.
	KindMalformed
)

// String returns a human-readable name for the payload kind.
func (k Kind) String() string {
	switch k {
	case KindEnvelope:
		return "envelope"
	case KindLegacy:
		return "legacy"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Decoded is the result of classifying an inbound payload. Envelope is set
// only when Kind is KindEnvelope; Text always carries the display text.
type Decoded struct {
	Kind     Kind
	Envelope *Envelope
	Text     string
}

// Encode signs text with the local identity and assembles the outgoing
// envelope. A failure aborts that single message only; it must not be treated
// as message loss at the connection level.
func Encode(text string, id *crypto.Identity) (*Envelope, error) {
	sig, err := id.Sign(text)
	if err != nil {
		return nil, fmt.Errorf("encoding outgoing message: %w", err)
	}

	return &Envelope{
		Text:      text,
		Signature: sig,
		PublicKey: id.PublicKey,
	}, nil
}

// Marshal serializes the envelope to its JSON wire form.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode classifies a raw inbound payload.
//
// A JSON object with string fields text, signature, and publicKey decodes as
// KindEnvelope. A JSON string, or any payload that is not valid JSON at all,
// decodes as KindLegacy with the text preserved. Everything else is
// KindMalformed with the raw payload kept as opaque display text.
func Decode(raw []byte) Decoded {
	var probe interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Decoded{Kind: KindLegacy, Text: string(raw)}
	}

	switch v := probe.(type) {
	case string:
		return Decoded{Kind: KindLegacy, Text: v}
	case map[string]interface{}:
		text, textOK := v["text"].(string)
		sig, sigOK := v["signature"].(string)
		pub, pubOK := v["publicKey"].(string)
		if textOK && sigOK && pubOK {
			return Decoded{
				Kind:     KindEnvelope,
				Envelope: &Envelope{Text: text, Signature: sig, PublicKey: pub},
				Text:     text,
			}
		}
		logrus.WithFields(logrus.Fields{
			"function": "Decode",
			"size":     len(raw),
		}).Debug("Payload object missing envelope fields")
		return Decoded{Kind: KindMalformed, Text: string(raw)}
	default:
		return Decoded{Kind: KindMalformed, Text: string(raw)}
	}
}

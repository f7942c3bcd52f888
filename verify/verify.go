// Package verify checks inbound signed envelopes.
//
// Verification never fails hard: any parse or crypto fault degrades the
// result to untrusted for that single message, and a valid signature whose
// signer does not match the connection's expected peer is reported as an
// identity mismatch without rejecting the message.
package verify

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/peerchat/codec"
	"github.com/opd-ai/peerchat/crypto"
)

// Result is the verdict for one inbound envelope.
//
// Trusted is false when the signature is invalid or any parse step failed.
// IdentityMismatch is set when the signature is valid but the signer's derived
// identifier differs from the expected remote identifier; the message is still
// trusted, the mismatch is an advisory for the user.
type Result struct {
	Trusted          bool
	IdentityMismatch bool
}

// Check verifies the envelope's detached signature against its embedded public
// key and cross-checks the signer's derived identifier against expectedID.
// It never returns an error; faults downgrade trust on this message only.
func Check(env *codec.Envelope, expectedID string) Result {
	if env == nil {
		return Result{}
	}

	ok, err := crypto.VerifyDetached(env.Text, env.Signature, env.PublicKey)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Check",
			"error":    err.Error(),
		}).Debug("Envelope failed signature parsing, downgrading trust")
		return Result{}
	}
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Check",
		}).Debug("Envelope signature invalid, downgrading trust")
		return Result{}
	}

	derived, err := crypto.DeriveIdentifier(env.PublicKey)
	if err != nil {
		// The key just verified a signature, so this should be unreachable;
		// still downgrade rather than fault.
		return Result{}
	}

	if derived != expectedID {
		logrus.WithFields(logrus.Fields{
			"function": "Check",
			"derived":  derived,
			"expected": expectedID,
		}).Warn("Signer fingerprint does not match connection peer")
		return Result{Trusted: true, IdentityMismatch: true}
	}

	return Result{Trusted: true}
}

// Outcome is a future-style handle for one in-flight verification. Outcomes
// for distinct messages may resolve in any order relative to each other.
type Outcome struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

// NewOutcome creates an unresolved outcome. Used by tests to inject delayed
// or out-of-order completions; production code goes through Begin.
func NewOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

// Resolve fixes the outcome's result. Later calls are ignored.
func (o *Outcome) Resolve(r Result) {
	o.once.Do(func() {
		o.result = r
		close(o.done)
	})
}

// Done returns a channel closed once the verdict is available.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the verdict is available and returns it.
func (o *Outcome) Wait() Result {
	<-o.done
	return o.result
}

// Begin starts verification of env in the background and returns its outcome
// handle immediately.
func Begin(env *codec.Envelope, expectedID string) *Outcome {
	o := NewOutcome()
	go o.Resolve(Check(env, expectedID))
	return o
}

package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/peerchat/codec"
	"github.com/opd-ai/peerchat/crypto"
)

func signedEnvelope(t *testing.T, text string) (*codec.Envelope, *crypto.Identity) {
	t.Helper()
	id, err := crypto.GenerateIdentity("signer")
	require.NoError(t, err)
	env, err := codec.Encode(text, id)
	require.NoError(t, err)
	return env, id
}

func TestCheckRoundTrip(t *testing.T) {
	env, id := signedEnvelope(t, "hello")

	res := Check(env, id.Fingerprint)
	assert.True(t, res.Trusted)
	assert.False(t, res.IdentityMismatch)
}

func TestCheckTamperedText(t *testing.T) {
	env, id := signedEnvelope(t, "hello")
	env.Text = "hello, tampered"

	res := Check(env, id.Fingerprint)
	assert.False(t, res.Trusted)
	assert.False(t, res.IdentityMismatch)
}

func TestCheckIdentityMismatch(t *testing.T) {
	env, _ := signedEnvelope(t, "hello")

	other, err := crypto.GenerateIdentity("other")
	require.NoError(t, err)

	res := Check(env, other.Fingerprint)
	assert.True(t, res.Trusted, "a valid self-signed envelope stays trusted")
	assert.True(t, res.IdentityMismatch, "mismatching expected identifier must be flagged")
}

func TestCheckDegradesOnParseFailure(t *testing.T) {
	env, id := signedEnvelope(t, "hello")

	cases := []struct {
		name   string
		mutate func(*codec.Envelope)
	}{
		{name: "garbage signature", mutate: func(e *codec.Envelope) { e.Signature = "zz" }},
		{name: "empty signature", mutate: func(e *codec.Envelope) { e.Signature = "" }},
		{name: "garbage key", mutate: func(e *codec.Envelope) { e.PublicKey = "zz" }},
		{name: "truncated key", mutate: func(e *codec.Envelope) { e.PublicKey = e.PublicKey[:16] }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broken := *env
			tc.mutate(&broken)
			res := Check(&broken, id.Fingerprint)
			assert.False(t, res.Trusted)
			assert.False(t, res.IdentityMismatch)
		})
	}
}

func TestCheckNilEnvelope(t *testing.T) {
	res := Check(nil, "whoever")
	assert.False(t, res.Trusted)
}

func TestBegin(t *testing.T) {
	env, id := signedEnvelope(t, "async hello")

	o := Begin(env, id.Fingerprint)
	select {
	case <-o.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("verification outcome never resolved")
	}
	assert.True(t, o.Wait().Trusted)
}

func TestOutcomeOutOfOrderResolution(t *testing.T) {
	first := NewOutcome()
	second := NewOutcome()

	// The later message's verdict lands before the earlier one's.
	second.Resolve(Result{Trusted: true})
	assert.True(t, second.Wait().Trusted)

	select {
	case <-first.Done():
		t.Fatal("first outcome resolved prematurely")
	default:
	}

	first.Resolve(Result{})
	assert.False(t, first.Wait().Trusted)
}

func TestOutcomeResolveOnce(t *testing.T) {
	o := NewOutcome()
	o.Resolve(Result{Trusted: true})
	o.Resolve(Result{Trusted: false})
	assert.True(t, o.Wait().Trusted, "first resolution wins")
}

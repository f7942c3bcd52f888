package crypto

import (
	"errors"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := GenerateIdentity("alice")
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}

	sig, err := id.Sign("hello")
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if sig == "" {
		t.Fatal("Sign() returned empty signature")
	}

	ok, err := VerifyDetached("hello", sig, id.PublicKey)
	if err != nil {
		t.Fatalf("VerifyDetached() error: %v", err)
	}
	if !ok {
		t.Error("VerifyDetached() rejected a valid signature")
	}
}

func TestVerifyDetachedTamperedText(t *testing.T) {
	id, err := GenerateIdentity("alice")
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}

	sig, err := id.Sign("hello")
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	ok, err := VerifyDetached("hello!", sig, id.PublicKey)
	if err != nil {
		t.Fatalf("VerifyDetached() error: %v", err)
	}
	if ok {
		t.Error("VerifyDetached() accepted a signature over different text")
	}
}

func TestVerifyDetachedWrongKey(t *testing.T) {
	alice, err := GenerateIdentity("alice")
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	bob, err := GenerateIdentity("bob")
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}

	sig, err := alice.Sign("hello")
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	ok, err := VerifyDetached("hello", sig, bob.PublicKey)
	if err != nil {
		t.Fatalf("VerifyDetached() error: %v", err)
	}
	if ok {
		t.Error("VerifyDetached() accepted a signature against the wrong key")
	}
}

func TestSignDetachedCorruptKey(t *testing.T) {
	cases := []struct {
		name string
		priv string
	}{
		{name: "empty", priv: ""},
		{name: "not hex", priv: "corrupt-key-material"},
		{name: "wrong length", priv: "abcd"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SignDetached("hello", tc.priv)
			if err == nil {
				t.Fatal("SignDetached() expected error, got nil")
			}
			if !errors.Is(err, ErrSigning) {
				t.Errorf("SignDetached() error = %v, want ErrSigning", err)
			}
		})
	}
}

func TestVerifyDetachedMalformedInputs(t *testing.T) {
	id, err := GenerateIdentity("alice")
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	sig, err := id.Sign("hello")
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	cases := []struct {
		name string
		sig  string
		pub  string
	}{
		{name: "garbage signature", sig: "not-a-signature", pub: id.PublicKey},
		{name: "short signature", sig: "abcd", pub: id.PublicKey},
		{name: "garbage key", sig: sig, pub: "not-a-key"},
		{name: "short key", sig: sig, pub: "abcd"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := VerifyDetached("hello", tc.sig, tc.pub)
			if err == nil {
				t.Fatal("VerifyDetached() expected parse error, got nil")
			}
			if ok {
				t.Error("VerifyDetached() reported ok on malformed input")
			}
		})
	}
}

package peerchat

import (
	"time"

	"github.com/google/uuid"
)

// Sender indicates which side of the connection produced a chat entry.
type Sender uint8

const (
	// SenderLocal marks entries for messages sent by this peer.
	SenderLocal Sender = iota
	// SenderRemote marks entries for messages received from the remote peer.
	SenderRemote
)

// String returns a human-readable name for the sender.
func (s Sender) String() string {
	switch s {
	case SenderLocal:
		return "local"
	case SenderRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Verdict is the tri-state trust flag attached to a chat entry. It is fixed
// when the entry is created and never updated afterwards.
type Verdict uint8

const (
	// VerdictNone means no verification applies (local messages).
	VerdictNone Verdict = iota
	// VerdictVerified means the message carried a valid signature.
	VerdictVerified
	// VerdictUnverified means the signature was invalid, unparseable, or the
	// payload carried no signature at all.
	VerdictUnverified
)

// String returns a human-readable name for the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictNone:
		return "none"
	case VerdictVerified:
		return "verified"
	case VerdictUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// Entry is one message in the chat log: the tuple the presentation layer
// appends, in insertion order, and never mutates.
type Entry struct {
	ID        string
	Sender    Sender
	Text      string
	Timestamp time.Time
	Verdict   Verdict
}

func newEntry(sender Sender, text string, verdict Verdict) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now(),
		Verdict:   verdict,
	}
}

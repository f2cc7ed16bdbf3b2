// Package mailbox provides read-only IMAP access to account inboxes for
// the reply reconciliation loop.
package mailbox

import (
	"context"
	"fmt"
	"time"
)

// Message holds the envelope fields of an inbound message. The body is
// fetched separately and only for messages that match a tracked send.
type Message struct {
	UID       uint32
	MessageID string
	InReplyTo string
	From      string
	Subject   string
	Date      time.Time
}

// Session is an open, authenticated connection to one account's inbox.
// Implementations are not safe for concurrent use.
type Session interface {
	// SearchSince returns the UIDs of messages sent on or after the
	// given time. IMAP date searches have day granularity, so callers
	// get a superset of the true window.
	SearchSince(since time.Time) ([]uint32, error)

	// FetchEnvelopes retrieves envelope metadata for the given UIDs.
	FetchEnvelopes(uids []uint32) ([]Message, error)

	// FetchBody retrieves the full raw RFC 5322 message for one UID
	// without marking it as read.
	FetchBody(uid uint32) ([]byte, error)

	// Close logs out and releases the connection.
	Close() error
}

// Dialer opens inbox sessions. The engine holds one Dialer and opens a
// fresh session per account per reconciliation pass.
type Dialer interface {
	Dial(ctx context.Context, email, password string) (Session, error)
}

// Error wraps a mailbox failure with the protocol stage it occurred in.
type Error struct {
	Stage string // "connect", "login", "select", "search", "fetch"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mailbox: %s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

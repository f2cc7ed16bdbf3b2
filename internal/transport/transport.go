// Package transport submits outbound mail over an authenticated, encrypted
// SMTP session and reports the generated correlation identifier.
package transport

import (
	"context"
	"time"
)

// Sender performs one authenticated mail submission.
type Sender interface {
	// Send transmits the message and returns the freshly generated
	// Message-ID. Partial transmission is never reported as success.
	Send(ctx context.Context, req *Request) (*Result, error)
}

// Request carries everything needed for one submission.
type Request struct {
	// FromName and FromAddr form the From header; FromAddr is also the
	// authentication identity.
	FromName string
	FromAddr string
	Password string

	Recipient string
	Subject   string
	Body      string // HTML body

	// Attachment is an optional binary part.
	Attachment *Attachment

	// InReplyTo is the correlation identifier of the message being
	// replied to. When set, In-Reply-To and References headers are added
	// so mail clients thread the conversation.
	InReplyTo string
}

// Attachment is a file attached as a base64-encoded binary part.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Result contains the outcome of a successful submission.
type Result struct {
	// MessageID is the globally unique Message-ID generated for this
	// submission; inbound replies carry it in their In-Reply-To header.
	MessageID string
	Timestamp time.Time
}

// Error wraps a submission failure with the stage it occurred in.
// Callers record Error's text as the request's last delivery error.
type Error struct {
	// Stage is one of "connect", "auth", or "submit".
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return "transport: " + e.Stage + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

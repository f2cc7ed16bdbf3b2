// Package storage persists accounts, send requests, and inbound messages.
// It is the single source of truth for send-request status; every status
// transition is validated against the state machine defined here.
package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrInvalidTransition is returned when a status update would violate the
// send-request state machine (e.g. sent -> pending).
var ErrInvalidTransition = errors.New("storage: invalid status transition")

// Status is the lifecycle state of a SendRequest.
type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusReplied Status = "replied"
)

// transitions is the set of legal status transitions. Failed requests may
// re-enter sending because the startup rebuild requeues them; replied is
// terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusSending},
	StatusFailed:  {StatusSending},
	StatusSending: {StatusSent, StatusFailed},
	StatusSent:    {StatusReplied},
	StatusReplied: {},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Dispatchable reports whether a popped queue entry with this status is
// still eligible for delivery. Anything else is a stale entry and is
// discarded by the worker.
func (s Status) Dispatchable() bool {
	return s == StatusPending || s == StatusFailed
}

// ParseStatus validates a raw status string from the database.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusSending, StatusSent, StatusFailed, StatusReplied:
		return s, nil
	default:
		return "", fmt.Errorf("storage: unknown status %q", raw)
	}
}

// Account owns a mail-submission credential and the matching mailbox-read
// credential. The password is the provider app password and is read-only
// from the engine's perspective.
type Account struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountStats summarizes a single account's send requests.
type AccountStats struct {
	Total   int64 `json:"total"`
	Sent    int64 `json:"sent"`
	Replied int64 `json:"replied"`
}

// SendRequest is one unit of outbound work with a future fire time.
//
// CorrelationID is the Message-ID generated at the first send attempt; it is
// set at most once and is globally unique. InReplyTo carries the correlation
// identifier of the inbound message this request replies to, or is empty.
type SendRequest struct {
	ID            int64     `json:"id"`
	AccountID     int64     `json:"account_id"`
	Recipient     string    `json:"recipient"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	AttachmentKey string    `json:"attachment_key,omitempty"`
	InReplyTo     string    `json:"in_reply_to,omitempty"`
	FireAt        time.Time `json:"fire_at"`
	Status        Status    `json:"status"`
	Attempts      int32     `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// InboundMessage is a received reply, created only by the reconciliation
// poller and never mutated afterwards. MessageID is the inbound message's
// own identifier and is unique, so re-observing the same message on a later
// poll never creates a duplicate row.
type InboundMessage struct {
	ID            int64     `json:"id"`
	AccountID     int64     `json:"account_id"`
	FromAddr      string    `json:"from_addr"`
	Subject       string    `json:"subject"`
	ReceivedAt    time.Time `json:"received_at"`
	Body          string    `json:"body"`
	MessageID     string    `json:"message_id"`
	InReplyTo     string    `json:"in_reply_to"`
	SendRequestID int64     `json:"send_request_id"`
	CreatedAt     time.Time `json:"created_at"`
}

package storage

import (
	"context"
	"time"
)

// Store is the persistence interface consumed by the delivery engine and
// the API handlers. Queries implements it against PostgreSQL; MemStore is
// an in-memory substitute for tests.
type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	AccountStats(ctx context.Context, id int64) (AccountStats, error)

	// Send requests
	CreateSendRequest(ctx context.Context, params CreateSendRequestParams) (SendRequest, error)
	GetSendRequest(ctx context.Context, id int64) (SendRequest, error)
	GetSendRequestByCorrelationID(ctx context.Context, correlationID string) (SendRequest, error)
	ListSendRequests(ctx context.Context) ([]SendRequest, error)
	DeleteSendRequest(ctx context.Context, id int64) error

	// ListRequeueable returns all pending or failed requests whose fire
	// time is still in the future; the engine pushes them back onto the
	// due-time queue at startup.
	ListRequeueable(ctx context.Context, now time.Time) ([]SendRequest, error)

	// RecoverInterrupted marks every request stuck in sending as failed
	// with the given error text, returning the number of rows touched.
	// Run once at startup, before the dispatch loop begins.
	RecoverInterrupted(ctx context.Context, reason string) (int64, error)

	// MarkSending transitions a request to sending. It returns
	// ErrInvalidTransition when the request is not pending or failed,
	// which the worker treats as a stale queue entry.
	MarkSending(ctx context.Context, id int64) error

	// RecordDispatchSuccess transitions sending -> sent, stores the
	// correlation ID assigned by the transport, clears the last error,
	// and increments the attempt count.
	RecordDispatchSuccess(ctx context.Context, id int64, correlationID string) error

	// RecordDispatchFailure transitions sending -> failed, stores the
	// error text, and increments the attempt count.
	RecordDispatchFailure(ctx context.Context, id int64, sendErr string) error

	// Inbound messages
	InboundMessageExists(ctx context.Context, messageID string) (bool, error)

	// RecordReply persists an inbound reply and flips the matched request
	// to replied in one transaction. A request that is already replied
	// keeps its status; the inbound row is still recorded.
	RecordReply(ctx context.Context, params RecordReplyParams) (InboundMessage, error)

	ListInboundMessages(ctx context.Context) ([]InboundMessage, error)
	GetInboundMessage(ctx context.Context, id int64) (InboundMessage, error)
}

// CreateAccountParams holds the fields for a new account.
type CreateAccountParams struct {
	Name     string
	Email    string
	Password string
}

// CreateSendRequestParams holds the fields for a new send request. The
// request is created with status pending and zero attempts.
type CreateSendRequestParams struct {
	AccountID     int64
	Recipient     string
	Subject       string
	Body          string
	AttachmentKey string
	InReplyTo     string
	FireAt        time.Time
}

// RecordReplyParams holds the fields for a matched inbound reply.
type RecordReplyParams struct {
	SendRequestID int64
	AccountID     int64
	FromAddr      string
	Subject       string
	ReceivedAt    time.Time
	Body          string
	MessageID     string
	InReplyTo     string
}

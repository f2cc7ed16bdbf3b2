package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory Store implementation with the same transition
// and uniqueness semantics as Queries. It exists so the engine and API can
// be tested without a database.
type MemStore struct {
	mu       sync.Mutex
	accounts map[int64]Account
	requests map[int64]SendRequest
	inbound  map[int64]InboundMessage
	nextID   int64
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[int64]Account),
		requests: make(map[int64]SendRequest),
		inbound:  make(map[int64]InboundMessage),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateAccount inserts a new account.
func (m *MemStore) CreateAccount(_ context.Context, params CreateAccountParams) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.Email == params.Email {
			return Account{}, fmt.Errorf("storage: duplicate email %q", params.Email)
		}
	}

	a := Account{
		ID:        m.id(),
		Name:      params.Name,
		Email:     params.Email,
		Password:  params.Password,
		CreatedAt: time.Now(),
	}
	m.accounts[a.ID] = a
	return a, nil
}

// GetAccount fetches one account by ID.
func (m *MemStore) GetAccount(_ context.Context, id int64) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by ID.
func (m *MemStore) ListAccounts(_ context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// DeleteAccount removes an account and all rows referencing it.
func (m *MemStore) DeleteAccount(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, id)
	for rid, r := range m.requests {
		if r.AccountID == id {
			delete(m.requests, rid)
		}
	}
	for mid, msg := range m.inbound {
		if msg.AccountID == id {
			delete(m.inbound, mid)
		}
	}
	return nil
}

// AccountStats returns send-request counts for one account.
func (m *MemStore) AccountStats(_ context.Context, id int64) (AccountStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s AccountStats
	for _, r := range m.requests {
		if r.AccountID != id {
			continue
		}
		s.Total++
		switch r.Status {
		case StatusSent:
			s.Sent++
		case StatusReplied:
			s.Replied++
		}
	}
	return s, nil
}

// CreateSendRequest inserts a new pending send request.
func (m *MemStore) CreateSendRequest(_ context.Context, params CreateSendRequestParams) (SendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[params.AccountID]; !ok {
		return SendRequest{}, fmt.Errorf("storage: account %d: %w", params.AccountID, ErrNotFound)
	}

	r := SendRequest{
		ID:            m.id(),
		AccountID:     params.AccountID,
		Recipient:     params.Recipient,
		Subject:       params.Subject,
		Body:          params.Body,
		AttachmentKey: params.AttachmentKey,
		InReplyTo:     params.InReplyTo,
		FireAt:        params.FireAt,
		Status:        StatusPending,
		CreatedAt:     time.Now(),
	}
	m.requests[r.ID] = r
	return r, nil
}

// GetSendRequest fetches one send request by ID.
func (m *MemStore) GetSendRequest(_ context.Context, id int64) (SendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return SendRequest{}, ErrNotFound
	}
	return r, nil
}

// GetSendRequestByCorrelationID fetches the request with the given
// outbound Message-ID.
func (m *MemStore) GetSendRequestByCorrelationID(_ context.Context, correlationID string) (SendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if correlationID == "" {
		return SendRequest{}, ErrNotFound
	}
	for _, r := range m.requests {
		if r.CorrelationID == correlationID {
			return r, nil
		}
	}
	return SendRequest{}, ErrNotFound
}

// ListSendRequests returns all send requests, newest fire time first.
func (m *MemStore) ListSendRequests(_ context.Context) ([]SendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make([]SendRequest, 0, len(m.requests))
	for _, r := range m.requests {
		requests = append(requests, r)
	}
	sort.Slice(requests, func(i, j int) bool {
		if !requests[i].FireAt.Equal(requests[j].FireAt) {
			return requests[i].FireAt.After(requests[j].FireAt)
		}
		return requests[i].ID > requests[j].ID
	})
	return requests, nil
}

// DeleteSendRequest removes a send request.
func (m *MemStore) DeleteSendRequest(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[id]; !ok {
		return ErrNotFound
	}
	delete(m.requests, id)
	return nil
}

// ListRequeueable returns pending/failed requests with a future fire time.
func (m *MemStore) ListRequeueable(_ context.Context, now time.Time) ([]SendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var requests []SendRequest
	for _, r := range m.requests {
		if r.Status.Dispatchable() && r.FireAt.After(now) {
			requests = append(requests, r)
		}
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].FireAt.Before(requests[j].FireAt) })
	return requests, nil
}

// RecoverInterrupted marks requests stuck in sending as failed.
func (m *MemStore) RecoverInterrupted(_ context.Context, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, r := range m.requests {
		if r.Status == StatusSending {
			r.Status = StatusFailed
			r.LastError = reason
			m.requests[id] = r
			n++
		}
	}
	return n, nil
}

func (m *MemStore) transition(id int64, next Status, update func(*SendRequest)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	update(&r)
	m.requests[id] = r
	return nil
}

// MarkSending transitions a request to sending.
func (m *MemStore) MarkSending(_ context.Context, id int64) error {
	return m.transition(id, StatusSending, func(r *SendRequest) {
		r.Status = StatusSending
	})
}

// RecordDispatchSuccess finalizes a successful delivery attempt.
func (m *MemStore) RecordDispatchSuccess(_ context.Context, id int64, correlationID string) error {
	return m.transition(id, StatusSent, func(r *SendRequest) {
		r.Status = StatusSent
		r.CorrelationID = correlationID
		r.LastError = ""
		r.Attempts++
	})
}

// RecordDispatchFailure finalizes a failed delivery attempt.
func (m *MemStore) RecordDispatchFailure(_ context.Context, id int64, sendErr string) error {
	return m.transition(id, StatusFailed, func(r *SendRequest) {
		r.Status = StatusFailed
		r.LastError = sendErr
		r.Attempts++
	})
}

// InboundMessageExists reports whether a message with the given Message-ID
// has already been recorded.
func (m *MemStore) InboundMessageExists(_ context.Context, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.inbound {
		if msg.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

// RecordReply persists an inbound reply and flips the matched request to
// replied, mirroring the transactional semantics of Queries.
func (m *MemStore) RecordReply(_ context.Context, params RecordReplyParams) (InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[params.SendRequestID]
	if !ok {
		return InboundMessage{}, ErrNotFound
	}
	for _, msg := range m.inbound {
		if msg.MessageID == params.MessageID {
			return InboundMessage{}, fmt.Errorf("storage: duplicate message_id %q", params.MessageID)
		}
	}

	if r.Status.CanTransition(StatusReplied) {
		r.Status = StatusReplied
		m.requests[r.ID] = r
	}

	msg := InboundMessage{
		ID:            m.id(),
		AccountID:     params.AccountID,
		FromAddr:      params.FromAddr,
		Subject:       params.Subject,
		ReceivedAt:    params.ReceivedAt,
		Body:          params.Body,
		MessageID:     params.MessageID,
		InReplyTo:     params.InReplyTo,
		SendRequestID: params.SendRequestID,
		CreatedAt:     time.Now(),
	}
	m.inbound[msg.ID] = msg
	return msg, nil
}

// ListInboundMessages returns all inbound messages, newest first.
func (m *MemStore) ListInboundMessages(_ context.Context) ([]InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := make([]InboundMessage, 0, len(m.inbound))
	for _, msg := range m.inbound {
		messages = append(messages, msg)
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].ReceivedAt.Equal(messages[j].ReceivedAt) {
			return messages[i].ReceivedAt.After(messages[j].ReceivedAt)
		}
		return messages[i].ID > messages[j].ID
	})
	return messages, nil
}

// GetInboundMessage fetches one inbound message by ID.
func (m *MemStore) GetInboundMessage(_ context.Context, id int64) (InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.inbound[id]
	if !ok {
		return InboundMessage{}, ErrNotFound
	}
	return msg, nil
}

var _ Store = (*MemStore)(nil)
var _ Store = (*Queries)(nil)

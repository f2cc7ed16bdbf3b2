package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sungwon/mail-scheduler/internal/mailbox"
	"github.com/sungwon/mail-scheduler/internal/storage"
)

// sentRequest creates a request and walks it to sent with the given
// correlation id, the state a reply can match against.
func sentRequest(t *testing.T, store storage.Store, account storage.Account, correlationID string) storage.SendRequest {
	t.Helper()
	ctx := context.Background()
	req, err := store.CreateSendRequest(ctx, storage.CreateSendRequestParams{
		AccountID: account.ID, Recipient: "r@example.org", Subject: "outbound", Body: "b",
		FireAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateSendRequest: %v", err)
	}
	if err := store.MarkSending(ctx, req.ID); err != nil {
		t.Fatalf("MarkSending: %v", err)
	}
	if err := store.RecordDispatchSuccess(ctx, req.ID, correlationID); err != nil {
		t.Fatalf("RecordDispatchSuccess: %v", err)
	}
	req, err = store.GetSendRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSendRequest: %v", err)
	}
	return req
}

func replyRaw(subject, body string) []byte {
	return []byte("From: Bob <bob@example.org>\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n")
}

func TestReconcile_MatchedReplyFlipsRequestToReplied(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()
	account := newTestAccount(t, store)
	req := sentRequest(t, store, account, "<corr-1@example.com>")

	session := &fakeSession{
		messages: []mailbox.Message{{
			UID:       7,
			MessageID: "<reply-1@example.org>",
			InReplyTo: "<corr-1@example.com>",
			From:      "Bob <bob@example.org>",
			Subject:   "Re: outbound",
			Date:      time.Now(),
		}},
		bodies: map[uint32][]byte{7: replyRaw("Re: outbound", "Sounds good!")},
	}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{account.Email: session}}

	e := newTestEngine(t, store, nil, dialer)
	e.reconcilePass(ctx)

	got, err := store.GetSendRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSendRequest: %v", err)
	}
	if got.Status != storage.StatusReplied {
		t.Errorf("status = %s, want replied", got.Status)
	}

	inbox, err := store.ListInboundMessages(ctx)
	if err != nil {
		t.Fatalf("ListInboundMessages: %v", err)
	}
	if len(inbox) != 1 {
		t.Fatalf("inbound rows = %d, want 1", len(inbox))
	}
	msg := inbox[0]
	if msg.SendRequestID != req.ID {
		t.Errorf("send_request_id = %d, want %d", msg.SendRequestID, req.ID)
	}
	if !strings.Contains(msg.Body, "Sounds good!") {
		t.Errorf("body = %q, want parsed reply text", msg.Body)
	}
	if !session.closed {
		t.Error("session was not closed after the pass")
	}
}

func TestReconcile_RepollIsIdempotentByMessageID(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()
	account := newTestAccount(t, store)
	sentRequest(t, store, account, "<corr-2@example.com>")

	session := &fakeSession{
		messages: []mailbox.Message{{
			UID:       3,
			MessageID: "<reply-2@example.org>",
			InReplyTo: "<corr-2@example.com>",
			From:      "bob@example.org",
			Subject:   "Re: outbound",
			Date:      time.Now(),
		}},
		bodies: map[uint32][]byte{3: replyRaw("Re: outbound", "ack")},
	}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{account.Email: session}}

	e := newTestEngine(t, store, nil, dialer)
	e.reconcilePass(ctx)
	e.reconcilePass(ctx)

	inbox, err := store.ListInboundMessages(ctx)
	if err != nil {
		t.Fatalf("ListInboundMessages: %v", err)
	}
	if len(inbox) != 1 {
		t.Errorf("inbound rows = %d, want 1 after re-poll", len(inbox))
	}
}

func TestReconcile_NonReplyMessagesIgnored(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()
	account := newTestAccount(t, store)
	sentRequest(t, store, account, "<corr-3@example.com>")

	session := &fakeSession{
		messages: []mailbox.Message{{
			UID:       1,
			MessageID: "<newsletter@example.net>",
			From:      "news@example.net",
			Subject:   "Weekly digest",
			Date:      time.Now(),
		}},
	}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{account.Email: session}}

	e := newTestEngine(t, store, nil, dialer)
	e.reconcilePass(ctx)

	inbox, err := store.ListInboundMessages(ctx)
	if err != nil {
		t.Fatalf("ListInboundMessages: %v", err)
	}
	if len(inbox) != 0 {
		t.Errorf("inbound rows = %d, want 0 for non-reply traffic", len(inbox))
	}
}

func TestReconcile_UnmatchedReplyNotPersistedAndRecheckedLater(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()
	account := newTestAccount(t, store)

	session := &fakeSession{
		messages: []mailbox.Message{{
			UID:       9,
			MessageID: "<reply-9@example.org>",
			InReplyTo: "<unknown@example.com>",
			From:      "bob@example.org",
			Subject:   "Re: something",
			Date:      time.Now(),
		}},
		bodies: map[uint32][]byte{9: replyRaw("Re: something", "hello")},
	}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{account.Email: session}}
	e := newTestEngine(t, store, nil, dialer)

	e.reconcilePass(ctx)
	inbox, _ := store.ListInboundMessages(ctx)
	if len(inbox) != 0 {
		t.Fatalf("unmatched reply must not be persisted, got %d rows", len(inbox))
	}

	// A matching request appears before the next pass; the same message
	// must now match because it was never marked seen.
	req := sentRequest(t, store, account, "<unknown@example.com>")
	e.reconcilePass(ctx)

	got, err := store.GetSendRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSendRequest: %v", err)
	}
	if got.Status != storage.StatusReplied {
		t.Errorf("status = %s, want replied on the later pass", got.Status)
	}
}

func TestReconcile_AccountFailureDoesNotAbortPass(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()

	broken, err := store.CreateAccount(ctx, storage.CreateAccountParams{
		Name: "Broken", Email: "broken@example.com", Password: "x",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	healthy, err := store.CreateAccount(ctx, storage.CreateAccountParams{
		Name: "Healthy", Email: "healthy@example.com", Password: "x",
	})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	req := sentRequest(t, store, healthy, "<corr-h@example.com>")

	session := &fakeSession{
		messages: []mailbox.Message{{
			UID:       2,
			MessageID: "<reply-h@example.org>",
			InReplyTo: "<corr-h@example.com>",
			From:      "bob@example.org",
			Subject:   "Re: outbound",
			Date:      time.Now(),
		}},
		bodies: map[uint32][]byte{2: replyRaw("Re: outbound", "yes")},
	}
	dialer := &fakeDialer{
		sessions: map[string]*fakeSession{healthy.Email: session},
		dialErr:  map[string]error{broken.Email: &mailbox.Error{Stage: "login", Err: errors.New("invalid credentials")}},
	}

	e := newTestEngine(t, store, nil, dialer)
	e.reconcilePass(ctx)

	got, err := store.GetSendRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSendRequest: %v", err)
	}
	if got.Status != storage.StatusReplied {
		t.Errorf("healthy account's reply must still match, status = %s", got.Status)
	}
}

func TestReconcile_BodyFetchFailureRecordsEnvelopeOnly(t *testing.T) {
	store := storage.NewMemStore()
	ctx := context.Background()
	account := newTestAccount(t, store)
	req := sentRequest(t, store, account, "<corr-4@example.com>")

	session := &fakeSession{
		messages: []mailbox.Message{{
			UID:       5,
			MessageID: "<reply-4@example.org>",
			InReplyTo: "<corr-4@example.com>",
			From:      "bob@example.org",
			Subject:   "Re: outbound",
			Date:      time.Now(),
		}},
		bodyErr: &mailbox.Error{Stage: "fetch", Err: errors.New("connection reset")},
	}
	dialer := &fakeDialer{sessions: map[string]*fakeSession{account.Email: session}}

	e := newTestEngine(t, store, nil, dialer)
	e.reconcilePass(ctx)

	got, err := store.GetSendRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetSendRequest: %v", err)
	}
	if got.Status != storage.StatusReplied {
		t.Errorf("status = %s, want replied even without a body", got.Status)
	}

	inbox, _ := store.ListInboundMessages(ctx)
	if len(inbox) != 1 {
		t.Fatalf("inbound rows = %d, want 1", len(inbox))
	}
	if inbox[0].Body != "" {
		t.Errorf("body should be empty when fetch fails, got %q", inbox[0].Body)
	}
}

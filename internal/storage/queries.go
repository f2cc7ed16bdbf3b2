package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Queries implements Store against PostgreSQL.
type Queries struct {
	pool *pgxpool.Pool
}

// New creates a Queries instance backed by the given pool.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// ApplySchema creates the tables if they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const accountColumns = `id, name, email, password, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Password, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	return a, err
}

// CreateAccount inserts a new account.
func (q *Queries) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO accounts (name, email, password)
		VALUES ($1, $2, $3)
		RETURNING `+accountColumns,
		params.Name, params.Email, params.Password)
	return scanAccount(row)
}

// GetAccount fetches one account by ID.
func (q *Queries) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// ListAccounts returns all accounts ordered by creation.
func (q *Queries) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := q.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account and, via ON DELETE CASCADE, its send
// requests and inbound messages.
func (q *Queries) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := q.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AccountStats returns send-request counts for one account.
func (q *Queries) AccountStats(ctx context.Context, id int64) (AccountStats, error) {
	var s AccountStats
	err := q.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'sent'),
		       count(*) FILTER (WHERE status = 'replied')
		FROM send_requests
		WHERE account_id = $1`, id).Scan(&s.Total, &s.Sent, &s.Replied)
	return s, err
}

const sendRequestColumns = `id, account_id, recipient, subject, body,
	COALESCE(attachment_key, ''), COALESCE(in_reply_to, ''), fire_at,
	status, attempts, COALESCE(last_error, ''), COALESCE(correlation_id, ''),
	created_at`

func scanSendRequest(row pgx.Row) (SendRequest, error) {
	var r SendRequest
	var status string
	err := row.Scan(&r.ID, &r.AccountID, &r.Recipient, &r.Subject, &r.Body,
		&r.AttachmentKey, &r.InReplyTo, &r.FireAt,
		&status, &r.Attempts, &r.LastError, &r.CorrelationID,
		&r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SendRequest{}, ErrNotFound
	}
	if err != nil {
		return SendRequest{}, err
	}
	r.Status, err = ParseStatus(status)
	return r, err
}

// CreateSendRequest inserts a new pending send request.
func (q *Queries) CreateSendRequest(ctx context.Context, params CreateSendRequestParams) (SendRequest, error) {
	row := q.pool.QueryRow(ctx, `
		INSERT INTO send_requests (account_id, recipient, subject, body, attachment_key, in_reply_to, fire_at, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, 'pending')
		RETURNING `+sendRequestColumns,
		params.AccountID, params.Recipient, params.Subject, params.Body,
		params.AttachmentKey, params.InReplyTo, params.FireAt)
	return scanSendRequest(row)
}

// GetSendRequest fetches one send request by ID.
func (q *Queries) GetSendRequest(ctx context.Context, id int64) (SendRequest, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+sendRequestColumns+` FROM send_requests WHERE id = $1`, id)
	return scanSendRequest(row)
}

// GetSendRequestByCorrelationID fetches the request whose outbound
// Message-ID equals the given correlation identifier.
func (q *Queries) GetSendRequestByCorrelationID(ctx context.Context, correlationID string) (SendRequest, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+sendRequestColumns+` FROM send_requests WHERE correlation_id = $1`, correlationID)
	return scanSendRequest(row)
}

// ListSendRequests returns all send requests, newest fire time first.
func (q *Queries) ListSendRequests(ctx context.Context) ([]SendRequest, error) {
	rows, err := q.pool.Query(ctx, `SELECT `+sendRequestColumns+` FROM send_requests ORDER BY fire_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []SendRequest
	for rows.Next() {
		r, err := scanSendRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// DeleteSendRequest removes a send request. The dispatch worker tolerates
// entries that reference a deleted row, so no queue cleanup is needed.
func (q *Queries) DeleteSendRequest(ctx context.Context, id int64) error {
	tag, err := q.pool.Exec(ctx, `DELETE FROM send_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRequeueable returns pending/failed requests with a future fire time.
func (q *Queries) ListRequeueable(ctx context.Context, now time.Time) ([]SendRequest, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT `+sendRequestColumns+`
		FROM send_requests
		WHERE status IN ('pending', 'failed') AND fire_at > $1
		ORDER BY fire_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []SendRequest
	for rows.Next() {
		r, err := scanSendRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// RecoverInterrupted marks requests left in sending by a crash as failed.
func (q *Queries) RecoverInterrupted(ctx context.Context, reason string) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE send_requests
		SET status = 'failed', last_error = $1
		WHERE status = 'sending'`, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// transition loads a request's status with a row lock, validates the move,
// and runs the update inside the same transaction. This gives
// single-writer-per-row semantics between the two engine loops.
func (q *Queries) transition(ctx context.Context, id int64, next Status, update func(pgx.Tx) error) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw string
	err = tx.QueryRow(ctx, `SELECT status FROM send_requests WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	current, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	if !current.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	if err := update(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MarkSending transitions a request to sending.
func (q *Queries) MarkSending(ctx context.Context, id int64) error {
	return q.transition(ctx, id, StatusSending, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE send_requests SET status = 'sending' WHERE id = $1`, id)
		return err
	})
}

// RecordDispatchSuccess finalizes a successful delivery attempt.
func (q *Queries) RecordDispatchSuccess(ctx context.Context, id int64, correlationID string) error {
	return q.transition(ctx, id, StatusSent, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE send_requests
			SET status = 'sent', correlation_id = $2, last_error = NULL, attempts = attempts + 1
			WHERE id = $1`, id, correlationID)
		return err
	})
}

// RecordDispatchFailure finalizes a failed delivery attempt.
func (q *Queries) RecordDispatchFailure(ctx context.Context, id int64, sendErr string) error {
	return q.transition(ctx, id, StatusFailed, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE send_requests
			SET status = 'failed', last_error = $2, attempts = attempts + 1
			WHERE id = $1`, id, sendErr)
		return err
	})
}

const inboundColumns = `id, account_id, from_addr, subject,
	COALESCE(received_at, 'epoch'::timestamptz), body, message_id,
	in_reply_to, COALESCE(send_request_id, 0), created_at`

func scanInbound(row pgx.Row) (InboundMessage, error) {
	var m InboundMessage
	err := row.Scan(&m.ID, &m.AccountID, &m.FromAddr, &m.Subject,
		&m.ReceivedAt, &m.Body, &m.MessageID,
		&m.InReplyTo, &m.SendRequestID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return InboundMessage{}, ErrNotFound
	}
	return m, err
}

// InboundMessageExists reports whether an inbound message with the given
// Message-ID has already been recorded.
func (q *Queries) InboundMessageExists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := q.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inbound_messages WHERE message_id = $1)`, messageID).Scan(&exists)
	return exists, err
}

// RecordReply inserts the inbound message and flips the matched request to
// replied within one transaction. If the request was already replied (a
// second distinct reply), its status is left alone and the inbound row is
// still recorded.
func (q *Queries) RecordReply(ctx context.Context, params RecordReplyParams) (InboundMessage, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return InboundMessage{}, err
	}
	defer tx.Rollback(ctx)

	var raw string
	err = tx.QueryRow(ctx, `SELECT status FROM send_requests WHERE id = $1 FOR UPDATE`,
		params.SendRequestID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return InboundMessage{}, ErrNotFound
	}
	if err != nil {
		return InboundMessage{}, err
	}

	current, err := ParseStatus(raw)
	if err != nil {
		return InboundMessage{}, err
	}
	if current.CanTransition(StatusReplied) {
		if _, err := tx.Exec(ctx, `UPDATE send_requests SET status = 'replied' WHERE id = $1`,
			params.SendRequestID); err != nil {
			return InboundMessage{}, err
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO inbound_messages (account_id, from_addr, subject, received_at, body, message_id, in_reply_to, send_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+inboundColumns,
		params.AccountID, params.FromAddr, params.Subject, params.ReceivedAt,
		params.Body, params.MessageID, params.InReplyTo, params.SendRequestID)
	msg, err := scanInbound(row)
	if err != nil {
		return InboundMessage{}, err
	}

	return msg, tx.Commit(ctx)
}

// ListInboundMessages returns all inbound messages, newest first.
func (q *Queries) ListInboundMessages(ctx context.Context) ([]InboundMessage, error) {
	rows, err := q.pool.Query(ctx, `SELECT `+inboundColumns+` FROM inbound_messages ORDER BY received_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []InboundMessage
	for rows.Next() {
		m, err := scanInbound(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetInboundMessage fetches one inbound message by ID.
func (q *Queries) GetInboundMessage(ctx context.Context, id int64) (InboundMessage, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+inboundColumns+` FROM inbound_messages WHERE id = $1`, id)
	return scanInbound(row)
}

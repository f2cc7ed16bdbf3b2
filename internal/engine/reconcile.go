package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sungwon/mail-scheduler/internal/mailbox"
	"github.com/sungwon/mail-scheduler/internal/mailparse"
	"github.com/sungwon/mail-scheduler/internal/metrics"
	"github.com/sungwon/mail-scheduler/internal/storage"
)

// runReconcile polls each account's inbox on a fixed interval and matches
// replies back to sent requests. The first pass runs immediately so a
// restart does not delay reply detection by a full interval.
func (e *Engine) runReconcile(ctx context.Context) {
	defer e.wg.Done()

	e.log.Info().Dur("interval", e.cfg.PollInterval).Msg("reconciliation poller started")
	for {
		e.reconcilePass(ctx)

		select {
		case <-ctx.Done():
			e.log.Info().Msg("reconciliation poller stopping")
			return
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// reconcilePass walks every account once. Per-account failures are counted
// and logged but never abort the pass; one broken mailbox must not block
// reply detection for the others.
func (e *Engine) reconcilePass(ctx context.Context) {
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to list accounts for reconciliation")
		return
	}

	for _, account := range accounts {
		if ctx.Err() != nil {
			return
		}
		if err := e.reconcileAccount(ctx, account); err != nil {
			metrics.ReconcileAccountErrorsTotal.Inc()
			e.log.Warn().Err(err).Str("account", account.Email).Msg("mailbox reconciliation failed")
		}
	}
	metrics.ReconcilePassesTotal.Inc()
}

// reconcileAccount opens one inbox session and examines recent messages.
// Envelope metadata is fetched first; the full body is fetched only for
// messages that match a tracked request, keeping the common case cheap.
// Unmatched replies are never persisted, so they are re-examined on every
// pass until the search window moves past them.
func (e *Engine) reconcileAccount(ctx context.Context, account storage.Account) error {
	session, err := e.dialer.Dial(ctx, account.Email, account.Password)
	if err != nil {
		return err
	}
	defer session.Close()

	uids, err := session.SearchSince(e.now().Add(-e.cfg.SearchWindow))
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}

	envelopes, err := session.FetchEnvelopes(uids)
	if err != nil {
		return err
	}

	for _, msg := range envelopes {
		if ctx.Err() != nil {
			return nil
		}
		if msg.MessageID == "" {
			continue
		}

		seen, err := e.store.InboundMessageExists(ctx, msg.MessageID)
		if err != nil {
			return err
		}
		if seen {
			metrics.ReconcileMessagesTotal.WithLabelValues("seen").Inc()
			continue
		}

		if msg.InReplyTo == "" {
			metrics.ReconcileMessagesTotal.WithLabelValues("untracked").Inc()
			continue
		}

		req, err := e.store.GetSendRequestByCorrelationID(ctx, msg.InReplyTo)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				metrics.ReconcileMessagesTotal.WithLabelValues("unmatched").Inc()
				continue
			}
			return err
		}

		if err := e.recordReply(ctx, session, account, req, msg); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) recordReply(
	ctx context.Context,
	session mailbox.Session,
	account storage.Account,
	req storage.SendRequest,
	msg mailbox.Message,
) error {
	body := ""
	if raw, err := session.FetchBody(msg.UID); err != nil {
		// The envelope alone is enough to record the reply.
		e.log.Warn().Err(err).Str("message_id", msg.MessageID).Msg("body fetch failed, recording envelope only")
	} else if content, err := mailparse.Parse(raw); err != nil {
		e.log.Warn().Err(err).Str("message_id", msg.MessageID).Msg("body parse failed, recording envelope only")
	} else {
		body = content.Body()
	}

	receivedAt := msg.Date
	if receivedAt.IsZero() {
		receivedAt = e.now()
	}

	_, err := e.store.RecordReply(ctx, storage.RecordReplyParams{
		SendRequestID: req.ID,
		AccountID:     account.ID,
		FromAddr:      msg.From,
		Subject:       msg.Subject,
		ReceivedAt:    receivedAt,
		Body:          body,
		MessageID:     msg.MessageID,
		InReplyTo:     msg.InReplyTo,
	})
	if err != nil {
		return err
	}

	metrics.ReconcileMessagesTotal.WithLabelValues("matched").Inc()
	e.log.Info().
		Int64("request_id", req.ID).
		Str("from", msg.From).
		Str("message_id", msg.MessageID).
		Msg("reply matched to sent request")
	return nil
}

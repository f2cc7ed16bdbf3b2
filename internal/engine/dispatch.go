package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mail-scheduler/internal/blobstore"
	"github.com/sungwon/mail-scheduler/internal/metrics"
	"github.com/sungwon/mail-scheduler/internal/storage"
	"github.com/sungwon/mail-scheduler/internal/transport"
)

// runDispatch drains the due-time queue. One entry is processed at a time;
// a failed delivery marks its request failed and the loop moves on, so no
// single bad request can stall the queue.
func (e *Engine) runDispatch(ctx context.Context) {
	defer e.wg.Done()

	e.log.Info().Msg("dispatch worker started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("dispatch worker stopping")
			return
		default:
		}

		entry, ok := e.queue.PopDue(e.now())
		if !ok {
			select {
			case <-ctx.Done():
			case <-time.After(e.cfg.DispatchIdle):
			}
			continue
		}

		e.dispatch(ctx, entry.RequestID)
	}
}

// dispatch performs a single delivery attempt. The status guard runs
// against the store, not the queue: deleted requests and duplicate queue
// entries surface here as stale pops and are discarded.
func (e *Engine) dispatch(ctx context.Context, requestID int64) {
	log := e.log.With().Int64("request_id", requestID).Logger()

	req, err := e.store.GetSendRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Debug().Msg("queue entry for deleted request discarded")
			metrics.DispatchTotal.WithLabelValues("stale").Inc()
			return
		}
		log.Error().Err(err).Msg("failed to load request for dispatch")
		return
	}

	if !req.Status.Dispatchable() {
		log.Debug().Str("status", string(req.Status)).Msg("stale queue entry discarded")
		metrics.DispatchTotal.WithLabelValues("stale").Inc()
		return
	}

	if err := e.store.MarkSending(ctx, requestID); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) || errors.Is(err, storage.ErrNotFound) {
			metrics.DispatchTotal.WithLabelValues("stale").Inc()
			return
		}
		log.Error().Err(err).Msg("failed to mark request sending")
		return
	}

	account, err := e.store.GetAccount(ctx, req.AccountID)
	if err != nil {
		e.recordFailure(ctx, log, requestID, "load account: "+err.Error())
		return
	}

	treq := &transport.Request{
		FromName:  account.Name,
		FromAddr:  account.Email,
		Password:  account.Password,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
		InReplyTo: req.InReplyTo,
	}

	if req.AttachmentKey != "" {
		content, err := e.blobs.Get(ctx, req.AttachmentKey)
		if err != nil {
			e.recordFailure(ctx, log, requestID, "load attachment: "+err.Error())
			return
		}
		filename := blobstore.Filename(req.AttachmentKey)
		treq.Attachment = &transport.Attachment{
			Filename:    filename,
			ContentType: blobstore.ContentType(filename, content),
			Content:     content,
		}
	}

	start := time.Now()
	result, err := e.sender.Send(ctx, treq)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.recordFailure(ctx, log, requestID, err.Error())
		return
	}

	if err := e.store.RecordDispatchSuccess(ctx, requestID, result.MessageID); err != nil {
		log.Error().Err(err).Msg("delivered but failed to record success")
		return
	}
	metrics.DispatchTotal.WithLabelValues("sent").Inc()
	log.Info().
		Str("recipient", req.Recipient).
		Str("correlation_id", result.MessageID).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("request delivered")
}

func (e *Engine) recordFailure(ctx context.Context, log zerolog.Logger, requestID int64, cause string) {
	metrics.DispatchTotal.WithLabelValues("failed").Inc()
	log.Warn().Str("cause", cause).Msg("delivery attempt failed")

	if err := e.store.RecordDispatchFailure(ctx, requestID, cause); err != nil {
		log.Error().Err(err).Msg("failed to record delivery failure")
	}
}

// Package engine runs the delivery loops: the dispatch worker that drains
// the due-time queue into SMTP submissions, and the reconciliation poller
// that matches inbox replies back to sent requests.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mail-scheduler/internal/blobstore"
	"github.com/sungwon/mail-scheduler/internal/mailbox"
	"github.com/sungwon/mail-scheduler/internal/schedule"
	"github.com/sungwon/mail-scheduler/internal/storage"
	"github.com/sungwon/mail-scheduler/internal/transport"
)

// interruptedError is recorded on requests found stuck in sending at
// startup. A crash mid-submission means delivery state is unknown; failed
// is the honest answer and keeps the row visible to operators.
const interruptedError = "delivery interrupted by process restart"

// Config holds the engine loop timings.
type Config struct {
	DispatchIdle    time.Duration // sleep when the queue has nothing due
	PollInterval    time.Duration // time between reconciliation passes
	SearchWindow    time.Duration // how far back the inbox search reaches
	ShutdownTimeout time.Duration
}

// Engine owns the due-time queue and the two background loops. All mutable
// request state lives in the store; the queue holds only (fire-time, id)
// pairs, so the engine can always rebuild it from the store at startup.
type Engine struct {
	queue  *schedule.Queue
	store  storage.Store
	sender transport.Sender
	dialer mailbox.Dialer
	blobs  blobstore.Store
	cfg    Config
	log    zerolog.Logger

	// now is replaceable in tests.
	now func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an Engine. Zero config fields get the documented defaults.
func New(
	store storage.Store,
	sender transport.Sender,
	dialer mailbox.Dialer,
	blobs blobstore.Store,
	cfg Config,
	log zerolog.Logger,
) *Engine {
	if cfg.DispatchIdle == 0 {
		cfg.DispatchIdle = time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 120 * time.Second
	}
	if cfg.SearchWindow == 0 {
		cfg.SearchWindow = 7 * 24 * time.Hour
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Engine{
		queue:  schedule.NewQueue(),
		store:  store,
		sender: sender,
		dialer: dialer,
		blobs:  blobs,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Enqueue registers a request with the due-time queue. Called by the
// request-creation handler and by the startup rebuild.
func (e *Engine) Enqueue(requestID int64, fireAt time.Time) {
	e.queue.Push(fireAt, requestID)
}

// QueueDepth returns the number of queued entries.
func (e *Engine) QueueDepth() int {
	return e.queue.Len()
}

// Start recovers interrupted requests, rebuilds the queue from the store,
// and launches the dispatch and reconciliation loops.
func (e *Engine) Start(ctx context.Context) error {
	recovered, err := e.store.RecoverInterrupted(ctx, interruptedError)
	if err != nil {
		return fmt.Errorf("engine: recover interrupted requests: %w", err)
	}
	if recovered > 0 {
		e.log.Warn().Int64("count", recovered).Msg("requests stuck in sending marked failed")
	}

	requests, err := e.store.ListRequeueable(ctx, e.now())
	if err != nil {
		return fmt.Errorf("engine: rebuild queue: %w", err)
	}
	for _, r := range requests {
		e.queue.Push(r.FireAt, r.ID)
	}

	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(2)
	go e.runDispatch(ctx)
	go e.runReconcile(ctx)

	e.log.Info().
		Int("requeued", len(requests)).
		Dur("dispatch_idle", e.cfg.DispatchIdle).
		Dur("poll_interval", e.cfg.PollInterval).
		Msg("delivery engine started")
	return nil
}

// Stop signals both loops to stop and waits up to the configured shutdown
// timeout for in-flight work to finish.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info().Msg("delivery engine stopped gracefully")
	case <-time.After(e.cfg.ShutdownTimeout):
		e.log.Warn().Msg("delivery engine shutdown timed out")
	}
}

// Package bulk orchestrates a paced campaign run: it normalizes and
// deduplicates the task list, walks it in batches under the pacing policy,
// delivers each message with retries, and checkpoints progress so an
// interrupted run can resume.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ndomo/wasend/internal/ledger"
	"github.com/ndomo/wasend/internal/metrics"
	"github.com/ndomo/wasend/internal/pacing"
	"github.com/ndomo/wasend/internal/phone"
	"github.com/ndomo/wasend/internal/session"
	"github.com/ndomo/wasend/internal/whatsapp"
)

const (
	// DefaultScope is the dedup ledger scope used when none is given.
	DefaultScope = "global"

	maxPoolWorkers = 3

	// Long waits are sliced so pause and cancel stay responsive.
	sleepSlice = time.Second
)

var errCancelled = errors.New("campaign cancelled")

// ProgressFunc receives a stats snapshot after every processed message.
type ProgressFunc func(session.Stats)

// StatusFunc receives short human-readable stage transitions.
type StatusFunc func(stage string)

// Options controls a single Run.
type Options struct {
	// Scope selects the dedup ledger scope. Empty means DefaultScope.
	Scope string
	// ResumeID resumes a previously checkpointed session instead of
	// starting a new one.
	ResumeID string
	// PoolWorkers enables concurrent delivery when >= 2. Requires the
	// pacing config to be in expert mode.
	PoolWorkers int
	// MessagesPerSecond caps pool-mode throughput. Defaults to 1.
	MessagesPerSecond float64
}

// Runner drives campaign runs. Construct with NewRunner, optionally set
// the callbacks, then call Run. Pause, Resume and Cancel may be called
// from other goroutines while Run is in flight.
type Runner struct {
	transport whatsapp.Transport
	ledger    *ledger.Ledger
	policy    *pacing.Policy
	store     *session.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// OnProgress and OnStatus are invoked during Run when set. Panics
	// inside them are recovered and logged.
	OnProgress ProgressFunc
	OnStatus   StatusFunc

	paused    atomic.Bool
	cancelled atomic.Bool

	mu      sync.Mutex
	current *session.Session

	sleep func(time.Duration)
}

// NewRunner wires a Runner over its dependencies.
func NewRunner(t whatsapp.Transport, led *ledger.Ledger, pol *pacing.Policy, store *session.Store, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		transport: t,
		ledger:    led,
		policy:    pol,
		store:     store,
		metrics:   m,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// Pause suspends delivery after the in-flight message completes.
func (r *Runner) Pause() {
	if r.paused.CompareAndSwap(false, true) {
		r.logger.Info("campaign paused")
	}
}

// Resume lifts a pause.
func (r *Runner) Resume() {
	if r.paused.CompareAndSwap(true, false) {
		r.logger.Info("campaign resumed")
	}
}

// Cancel stops the run after the in-flight message completes. A cancelled
// run is terminal: the session cannot be resumed.
func (r *Runner) Cancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		r.logger.Info("campaign cancel requested")
	}
}

// IsPaused reports whether delivery is currently suspended.
func (r *Runner) IsPaused() bool { return r.paused.Load() }

// Snapshot returns stats for the in-flight session, if any.
func (r *Runner) Snapshot() (session.Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return session.Stats{}, false
	}
	st := r.current.ComputeStats(time.Now())
	st.Paused = r.paused.Load()
	return st, true
}

// Run executes the campaign described by tasks. It returns the final
// session state; the session is also persisted in the store. A cancelled
// run returns the partial session with a nil error.
func (r *Runner) Run(ctx context.Context, tasks []Task, opts Options) (*session.Session, error) {
	if len(tasks) == 0 {
		return nil, errors.New("no tasks to send")
	}
	cfg := r.policy.Config()
	if opts.PoolWorkers > maxPoolWorkers {
		return nil, fmt.Errorf("pool_workers %d exceeds maximum %d", opts.PoolWorkers, maxPoolWorkers)
	}
	if opts.PoolWorkers > 1 && !cfg.ExpertMode {
		return nil, errors.New("pool mode requires expert_mode in the pacing config")
	}

	scope := opts.Scope
	if scope == "" {
		scope = DefaultScope
	}

	valid, invalid := r.normalize(tasks)

	var (
		sess    *session.Session
		pending []Task
		err     error
	)
	if opts.ResumeID != "" {
		sess, pending, err = r.resumeSession(opts.ResumeID, scope, valid, batchSize(cfg))
		if err != nil {
			return nil, err
		}
	} else {
		pending = r.filterSent(scope, valid)
		sess = r.newSession(pending, invalid)
	}

	r.paused.Store(false)
	r.cancelled.Store(false)
	r.mu.Lock()
	r.current = sess
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
	}()

	r.logger.Info("campaign started",
		"session_id", sess.ID,
		"total", sess.TotalMessages,
		"pending", len(pending),
		"invalid", len(invalid),
		"scope", scope,
	)
	r.status("started")

	if opts.PoolWorkers > 1 {
		err = r.runPool(ctx, sess, scope, pending, opts)
	} else {
		err = r.runSequential(ctx, sess, scope, pending, cfg)
	}

	return r.finish(sess, err)
}

// normalize canonicalizes identifiers and drops duplicates within the
// list. Tasks whose identifier does not normalize come back as invalid.
func (r *Runner) normalize(tasks []Task) (valid, invalid []Task) {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		id, err := phone.Normalize(t.Identifier)
		if err != nil {
			r.logger.Warn("invalid identifier", "raw", t.Identifier, "error", err)
			invalid = append(invalid, t)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		t.Identifier = id
		valid = append(valid, t)
	}
	return valid, invalid
}

// filterSent drops tasks whose identifier is already recorded in the
// ledger scope, preserving order.
func (r *Runner) filterSent(scope string, tasks []Task) []Task {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.Identifier
	}
	unsent, skipped := r.ledger.FilterUnsent(scope, ids)
	if skipped > 0 {
		r.logger.Info("skipping already-sent recipients", "count", skipped, "scope", scope)
		r.metrics.MessagesSkipped.Add(float64(skipped))
	}

	keep := make(map[string]bool, len(unsent))
	for _, id := range unsent {
		keep[id] = true
	}
	var pending []Task
	for _, t := range tasks {
		if keep[t.Identifier] {
			pending = append(pending, t)
		}
	}
	return pending
}

// newSession starts a fresh session. Invalid identifiers count as
// immediate failures.
func (r *Runner) newSession(pending, invalid []Task) *session.Session {
	sess := session.New(len(pending) + len(invalid))
	for _, t := range invalid {
		sess.RecordFailure(t.Identifier, "invalid identifier")
		r.metrics.MessagesTotal.WithLabelValues(string(whatsapp.KindText), "failed").Inc()
	}
	return sess
}

// resumeSession reloads a checkpoint and rebuilds the work list from it.
// Batches recorded as finished are skipped wholesale so their recipients,
// counted failures included, are neither delivered nor counted again; the
// remainder is still ledger-filtered. The caller must re-supply the
// original task list. A list that does not line up with the recorded
// totals is refused rather than patched up, since that would double-count
// or lose tasks. Invalid identifiers were already counted as failures by
// the original run, so on resume they are only dropped.
func (r *Runner) resumeSession(id, scope string, valid []Task, batchSize int) (*session.Session, []Task, error) {
	sess, err := r.store.Load(id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resume session: %w", err)
	}
	if sess.Cancelled {
		return nil, nil, fmt.Errorf("session %s was cancelled and cannot be resumed", id)
	}
	sess.Paused = false

	offset := sess.CurrentBatch * batchSize
	if offset > len(valid) {
		offset = len(valid)
	}
	pending := r.filterSent(scope, valid[offset:])

	if got := sess.Completed + len(pending); got != sess.TotalMessages {
		return nil, nil, fmt.Errorf(
			"task list does not line up with session %s after %d finished batches: %d recorded, %d accounted for; re-supply the original list",
			id, sess.CurrentBatch, sess.TotalMessages, got)
	}
	return sess, pending, nil
}

func (r *Runner) runSequential(ctx context.Context, sess *session.Session, scope string, pending []Task, cfg pacing.Config) error {
	batches := chunk(pending, batchSize(cfg))
	lastBatch := sess.CurrentBatch + len(batches)

	for bi, batch := range batches {
		r.status(fmt.Sprintf("batch %d of %d", sess.CurrentBatch+1, lastBatch))

		for _, t := range batch {
			if err := r.awaitTurn(ctx, sess.Completed); err != nil {
				return err
			}

			if delay := r.policy.NextDelay(); delay > 0 && sess.Completed > 0 {
				r.metrics.PacingWaitSeconds.Observe(delay.Seconds())
				r.logger.Debug("inter-message delay", "delay", delay)
				if err := r.sleepFor(ctx, delay); err != nil {
					return err
				}
			}

			res := r.deliver(ctx, t)
			r.recordOutcome(sess, scope, t, res)
			r.progress(sess)

			if res.Success {
				if pause, ok := r.policy.PauseDue(); ok {
					r.status("burst pause")
					r.logger.Info("pausing between bursts", "pause", pause)
					r.metrics.PacingWaitSeconds.Observe(pause.Seconds())
					if err := r.sleepFor(ctx, pause); err != nil {
						return err
					}
				}
			}
		}

		sess.CurrentBatch++
		r.checkpoint(sess)
		r.metrics.BatchesTotal.Inc()

		if bi < len(batches)-1 && cfg.BatchDelay > 0 {
			if err := r.sleepFor(ctx, cfg.BatchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// awaitTurn blocks until the pacing policy admits the next send, honoring
// pause and cancel along the way. completed seeds log context only.
func (r *Runner) awaitTurn(ctx context.Context, completed int) error {
	pauseLogged := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.cancelled.Load() {
			return errCancelled
		}
		if r.paused.Load() {
			if !pauseLogged {
				pauseLogged = true
				r.status("paused")
				r.logger.Info("waiting while paused", "completed", completed)
			}
			r.sleep(sleepSlice)
			continue
		}
		pauseLogged = false

		d := r.policy.CanSend()
		if d.Allowed {
			return nil
		}
		r.status("waiting: " + d.Reason)
		r.logger.Info("pacing limit reached", "reason", d.Reason, "retry_after", d.RetryAfter)
		r.metrics.PacingWaitSeconds.Observe(d.RetryAfter.Seconds())
		if err := r.sleepFor(ctx, d.RetryAfter); err != nil {
			return err
		}
	}
}

// deliver sends one task, retrying transport faults with exponential
// backoff. It always returns a non-nil result.
func (r *Runner) deliver(ctx context.Context, t Task) *whatsapp.SendResult {
	kind := whatsapp.KindText
	if t.Attachment != "" {
		kind = whatsapp.KindAttachment
		if msg := checkAttachment(t.Attachment); msg != "" {
			return &whatsapp.SendResult{Identifier: t.Identifier, Kind: kind, Error: msg}
		}
	}

	to := phone.ForProvider(t.Identifier)
	retries := r.policy.Config().RetryAttempts

	for attempt := 0; ; attempt++ {
		var (
			res *whatsapp.SendResult
			err error
		)
		if kind == whatsapp.KindAttachment {
			res, err = r.transport.SendAttachment(ctx, to, t.Attachment, t.Body)
		} else {
			res, err = r.transport.SendText(ctx, to, t.Body)
		}
		if err == nil {
			if res != nil {
				res.Identifier = t.Identifier
			}
			return res
		}

		if attempt >= retries || ctx.Err() != nil || r.cancelled.Load() {
			if res == nil {
				res = &whatsapp.SendResult{Identifier: t.Identifier, Kind: kind, Error: err.Error()}
			}
			res.Identifier = t.Identifier
			return res
		}

		backoff := retryBackoff(attempt)
		r.logger.Warn("send failed, retrying",
			"identifier", t.Identifier,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		r.metrics.RetriesTotal.Inc()
		if sleepErr := r.sleepFor(ctx, backoff); sleepErr != nil {
			if res == nil {
				res = &whatsapp.SendResult{Identifier: t.Identifier, Kind: kind, Error: err.Error()}
			}
			res.Identifier = t.Identifier
			return res
		}
	}
}

// recordOutcome applies one delivery result to the session, ledger, pacing
// counters and metrics. Safe for concurrent use in pool mode.
func (r *Runner) recordOutcome(sess *session.Session, scope string, t Task, res *whatsapp.SendResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := string(res.Kind)
	if res.Success {
		sess.RecordSuccess()
		r.ledger.MarkSent(scope, t.Identifier)
		if err := r.policy.NoteSent(); err != nil {
			r.logger.Warn("failed to persist usage counters", "error", err)
		}
		r.metrics.MessagesTotal.WithLabelValues(kind, "success").Inc()
		r.logger.Info("message delivered", "identifier", t.Identifier, "kind", kind)
	} else {
		sess.RecordFailure(t.Identifier, res.Error)
		r.metrics.MessagesTotal.WithLabelValues(kind, "failed").Inc()
		r.logger.Warn("message failed", "identifier", t.Identifier, "kind", kind, "error", res.Error)
	}

	if sess.TotalMessages > 0 {
		r.metrics.SessionProgress.Set(float64(sess.Completed) / float64(sess.TotalMessages))
	}
}

// finish persists the closing session state and maps the run error to the
// public contract: cancellation is not an error, everything else is.
func (r *Runner) finish(sess *session.Session, runErr error) (*session.Session, error) {
	sess.Paused = false

	switch {
	case runErr == nil:
		r.checkpoint(sess)
		r.status("completed")
		r.logger.Info("campaign finished",
			"session_id", sess.ID,
			"successful", sess.Successful,
			"failed", sess.Failed,
		)
		return sess, nil

	case errors.Is(runErr, errCancelled):
		sess.Cancelled = true
		r.checkpoint(sess)
		r.status("cancelled")
		r.logger.Info("campaign cancelled", "session_id", sess.ID, "completed", sess.Completed)
		return sess, nil

	default:
		// Context cancellation and other fatal faults: keep the session
		// terminal so a stale checkpoint is never resumed by accident.
		sess.Cancelled = true
		r.checkpoint(sess)
		r.logger.Error("campaign aborted", "session_id", sess.ID, "error", runErr)
		return sess, runErr
	}
}

// checkpoint saves the session, logging instead of failing the run; the
// next checkpoint retries.
func (r *Runner) checkpoint(sess *session.Session) {
	if err := r.store.Save(sess); err != nil {
		r.logger.Error("failed to checkpoint session", "session_id", sess.ID, "error", err)
	}
}

// sleepFor sleeps d in short slices so cancellation stays responsive.
func (r *Runner) sleepFor(ctx context.Context, d time.Duration) error {
	for d > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.cancelled.Load() {
			return errCancelled
		}
		step := d
		if step > sleepSlice {
			step = sleepSlice
		}
		r.sleep(step)
		d -= step
	}
	return nil
}

func (r *Runner) progress(sess *session.Session) {
	if r.OnProgress == nil {
		return
	}
	r.mu.Lock()
	st := sess.ComputeStats(time.Now())
	r.mu.Unlock()
	defer r.recoverCallback("progress")
	r.OnProgress(st)
}

func (r *Runner) status(stage string) {
	if r.OnStatus == nil {
		return
	}
	defer r.recoverCallback("status")
	r.OnStatus(stage)
}

func (r *Runner) recoverCallback(name string) {
	if p := recover(); p != nil {
		r.logger.Error("callback panicked", "callback", name, "panic", p)
	}
}

// checkAttachment validates an attachment path before touching the
// gateway. Returns an error message, or empty when the file is sendable.
func checkAttachment(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Sprintf("attachment not found: %s", path)
	}
	if info.Size() > whatsapp.MaxAttachmentBytes {
		return fmt.Sprintf("attachment too large: %d bytes (max %d)", info.Size(), whatsapp.MaxAttachmentBytes)
	}
	if !whatsapp.SupportedAttachment(path) {
		return fmt.Sprintf("unsupported attachment type: %s", path)
	}
	return ""
}

func retryBackoff(attempt int) time.Duration {
	return time.Duration(float64(500*time.Millisecond) * math.Exp2(float64(attempt)))
}

func batchSize(cfg pacing.Config) int {
	if cfg.BatchSize < 1 {
		return 1
	}
	return cfg.BatchSize
}

func chunk(tasks []Task, size int) [][]Task {
	var out [][]Task
	for len(tasks) > size {
		out = append(out, tasks[:size])
		tasks = tasks[size:]
	}
	if len(tasks) > 0 {
		out = append(out, tasks)
	}
	return out
}

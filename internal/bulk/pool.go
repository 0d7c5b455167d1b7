package bulk

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ndomo/wasend/internal/session"
)

// runPool delivers tasks with a small worker pool. Only valid in expert
// mode: the pacing policy's behavioral delays are bypassed and throughput
// is capped by a token-bucket limiter instead.
func (r *Runner) runPool(ctx context.Context, sess *session.Session, scope string, pending []Task, opts Options) error {
	perSecond := opts.MessagesPerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskCh := make(chan Task)
	var wg sync.WaitGroup

	for i := 0; i < opts.PoolWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger := r.logger.With("worker_id", id)

			for t := range taskCh {
				if wctx.Err() != nil || r.cancelled.Load() {
					continue // drain
				}
				if err := limiter.Wait(wctx); err != nil {
					continue
				}
				logger.Debug("delivering", "identifier", t.Identifier)
				res := r.deliver(wctx, t)
				r.recordOutcome(sess, scope, t, res)
				r.progress(sess)
			}
		}(i)
	}

	r.status("pool delivery")

feed:
	for _, t := range pending {
		if r.cancelled.Load() {
			break
		}
		select {
		case taskCh <- t:
		case <-wctx.Done():
			break feed
		}
	}
	close(taskCh)
	wg.Wait()

	sess.CurrentBatch++
	r.checkpoint(sess)
	r.metrics.BatchesTotal.Inc()

	if err := ctx.Err(); err != nil {
		return err
	}
	if r.cancelled.Load() {
		return errCancelled
	}
	return nil
}

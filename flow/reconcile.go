package flow

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReconcileOptions bound a reconciliation pass.
type ReconcileOptions struct {
	// Parallelism is the number of users resumed at once. Values below one
	// mean sequential.
	Parallelism int
	// UserTimeout bounds the work for a single user. Zero means no bound.
	UserTimeout time.Duration
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Users   int
	Resumed int
	Failed  int
}

// Reconcile re-presents the next expected prompt to every user with partial
// progress this period. It runs once at startup. A failing or stuck user is
// logged and skipped; only failing to list users is returned as an error.
func (c *Controller) Reconcile(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error) {
	users, err := c.resolver.UsersWithPartialProgress(ctx)
	if err != nil {
		return ReconcileReport{}, err
	}

	var resumed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallelism, 1))

	for _, userID := range users {
		g.Go(func() error {
			if err := c.resumeWithTimeout(gctx, userID, opts.UserTimeout); err != nil {
				failed.Add(1)
				c.logger.Warn("resume failed", zap.Int64("user_id", userID), zap.Error(err))
				return nil
			}
			resumed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := ReconcileReport{
		Users:   len(users),
		Resumed: int(resumed.Load()),
		Failed:  int(failed.Load()),
	}
	c.logger.Info("reconciliation finished",
		zap.Int("users", report.Users),
		zap.Int("resumed", report.Resumed),
		zap.Int("failed", report.Failed))
	return report, nil
}

// resumeWithTimeout gives up on a user once the timeout passes, even if the
// presenter ignores cancellation. The abandoned resume still holds the user's
// lock until the presenter returns, so live actions of that user wait for it.
// Telegram calls cannot be canceled; they end within the bot's HTTP client
// timeout.
func (c *Controller) resumeWithTimeout(ctx context.Context, userID int64, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- c.resume(ctx, userID)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) resume(ctx context.Context, userID int64) error {
	unlock := c.locks.lock(userID)
	defer unlock()

	st, err := c.resolver.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	switch {
	case st.Complete:
		return nil
	case !st.HasRegion:
		c.sessions.ClearPending(userID)
		return c.presenter.ShowRegions(ctx, userID)
	}

	q, ok := c.def.Question(st.Answered)
	if !ok {
		return fmt.Errorf("question %d out of range", st.Answered)
	}
	if q.IsOpenText() {
		c.sessions.SetPending(userID, q.Index)
	}
	return c.presenter.ShowQuestion(ctx, userID, q)
}

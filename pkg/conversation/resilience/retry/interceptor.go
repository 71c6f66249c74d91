package retry

import (
	"context"
	"fmt"
	"time"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/logx"
)

// Interceptor retries idempotent calls according to policy. Non-idempotent calls
// (thread, message and run creation, tool-output submission) pass through once.
// Exhausting retries on a retryable error yields a service_unavailable error.
func Interceptor(policy *Policy, logger *logx.Logger) conversation.Interceptor {
	if logger == nil {
		logger = logx.NewLogger("retry")
	}
	return func(ctx context.Context, call conversation.Call, next func(context.Context) error) error {
		if !call.Op.Idempotent() {
			return next(ctx)
		}

		var lastErr error
		for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
			if attempt > 1 {
				delay := policy.CalculateDelay(attempt)
				logger.Warn("Retrying %s (attempt %d/%d) in %v: %v",
					call.Op, attempt, policy.Config.MaxAttempts, delay, lastErr)
				if delay > 0 {
					timer := time.NewTimer(delay)
					select {
					case <-ctx.Done():
						timer.Stop()
						return fmt.Errorf("retry cancelled: %w", ctx.Err())
					case <-timer.C:
					}
				}
			}

			err := next(ctx)
			if err == nil {
				return nil
			}
			lastErr = err

			if !policy.ShouldRetry(err) {
				return err
			}
		}

		return conversation.NewServiceUnavailableError(call.Op, lastErr, policy.Config.MaxAttempts)
	}
}

// Package timeout bounds each Conversation Service call with a deadline.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentrunner/pkg/conversation"
)

// DefaultTimeout is used when a non-positive timeout is given.
const DefaultTimeout = 30 * time.Second

// Interceptor derives a per-call deadline of d from the caller's context.
// A deadline hit by this interceptor, not by the caller, is a transient error.
func Interceptor(d time.Duration) conversation.Interceptor {
	if d <= 0 {
		d = DefaultTimeout
	}
	return func(ctx context.Context, call conversation.Call, next func(context.Context) error) error {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		err := next(callCtx)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &conversation.Error{
				Op:      call.Op,
				Type:    conversation.ErrorTypeTransient,
				Err:     err,
				Message: fmt.Sprintf("call timed out after %v", d),
			}
		}
		return err
	}
}

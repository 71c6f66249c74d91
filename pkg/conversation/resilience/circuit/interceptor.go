package circuit

import (
	"context"

	"agentrunner/pkg/conversation"
)

// Interceptor rejects calls the breaker does not admit and reports every admitted
// call's Verdict. A call whose caller gave up counts as Neutral.
func Interceptor(b *Breaker) conversation.Interceptor {
	return func(ctx context.Context, call conversation.Call, next func(context.Context) error) error {
		done, err := b.Admit()
		if err != nil {
			return &conversation.Error{
				Op:      call.Op,
				Type:    conversation.ErrorTypeServiceUnavailable,
				Err:     err,
				Message: err.Error(),
			}
		}

		verdict := Neutral
		defer func() { done(verdict) }()

		err = next(ctx)
		if err != nil && ctx.Err() != nil {
			return err
		}
		verdict = Classify(err)
		return err
	}
}

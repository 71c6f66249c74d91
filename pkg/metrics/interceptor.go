package metrics

import (
	"context"
	"time"

	"agentrunner/pkg/conversation"
	"agentrunner/pkg/logx"
)

// Interceptor records latency and outcome of every Conversation Service call.
// Place it outermost so retries are counted once per logical call.
func Interceptor(recorder Recorder, logger *logx.Logger) conversation.Interceptor {
	return func(ctx context.Context, call conversation.Call, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)
		duration := time.Since(start)

		status, errorType := StatusSuccess, ""
		if err != nil {
			status = StatusError
			errorType = conversation.TypeOf(err).String()
		}
		recorder.ObserveServiceCall(string(call.Op), status, errorType, duration)

		if logger != nil {
			logger.Debug("%s thread=%s run=%s status=%s duration=%dms",
				call.Op, call.ThreadID, call.RunID, status, duration.Milliseconds())
		}
		return err
	}
}

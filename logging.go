package taskqueue

import (
	"context"

	lg "github.com/Andrej220/go-utils/zlog"
)

// loggerFromContext resolves the queue's logger from Options.LogContext.
// The scheduler loop, not an individual task, owns the log line for
// admission, completion, pause/start/clear, and rate-limit transitions,
// so the logger is resolved once at construction and shared queue-wide.
func loggerFromContext(ctx context.Context) lg.ZLogger {
	return lg.FromContext(ctx)
}

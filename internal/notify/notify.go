// Package notify abstracts user-facing notifications (email, push).
// The pipeline only emits; delivery is a deployment concern.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Sink receives user notifications. Implementations must not block the
// pipeline; failures are theirs to handle.
type Sink interface {
	Notify(ctx context.Context, userID, subject, body string)
}

// LogSink records notifications in the structured log. It is the
// default wiring until a real channel is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notify")}
}

func (s *LogSink) Notify(_ context.Context, userID, subject, body string) {
	s.logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("subject", subject),
		zap.String("body", body))
}

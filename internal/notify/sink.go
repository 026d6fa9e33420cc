package notify

import (
	"context"

	"go.uber.org/zap"
)

// Sink delivers one event somewhere outside the process.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// LogSink writes operator notifications to the log.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("operator")}
}

func (s *LogSink) Send(_ context.Context, e Event) error {
	s.log.Warn(e.Summary(),
		zap.String("event", e.Type),
		zap.String("sender_id", e.SenderID),
		zap.String("channel", e.Channel),
		zap.String("trust_level", e.TrustLevel),
		zap.Bool("degraded", e.Degraded),
	)
	return nil
}

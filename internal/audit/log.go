package audit

import (
	"context"
	"log/slog"
	"time"
)

// LogPublisher writes events to the process log. Used when no Kafka
// brokers are configured and as the sink of last resort in tests.
type LogPublisher struct{}

func (LogPublisher) Emit(_ context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	slog.Info("audit",
		"subject", event.Subject,
		"type", event.Type,
		"status", event.Status,
		"detail", event.Detail)
}

// NewPublisher returns a Kafka publisher when brokers are configured and
// the log fallback otherwise.
func NewPublisher(cfg KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return LogPublisher{}, nil
	}
	return NewKafkaPublisher(cfg)
}

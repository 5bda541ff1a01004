package kafka

import (
	"context"

	"github.com/rusikfsk/unichat/internal/domain"
)

// EventProducer ships committed chat events to an external log. Keys are
// conversation ids so one conversation stays on one partition.
type EventProducer interface {
	ProduceEvent(ctx context.Context, key string, event domain.Event) error
	Close() error
}

package kafka

import (
	"context"

	"github.com/rusikfsk/unichat/internal/domain"
)

// NoopProducer drops every event. Used when kafka is disabled.
type NoopProducer struct{}

func NewNoopProducer() *NoopProducer {
	return &NoopProducer{}
}

func (NoopProducer) ProduceEvent(context.Context, string, domain.Event) error { return nil }

func (NoopProducer) Close() error { return nil }

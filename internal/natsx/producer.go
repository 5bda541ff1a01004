package natsx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rusikfsk/unichat/internal/domain"
	"github.com/rusikfsk/unichat/internal/kafka"
	"github.com/rusikfsk/unichat/pkg/log"
)

// Config selects the servers and the subject prefix events are published under.
type Config struct {
	Servers       []string
	Name          string
	SubjectPrefix string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Producer publishes committed chat events to NATS core subjects of the form
// <prefix>.<conversation id>.
type Producer struct {
	nc     *nats.Conn
	prefix string
}

var _ kafka.EventProducer = (*Producer)(nil)

func NewProducer(cfg Config) (*Producer, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "chat.events"
	}

	l := log.L()
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","),
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Producer{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Subject is the subject events for key are published on.
func (p *Producer) Subject(key string) string {
	return Subject(p.prefix, key)
}

// Subject joins prefix and key, replacing characters NATS treats as
// separators or wildcards.
func Subject(prefix, key string) string {
	key = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(key)
	if key == "" {
		key = "_"
	}
	return prefix + "." + key
}

func (p *Producer) ProduceEvent(ctx context.Context, key string, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := kafka.EncodeRecord(key, event, time.Now())
	if err != nil {
		return err
	}

	msg := nats.NewMsg(p.Subject(key))
	msg.Data = value
	msg.Header.Set("event_type", event.EventType())
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (p *Producer) Close() error {
	return p.nc.Drain()
}

package recordsink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

// Event is the envelope published for every routing, performance, or
// violation record, letting downstream consumers (dashboards, alerting,
// the trust-graph rebuild job) react without polling Postgres.
type Event struct {
	Kind      string    `json:"kind"` // "routing", "performance", "violation"
	Timestamp time.Time `json:"timestamp"`
	Record    any       `json:"record"`
}

// EventPublisher publishes record events onto a Kafka topic.
type EventPublisher struct {
	writer *kafka.Writer
}

// NewEventPublisher builds a publisher when cfg.Brokers is set, or
// returns nil otherwise so publishing is a no-op by default.
func NewEventPublisher(cfg config.KafkaConfig) *EventPublisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &EventPublisher{writer: writer}
}

func (p *EventPublisher) publish(ctx context.Context, kind string, record any) {
	if p == nil || p.writer == nil {
		return
	}
	payload, err := json.Marshal(Event{Kind: kind, Timestamp: time.Now().UTC(), Record: record})
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("recordsink: marshal event failed")
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: payload, Time: time.Now()}); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("recordsink: publish event failed")
	}
}

// Close shuts down the underlying writer.
func (p *EventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

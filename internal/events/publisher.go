// Package events publishes deposit/withdraw state changes for downstream
// consumers (member notifications, audit). Publishing is best-effort: a
// broker outage never blocks or rolls back a committed transition.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type RecordEvent struct {
	Type       string          `json:"type"`
	TID        string          `json:"tid"`
	MemberID   int64           `json:"member_id"`
	CurrencyID string          `json:"currency_id"`
	Amount     decimal.Decimal `json:"amount"`
	State      string          `json:"state"`
	TsUnixMs   int64           `json:"ts_unix_ms"`
}

type Publisher interface {
	Publish(ctx context.Context, e RecordEvent) error
}

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e RecordEvent) error {
	e.TsUnixMs = time.Now().UnixMilli()
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("Publish: marshal: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.TID),
		Value: b,
	}); err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Package mq publishes transition events to a RabbitMQ topic exchange.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

const DefaultExchange = "trigger.transitions"

// Channels hands out the channel to publish on.
type Channels interface {
	WithChannel(fn func(ch Channel) error) error
}

// Message is the JSON body of a published event.
type Message struct {
	ID           string `json:"id"`
	CycleID      string `json:"cycle_id"`
	TriggerID    uint64 `json:"trigger_id"`
	Owner        string `json:"owner,omitempty"`
	Kind         string `json:"kind"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
	OutputAmount string `json:"output_amount,omitempty"`
	Error        string `json:"error,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

func NewMessage(event domain.TransitionEvent) Message {
	m := Message{
		ID:         event.ID.String(),
		CycleID:    event.CycleID.String(),
		TriggerID:  event.TriggerID,
		Owner:      event.Owner,
		Kind:       string(event.Kind),
		Outcome:    string(event.Outcome),
		Reason:     event.Reason,
		Error:      event.Error,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if event.Kind == domain.TransitionComplete {
		m.OutputAmount = event.OutputAmount.String()
	}
	return m
}

// RoutingKey returns trigger.{kind}.{outcome}.
func RoutingKey(event domain.TransitionEvent) string {
	return fmt.Sprintf("trigger.%s.%s", event.Kind, event.Outcome)
}

type Publisher struct {
	channels Channels
	exchange string
	logger   *log.Entry
}

func NewPublisher(channels Channels, exchange string) *Publisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Publisher{
		channels: channels,
		exchange: exchange,
		logger:   log.WithField("component", "mq"),
	}
}

// DeclareExchange declares the durable topic exchange.
func (p *Publisher) DeclareExchange() error {
	return p.channels.WithChannel(func(ch Channel) error {
		if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
		}
		return nil
	})
}

func (p *Publisher) Name() string { return "amqp" }

func (p *Publisher) Record(ctx context.Context, event domain.TransitionEvent) error {
	body, err := json.Marshal(NewMessage(event))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := RoutingKey(event)

	return p.channels.WithChannel(func(ch Channel) error {
		err := ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.OccurredAt,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", p.exchange, key, err)
		}
		p.logger.WithFields(log.Fields{
			"routing_key": key,
			"trigger_id":  event.TriggerID,
		}).Debug("published transition")
		return nil
	})
}

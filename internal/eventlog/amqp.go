package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher forwards events to a topic exchange with routing key
// safetytest.<severity>.<operation>.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	pub      publisher
	exchange string
}

func NewAMQPPublisher(amqpURL, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("eventlog: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("eventlog: amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("eventlog: declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: ch, pub: ch, exchange: exchange}, nil
}

func RoutingKey(e Event) string {
	return "safetytest." + strings.ToLower(string(e.Severity)) + "." + e.Operation
}

func (p *AMQPPublisher) Append(ctx context.Context, e Event) error {
	body, err := json.Marshal(map[string]any{
		"type":    e.Operation,
		"payload": e,
	})
	if err != nil {
		return err
	}
	return p.pub.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(e),
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: e.CorrelationID,
			Timestamp:     e.At,
			DeliveryMode:  amqp.Persistent,
			Body:          body,
		},
	)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

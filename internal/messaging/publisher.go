package messaging

import (
	"context"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher fans settled-payment events out to a durable exchange.
// Channels are cheap and not goroutine-safe, so one is opened per publish.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("NewAMQPPublisher: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewAMQPPublisher: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("NewAMQPPublisher: declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("Publish: open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
	if err != nil {
		return fmt.Errorf("Publish: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"matchbook/internal/metrics"
	"matchbook/internal/models"
)

// Publisher publishes domain events to RabbitMQ. The matching engine
// stays purely computational; persistence, notifications, and analytics
// all hang off these events.
//
// Events published:
//   - order.placed: an order was accepted (possibly already filled)
//   - order.cancelled: a resting order was removed
//   - trade.executed: a match occurred
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	metrics  *metrics.Metrics
}

// NewPublisher initializes a RabbitMQ publisher on a durable topic
// exchange.
func NewPublisher(amqpURL, exchange string, m *metrics.Metrics) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		metrics:  m,
	}, nil
}

// Publish sends an event with its type as the routing key. Messages
// are persistent and carry a unique id for consumer-side deduplication.
func (p *Publisher) Publish(event *DomainEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.channel.Publish(
		p.exchange,
		string(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.New().String(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.MQMessagesPublished.WithLabelValues(p.exchange, string(event.Type)).Inc()
	}
	return nil
}

// PublishOrderPlaced publishes an accepted order.
func (p *Publisher) PublishOrderPlaced(order *models.Order, traceID string) error {
	event, err := NewEvent(EventOrderPlaced, OrderPlacedPayload{Order: order}, traceID)
	if err != nil {
		return err
	}
	return p.Publish(event)
}

// PublishOrderCancelled publishes a cancellation.
func (p *Publisher) PublishOrderCancelled(orderID int64, pair, traceID string) error {
	event, err := NewEvent(EventOrderCancelled, OrderCancelledPayload{OrderID: orderID, Pair: pair}, traceID)
	if err != nil {
		return err
	}
	return p.Publish(event)
}

// PublishTradeExecuted publishes a trade with the post-fill order states.
func (p *Publisher) PublishTradeExecuted(trade *models.Trade, maker, taker *models.Order, traceID string) error {
	event, err := NewEvent(EventTradeExecuted, TradeExecutedPayload{Trade: trade, Maker: maker, Taker: taker}, traceID)
	if err != nil {
		return err
	}
	return p.Publish(event)
}

// Close shuts down RabbitMQ resources gracefully.
func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

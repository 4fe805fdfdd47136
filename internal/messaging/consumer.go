package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"matchbook/internal/metrics"
	"matchbook/internal/models"
	"matchbook/internal/store"
)

const maxRetries = 3

// journal is the durable store the consumer writes events into.
type journal interface {
	SaveOrder(ctx context.Context, o *models.Order) error
	SaveTradeWithOrdersTx(ctx context.Context, trade *models.Trade, maker, taker *models.Order) error
	CancelOrder(ctx context.Context, orderID int64) error
}

// dedupTracker records which message ids have been fully applied.
type dedupTracker interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID, eventType string) error
}

// requeuer republishes failed deliveries. *amqp.Channel satisfies it.
type requeuer interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer drains domain events from RabbitMQ and persists them.
//
// Workflow:
//  1. The matching engine publishes events after each book mutation.
//  2. Worker goroutines consume with manual acks.
//  3. Redeliveries already journaled are dropped via the dedup store.
//  4. Handlers write to PostgreSQL inside serializable transactions.
//
// A message is marked processed only after its handler has committed;
// failed messages are retried with a bounded count carried in a header,
// and once the budget is spent they are acked and logged so a poison
// message cannot wedge the queue.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	requeue requeuer
	store   journal
	dedup   dedupTracker
	metrics *metrics.Metrics
	workers int
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewConsumer creates an event consumer. dedup may be nil, in which
// case redeliveries rely on the idempotent SQL alone.
func NewConsumer(amqpURL string, st *store.PostgresStore, dedup *store.DedupStore, m *metrics.Metrics, workers int) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Fair dispatch across workers.
	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	c := &Consumer{
		conn:    conn,
		channel: ch,
		requeue: ch,
		store:   st,
		metrics: m,
		workers: workers,
		done:    make(chan struct{}),
	}
	if dedup != nil {
		c.dedup = dedup
	}
	return c, nil
}

// Start declares one durable queue per event type, binds them to the
// exchange, and spawns the worker pool.
func (c *Consumer) Start(exchange string) error {
	err := c.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return err
	}

	queues := []EventType{
		EventOrderPlaced,
		EventOrderCancelled,
		EventTradeExecuted,
	}

	for _, queue := range queues {
		q, err := c.channel.QueueDeclare(
			string(queue),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return err
		}

		if err := c.channel.QueueBind(q.Name, string(queue), exchange, false, nil); err != nil {
			return err
		}

		for i := 0; i < c.workers; i++ {
			c.wg.Add(1)
			go c.consumeQueue(q.Name)
		}
	}

	log.Printf("[consumer] started with %d workers per queue", c.workers)
	return nil
}

func (c *Consumer) consumeQueue(queueName string) {
	defer c.wg.Done()

	msgs, err := c.channel.Consume(
		queueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		log.Printf("[consumer] failed to start consuming from %s: %v", queueName, err)
		return
	}

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Printf("[consumer] queue %s closed", queueName)
				return
			}
			c.processMessage(queueName, msg)
		}
	}
}

func (c *Consumer) processMessage(queueName string, msg amqp.Delivery) {
	var event DomainEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Printf("[consumer] unparseable event on %s: %v", queueName, err)
		msg.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msgID := msg.MessageId
	if msgID == "" {
		msgID = string(event.Type) + ":" + event.TraceID
	}

	if c.dedup != nil {
		processed, err := c.dedup.IsProcessed(ctx, msgID)
		if err != nil {
			log.Printf("[consumer] dedup check failed for %s: %v", msgID, err)
			c.retryOrDrop(queueName, msg)
			return
		}
		if processed {
			msg.Ack(false)
			return
		}
	}

	var processingErr error
	switch event.Type {
	case EventOrderPlaced:
		processingErr = c.handleOrderPlaced(ctx, event)
	case EventTradeExecuted:
		processingErr = c.handleTradeExecuted(ctx, event)
	case EventOrderCancelled:
		processingErr = c.handleOrderCancelled(ctx, event)
	default:
		log.Printf("[consumer] unknown event type: %s", event.Type)
	}

	if processingErr != nil {
		log.Printf("[consumer] failed to process %s: %v", event.Type, processingErr)
		c.retryOrDrop(queueName, msg)
		return
	}

	// Mark only after the journal write landed. A crash between the
	// write and the mark redelivers the message, and the idempotent SQL
	// absorbs the replay.
	if c.dedup != nil {
		if err := c.dedup.MarkProcessed(ctx, msgID, string(event.Type)); err != nil {
			log.Printf("[consumer] failed to mark %s processed: %v", msgID, err)
		}
	}

	if c.metrics != nil {
		c.metrics.MQMessagesConsumed.WithLabelValues(queueName).Inc()
	}
	msg.Ack(false)
}

// retryOrDrop republishes the message with an incremented retry count,
// or drops it once the budget is spent. Either way the original
// delivery is acked so the queue keeps moving.
func (c *Consumer) retryOrDrop(queueName string, msg amqp.Delivery) {
	retries := int32(0)
	if v, ok := msg.Headers["x-retry-count"]; ok {
		if n, ok := v.(int32); ok {
			retries = n
		}
	}

	if retries >= maxRetries {
		log.Printf("[consumer] dropping message %s after %d retries", msg.MessageId, retries)
		msg.Ack(false)
		return
	}

	headers := amqp.Table{"x-retry-count": retries + 1}
	err := c.requeue.Publish("", queueName, false, false, amqp.Publishing{
		ContentType:  msg.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.MessageId,
		Headers:      headers,
		Body:         msg.Body,
	})
	if err != nil {
		log.Printf("[consumer] requeue failed for %s: %v", msg.MessageId, err)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

func (c *Consumer) handleOrderPlaced(ctx context.Context, event DomainEvent) error {
	var payload OrderPlacedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse order placed payload: %w", err)
	}
	if payload.Order == nil {
		return nil
	}
	if err := c.store.SaveOrder(ctx, payload.Order); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

func (c *Consumer) handleTradeExecuted(ctx context.Context, event DomainEvent) error {
	var payload TradeExecutedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse trade executed payload: %w", err)
	}
	if payload.Trade == nil {
		return nil
	}
	if err := c.store.SaveTradeWithOrdersTx(ctx, payload.Trade, payload.Maker, payload.Taker); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

func (c *Consumer) handleOrderCancelled(ctx context.Context, event DomainEvent) error {
	var payload OrderCancelledPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse order cancelled payload: %w", err)
	}
	return c.store.CancelOrder(ctx, payload.OrderID)
}

// Stop gracefully shuts down the consumer.
func (c *Consumer) Stop() {
	close(c.done)
	c.wg.Wait()

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	log.Println("[consumer] stopped")
}

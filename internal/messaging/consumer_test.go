package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/internal/models"
)

type fakeAcker struct {
	acks  int
	nacks int
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error { f.acks++; return nil }

func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error { f.nacks++; return nil }

func (f *fakeAcker) Reject(tag uint64, requeue bool) error { return nil }

type fakeJournal struct {
	failures  int
	orders    []*models.Order
	trades    []*models.Trade
	cancelled []int64
}

func (j *fakeJournal) fail() error {
	if j.failures > 0 {
		j.failures--
		return errors.New("journal unavailable")
	}
	return nil
}

func (j *fakeJournal) SaveOrder(ctx context.Context, o *models.Order) error {
	if err := j.fail(); err != nil {
		return err
	}
	j.orders = append(j.orders, o)
	return nil
}

func (j *fakeJournal) SaveTradeWithOrdersTx(ctx context.Context, trade *models.Trade, maker, taker *models.Order) error {
	if err := j.fail(); err != nil {
		return err
	}
	j.trades = append(j.trades, trade)
	return nil
}

func (j *fakeJournal) CancelOrder(ctx context.Context, orderID int64) error {
	if err := j.fail(); err != nil {
		return err
	}
	j.cancelled = append(j.cancelled, orderID)
	return nil
}

type fakeDedup struct {
	seen map[string]bool
}

func (d *fakeDedup) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	return d.seen[messageID], nil
}

func (d *fakeDedup) MarkProcessed(ctx context.Context, messageID, eventType string) error {
	d.seen[messageID] = true
	return nil
}

type fakeRequeue struct {
	published []amqp.Publishing
}

func (f *fakeRequeue) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.published = append(f.published, msg)
	return nil
}

func testConsumer(j *fakeJournal, d *fakeDedup, rq *fakeRequeue) *Consumer {
	c := &Consumer{
		requeue: rq,
		store:   j,
		done:    make(chan struct{}),
	}
	if d != nil {
		c.dedup = d
	}
	return c
}

func orderPlacedDelivery(t *testing.T, ack amqp.Acknowledger, msgID string) amqp.Delivery {
	t.Helper()

	event, err := NewEvent(EventOrderPlaced, OrderPlacedPayload{
		Order: &models.Order{
			ID: 1, UserID: 1, Pair: "BTC-USD", Side: models.Buy,
			Price: 100, Quantity: 5, Remaining: 5,
			Status: models.Open, CreatedAt: time.Now(),
		},
	}, "trace-1")
	require.NoError(t, err)

	body, err := json.Marshal(event)
	require.NoError(t, err)

	return amqp.Delivery{Acknowledger: ack, Body: body, MessageId: msgID}
}

func TestConsumerRetriedDeliveryStillJournals(t *testing.T) {
	journal := &fakeJournal{failures: 1}
	dedup := &fakeDedup{seen: map[string]bool{}}
	rq := &fakeRequeue{}
	c := testConsumer(journal, dedup, rq)

	ack := &fakeAcker{}
	first := orderPlacedDelivery(t, ack, "m-1")
	c.processMessage(string(EventOrderPlaced), first)

	// The failed attempt is requeued and must not be marked processed.
	require.Len(t, rq.published, 1)
	assert.False(t, dedup.seen["m-1"])
	assert.Empty(t, journal.orders)

	redelivery := amqp.Delivery{
		Acknowledger: ack,
		Body:         rq.published[0].Body,
		MessageId:    rq.published[0].MessageId,
		Headers:      rq.published[0].Headers,
	}
	c.processMessage(string(EventOrderPlaced), redelivery)

	require.Len(t, journal.orders, 1)
	assert.Equal(t, int64(1), journal.orders[0].ID)
	assert.True(t, dedup.seen["m-1"])
}

func TestConsumerDropsDuplicateDelivery(t *testing.T) {
	journal := &fakeJournal{}
	dedup := &fakeDedup{seen: map[string]bool{}}
	rq := &fakeRequeue{}
	c := testConsumer(journal, dedup, rq)

	ack := &fakeAcker{}
	c.processMessage(string(EventOrderPlaced), orderPlacedDelivery(t, ack, "m-2"))
	c.processMessage(string(EventOrderPlaced), orderPlacedDelivery(t, ack, "m-2"))

	assert.Len(t, journal.orders, 1)
	assert.Equal(t, 2, ack.acks)
	assert.Empty(t, rq.published)
}

func TestConsumerDropsAfterRetryBudget(t *testing.T) {
	journal := &fakeJournal{failures: 100}
	dedup := &fakeDedup{seen: map[string]bool{}}
	rq := &fakeRequeue{}
	c := testConsumer(journal, dedup, rq)

	ack := &fakeAcker{}
	msg := orderPlacedDelivery(t, ack, "m-3")
	c.processMessage(string(EventOrderPlaced), msg)

	for i := 0; i < maxRetries; i++ {
		require.Len(t, rq.published, i+1)
		redelivery := amqp.Delivery{
			Acknowledger: ack,
			Body:         rq.published[i].Body,
			MessageId:    rq.published[i].MessageId,
			Headers:      rq.published[i].Headers,
		}
		c.processMessage(string(EventOrderPlaced), redelivery)
	}

	// Budget spent: the last delivery is acked without another requeue.
	assert.Len(t, rq.published, maxRetries)
	assert.Empty(t, journal.orders)
	assert.False(t, dedup.seen["m-3"])
}

func TestConsumerCancelledEvent(t *testing.T) {
	journal := &fakeJournal{}
	c := testConsumer(journal, nil, &fakeRequeue{})

	event, err := NewEvent(EventOrderCancelled, OrderCancelledPayload{OrderID: 42, Pair: "BTC-USD"}, "trace-2")
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)

	ack := &fakeAcker{}
	c.processMessage(string(EventOrderCancelled), amqp.Delivery{Acknowledger: ack, Body: body, MessageId: "m-4"})

	require.Len(t, journal.cancelled, 1)
	assert.Equal(t, int64(42), journal.cancelled[0])
	assert.Equal(t, 1, ack.acks)
}

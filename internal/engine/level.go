package engine

import "matchbook/internal/models"

// entry is a resting order's node in its price level queue. Keeping the
// level pointer on the node lets cancellation unlink in O(1) without
// scanning any queue.
type entry struct {
	order *models.Order
	seq   uint64
	level *priceLevel
	next  *entry
	prev  *entry
}

// priceLevel is the FIFO queue of resting orders at one price, kept as
// an intrusive doubly-linked list so both head-pop (matching) and
// arbitrary unlink (cancel) are O(1).
type priceLevel struct {
	price    int64
	head     *entry
	tail     *entry
	totalQty int64
	count    int
}

func newPriceLevel(price int64) *priceLevel {
	return &priceLevel{price: price}
}

// enqueue appends at the tail: newest orders match last at this price.
func (l *priceLevel) enqueue(e *entry) {
	e.level = l
	if l.head == nil {
		l.head = e
		l.tail = e
	} else {
		l.tail.next = e
		e.prev = l.tail
		l.tail = e
	}
	l.totalQty += e.order.Remaining
	l.count++
}

// unlink removes e from the queue. totalQty is reduced by the order's
// remaining quantity; partial fills must be accounted separately via
// reduce before the order reaches zero.
func (l *priceLevel) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.next = nil
	e.prev = nil
	e.level = nil
	l.totalQty -= e.order.Remaining
	l.count--
}

// reduce records a partial fill against the level's aggregate quantity.
func (l *priceLevel) reduce(qty int64) {
	l.totalQty -= qty
}

func (l *priceLevel) empty() bool {
	return l.head == nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Order book metrics
	OrdersPlaced    prometheus.Counter
	OrdersRejected  *prometheus.CounterVec
	OrdersCancelled prometheus.Counter
	OrdersFilled    prometheus.Counter
	OrderBookSize   *prometheus.GaugeVec

	// Trade metrics
	TradesTotal prometheus.Counter
	TradeVolume *prometheus.CounterVec

	// WebSocket metrics
	WSConnections  prometheus.Gauge
	WSMessagesSent *prometheus.CounterVec

	// RabbitMQ metrics
	MQMessagesPublished *prometheus.CounterVec
	MQMessagesConsumed  *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewMetrics creates and registers all application metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		OrdersPlaced: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_placed_total",
				Help: "Total number of orders accepted by the matching engine",
			},
		),
		OrdersRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_rejected_total",
				Help: "Total number of orders rejected, by reason",
			},
			[]string{"reason"},
		),
		OrdersCancelled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Total number of orders cancelled",
			},
		),
		OrdersFilled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_filled_total",
				Help: "Total number of orders completely filled",
			},
		),
		OrderBookSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderbook_resting_orders",
				Help: "Number of resting orders in the book",
			},
			[]string{"pair"},
		),

		TradesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trades_total",
				Help: "Total number of trades executed",
			},
		),
		TradeVolume: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_volume_units_total",
				Help: "Total traded quantity in base atomic units, by pair",
			},
			[]string{"pair"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_connections_active",
				Help: "Current number of active WebSocket connections",
			},
		),
		WSMessagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_messages_sent_total",
				Help: "Total number of WebSocket messages sent",
			},
			[]string{"pair", "type"},
		),

		MQMessagesPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mq_messages_published_total",
				Help: "Total number of messages published to RabbitMQ",
			},
			[]string{"exchange", "routing_key"},
		),
		MQMessagesConsumed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mq_messages_consumed_total",
				Help: "Total number of messages consumed from RabbitMQ",
			},
			[]string{"queue"},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
		),
	}
}

// RecordOrderPlaced records a new order placement.
func (m *Metrics) RecordOrderPlaced(pair string, resting int) {
	m.OrdersPlaced.Inc()
	m.OrderBookSize.WithLabelValues(pair).Set(float64(resting))
}

// RecordOrderRejected records an order that failed validation or admission.
func (m *Metrics) RecordOrderRejected(reason string) {
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

// RecordOrderCancelled records an order cancellation.
func (m *Metrics) RecordOrderCancelled(pair string, resting int) {
	m.OrdersCancelled.Inc()
	m.OrderBookSize.WithLabelValues(pair).Set(float64(resting))
}

// RecordTrade records an executed trade. Quantity is in base atomic units.
func (m *Metrics) RecordTrade(pair string, quantity int64) {
	m.TradesTotal.Inc()
	m.TradeVolume.WithLabelValues(pair).Add(float64(quantity))
}

// RecordWSSent records a WebSocket message sent.
func (m *Metrics) RecordWSSent(pair, msgType string) {
	m.WSMessagesSent.WithLabelValues(pair, msgType).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

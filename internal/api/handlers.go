package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"matchbook/internal/cache"
	"matchbook/internal/engine"
	"matchbook/internal/messaging"
	"matchbook/internal/metrics"
	"matchbook/internal/models"
	"matchbook/internal/ws"
)

// Handler serves the trading endpoints. It validates requests, assigns
// order ids, and delegates matching to the engine; persistence and
// broadcasting happen through the engine manager's callbacks.
type Handler struct {
	engine    *engine.Manager
	cache     *cache.RedisCache
	wsHub     *ws.Hub
	publisher *messaging.Publisher
	metrics   *metrics.Metrics

	orderSeq atomic.Int64
}

// NewHandler creates the API handler. cache, wsHub, and publisher may
// be nil when those backends are not configured.
func NewHandler(eng *engine.Manager, redisCache *cache.RedisCache, wsHub *ws.Hub, publisher *messaging.Publisher, m *metrics.Metrics) *Handler {
	return &Handler{
		engine:    eng,
		cache:     redisCache,
		wsHub:     wsHub,
		publisher: publisher,
		metrics:   m,
	}
}

// SeedOrderIDs moves the order id sequence past max, so ids assigned
// after a restart never collide with journaled orders.
func (h *Handler) SeedOrderIDs(max int64) {
	for {
		cur := h.orderSeq.Load()
		if cur >= max || h.orderSeq.CompareAndSwap(cur, max) {
			return
		}
	}
}

// PlaceOrderRequest is the payload for POST /api/orders. Price and
// quantity are integer atomic units; fractional values are rejected at
// the JSON layer.
type PlaceOrderRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Pair     string `json:"pair" binding:"required"`
	Side     string `json:"side" binding:"required,oneof=buy sell"`
	Price    int64  `json:"price" binding:"required,gt=0"`
	Quantity int64  `json:"quantity" binding:"required,gt=0"`
}

// PlaceOrderResponse returns the accepted order and any trades its
// admission generated, in execution order.
type PlaceOrderResponse struct {
	Order  *models.Order  `json:"order"`
	Trades []models.Trade `json:"trades"`
}

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	if _, err := models.ParsePair(req.Pair); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	order := &models.Order{
		ID:        h.orderSeq.Add(1),
		UserID:    req.UserID,
		Pair:      req.Pair,
		Side:      models.Side(req.Side),
		Price:     req.Price,
		Quantity:  req.Quantity,
		Remaining: req.Quantity,
		Status:    models.Open,
		CreatedAt: time.Now(),
	}

	trades, err := h.engine.AddOrder(order)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordOrderRejected(string(rejectReason(err)))
		}
		AbortWithEngineError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordOrderPlaced(order.Pair, h.engine.Book(order.Pair).OrderCount())
		for i := range trades {
			h.metrics.RecordTrade(order.Pair, trades[i].Quantity)
		}
	}
	if h.wsHub != nil {
		h.wsHub.BroadcastDepth(order.Pair)
	}
	h.refreshPriceCache(c, order.Pair)

	if trades == nil {
		trades = []models.Trade{}
	}
	c.JSON(http.StatusCreated, NewSuccessResponse(PlaceOrderResponse{
		Order:  order,
		Trades: trades,
	}, ""))
}

// CancelOrder handles DELETE /api/orders/:id?pair=BTC-USD.
func (h *Handler) CancelOrder(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "pair query parameter is required")
		return
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return
	}

	order, err := h.engine.CancelOrder(pair, orderID)
	if err != nil {
		AbortWithEngineError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordOrderCancelled(pair, h.engine.Book(pair).OrderCount())
	}
	if h.cache != nil {
		h.cache.SetOrderStatus(c.Request.Context(), orderID, models.Cancelled)
	}
	if h.publisher != nil {
		if err := h.publisher.PublishOrderCancelled(orderID, pair, c.GetString("request_id")); err != nil {
			log.Printf("[api] failed to publish cancellation of order %d: %v", orderID, err)
		}
	}
	if h.wsHub != nil {
		h.wsHub.BroadcastDepth(pair)
	}
	h.refreshPriceCache(c, pair)

	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{
		"order_id":  order.ID,
		"pair":      pair,
		"remaining": order.Remaining,
		"status":    order.Status,
	}, "order cancelled"))
}

// GetOrder handles GET /api/orders/:id?pair=BTC-USD. Only resting
// orders are visible here; filled and cancelled orders live in the
// journal.
func (h *Handler) GetOrder(c *gin.Context) {
	pair := c.Query("pair")
	if pair == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "pair query parameter is required")
		return
	}

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid order id")
		return
	}

	order := h.engine.GetOrder(pair, orderID)
	if order == nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, "order not found")
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetUserOrders handles GET /api/orders?user_id=N, returning the
// user's resting orders across all pairs.
func (h *Handler) GetUserOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "user_id is required")
		return
	}

	var orders []*models.Order
	for _, pair := range h.engine.ListPairs() {
		orders = append(orders, h.engine.Book(pair).GetUserOrders(userID)...)
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetOrderBook handles GET /api/pairs/:pair/book?levels=N. The cache
// is consulted first; a miss falls through to the live book.
func (h *Handler) GetOrderBook(c *gin.Context) {
	pair := c.Param("pair")

	levels := 10
	if s := c.Query("levels"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 && l <= 100 {
			levels = l
		}
	}

	if h.cache != nil {
		if state, err := h.cache.GetDepth(c.Request.Context(), pair); err == nil && state != nil && len(state.Bids)+len(state.Asks) > 0 {
			if h.metrics != nil {
				h.metrics.CacheHits.Inc()
			}
			c.JSON(http.StatusOK, gin.H{
				"pair": pair,
				"bids": clampLevels(state.Bids, levels),
				"asks": clampLevels(state.Asks, levels),
			})
			return
		}
		if h.metrics != nil {
			h.metrics.CacheMisses.Inc()
		}
	}

	bids, asks := h.engine.Depth(pair, levels)
	c.JSON(http.StatusOK, gin.H{
		"pair": pair,
		"bids": bids,
		"asks": asks,
	})
}

// GetTicker handles GET /api/pairs/:pair/ticker.
func (h *Handler) GetTicker(c *gin.Context) {
	pair := c.Param("pair")

	bid, bidOk := h.engine.BestBid(pair)
	ask, askOk := h.engine.BestAsk(pair)

	resp := gin.H{
		"pair":   pair,
		"bid":    bid,
		"bid_ok": bidOk,
		"ask":    ask,
		"ask_ok": askOk,
	}
	if bidOk && askOk {
		resp["spread"] = ask - bid
	}
	c.JSON(http.StatusOK, resp)
}

// GetRecentTrades handles GET /api/pairs/:pair/trades.
func (h *Handler) GetRecentTrades(c *gin.Context) {
	pair := c.Param("pair")

	limit := int64(50)
	if s := c.Query("limit"); s != "" {
		if l, err := strconv.ParseInt(s, 10, 64); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	var trades []models.Trade
	if h.cache != nil {
		trades, _ = h.cache.GetRecentTrades(c.Request.Context(), pair, limit)
	}
	if trades == nil {
		trades = []models.Trade{}
	}

	c.JSON(http.StatusOK, gin.H{
		"pair":   pair,
		"trades": trades,
		"count":  len(trades),
	})
}

// ListActivePairs handles GET /api/pairs/active, the pairs with a live
// book.
func (h *Handler) ListActivePairs(c *gin.Context) {
	pairs := h.engine.ListPairs()
	c.JSON(http.StatusOK, gin.H{
		"pairs": pairs,
		"count": len(pairs),
	})
}

// refreshPriceCache pushes the post-mutation best prices and depth
// into Redis.
func (h *Handler) refreshPriceCache(c *gin.Context, pair string) {
	if h.cache == nil {
		return
	}
	ctx := c.Request.Context()

	var bidLevel, askLevel *cache.BookLevel
	bids, asks := h.engine.Depth(pair, 20)
	if len(bids) > 0 {
		bidLevel = &cache.BookLevel{Price: bids[0].Price, Volume: bids[0].Volume}
	}
	if len(asks) > 0 {
		askLevel = &cache.BookLevel{Price: asks[0].Price, Volume: asks[0].Volume}
	}
	h.cache.SetBestPrice(ctx, pair, bidLevel, askLevel)
	h.cache.SetDepth(ctx, pair, toCacheLevels(bids), toCacheLevels(asks))
}

func toCacheLevels(levels []engine.Level) []cache.BookLevel {
	out := make([]cache.BookLevel, len(levels))
	for i, l := range levels {
		out[i] = cache.BookLevel{Price: l.Price, Volume: l.Volume}
	}
	return out
}

func clampLevels(levels []cache.BookLevel, n int) []cache.BookLevel {
	if len(levels) > n {
		return levels[:n]
	}
	return levels
}

func rejectReason(err error) ErrorCode {
	switch {
	case errors.Is(err, engine.ErrDuplicateOrderID):
		return ErrCodeDuplicateOrder
	default:
		return ErrCodeInvalidOrder
	}
}

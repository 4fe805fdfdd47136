package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"matchbook/internal/cache"
	"matchbook/internal/engine"
	"matchbook/internal/ws"
)

var startTime = time.Now()

// AdminHandler exposes operational endpoints: health, book statistics,
// and connection counts.
type AdminHandler struct {
	engine *engine.Manager
	wsHub  *ws.Hub
	cache  *cache.RedisCache
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(eng *engine.Manager, wsHub *ws.Hub, redisCache *cache.RedisCache) *AdminHandler {
	return &AdminHandler{
		engine: eng,
		wsHub:  wsHub,
		cache:  redisCache,
	}
}

// RegisterRoutes registers the admin route group.
func (h *AdminHandler) RegisterRoutes(r *gin.Engine) {
	admin := r.Group("/admin")
	{
		admin.GET("/health", h.Health)
		admin.GET("/orderbook", h.OrderBookStats)
		admin.GET("/connections", h.ConnectionStats)
	}
}

// Health reports overall service health.
func (h *AdminHandler) Health(c *gin.Context) {
	services := map[string]string{
		"engine": "healthy",
	}
	if h.cache != nil {
		services["redis"] = "healthy"
	} else {
		services["redis"] = "not configured"
	}
	if h.wsHub != nil {
		services["websocket"] = "healthy"
	} else {
		services["websocket"] = "not configured"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now(),
		"uptime":     time.Since(startTime).String(),
		"services":   services,
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	})
}

// OrderBookStats reports per-pair book statistics.
func (h *AdminHandler) OrderBookStats(c *gin.Context) {
	pairs := h.engine.ListPairs()
	stats := make([]gin.H, 0, len(pairs))

	for _, pair := range pairs {
		book := h.engine.Book(pair)
		bidLevels, askLevels := book.LevelCount()
		entry := gin.H{
			"pair":       pair,
			"orders":     book.OrderCount(),
			"bid_levels": bidLevels,
			"ask_levels": askLevels,
		}
		if bid, ok := book.BestBid(); ok {
			entry["best_bid"] = bid
		}
		if ask, ok := book.BestAsk(); ok {
			entry["best_ask"] = ask
		}
		stats = append(stats, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"books": stats,
		"count": len(stats),
	})
}

// ConnectionStats reports WebSocket connection counts.
func (h *AdminHandler) ConnectionStats(c *gin.Context) {
	if h.wsHub == nil {
		c.JSON(http.StatusOK, gin.H{"websocket": "not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": h.wsHub.TotalClientCount(),
		"pairs":             h.wsHub.Pairs(),
	})
}

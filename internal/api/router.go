package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchbook/internal/cache"
	"matchbook/internal/engine"
	"matchbook/internal/messaging"
	"matchbook/internal/metrics"
	"matchbook/internal/middleware"
	"matchbook/internal/store"
	"matchbook/internal/ws"
)

// RouterDeps carries everything the router wires together. Optional
// backends (cache, stores, hub) may be nil.
type RouterDeps struct {
	Engine        *engine.Manager
	Cache         *cache.RedisCache
	WSHub         *ws.Hub
	Publisher     *messaging.Publisher
	CurrencyStore *store.CurrencyStore
	PairStore     *store.PairStore
	Metrics       *metrics.Metrics
	Auth          *middleware.Auth
}

// NewRouter builds the gin engine with all routes and middleware.
// It returns the configured router and the API handler, whose order id
// sequence the caller seeds from the journal.
func NewRouter(deps RouterDeps) (*gin.Engine, *Handler) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Metrics))

	auth := deps.Auth
	if auth == nil {
		auth = middleware.NewAuth(nil)
	}
	rateLimiter := middleware.NewRateLimiter(10, 20)

	h := NewHandler(deps.Engine, deps.Cache, deps.WSHub, deps.Publisher, deps.Metrics)
	currencyHandler := NewCurrencyHandler(deps.CurrencyStore)
	pairHandler := NewPairHandler(deps.PairStore)

	NewAdminHandler(deps.Engine, deps.WSHub, deps.Cache).RegisterRoutes(r)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/pairs", pairHandler.ListPairs)
		api.GET("/pairs/active", h.ListActivePairs)
		api.GET("/pairs/:pair/book", h.GetOrderBook)
		api.GET("/pairs/:pair/ticker", h.GetTicker)
		api.GET("/pairs/:pair/trades", h.GetRecentTrades)
		api.GET("/currencies", currencyHandler.ListCurrencies)
		api.GET("/currencies/:code", currencyHandler.GetCurrency)

		protected := api.Group("")
		protected.Use(auth.Middleware())
		protected.Use(rateLimiter.Middleware())
		{
			protected.POST("/orders", h.PlaceOrder)
			protected.GET("/orders", h.GetUserOrders)
			protected.GET("/orders/:id", h.GetOrder)
			protected.DELETE("/orders/:id", h.CancelOrder)
			protected.POST("/pairs", pairHandler.CreatePair)
			protected.DELETE("/pairs/:pair", pairHandler.DeactivatePair)
			protected.POST("/currencies", currencyHandler.CreateCurrency)
			protected.PUT("/currencies/:code", currencyHandler.UpdateCurrency)
			protected.DELETE("/currencies/:code", currencyHandler.DeleteCurrency)
		}
	}

	if deps.WSHub != nil {
		wsHandler := ws.NewHandler(deps.WSHub)
		r.GET("/ws/stats", wsHandler.HandleStats)
		r.GET("/ws/:pair", wsHandler.HandleUpgrade)
	}

	return r, h
}

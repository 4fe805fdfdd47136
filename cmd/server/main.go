package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matchbook/internal/api"
	"matchbook/internal/cache"
	"matchbook/internal/config"
	"matchbook/internal/engine"
	"matchbook/internal/messaging"
	"matchbook/internal/metrics"
	"matchbook/internal/models"
	"matchbook/internal/store"
	"matchbook/internal/ws"
)

func main() {
	cfg := config.Load()
	appMetrics := metrics.NewMetrics()
	manager := engine.NewManager()

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		log.Printf("[main] Redis cache not available: %v", err)
		redisCache = nil
	} else {
		log.Println("[main] Redis cache connected")
		defer redisCache.Close()
	}

	postgresStore, err := store.NewPostgresStore(cfg.GetPostgresDSN())
	if err != nil {
		log.Printf("[main] PostgreSQL store not available: %v", err)
		postgresStore = nil
	} else {
		log.Println("[main] PostgreSQL store connected")
		defer postgresStore.Close()
	}

	var currencyStore *store.CurrencyStore
	var pairStore *store.PairStore
	var dedupStore *store.DedupStore
	if postgresStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.NewMigrator(postgresStore.GetDB()).Migrate(ctx); err != nil {
			log.Fatalf("[main] migration failed: %v", err)
		}
		cancel()

		currencyStore = store.NewCurrencyStore(postgresStore.GetDB())
		pairStore = store.NewPairStore(postgresStore.GetDB())
		dedupStore = store.NewDedupStore(postgresStore.GetDB(), nil)
		defer dedupStore.Stop()

		seedDefaults(currencyStore, pairStore)
	}

	var wsHub *ws.Hub
	if cfg.WSEnabled {
		wsHub = ws.NewHub(manager, appMetrics)
		go wsHub.Run()
		defer wsHub.Stop()
		log.Println("[main] WebSocket hub started")
	}

	publisher, err := messaging.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, appMetrics)
	if err != nil {
		log.Printf("[main] RabbitMQ publisher not available: %v", err)
		publisher = nil
	} else {
		log.Println("[main] RabbitMQ publisher connected")
		defer publisher.Close()
	}

	if publisher != nil && postgresStore != nil {
		consumer, err := messaging.NewConsumer(cfg.RabbitMQURL, postgresStore, dedupStore, appMetrics, cfg.WorkerCount)
		if err != nil {
			log.Printf("[main] RabbitMQ consumer not available: %v", err)
		} else if err := consumer.Start(cfg.RabbitMQExchange); err != nil {
			log.Printf("[main] failed to start consumer: %v", err)
		} else {
			log.Println("[main] RabbitMQ consumer started")
			defer consumer.Stop()
		}
	}

	// Side effects of matching: broadcast, cache, and journal through
	// the event queue. The engine itself stays purely computational.
	manager.SetOrderCallback(func(pair string, order *models.Order) {
		if publisher != nil {
			if err := publisher.PublishOrderPlaced(order, ""); err != nil {
				log.Printf("[main] failed to publish order %d: %v", order.ID, err)
			}
		}
	})
	manager.SetTradeCallback(func(pair string, trade *models.Trade) {
		if wsHub != nil {
			wsHub.BroadcastTrade(pair, trade)
		}
		if redisCache != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			redisCache.AddRecentTrade(ctx, pair, trade)
			cancel()
		}
		if publisher != nil {
			book := manager.Book(pair)
			maker := orderState(book, trade.MakerOrderID)
			taker := orderState(book, trade.TakerOrderID)
			if err := publisher.PublishTradeExecuted(trade, maker, taker, ""); err != nil {
				log.Printf("[main] failed to publish trade %d: %v", trade.ID, err)
			}
		}
	})

	// Warm start: rebuild books from the journal, falling back to the
	// Redis snapshot, then resume id sequences past what was journaled.
	recovery := cache.NewRecoveryManager(redisCache, orderSource(postgresStore), nil)
	if _, err := recovery.Recover(manager); err != nil {
		log.Printf("[main] recovery failed: %v", err)
	}
	if redisCache != nil {
		go recovery.StartAutoSnapshot(manager)
		defer recovery.Stop()
	}

	router, handler := api.NewRouter(api.RouterDeps{
		Engine:        manager,
		Cache:         redisCache,
		WSHub:         wsHub,
		Publisher:     publisher,
		CurrencyStore: currencyStore,
		PairStore:     pairStore,
		Metrics:       appMetrics,
	})

	if postgresStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		maxOrderID, maxTradeID, err := postgresStore.MaxIDs(ctx)
		cancel()
		if err != nil {
			log.Printf("[main] failed to read max ids: %v", err)
		} else {
			handler.SeedOrderIDs(maxOrderID)
			manager.SeedTradeIDs(maxTradeID)
		}
	}

	srv := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("[main] matchbook listening on %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[main] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] shutdown error: %v", err)
	}
}

// orderState captures an order's post-fill state for the journal. An
// order absent from the book was completely filled.
func orderState(book *engine.OrderBook, orderID int64) *models.Order {
	if o := book.GetOrder(orderID); o != nil {
		return o
	}
	return &models.Order{ID: orderID, Remaining: 0, Status: models.Filled}
}

// orderSource adapts a possibly-nil store to the recovery interface.
func orderSource(s *store.PostgresStore) cache.OrderSource {
	if s == nil {
		return nil
	}
	return s
}

func seedDefaults(currencyStore *store.CurrencyStore, pairStore *store.PairStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	seeded, err := currencyStore.SeedDefaultCurrencies(ctx, models.DefaultCurrencies)
	if err != nil {
		log.Printf("[main] failed to seed currencies: %v", err)
	} else if seeded > 0 {
		log.Printf("[main] seeded %d default currencies", seeded)
	}

	defaultPairs := []*models.Pair{
		models.NewPair("BTC", "USDT", 1),
		models.NewPair("ETH", "USDT", 1),
		models.NewPair("BTC", "USD", 1),
		models.NewPair("ETH", "USD", 1),
	}
	seeded, err = pairStore.SeedDefaultPairs(ctx, defaultPairs)
	if err != nil {
		log.Printf("[main] failed to seed pairs: %v", err)
	} else if seeded > 0 {
		log.Printf("[main] seeded %d default pairs", seeded)
	}
}

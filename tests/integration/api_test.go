package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/internal/api"
	"matchbook/internal/engine"
	"matchbook/internal/middleware"
	"matchbook/internal/models"
)

type orderEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Order  models.Order   `json:"order"`
		Trades []models.Trade `json:"trades"`
	} `json:"data"`
}

// setupTestRouter builds a router backed by a bare engine, the way the
// service runs when no external backends are configured.
func setupTestRouter(t *testing.T) (*gin.Engine, *engine.Manager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := engine.NewManager()
	auth := middleware.NewAuth(nil)
	router, _ := api.NewRouter(api.RouterDeps{
		Engine: manager,
		Auth:   auth,
	})

	token, err := auth.GenerateToken(1, "trader")
	require.NoError(t, err)

	return router, manager, token
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func placeOrder(t *testing.T, router *gin.Engine, token string, req api.PlaceOrderRequest) orderEnvelope {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/orders", token, req)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var env orderEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestPlaceOrder(t *testing.T) {
	router, manager, token := setupTestRouter(t)

	env := placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID:   1,
		Pair:     "BTC-USD",
		Side:     "buy",
		Price:    5000000,
		Quantity: 15,
	})

	assert.True(t, env.Success)
	assert.Equal(t, "BTC-USD", env.Data.Order.Pair)
	assert.Equal(t, models.Buy, env.Data.Order.Side)
	assert.Equal(t, int64(5000000), env.Data.Order.Price)
	assert.Equal(t, int64(15), env.Data.Order.Remaining)
	assert.Equal(t, models.Open, env.Data.Order.Status)
	assert.Empty(t, env.Data.Trades)

	assert.Equal(t, 1, manager.Book("BTC-USD").OrderCount())
}

func TestPlaceOrderValidation(t *testing.T) {
	router, manager, token := setupTestRouter(t)

	cases := []struct {
		name string
		req  api.PlaceOrderRequest
	}{
		{"zero price", api.PlaceOrderRequest{UserID: 1, Pair: "BTC-USD", Side: "buy", Price: 0, Quantity: 5}},
		{"negative price", api.PlaceOrderRequest{UserID: 1, Pair: "BTC-USD", Side: "buy", Price: -10, Quantity: 5}},
		{"zero quantity", api.PlaceOrderRequest{UserID: 1, Pair: "BTC-USD", Side: "buy", Price: 100, Quantity: 0}},
		{"bad side", api.PlaceOrderRequest{UserID: 1, Pair: "BTC-USD", Side: "hold", Price: 100, Quantity: 5}},
		{"missing pair", api.PlaceOrderRequest{UserID: 1, Side: "buy", Price: 100, Quantity: 5}},
		{"malformed pair", api.PlaceOrderRequest{UserID: 1, Pair: "BTCUSD", Side: "buy", Price: 100, Quantity: 5}},
		{"lowercase pair", api.PlaceOrderRequest{UserID: 1, Pair: "btc-usd", Side: "buy", Price: 100, Quantity: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/orders", token, tc.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	// Rejected orders leave no trace.
	assert.Equal(t, 0, manager.BookCount())
}

func TestPlaceOrderUnauthorized(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/orders", "", api.PlaceOrderRequest{
		UserID: 1, Pair: "BTC-USD", Side: "buy", Price: 100, Quantity: 5,
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMatchingThroughAPI(t *testing.T) {
	router, _, token := setupTestRouter(t)

	placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 1, Pair: "BTC-USD", Side: "sell", Price: 100, Quantity: 10,
	})
	placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 2, Pair: "BTC-USD", Side: "sell", Price: 99, Quantity: 5,
	})

	env := placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 3, Pair: "BTC-USD", Side: "buy", Price: 100, Quantity: 12,
	})

	require.Len(t, env.Data.Trades, 2)
	assert.Equal(t, int64(99), env.Data.Trades[0].Price)
	assert.Equal(t, int64(5), env.Data.Trades[0].Quantity)
	assert.Equal(t, int64(100), env.Data.Trades[1].Price)
	assert.Equal(t, int64(7), env.Data.Trades[1].Quantity)
	assert.Equal(t, models.Filled, env.Data.Order.Status)
	assert.Equal(t, int64(0), env.Data.Order.Remaining)
}

func TestCancelOrder(t *testing.T) {
	router, manager, token := setupTestRouter(t)

	env := placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 1, Pair: "BTC-USD", Side: "buy", Price: 100, Quantity: 5,
	})
	orderID := env.Data.Order.ID

	path := fmt.Sprintf("/api/orders/%d?pair=BTC-USD", orderID)
	w := doJSON(t, router, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, manager.Book("BTC-USD").OrderCount())

	// Cancelling again reports the order as gone.
	w = doJSON(t, router, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelRequiresPair(t *testing.T) {
	router, _, token := setupTestRouter(t)

	w := doJSON(t, router, http.MethodDelete, "/api/orders/1", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrder(t *testing.T) {
	router, _, token := setupTestRouter(t)

	env := placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 1, Pair: "BTC-USD", Side: "buy", Price: 100, Quantity: 5,
	})

	path := fmt.Sprintf("/api/orders/%d?pair=BTC-USD", env.Data.Order.ID)
	w := doJSON(t, router, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, env.Data.Order.ID, order.ID)

	w = doJSON(t, router, http.MethodGet, "/api/orders/9999?pair=BTC-USD", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTickerAndBook(t *testing.T) {
	router, _, token := setupTestRouter(t)

	placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 1, Pair: "BTC-USD", Side: "buy", Price: 95, Quantity: 5,
	})
	placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 2, Pair: "BTC-USD", Side: "sell", Price: 105, Quantity: 3,
	})

	// Market data is public.
	w := doJSON(t, router, http.MethodGet, "/api/pairs/BTC-USD/ticker", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ticker struct {
		Bid    int64 `json:"bid"`
		BidOK  bool  `json:"bid_ok"`
		Ask    int64 `json:"ask"`
		AskOK  bool  `json:"ask_ok"`
		Spread int64 `json:"spread"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ticker))
	assert.True(t, ticker.BidOK)
	assert.True(t, ticker.AskOK)
	assert.Equal(t, int64(95), ticker.Bid)
	assert.Equal(t, int64(105), ticker.Ask)
	assert.Equal(t, int64(10), ticker.Spread)

	w = doJSON(t, router, http.MethodGet, "/api/pairs/BTC-USD/book", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var book struct {
		Bids []engine.Level `json:"bids"`
		Asks []engine.Level `json:"asks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, int64(5), book.Bids[0].Volume)
	assert.Equal(t, int64(3), book.Asks[0].Volume)
}

func TestGetUserOrders(t *testing.T) {
	router, _, token := setupTestRouter(t)

	placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 7, Pair: "BTC-USD", Side: "buy", Price: 95, Quantity: 5,
	})
	placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 7, Pair: "ETH-USD", Side: "sell", Price: 200, Quantity: 2,
	})
	placeOrder(t, router, token, api.PlaceOrderRequest{
		UserID: 8, Pair: "BTC-USD", Side: "buy", Price: 90, Quantity: 1,
	})

	w := doJSON(t, router, http.MethodGet, "/api/orders?user_id=7", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Orders []models.Order `json:"orders"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHealth(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/admin/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

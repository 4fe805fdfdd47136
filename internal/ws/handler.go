package ws

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides the HTTP endpoints for WebSocket access.
type Handler struct {
	hub *Hub
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleUpgrade upgrades the connection and subscribes it to a pair.
// Path: /ws/:pair (e.g. /ws/BTC-USD).
func (h *Handler) HandleUpgrade(c *gin.Context) {
	pair := c.Param("pair")
	if pair == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pair is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := NewClient(h.hub, conn, pair)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// HandleStats reports connection counts.
func (h *Handler) HandleStats(c *gin.Context) {
	pair := c.Param("pair")
	if pair != "" {
		c.JSON(http.StatusOK, gin.H{
			"pair":        pair,
			"connections": h.hub.ClientCount(pair),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": h.hub.TotalClientCount(),
		"pairs":             h.hub.Pairs(),
	})
}

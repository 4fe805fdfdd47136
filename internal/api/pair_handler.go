package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"matchbook/internal/models"
	"matchbook/internal/store"
)

// PairHandler provides trading pair management endpoints.
type PairHandler struct {
	pairStore *store.PairStore
}

// NewPairHandler creates a pair handler.
func NewPairHandler(pairStore *store.PairStore) *PairHandler {
	return &PairHandler{pairStore: pairStore}
}

// CreatePairRequest is the payload for POST /api/pairs. MinQuantity is
// in base atomic units.
type CreatePairRequest struct {
	Base        string `json:"base" binding:"required"`
	Quote       string `json:"quote" binding:"required"`
	MinQuantity int64  `json:"min_quantity" binding:"gte=0"`
}

// CreatePair handles POST /api/pairs. Both legs must name a registered,
// active currency.
func (h *PairHandler) CreatePair(c *gin.Context) {
	if h.pairStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "pair store not configured")
		return
	}

	var req CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	pair := models.NewPair(req.Base, req.Quote, req.MinQuantity)
	if err := pair.Validate(); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	exists, err := h.pairStore.Exists(c.Request.Context(), pair.Base, pair.Quote)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to check pair existence")
		return
	}
	if exists {
		AbortWithError(c, http.StatusConflict, ErrCodeConflict, "pair already exists")
		return
	}

	if err := h.pairStore.Create(c.Request.Context(), pair); err != nil {
		if errors.Is(err, store.ErrUnknownCurrency) {
			AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to create pair")
		return
	}

	c.JSON(http.StatusCreated, pair)
}

// ListPairs handles GET /api/pairs. Inactive pairs are included only
// when ?include_inactive=true.
func (h *PairHandler) ListPairs(c *gin.Context) {
	if h.pairStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "pair store not configured")
		return
	}

	includeInactive := c.Query("include_inactive") == "true"
	pairs, err := h.pairStore.List(c.Request.Context(), includeInactive)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to list pairs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pairs": pairs,
		"count": len(pairs),
	})
}

// DeactivatePair handles DELETE /api/pairs/:pair. The row is kept so
// journaled orders retain a valid reference; the pair just stops being
// listed.
func (h *PairHandler) DeactivatePair(c *gin.Context) {
	if h.pairStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "pair store not configured")
		return
	}

	pair, err := models.ParsePair(c.Param("pair"))
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	found, err := h.pairStore.SetActive(c.Request.Context(), pair.Base, pair.Quote, false)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to deactivate pair")
		return
	}
	if !found {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, "pair not found")
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"pair": pair.String()}, "pair deactivated"))
}

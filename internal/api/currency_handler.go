package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"matchbook/internal/models"
	"matchbook/internal/store"
)

// CurrencyHandler provides currency management endpoints. With no
// database configured the endpoints respond 503.
type CurrencyHandler struct {
	currencyStore *store.CurrencyStore
}

// NewCurrencyHandler creates a currency handler.
func NewCurrencyHandler(currencyStore *store.CurrencyStore) *CurrencyHandler {
	return &CurrencyHandler{currencyStore: currencyStore}
}

// CreateCurrencyRequest is the payload for POST /api/currencies.
type CreateCurrencyRequest struct {
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Precision int    `json:"precision" binding:"gte=0,lte=18"`
	MinAmount int64  `json:"min_amount" binding:"gte=0"`
}

// ListCurrencies handles GET /api/currencies.
func (h *CurrencyHandler) ListCurrencies(c *gin.Context) {
	if h.currencyStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "currency store not configured")
		return
	}

	includeInactive := c.Query("include_inactive") == "true"
	currencies, err := h.currencyStore.List(c.Request.Context(), includeInactive)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to list currencies")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"currencies": currencies,
		"count":      len(currencies),
	})
}

// GetCurrency handles GET /api/currencies/:code.
func (h *CurrencyHandler) GetCurrency(c *gin.Context) {
	if h.currencyStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "currency store not configured")
		return
	}

	code := strings.ToUpper(c.Param("code"))
	currency, err := h.currencyStore.GetByCode(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to get currency")
		return
	}
	if currency == nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, "currency not found")
		return
	}

	c.JSON(http.StatusOK, currency)
}

// CreateCurrency handles POST /api/currencies.
func (h *CurrencyHandler) CreateCurrency(c *gin.Context) {
	if h.currencyStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "currency store not configured")
		return
	}

	var req CreateCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	currency := models.NewCurrency(strings.ToUpper(req.Code), req.Name, req.Precision, req.MinAmount)
	if err := currency.Validate(); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	exists, err := h.currencyStore.Exists(c.Request.Context(), currency.Code)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to check currency existence")
		return
	}
	if exists {
		AbortWithError(c, http.StatusConflict, ErrCodeConflict, "currency already exists")
		return
	}

	if err := h.currencyStore.Create(c.Request.Context(), currency); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to create currency")
		return
	}

	c.JSON(http.StatusCreated, currency)
}

// UpdateCurrency handles PUT /api/currencies/:code.
func (h *CurrencyHandler) UpdateCurrency(c *gin.Context) {
	if h.currencyStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "currency store not configured")
		return
	}

	code := strings.ToUpper(c.Param("code"))
	existing, err := h.currencyStore.GetByCode(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to get currency")
		return
	}
	if existing == nil {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, "currency not found")
		return
	}

	var req CreateCurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	existing.Name = req.Name
	existing.Precision = req.Precision
	existing.MinAmount = req.MinAmount
	existing.UpdatedAt = time.Now()
	if err := existing.Validate(); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	if err := h.currencyStore.Update(c.Request.Context(), existing); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to update currency")
		return
	}

	c.JSON(http.StatusOK, existing)
}

// DeleteCurrency handles DELETE /api/currencies/:code (soft delete).
func (h *CurrencyHandler) DeleteCurrency(c *gin.Context) {
	if h.currencyStore == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "currency store not configured")
		return
	}

	code := strings.ToUpper(c.Param("code"))
	if err := h.currencyStore.Delete(c.Request.Context(), code); err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "failed to delete currency")
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(nil, "currency deactivated"))
}

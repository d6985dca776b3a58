package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/id"
	"magazzino/internal/domain/lots"
	"magazzino/internal/infrastructure/http/v1/dto"
)

// LotHandler handles HTTP requests for the lot sub-ledger.
// Lots are created and drawn only through ledger movements; this handler
// is read-only.
type LotHandler struct {
	*BaseHandler
	service *lots.Service
}

// NewLotHandler creates a new lot handler.
func NewLotHandler(base *BaseHandler, service *lots.Service) *LotHandler {
	return &LotHandler{
		BaseHandler: base,
		service:     service,
	}
}

// List handles GET /lots - lot status for a (product, warehouse) pair.
func (h *LotHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Query("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}
	warehouseID, err := id.Parse(c.Query("warehouseId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid warehouseId format"))
		return
	}

	filter := lots.StatusFilter{
		IncludeExhausted: c.Query("includeExhausted") == "true",
		Limit:            h.ParseIntQuery(c, "limit", 100),
		Offset:           h.ParseIntQuery(c, "offset", 0),
	}

	if expStr := c.Query("expiringBefore"); expStr != "" {
		parsed, err := time.Parse(time.RFC3339, expStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid expiringBefore date, expected RFC3339"))
			return
		}
		filter.ExpiringBefore = &parsed
	}

	items, err := h.service.Status(ctx, productID, warehouseID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromLots(items, time.Now().UTC()))
}

// Get handles GET /lots/:id.
func (h *LotHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	lotID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	lot, err := h.service.Get(ctx, lotID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromLot(lot, time.Now().UTC()))
}

// RegisterRoutes registers lot routes.
func (h *LotHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
}

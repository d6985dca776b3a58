package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/id"
	"magazzino/internal/domain"
	"magazzino/internal/domain/views"
	"magazzino/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the aggregate stock view.
type StockHandler struct {
	*BaseHandler
	service *views.Service
}

// NewStockHandler creates a new stock view handler.
func NewStockHandler(base *BaseHandler, service *views.Service) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		service:     service,
	}
}

// ByWarehouse handles GET /stock/by-warehouse/:productId.
func (h *StockHandler) ByWarehouse(c *gin.Context) {
	ctx := c.Request.Context()

	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	rows, err := h.service.StockByWarehouse(ctx, productID)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.StockByWarehouseResponse{
		ProductID: productID.String(),
		Items:     make([]dto.StockRowResponse, len(rows)),
	}
	for i, row := range rows {
		response.Items[i] = dto.FromStockRow(row)
	}

	c.JSON(http.StatusOK, response)
}

// Alerts handles GET /stock/alerts - products at or below reorder point.
func (h *StockHandler) Alerts(c *gin.Context) {
	ctx := c.Request.Context()

	filter := domain.DefaultListFilter()
	filter.Limit = h.ParseIntQuery(c, "limit", 50)
	filter.Offset = h.ParseIntQuery(c, "offset", 0)

	result, err := h.service.BelowReorder(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.StockAlertsResponse{
		Items:      make([]*dto.ProductResponse, len(result.Items)),
		TotalCount: result.TotalCount,
	}
	for i, p := range result.Items {
		response.Items[i] = dto.FromProduct(p)
	}

	c.JSON(http.StatusOK, response)
}

// Valuation handles GET /stock/valuation - total stock value per product.
func (h *StockHandler) Valuation(c *gin.Context) {
	ctx := c.Request.Context()

	report, err := h.service.Valuation(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromValuation(report))
}

// Refresh handles POST /stock/refresh - rebuild the whole view on demand.
// In eager mode this is a correction tool; in lazy mode it forces a
// refresh ahead of the background schedule.
func (h *StockHandler) Refresh(c *gin.Context) {
	if err := h.service.Refresh(c.Request.Context()); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "stock view refreshed")
}

// RegisterRoutes registers stock view routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/by-warehouse/:productId", h.ByWarehouse)
	rg.GET("/alerts", h.Alerts)
	rg.GET("/valuation", h.Valuation)
	rg.POST("/refresh", h.Refresh)
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/id"
	"magazzino/internal/domain/ledger"
	"magazzino/internal/infrastructure/http/v1/dto"
)

// MovementHandler handles HTTP requests for the movement ledger.
type MovementHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewMovementHandler creates a new movement ledger handler.
func NewMovementHandler(base *BaseHandler, service *ledger.Service) *MovementHandler {
	return &MovementHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /movements - append one movement to the ledger.
func (h *MovementHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	appendReq, err := req.ToAppendRequest()
	if err != nil {
		h.Error(c, err)
		return
	}

	m, err := h.service.Append(ctx, appendReq)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromMovement(m)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// Transfer handles POST /movements/transfer - atomic two-leg transfer.
func (h *MovementHandler) Transfer(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	transferReq, err := req.ToTransferRequest()
	if err != nil {
		h.Error(c, err)
		return
	}

	outbound, inbound, err := h.service.Transfer(ctx, transferReq)
	if err != nil {
		h.Error(c, err)
		return
	}

	response := dto.FromTransfer(outbound, inbound)
	h.CompleteIdempotency(c, http.StatusCreated, "application/json", response)
	c.JSON(http.StatusCreated, response)
}

// Get handles GET /movements/:id.
func (h *MovementHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	movementID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	m, err := h.service.Get(ctx, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromMovement(m))
}

// List handles GET /movements - paged history for a product.
func (h *MovementHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	productIDStr := c.Query("productId")
	if productIDStr == "" {
		h.Error(c, apperror.NewValidation("productId is required"))
		return
	}

	productID, err := id.Parse(productIDStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid productId format"))
		return
	}

	filter := ledger.HistoryFilter{
		ProductID:  productID,
		ReasonCode: c.Query("reasonCode"),
		After:      int64(h.ParseIntQuery(c, "after", 0)),
		Limit:      h.ParseIntQuery(c, "limit", ledger.DefaultHistoryLimit),
	}

	if whStr := c.Query("warehouseId"); whStr != "" {
		parsed, err := id.Parse(whStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouseId format"))
			return
		}
		filter.WarehouseID = &parsed
	}

	if fromStr := c.Query("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid from date, expected RFC3339"))
			return
		}
		filter.From = &parsed
	}

	if toStr := c.Query("to"); toStr != "" {
		parsed, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid to date, expected RFC3339"))
			return
		}
		filter.To = &parsed
	}

	page, err := h.service.History(ctx, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromHistoryPage(page))
}

// Update handles PUT /movements/:id - always rejected, the ledger is
// append-only. Corrections go through offsetting movements.
func (h *MovementHandler) Update(c *gin.Context) {
	movementID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	h.Error(c, h.service.Update(c.Request.Context(), movementID))
}

// Delete handles DELETE /movements/:id - always rejected.
func (h *MovementHandler) Delete(c *gin.Context) {
	movementID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	h.Error(c, h.service.Delete(c.Request.Context(), movementID))
}

// RebuildBalance handles POST /movements/rebuild-balance - replays the
// ledger for one (product, warehouse) pair and rewrites its balance row.
func (h *MovementHandler) RebuildBalance(c *gin.Context) {
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

	balance, err := h.service.RebuildBalance(ctx, productID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, balance)
}

// RegisterRoutes registers movement ledger routes.
func (h *MovementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.POST("/transfer", h.Transfer)
	rg.POST("/rebuild-balance", h.RebuildBalance)
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}

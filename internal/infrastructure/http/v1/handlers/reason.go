package handlers

import (
	"github.com/gin-gonic/gin"

	"magazzino/internal/domain/catalogs/reason"
	"magazzino/internal/infrastructure/http/v1/dto"
)

// ReasonHTTPHandler handles movement reason catalog requests.
type ReasonHTTPHandler struct {
	*CatalogHandler[
		*reason.MovementReason,
		dto.CreateReasonRequest,
		dto.UpdateReasonRequest,
	]
	service *reason.Service
}

// NewReasonHandler creates a new movement reason handler.
func NewReasonHandler(
	base *BaseHandler,
	service *reason.Service,
) *ReasonHTTPHandler {

	config := CatalogHandlerConfig[
		*reason.MovementReason,
		dto.CreateReasonRequest,
		dto.UpdateReasonRequest,
	]{
		Service:    service.CatalogService,
		EntityName: "movement_reason",

		MapCreateDTO: func(req dto.CreateReasonRequest) *reason.MovementReason {
			return req.ToEntity()
		},

		MapUpdateDTO: func(req dto.UpdateReasonRequest, existing *reason.MovementReason) *reason.MovementReason {
			req.ApplyTo(existing)
			return existing
		},

		MapToDTO: func(entity *reason.MovementReason) any {
			return dto.FromReason(entity)
		},
	}

	return &ReasonHTTPHandler{
		CatalogHandler: NewCatalogHandler(base, config),
		service:        service,
	}
}

// Deactivate handles POST /catalog/reasons/:id/deactivate, where the path
// parameter is the reason CODE. Deactivation is the supported way to retire
// a reason; history keeps resolving it.
func (h *ReasonHTTPHandler) Deactivate(c *gin.Context) {
	ctx := c.Request.Context()

	code := c.Param("id")
	if err := h.service.Deactivate(ctx, code); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "reason deactivated")
}

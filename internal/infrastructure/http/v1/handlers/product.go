package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"magazzino/internal/core/apperror"
	"magazzino/internal/domain/catalogs/product"
	"magazzino/internal/infrastructure/http/v1/dto"
)

// ProductHTTPHandler handles product catalog requests.
type ProductHTTPHandler struct {
	*CatalogHandler[
		*product.Product,
		dto.CreateProductRequest,
		dto.UpdateProductRequest,
	]
	service *product.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(
	base *BaseHandler,
	service *product.Service,
) *ProductHTTPHandler {

	config := CatalogHandlerConfig[
		*product.Product,
		dto.CreateProductRequest,
		dto.UpdateProductRequest,
	]{
		Service:    service.CatalogService,
		EntityName: "product",

		MapCreateDTO: func(req dto.CreateProductRequest) *product.Product {
			return req.ToEntity()
		},

		MapUpdateDTO: func(req dto.UpdateProductRequest, existing *product.Product) *product.Product {
			req.ApplyTo(existing)
			return existing
		},

		MapToDTO: func(entity *product.Product) any {
			return dto.FromProduct(entity)
		},
	}

	return &ProductHTTPHandler{
		CatalogHandler: NewCatalogHandler(base, config),
		service:        service,
	}
}

// GetByBarcode handles GET /catalog/products/barcode/:barcode.
func (h *ProductHTTPHandler) GetByBarcode(c *gin.Context) {
	ctx := c.Request.Context()

	barcode := c.Param("barcode")
	if barcode == "" {
		h.Error(c, apperror.NewValidation("barcode is required"))
		return
	}

	p, err := h.service.FindByBarcode(ctx, barcode)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.FromProduct(p))
}

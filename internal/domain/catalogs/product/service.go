package product

import (
	"context"
	"fmt"
	"time"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/id"
	"magazzino/internal/domain"
	"magazzino/pkg/numerator"
)

// Service provides business logic for the Product catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Product]
	repo      Repository
	numerator *numerator.Service
}

// NewService creates a new Product service.
func NewService(repo Repository, num *numerator.Service) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Product]{
		Repo:       repo,
		TxManager:  nil, // Will be obtained from context
		Numerator:  num,
		EntityName: "product",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      num,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.prepareForUpdate)

	return svc
}

// prepareForCreate handles code generation and uniqueness checks.
func (s *Service) prepareForCreate(ctx context.Context, p *Product) error {
	if p.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("PRD"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		p.Code = code
	}

	if p.Barcode != nil && *p.Barcode != "" {
		if exists, _ := s.checkBarcodeExists(ctx, *p.Barcode, p.ID); exists {
			return apperror.NewConflict("product with this barcode already exists").
				WithDetail("barcode", p.Barcode)
		}
	}

	return nil
}

func (s *Service) prepareForUpdate(ctx context.Context, p *Product) error {
	if p.Barcode != nil && *p.Barcode != "" {
		if exists, _ := s.checkBarcodeExists(ctx, *p.Barcode, p.ID); exists {
			return apperror.NewConflict("product with this barcode already exists").
				WithDetail("barcode", p.Barcode)
		}
	}

	return nil
}

// --- Entity-specific methods ---

// FindBelowReorder retrieves products at or below their reorder point.
func (s *Service) FindBelowReorder(ctx context.Context, filter domain.ListFilter) (domain.ListResult[*Product], error) {
	return s.repo.FindBelowReorder(ctx, filter)
}

// FindByBarcode retrieves a product by barcode.
func (s *Service) FindByBarcode(ctx context.Context, barcode string) (*Product, error) {
	return s.repo.FindByBarcode(ctx, barcode)
}

func (s *Service) checkBarcodeExists(ctx context.Context, barcode string, excludeID id.ID) (bool, error) {
	existing, err := s.repo.FindByBarcode(ctx, barcode)
	if err != nil {
		return false, nil
	}
	return existing.ID != excludeID, nil
}

package warehouse

import (
	"context"
	"fmt"
	"time"

	"magazzino/internal/domain"
	"magazzino/pkg/numerator"
)

// Service provides business logic for Warehouse catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*Warehouse]
	repo      Repository
	numerator *numerator.Service
}

// NewService creates a new Warehouse service.
func NewService(repo Repository, num *numerator.Service) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*Warehouse]{
		Repo:       repo,
		TxManager:  nil, // Will be obtained from context
		Numerator:  num,
		EntityName: "warehouse",
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

// prepareForCreate handles code generation and the primary flag.
func (s *Service) prepareForCreate(ctx context.Context, wh *Warehouse) error {
	if wh.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("WH"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		wh.Code = code
	}

	// At most one primary warehouse per tenant
	if wh.IsPrimary {
		if err := s.repo.ClearPrimary(ctx); err != nil {
			return err
		}
	}

	return nil
}

// prepareForUpdate handles the primary flag.
func (s *Service) prepareForUpdate(ctx context.Context, wh *Warehouse) error {
	if wh.IsPrimary {
		if err := s.repo.ClearPrimary(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Deactivate takes a warehouse out of service without touching history.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	wh, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	wh.IsActive = false
	return s.Update(ctx, wh)
}

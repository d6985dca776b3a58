package reason

import (
	"context"
	"fmt"
	"time"

	"magazzino/internal/core/apperror"
	"magazzino/internal/domain"
	"magazzino/pkg/numerator"
)

// Service provides business logic for the MovementReason catalog.
// Uses composition with domain.CatalogService for common CRUD operations.
type Service struct {
	*domain.CatalogService[*MovementReason]
	repo      Repository
	numerator *numerator.Service
}

// NewService creates a new MovementReason service.
func NewService(repo Repository, num *numerator.Service) *Service {
	base := domain.NewCatalogService(domain.CatalogServiceConfig[*MovementReason]{
		Repo:       repo,
		TxManager:  nil, // Will be obtained from context
		Numerator:  num,
		EntityName: "movement_reason",
	})

	svc := &Service{
		CatalogService: base,
		repo:           repo,
		numerator:      num,
	}

	base.Hooks().OnBeforeCreate(svc.prepareForCreate)
	base.Hooks().OnBeforeUpdate(svc.guardUpdate)
	base.Hooks().OnBeforeDelete(svc.guardDelete)

	return svc
}

// Resolve returns the reason for a code. Inactive and deletion-marked
// reasons resolve normally so history stays displayable; append-time
// rejection happens in the ledger via CanAppend.
func (s *Service) Resolve(ctx context.Context, code string) (*MovementReason, error) {
	r, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewInvalidReason(code)
		}
		return nil, err
	}
	return r, nil
}

// Deactivate retires a reason from new appends without touching history.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	r, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if r.IsSystem {
		return apperror.NewForbidden("system reasons cannot be modified").
			WithDetail("code", code)
	}
	r.IsActive = false
	return s.Update(ctx, r)
}

func (s *Service) prepareForCreate(ctx context.Context, r *MovementReason) error {
	if r.Code == "" {
		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("RSN"), nil, time.Now())
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		r.Code = code
	}

	if exists, err := s.repo.ExistsByCode(ctx, r.Code); err == nil && exists {
		return apperror.NewDuplicate("movement_reason", "code", r.Code)
	}

	return nil
}

// guardUpdate rejects mutation of system reasons and sign/kind changes
// on reasons already referenced by the ledger.
func (s *Service) guardUpdate(ctx context.Context, r *MovementReason) error {
	current, err := s.repo.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}

	if current.IsSystem {
		return apperror.NewForbidden("system reasons cannot be modified").
			WithDetail("code", current.Code)
	}

	if r.Kind != current.Kind || r.Sign != current.Sign {
		referenced, err := s.repo.IsReferenced(ctx, current.Code)
		if err != nil {
			return fmt.Errorf("check reason references: %w", err)
		}
		if referenced {
			return apperror.NewConflict("sign and kind are immutable once the reason is referenced by movements").
				WithDetail("code", current.Code)
		}
	}

	return nil
}

func (s *Service) guardDelete(ctx context.Context, r *MovementReason) error {
	if r.IsSystem {
		return apperror.NewForbidden("system reasons cannot be deleted").
			WithDetail("code", r.Code)
	}
	return nil
}

// SystemReasons returns the seed set installed in every tenant database.
func SystemReasons() []*MovementReason {
	mk := func(code, name string, kind Kind, updatesAvg, requiresDoc, allowNeg bool) *MovementReason {
		r := NewMovementReason(code, name, kind)
		r.UpdatesAverageCost = updatesAvg
		r.RequiresSourceDocument = requiresDoc
		r.AllowNegativeStock = allowNeg
		r.IsSystem = true
		return r
	}

	return []*MovementReason{
		mk(CodePurchase, "Purchase receipt", KindInbound, true, true, false),
		mk(CodeSale, "Sale", KindOutbound, false, true, false),
		mk(CodeCustomerReturn, "Customer return", KindInbound, true, true, false),
		mk(CodeSupplierReturn, "Return to supplier", KindOutbound, false, true, false),
		mk(CodeTransfer, "Warehouse transfer", KindTransfer, false, false, false),
		mk(CodeAdjustmentIncrease, "Adjustment increase", KindInbound, true, false, false),
		mk(CodeAdjustmentDecrease, "Adjustment decrease", KindOutbound, false, false, true),
		mk(CodeOpeningBalance, "Opening balance", KindInbound, true, false, false),
	}
}

package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"magazzino/internal/core/apperror"
	appctx "magazzino/internal/core/context"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/core/tenant"
	"magazzino/internal/core/tx"
	"magazzino/internal/core/types"
	"magazzino/internal/domain/catalogs/product"
	"magazzino/internal/domain/catalogs/reason"
	"magazzino/internal/domain/catalogs/warehouse"
	"magazzino/internal/domain/lots"
	"magazzino/pkg/logger"
	"magazzino/pkg/numerator"
)

// ReasonResolver resolves movement reasons from the catalog.
type ReasonResolver interface {
	Resolve(ctx context.Context, code string) (*reason.MovementReason, error)
}

// WarehouseStore reads warehouses for validation and policy flags.
type WarehouseStore interface {
	GetByID(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error)
}

// ProductStore reads products for validation and lot-tracking flags.
type ProductStore interface {
	GetByID(ctx context.Context, productID id.ID) (*product.Product, error)
}

// ViewRefresher maintains aggregate views synchronously inside the append
// transaction (eager mode). Nil in lazy mode; the outbox relay refreshes
// instead. Product and warehouse carry the display names the view row
// denormalizes.
type ViewRefresher interface {
	ApplyMovement(ctx context.Context, m *entity.Movement, b *entity.StockBalance, p *product.Product, wh *warehouse.Warehouse) error
}

// AuditRecorder persists immutable audit entries for ledger writes.
type AuditRecorder interface {
	Record(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// Service is the movement ledger: validation, the append pipeline, the
// transfer coordinator, and history queries. All derived-state updates
// (balance, product caches, lots, eager views, audit, outbox) happen inside
// one transaction with the append itself.
type Service struct {
	repo       Repository
	reasons    ReasonResolver
	warehouses WarehouseStore
	products   ProductStore
	lots       *lots.Service
	views      ViewRefresher // optional (eager mode only)
	audit      AuditRecorder // optional
	events     EventPublisher
	numerator  *numerator.Service
	txManager  tx.Manager // optional; obtained from context if nil

	maxRetries int
}

// Config wires the ledger service.
type Config struct {
	Repo       Repository
	Reasons    ReasonResolver
	Warehouses WarehouseStore
	Products   ProductStore
	Lots       *lots.Service
	Views      ViewRefresher
	Audit      AuditRecorder
	Events     EventPublisher
	Numerator  *numerator.Service
	TxManager  tx.Manager

	// MaxRetries bounds internal retries on serialization conflicts
	// before surfacing BUSY. Default 3.
	MaxRetries int
}

// NewService creates the ledger service.
func NewService(cfg Config) *Service {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Service{
		repo:       cfg.Repo,
		reasons:    cfg.Reasons,
		warehouses: cfg.Warehouses,
		products:   cfg.Products,
		lots:       cfg.Lots,
		views:      cfg.Views,
		audit:      cfg.Audit,
		events:     cfg.Events,
		numerator:  cfg.Numerator,
		txManager:  cfg.TxManager,
		maxRetries: retries,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// Append validates and records one movement. Transfer reasons expand into
// an atomic two-leg pair; the outbound leg is returned.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*entity.Movement, error) {
	rsn, err := s.validateAppend(ctx, req)
	if err != nil {
		return nil, err
	}

	if rsn.Kind == reason.KindTransfer {
		out, _, err := s.transferWithReason(ctx, rsn, TransferRequest{
			ProductID:          req.ProductID,
			OriginID:           req.WarehouseID,
			DestinationID:      *req.DestinationWarehouseID,
			Quantity:           req.Quantity,
			UnitCost:           req.UnitCost,
			LotID:              req.LotID,
			SourceDocumentType: req.SourceDocumentType,
			SourceDocumentID:   req.SourceDocumentID,
			OccurredAt:         req.OccurredAt,
			Note:               req.Note,
		})
		return out, err
	}

	number, err := s.nextNumber(ctx)
	if err != nil {
		return nil, err
	}

	var appended *entity.Movement
	err = s.withRetry(ctx, func(ctx context.Context) error {
		m, err := s.appendOne(ctx, rsn, req, number, nil, nil)
		if err != nil {
			return err
		}
		appended = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement appended",
		"movement_id", appended.ID,
		"seq", appended.Seq,
		"number", appended.Number,
		"reason", appended.ReasonCode,
		"record_type", string(appended.RecordType),
	)

	return appended, nil
}

// Transfer expands one logical transfer into two atomically-linked ledger
// entries: an expense at the origin and a receipt at the destination
// carrying the origin's current average cost. Both legs persist in one
// transaction or not at all.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*entity.Movement, *entity.Movement, error) {
	rsn, err := s.reasons.Resolve(ctx, reason.CodeTransfer)
	if err != nil {
		return nil, nil, err
	}
	return s.transferWithReason(ctx, rsn, req)
}

func (s *Service) transferWithReason(ctx context.Context, rsn *reason.MovementReason, req TransferRequest) (*entity.Movement, *entity.Movement, error) {
	if !rsn.CanAppend() {
		return nil, nil, apperror.NewInvalidReason(rsn.Code)
	}
	if !req.Quantity.IsPositive() {
		return nil, nil, apperror.NewNonPositiveQuantity(req.Quantity.String())
	}
	if req.OriginID == req.DestinationID {
		return nil, nil, apperror.NewSameWarehouse(req.OriginID.String())
	}
	if rsn.RequiresSourceDocument && (req.SourceDocumentType == "" || req.SourceDocumentID == "") {
		return nil, nil, apperror.NewMissingSourceDocument(rsn.Code)
	}
	if req.UnitCost != nil && req.UnitCost.IsNegative() {
		return nil, nil, apperror.NewValidation("unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}
	if _, err := s.checkProduct(ctx, req.ProductID); err != nil {
		return nil, nil, err
	}
	if _, err := s.checkWarehouse(ctx, req.OriginID); err != nil {
		return nil, nil, err
	}
	if _, err := s.checkWarehouse(ctx, req.DestinationID); err != nil {
		return nil, nil, err
	}

	outNumber, err := s.nextNumber(ctx)
	if err != nil {
		return nil, nil, err
	}
	inNumber, err := s.nextNumber(ctx)
	if err != nil {
		return nil, nil, err
	}

	transferID := id.New()
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var out, in *entity.Movement
	err = s.withRetry(ctx, func(ctx context.Context) error {
		// Lock both balance rows in deterministic order so two opposite
		// concurrent transfers cannot deadlock.
		first, second := req.OriginID, req.DestinationID
		if bytes.Compare(second[:], first[:]) < 0 {
			first, second = second, first
		}
		if _, err := s.repo.LockBalance(ctx, req.ProductID, first); err != nil {
			return err
		}
		if _, err := s.repo.LockBalance(ctx, req.ProductID, second); err != nil {
			return err
		}

		outReq := AppendRequest{
			ProductID:              req.ProductID,
			WarehouseID:            req.OriginID,
			ReasonCode:             rsn.Code,
			Quantity:               req.Quantity,
			LotID:                  req.LotID,
			DestinationWarehouseID: &req.DestinationID,
			SourceDocumentType:     req.SourceDocumentType,
			SourceDocumentID:       req.SourceDocumentID,
			OccurredAt:             occurredAt,
			Note:                   req.Note,
		}
		outLeg, err := s.appendOne(ctx, rsn, outReq, outNumber, &transferID, nil)
		if err != nil {
			return err
		}

		// The destination receipt carries the origin's average at issue
		// time; the caller's cost is only a fallback when the origin has
		// no basis.
		inCost := req.UnitCost
		if outLeg.UnitCost.Valid {
			c := outLeg.UnitCost.Decimal
			inCost = &c
		}

		inReq := AppendRequest{
			ProductID:          req.ProductID,
			WarehouseID:        req.DestinationID,
			ReasonCode:         rsn.Code,
			Quantity:           req.Quantity,
			SourceDocumentType: req.SourceDocumentType,
			SourceDocumentID:   req.SourceDocumentID,
			OccurredAt:         occurredAt,
			Note:               req.Note,
		}
		inLeg, err := s.appendOne(ctx, rsn, inReq, inNumber, &transferID, inCost)
		if err != nil {
			return err
		}

		if s.events != nil {
			err = s.events.PublishBatch(ctx, []Event{
				movementAppendedEvent(outLeg),
				movementAppendedEvent(inLeg),
				{
					AggregateType: AggregateMovement,
					AggregateID:   transferID,
					Type:          EventTransferCompleted,
					Payload: TransferCompletedPayload{
						TransferID:    transferID,
						OutboundID:    outLeg.ID,
						InboundID:     inLeg.ID,
						ProductID:     req.ProductID,
						OriginID:      req.OriginID,
						DestinationID: req.DestinationID,
						Quantity:      req.Quantity.String(),
						OccurredAt:    occurredAt,
					},
				},
			})
			if err != nil {
				return fmt.Errorf("publish transfer events: %w", err)
			}
		}

		out, in = outLeg, inLeg
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info(ctx, "transfer completed",
		"transfer_id", transferID,
		"product_id", req.ProductID,
		"origin", req.OriginID,
		"destination", req.DestinationID,
		"quantity", req.Quantity.String(),
	)

	return out, in, nil
}

// Get retrieves one movement.
func (s *Service) Get(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	m, err := s.repo.GetByID(ctx, movementID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID.String())
		}
		return nil, err
	}
	return m, nil
}

// History returns reverse-chronological movement history with a keyset
// cursor (restartable finite sequence).
func (s *Service) History(ctx context.Context, filter HistoryFilter) (HistoryPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultHistoryLimit
	}
	return s.repo.History(ctx, filter)
}

// Update always rejects: movements are immutable once persisted.
func (s *Service) Update(ctx context.Context, movementID id.ID) error {
	return apperror.NewImmutableMovement(movementID.String())
}

// Delete always rejects: movements are immutable once persisted.
func (s *Service) Delete(ctx context.Context, movementID id.ID) error {
	return apperror.NewImmutableMovement(movementID.String())
}

// RebuildBalance recomputes one (product, warehouse) balance by replaying
// its full movement history. The incremental path must always agree with
// this; it exists as a maintenance and verification tool.
func (s *Service) RebuildBalance(ctx context.Context, productID, warehouseID id.ID) (*entity.StockBalance, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var rebuilt *entity.StockBalance
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		bal, err := s.repo.LockBalance(ctx, productID, warehouseID)
		if err != nil {
			return err
		}

		entries, err := s.repo.ReplayEntries(ctx, productID, warehouseID)
		if err != nil {
			return fmt.Errorf("load replay entries: %w", err)
		}

		state := Replay(entries)
		bal.Quantity = state.Quantity
		bal.AverageCost = state.AverageCost
		bal.UpdatedAt = time.Now().UTC()

		if err := s.repo.SaveBalance(ctx, bal); err != nil {
			return fmt.Errorf("save rebuilt balance: %w", err)
		}
		if err := s.repo.RefreshProductTotals(ctx, productID); err != nil {
			return fmt.Errorf("refresh product totals: %w", err)
		}

		rebuilt = bal
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "balance rebuilt from ledger",
		"product_id", productID,
		"warehouse_id", warehouseID,
		"quantity", rebuilt.Quantity.String(),
	)

	return rebuilt, nil
}

// --- append pipeline ---

// validateAppend runs the request checks in contract order and resolves
// the reason. No writes happen here.
func (s *Service) validateAppend(ctx context.Context, req AppendRequest) (*reason.MovementReason, error) {
	rsn, err := s.reasons.Resolve(ctx, req.ReasonCode)
	if err != nil {
		return nil, err
	}
	if !rsn.CanAppend() {
		return nil, apperror.NewInvalidReason(req.ReasonCode)
	}

	if !req.Quantity.IsPositive() {
		return nil, apperror.NewNonPositiveQuantity(req.Quantity.String())
	}

	if rsn.RequiresSourceDocument && !req.HasSourceDocument() {
		return nil, apperror.NewMissingSourceDocument(rsn.Code)
	}

	if rsn.Kind == reason.KindTransfer {
		if req.DestinationWarehouseID == nil {
			return nil, apperror.NewValidation("destination warehouse is required for transfers").
				WithDetail("field", "destinationWarehouseId")
		}
		if *req.DestinationWarehouseID == req.WarehouseID {
			return nil, apperror.NewSameWarehouse(req.WarehouseID.String())
		}
	}

	if rsn.UpdatesAverageCost {
		if req.UnitCost == nil {
			return nil, apperror.NewMissingUnitCost(rsn.Code)
		}
		if req.UnitCost.IsNegative() {
			return nil, apperror.NewValidation("unit cost cannot be negative").
				WithDetail("field", "unitCost")
		}
	} else if rsn.Kind == reason.KindOutbound && req.UnitCost != nil {
		// Outbound always costs out at the running average; a caller cost
		// here would be cost manipulation.
		return nil, apperror.NewUnexpectedUnitCost(rsn.Code)
	}

	if _, err := s.checkProduct(ctx, req.ProductID); err != nil {
		return nil, err
	}
	if _, err := s.checkWarehouse(ctx, req.WarehouseID); err != nil {
		return nil, err
	}

	return rsn, nil
}

// appendOne records a single validated movement with all its derived-state
// updates. Runs inside the surrounding transaction (withRetry opens one
// when called from Append; Transfer shares one across both legs).
//
// forcedCost overrides the request cost for transfer-inbound legs.
func (s *Service) appendOne(
	ctx context.Context,
	rsn *reason.MovementReason,
	req AppendRequest,
	number string,
	transferID *id.ID,
	forcedCost *decimal.Decimal,
) (*entity.Movement, error) {
	recordType := rsn.RecordType()
	if transferID != nil {
		// Transfer legs: destination present = outbound leg, absent = inbound
		if req.DestinationWarehouseID != nil {
			recordType = entity.RecordTypeExpense
		} else {
			recordType = entity.RecordTypeReceipt
		}
	}

	bal, err := s.repo.LockBalance(ctx, req.ProductID, req.WarehouseID)
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}

	m := entity.NewMovement(req.ProductID, req.WarehouseID, rsn.Code, recordType, req.Quantity, req.OccurredAt)
	m.Number = number
	m.TransferID = transferID
	m.DestinationWarehouseID = req.DestinationWarehouseID
	m.Note = req.Note
	m.CreatedBy = appctx.GetUserID(ctx)
	if req.HasSourceDocument() {
		m.SourceDocumentType = &req.SourceDocumentType
		m.SourceDocumentID = &req.SourceDocumentID
	}

	unitCost := req.UnitCost
	if forcedCost != nil {
		unitCost = forcedCost
	}

	state := CostState{Quantity: bal.Quantity, AverageCost: bal.AverageCost}

	switch recordType {
	case entity.RecordTypeExpense:
		if err := s.checkStockPolicy(ctx, rsn, bal, req.Quantity); err != nil {
			return nil, err
		}
		if req.LotID != nil {
			lot, err := s.lots.Reserve(ctx, *req.LotID, req.ProductID, req.WarehouseID, req.Quantity)
			if err != nil {
				return nil, err
			}
			m.LotID = &lot.ID
		}
		next, totalCost := state.Issue(req.Quantity)
		state = next
		if state.AverageCost.Valid {
			m.UnitCost = state.AverageCost
		}
		m.TotalCost = totalCost

	case entity.RecordTypeReceipt:
		var costArg decimal.NullDecimal
		if unitCost != nil {
			costArg = decimal.NullDecimal{Decimal: *unitCost, Valid: true}
			m.UnitCost = costArg
		}
		next, totalCost := state.Receive(req.Quantity, costArg)
		state = next
		m.TotalCost = totalCost

		if req.LotCode != "" {
			lotCost := decimal.Zero
			if unitCost != nil {
				lotCost = *unitCost
			}
			lot, err := s.lots.Credit(ctx, lots.CreditRequest{
				ProductID:   req.ProductID,
				WarehouseID: req.WarehouseID,
				Code:        req.LotCode,
				Quantity:    req.Quantity,
				UnitCost:    lotCost,
				ExpiresAt:   req.ExpiresAt,
			})
			if err != nil {
				return nil, err
			}
			m.LotID = &lot.ID
		}
	}

	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("insert movement: %w", err)
	}

	bal.Quantity = state.Quantity
	bal.AverageCost = state.AverageCost
	bal.LastMovementSeq = m.Seq
	bal.LastMovementAt = m.OccurredAt
	bal.UpdatedAt = time.Now().UTC()
	if err := s.repo.SaveBalance(ctx, bal); err != nil {
		return nil, fmt.Errorf("save balance: %w", err)
	}

	if err := s.repo.RefreshProductTotals(ctx, req.ProductID); err != nil {
		return nil, fmt.Errorf("refresh product totals: %w", err)
	}

	if s.views != nil {
		// re-read inside the transaction so the denormalized names are
		// consistent with the balance the row mirrors
		p, err := s.checkProduct(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		wh, err := s.checkWarehouse(ctx, req.WarehouseID)
		if err != nil {
			return nil, err
		}
		if err := s.views.ApplyMovement(ctx, m, bal, p, wh); err != nil {
			return nil, fmt.Errorf("apply eager view: %w", err)
		}
	}

	if s.audit != nil {
		changes := map[string]any{
			"reason":      m.ReasonCode,
			"record_type": string(m.RecordType),
			"quantity":    m.Quantity.String(),
			"warehouse":   m.WarehouseID.String(),
		}
		if m.UnitCost.Valid {
			changes["unit_cost"] = m.UnitCost.Decimal.String()
		}
		if err := s.audit.Record(ctx, "Movement", m.ID, "append", changes); err != nil {
			return nil, fmt.Errorf("record audit: %w", err)
		}
	}

	// transfer legs are published by Transfer itself, batched together
	// with the completion event
	if s.events != nil && transferID == nil {
		if err := s.events.Publish(ctx, movementAppendedEvent(m)); err != nil {
			return nil, fmt.Errorf("publish movement event: %w", err)
		}
	}

	return m, nil
}

// checkStockPolicy rejects an expense that would drive on-hand quantity
// negative unless the reason or the warehouse permits it.
func (s *Service) checkStockPolicy(ctx context.Context, rsn *reason.MovementReason, bal *entity.StockBalance, qty types.Quantity) error {
	newQty := bal.Quantity.Sub(qty)
	if !newQty.IsNegative() {
		return nil
	}
	if rsn.AllowNegativeStock {
		return nil
	}
	wh, err := s.warehouses.GetByID(ctx, bal.WarehouseID)
	if err != nil {
		return err
	}
	if wh.AllowNegativeStock {
		return nil
	}
	return apperror.NewInsufficientStock(
		bal.ProductID.String(),
		qty.String(),
		bal.Quantity.String(),
	)
}

func (s *Service) checkProduct(ctx context.Context, productID id.ID) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, err
	}
	if !p.IsActive || p.DeletionMark {
		return nil, apperror.NewValidation("product is not active").
			WithDetail("product_id", productID.String())
	}
	return p, nil
}

func (s *Service) checkWarehouse(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error) {
	wh, err := s.warehouses.GetByID(ctx, warehouseID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("warehouse", warehouseID.String())
		}
		return nil, err
	}
	if !wh.IsActive || wh.DeletionMark {
		return nil, apperror.NewValidation("warehouse is not active").
			WithDetail("warehouse_id", warehouseID.String())
	}
	return wh, nil
}

// nextNumber allocates a ledger document number (MOV-YYYY-NNNNN).
func (s *Service) nextNumber(ctx context.Context) (string, error) {
	number, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("MOV"), nil, time.Now())
	if err != nil {
		return "", fmt.Errorf("generate movement number: %w", err)
	}
	return number, nil
}

// withRetry runs fn in a transaction, retrying bounded times on
// serialization conflicts with jittered backoff. Exhausted retries surface
// as BUSY: the caller should resubmit, the intent did not fail.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 25 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = txm.RunInTransaction(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}

		logger.Warn(ctx, "ledger append conflict, retrying",
			"attempt", attempt+1,
			"error", lastErr,
		)
	}

	return apperror.NewBusy("ledger contention, resubmit the request").WithCause(lastErr)
}

// isRetryable reports whether the error is a transient serialization or
// deadlock conflict.
func isRetryable(err error) bool {
	if apperror.IsConcurrentModification(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}

package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
	"magazzino/internal/domain/ledger"
)

// --- Request DTOs ---

// CreateMovementRequest is the request body for appending a ledger movement.
type CreateMovementRequest struct {
	ProductID   string `json:"productId" binding:"required"`
	WarehouseID string `json:"warehouseId" binding:"required"`
	ReasonCode  string `json:"reasonCode" binding:"required"`

	Quantity types.Quantity `json:"quantity" binding:"required"`

	// UnitCost as decimal string, required for costing inbound reasons
	UnitCost *string `json:"unitCost"`

	// LotID draws an existing lot; LotCode creates one on inbound
	LotID     *string    `json:"lotId"`
	LotCode   string     `json:"lotCode"`
	ExpiresAt *time.Time `json:"expiresAt"`

	// DestinationWarehouseID is required for transfer reasons
	DestinationWarehouseID *string `json:"destinationWarehouseId"`

	SourceDocumentType string `json:"sourceDocumentType"`
	SourceDocumentID   string `json:"sourceDocumentId"`

	OccurredAt time.Time `json:"occurredAt"`
	Note       string    `json:"note"`
}

// ToAppendRequest converts the DTO to a domain append request.
func (r *CreateMovementRequest) ToAppendRequest() (ledger.AppendRequest, error) {
	req := ledger.AppendRequest{
		ReasonCode:         r.ReasonCode,
		Quantity:           r.Quantity,
		LotCode:            r.LotCode,
		ExpiresAt:          r.ExpiresAt,
		SourceDocumentType: r.SourceDocumentType,
		SourceDocumentID:   r.SourceDocumentID,
		OccurredAt:         r.OccurredAt,
		Note:               r.Note,
	}

	var err error
	if req.ProductID, err = id.Parse(r.ProductID); err != nil {
		return req, apperror.NewValidation("invalid productId format")
	}
	if req.WarehouseID, err = id.Parse(r.WarehouseID); err != nil {
		return req, apperror.NewValidation("invalid warehouseId format")
	}

	if r.UnitCost != nil {
		cost, err := decimal.NewFromString(*r.UnitCost)
		if err != nil {
			return req, apperror.NewValidation("invalid unitCost format").
				WithDetail("unitCost", *r.UnitCost)
		}
		req.UnitCost = &cost
	}

	if r.LotID != nil {
		lotID, err := id.Parse(*r.LotID)
		if err != nil {
			return req, apperror.NewValidation("invalid lotId format")
		}
		req.LotID = &lotID
	}

	if r.DestinationWarehouseID != nil {
		destID, err := id.Parse(*r.DestinationWarehouseID)
		if err != nil {
			return req, apperror.NewValidation("invalid destinationWarehouseId format")
		}
		req.DestinationWarehouseID = &destID
	}

	return req, nil
}

// CreateTransferRequest is the request body for an atomic two-leg transfer.
type CreateTransferRequest struct {
	ProductID     string `json:"productId" binding:"required"`
	OriginID      string `json:"originWarehouseId" binding:"required"`
	DestinationID string `json:"destinationWarehouseId" binding:"required"`

	Quantity types.Quantity `json:"quantity" binding:"required"`

	// UnitCost is a fallback for origins without a cost basis
	UnitCost *string `json:"unitCost"`

	LotID *string `json:"lotId"`

	SourceDocumentType string `json:"sourceDocumentType"`
	SourceDocumentID   string `json:"sourceDocumentId"`

	OccurredAt time.Time `json:"occurredAt"`
	Note       string    `json:"note"`
}

// ToTransferRequest converts the DTO to a domain transfer request.
func (r *CreateTransferRequest) ToTransferRequest() (ledger.TransferRequest, error) {
	req := ledger.TransferRequest{
		Quantity:           r.Quantity,
		SourceDocumentType: r.SourceDocumentType,
		SourceDocumentID:   r.SourceDocumentID,
		OccurredAt:         r.OccurredAt,
		Note:               r.Note,
	}

	var err error
	if req.ProductID, err = id.Parse(r.ProductID); err != nil {
		return req, apperror.NewValidation("invalid productId format")
	}
	if req.OriginID, err = id.Parse(r.OriginID); err != nil {
		return req, apperror.NewValidation("invalid originWarehouseId format")
	}
	if req.DestinationID, err = id.Parse(r.DestinationID); err != nil {
		return req, apperror.NewValidation("invalid destinationWarehouseId format")
	}

	if r.UnitCost != nil {
		cost, err := decimal.NewFromString(*r.UnitCost)
		if err != nil {
			return req, apperror.NewValidation("invalid unitCost format").
				WithDetail("unitCost", *r.UnitCost)
		}
		req.UnitCost = &cost
	}

	if r.LotID != nil {
		lotID, err := id.Parse(*r.LotID)
		if err != nil {
			return req, apperror.NewValidation("invalid lotId format")
		}
		req.LotID = &lotID
	}

	return req, nil
}

// --- Response DTOs ---

// MovementResponse is the response body for one ledger movement.
type MovementResponse struct {
	ID          string `json:"id"`
	Seq         int64  `json:"seq"`
	Number      string `json:"number"`
	ProductID   string `json:"productId"`
	WarehouseID string `json:"warehouseId"`
	ReasonCode  string `json:"reasonCode"`
	RecordType  string `json:"recordType"`

	Quantity  types.Quantity `json:"quantity"`
	UnitCost  *string        `json:"unitCost,omitempty"`
	TotalCost *string        `json:"totalCost,omitempty"`

	LotID                  *string `json:"lotId,omitempty"`
	TransferID             *string `json:"transferId,omitempty"`
	DestinationWarehouseID *string `json:"destinationWarehouseId,omitempty"`

	SourceDocumentType *string `json:"sourceDocumentType,omitempty"`
	SourceDocumentID   *string `json:"sourceDocumentId,omitempty"`

	OccurredAt time.Time `json:"occurredAt"`
	CreatedAt  time.Time `json:"createdAt"`
	CreatedBy  string    `json:"createdBy,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// FromMovement creates response DTO from domain entity.
func FromMovement(m *entity.Movement) *MovementResponse {
	resp := &MovementResponse{
		ID:                 m.ID.String(),
		Seq:                m.Seq,
		Number:             m.Number,
		ProductID:          m.ProductID.String(),
		WarehouseID:        m.WarehouseID.String(),
		ReasonCode:         m.ReasonCode,
		RecordType:         string(m.RecordType),
		Quantity:           m.Quantity,
		SourceDocumentType: m.SourceDocumentType,
		SourceDocumentID:   m.SourceDocumentID,
		OccurredAt:         m.OccurredAt,
		CreatedAt:          m.CreatedAt,
		CreatedBy:          m.CreatedBy,
		Note:               m.Note,
	}

	if m.UnitCost.Valid {
		s := m.UnitCost.Decimal.String()
		resp.UnitCost = &s
	}
	if m.TotalCost.Valid {
		s := m.TotalCost.Decimal.String()
		resp.TotalCost = &s
	}
	if m.LotID != nil {
		s := m.LotID.String()
		resp.LotID = &s
	}
	if m.TransferID != nil {
		s := m.TransferID.String()
		resp.TransferID = &s
	}
	if m.DestinationWarehouseID != nil {
		s := m.DestinationWarehouseID.String()
		resp.DestinationWarehouseID = &s
	}

	return resp
}

// TransferResponse carries both legs of a completed transfer.
type TransferResponse struct {
	TransferID string            `json:"transferId"`
	Outbound   *MovementResponse `json:"outbound"`
	Inbound    *MovementResponse `json:"inbound"`
}

// FromTransfer creates response DTO from the two movement legs.
func FromTransfer(outbound, inbound *entity.Movement) *TransferResponse {
	resp := &TransferResponse{
		Outbound: FromMovement(outbound),
		Inbound:  FromMovement(inbound),
	}
	if outbound.TransferID != nil {
		resp.TransferID = outbound.TransferID.String()
	}
	return resp
}

// MovementHistoryResponse is one page of reverse-chronological history.
type MovementHistoryResponse struct {
	Items     []*MovementResponse `json:"items"`
	NextAfter int64               `json:"nextAfter,omitempty"`
	HasMore   bool                `json:"hasMore"`
}

// FromHistoryPage creates response DTO from a domain history page.
func FromHistoryPage(page ledger.HistoryPage) *MovementHistoryResponse {
	items := make([]*MovementResponse, len(page.Items))
	for i, m := range page.Items {
		items[i] = FromMovement(m)
	}
	return &MovementHistoryResponse{
		Items:     items,
		NextAfter: page.NextAfter,
		HasMore:   page.HasMore,
	}
}

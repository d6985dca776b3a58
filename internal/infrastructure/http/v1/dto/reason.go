package dto

import (
	"magazzino/internal/core/entity"
	"magazzino/internal/domain/catalogs/reason"
)

// --- Request DTOs ---

// CreateReasonRequest is the request body for creating a movement reason.
type CreateReasonRequest struct {
	Code                   string            `json:"code"`
	Name                   string            `json:"name" binding:"required"`
	Kind                   reason.Kind       `json:"kind" binding:"required"`
	UpdatesAverageCost     bool              `json:"updatesAverageCost"`
	RequiresSourceDocument bool              `json:"requiresSourceDocument"`
	AllowNegativeStock     bool              `json:"allowNegativeStock"`
	IsActive               *bool             `json:"isActive"`
	Attributes             entity.Attributes `json:"attributes"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateReasonRequest) ToEntity() *reason.MovementReason {
	rsn := reason.NewMovementReason(r.Code, r.Name, r.Kind)
	rsn.UpdatesAverageCost = r.UpdatesAverageCost
	rsn.RequiresSourceDocument = r.RequiresSourceDocument
	rsn.AllowNegativeStock = r.AllowNegativeStock
	if r.IsActive != nil {
		rsn.IsActive = *r.IsActive
	}
	rsn.Attributes = r.Attributes
	return rsn
}

// UpdateReasonRequest is the request body for updating a movement reason.
// Kind is accepted but frozen by the service once the reason has history.
type UpdateReasonRequest struct {
	Name                   string            `json:"name" binding:"required"`
	Kind                   reason.Kind       `json:"kind" binding:"required"`
	UpdatesAverageCost     bool              `json:"updatesAverageCost"`
	RequiresSourceDocument bool              `json:"requiresSourceDocument"`
	AllowNegativeStock     bool              `json:"allowNegativeStock"`
	IsActive               bool              `json:"isActive"`
	Attributes             entity.Attributes `json:"attributes"`
	Version                int               `json:"version" binding:"required"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateReasonRequest) ApplyTo(rsn *reason.MovementReason) {
	rsn.Name = r.Name
	rsn.Kind = r.Kind
	rsn.Sign = reason.SignForKind(r.Kind)
	rsn.UpdatesAverageCost = r.UpdatesAverageCost
	rsn.RequiresSourceDocument = r.RequiresSourceDocument
	rsn.AllowNegativeStock = r.AllowNegativeStock
	rsn.IsActive = r.IsActive
	rsn.Attributes = r.Attributes
	rsn.Version = r.Version
}

// --- Response DTOs ---

// ReasonResponse is the response body for a movement reason.
type ReasonResponse struct {
	ID                     string            `json:"id"`
	Code                   string            `json:"code"`
	Name                   string            `json:"name"`
	Kind                   reason.Kind       `json:"kind"`
	Sign                   int               `json:"sign"`
	UpdatesAverageCost     bool              `json:"updatesAverageCost"`
	RequiresSourceDocument bool              `json:"requiresSourceDocument"`
	AllowNegativeStock     bool              `json:"allowNegativeStock"`
	IsSystem               bool              `json:"isSystem"`
	IsActive               bool              `json:"isActive"`
	DeletionMark           bool              `json:"deletionMark"`
	Version                int               `json:"version"`
	Attributes             entity.Attributes `json:"attributes,omitempty"`
}

// FromReason creates response DTO from domain entity.
func FromReason(rsn *reason.MovementReason) *ReasonResponse {
	return &ReasonResponse{
		ID:                     rsn.ID.String(),
		Code:                   rsn.Code,
		Name:                   rsn.Name,
		Kind:                   rsn.Kind,
		Sign:                   rsn.Sign,
		UpdatesAverageCost:     rsn.UpdatesAverageCost,
		RequiresSourceDocument: rsn.RequiresSourceDocument,
		AllowNegativeStock:     rsn.AllowNegativeStock,
		IsSystem:               rsn.IsSystem,
		IsActive:               rsn.IsActive,
		DeletionMark:           rsn.DeletionMark,
		Version:                rsn.Version,
		Attributes:             rsn.Attributes,
	}
}

// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the inventory ledger domain
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation            = "VALIDATION_ERROR"
	CodeInvalidReason         = "INVALID_REASON"
	CodeNonPositiveQuantity   = "NON_POSITIVE_QUANTITY"
	CodeMissingSourceDocument = "MISSING_SOURCE_DOCUMENT"
	CodeMissingUnitCost       = "MISSING_UNIT_COST"
	CodeUnexpectedUnitCost    = "UNEXPECTED_UNIT_COST"

	// Business rule violations (422)
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeLotNotFound            = "LOT_NOT_FOUND"
	CodeLotExhausted           = "LOT_EXHAUSTED"
	CodeSameWarehouse          = "SAME_WAREHOUSE"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Immutability violations (403)
	CodeImmutableMovement = "IMMUTABLE_MOVEMENT"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict    = "CONFLICT"
	CodeDuplicate   = "DUPLICATE_ENTRY"
	CodeIdempotency = "IDEMPOTENCY_CONFLICT"

	// Contention (503). The caller should resubmit, the intent did not fail.
	CodeBusy = "BUSY"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInvalidReason creates an error for an unknown or inactive movement reason (400)
func NewInvalidReason(code string) *AppError {
	return &AppError{
		Code:       CodeInvalidReason,
		Message:    "Movement reason is unknown or not active",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"reason_code": code},
	}
}

// NewNonPositiveQuantity creates an error for a zero or negative movement quantity (400)
func NewNonPositiveQuantity(quantity string) *AppError {
	return &AppError{
		Code:       CodeNonPositiveQuantity,
		Message:    "Movement quantity must be strictly positive",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"quantity": quantity},
	}
}

// NewMissingSourceDocument creates an error when a reason requires a source document (400)
func NewMissingSourceDocument(reasonCode string) *AppError {
	return &AppError{
		Code:       CodeMissingSourceDocument,
		Message:    "Movement reason requires a source document reference",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"reason_code": reasonCode},
	}
}

// NewMissingUnitCost creates an error when an inbound movement lacks a required unit cost (400)
func NewMissingUnitCost(reasonCode string) *AppError {
	return &AppError{
		Code:       CodeMissingUnitCost,
		Message:    "Unit cost is required for inbound movements",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"reason_code": reasonCode},
	}
}

// NewUnexpectedUnitCost creates an error when a caller supplies a unit cost on an
// outbound movement. Outbound movements always cost out at the running average.
func NewUnexpectedUnitCost(reasonCode string) *AppError {
	return &AppError{
		Code:       CodeUnexpectedUnitCost,
		Message:    "Unit cost must not be supplied for outbound movements",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"reason_code": reasonCode},
	}
}

// NewInsufficientStock creates a stock shortage error (422)
func NewInsufficientStock(productID string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product_id": productID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewLotNotFound creates an error for a missing or mismatched lot (422)
func NewLotNotFound(lotID string) *AppError {
	return &AppError{
		Code:       CodeLotNotFound,
		Message:    "Lot not found for this product and warehouse",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"lot_id": lotID},
	}
}

// NewLotExhausted creates an error when a draw would drive a lot's residual below zero (422)
func NewLotExhausted(lotID string, requested, residual string) *AppError {
	return &AppError{
		Code:       CodeLotExhausted,
		Message:    "Lot residual quantity is insufficient",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"lot_id":    lotID,
			"requested": requested,
			"residual":  residual,
		},
	}
}

// NewSameWarehouse creates an error for a transfer whose destination equals its origin (422)
func NewSameWarehouse(warehouseID string) *AppError {
	return &AppError{
		Code:       CodeSameWarehouse,
		Message:    "Transfer destination must differ from origin",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"warehouse_id": warehouseID},
	}
}

// NewImmutableMovement creates an error for attempted mutation of a persisted movement (403).
// Corrections must be recorded as new offsetting movements.
func NewImmutableMovement(movementID string) *AppError {
	return &AppError{
		Code:       CodeImmutableMovement,
		Message:    "Movements are append-only; record an offsetting movement instead",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"movement_id": movementID},
	}
}

// NewBusy creates a contention error after bounded retries are exhausted (503)
func NewBusy(message string) *AppError {
	return &AppError{
		Code:       CodeBusy,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch creates error when a key is reused for a different request
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key reused with a different request",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDuplicate creates a duplicate entry error (409)
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode checks if error carries the given application code
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return IsCode(err, CodeConcurrentModification)
}

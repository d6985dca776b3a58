package ledger

import (
	"context"
	"time"

	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
)

// Aggregate and event types for the transactional outbox.
const (
	AggregateMovement = "Movement"

	EventMovementAppended  = "MovementAppended"
	EventTransferCompleted = "TransferCompleted"
)

// Event is a domain event written to the outbox within the append
// transaction. The worker relay fans it out (lazy view refresh, external
// notification).
type Event struct {
	AggregateType string
	AggregateID   id.ID
	Type          string
	Payload       any
}

// EventPublisher writes domain events to the transactional outbox.
// Must be called inside the append transaction. PublishBatch inserts
// several events in one round trip; a transfer uses it so both leg
// events and the completion event land atomically.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

// movementAppendedEvent builds the outbox event for one appended row.
func movementAppendedEvent(m *entity.Movement) Event {
	return Event{
		AggregateType: AggregateMovement,
		AggregateID:   m.ID,
		Type:          EventMovementAppended,
		Payload: MovementAppendedPayload{
			MovementID:  m.ID,
			Seq:         m.Seq,
			Number:      m.Number,
			ProductID:   m.ProductID,
			WarehouseID: m.WarehouseID,
			ReasonCode:  m.ReasonCode,
			RecordType:  string(m.RecordType),
			Quantity:    m.Quantity.String(),
			OccurredAt:  m.OccurredAt,
		},
	}
}

// MovementAppendedPayload is the outbox payload for a single append.
type MovementAppendedPayload struct {
	MovementID  id.ID     `json:"movementId"`
	Seq         int64     `json:"seq"`
	Number      string    `json:"number"`
	ProductID   id.ID     `json:"productId"`
	WarehouseID id.ID     `json:"warehouseId"`
	ReasonCode  string    `json:"reasonCode"`
	RecordType  string    `json:"recordType"`
	Quantity    string    `json:"quantity"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// TransferCompletedPayload is the outbox payload for an atomic transfer pair.
type TransferCompletedPayload struct {
	TransferID    id.ID     `json:"transferId"`
	OutboundID    id.ID     `json:"outboundId"`
	InboundID     id.ID     `json:"inboundId"`
	ProductID     id.ID     `json:"productId"`
	OriginID      id.ID     `json:"originId"`
	DestinationID id.ID     `json:"destinationId"`
	Quantity      string    `json:"quantity"`
	OccurredAt    time.Time `json:"occurredAt"`
}

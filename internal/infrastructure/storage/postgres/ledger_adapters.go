package postgres

import (
	"context"

	"magazzino/internal/core/id"
	"magazzino/internal/domain/ledger"
)

// LedgerAuditAdapter exposes AuditService as ledger.AuditRecorder, keeping
// the domain package free of storage imports.
type LedgerAuditAdapter struct {
	audit *AuditService
}

// NewLedgerAuditAdapter wraps an audit service for ledger use.
func NewLedgerAuditAdapter(audit *AuditService) *LedgerAuditAdapter {
	return &LedgerAuditAdapter{audit: audit}
}

// Record writes one audit entry for a ledger append.
func (a *LedgerAuditAdapter) Record(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error {
	return a.audit.LogChange(ctx, entityType, entityID, AuditAction(action), changes)
}

// LedgerEventAdapter exposes OutboxPublisher as ledger.EventPublisher.
// Events share the append transaction, so a rolled-back movement never
// leaves an orphaned event behind.
type LedgerEventAdapter struct {
	publisher *OutboxPublisher
}

// NewLedgerEventAdapter wraps an outbox publisher for ledger use.
func NewLedgerEventAdapter(publisher *OutboxPublisher) *LedgerEventAdapter {
	return &LedgerEventAdapter{publisher: publisher}
}

// Publish stores a domain event in the transactional outbox.
func (a *LedgerEventAdapter) Publish(ctx context.Context, event ledger.Event) error {
	return a.publisher.Publish(ctx, toDomainEvent(event))
}

// PublishBatch stores several events in one round trip, still inside
// the caller's transaction.
func (a *LedgerEventAdapter) PublishBatch(ctx context.Context, events []ledger.Event) error {
	batch := make([]DomainEvent, 0, len(events))
	for _, event := range events {
		batch = append(batch, toDomainEvent(event))
	}
	return a.publisher.PublishBatch(ctx, batch)
}

func toDomainEvent(event ledger.Event) DomainEvent {
	return DomainEvent{
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.Type,
		Payload:       event.Payload,
	}
}

// Compile-time checks live here rather than in the domain package.
var (
	_ ledger.AuditRecorder  = (*LedgerAuditAdapter)(nil)
	_ ledger.EventPublisher = (*LedgerEventAdapter)(nil)
)

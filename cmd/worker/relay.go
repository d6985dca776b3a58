package main

import (
	"context"
	"encoding/json"
	"fmt"

	"magazzino/internal/domain/ledger"
	"magazzino/internal/domain/views"
	"magazzino/internal/infrastructure/storage/postgres"
	"magazzino/pkg/logger"
)

// movementEventHandler consumes movement events from the outbox. In lazy
// mode it refreshes the stock view rows for the affected product; in eager
// mode the view was already updated inside the append transaction and the
// event is only acknowledged.
type movementEventHandler struct {
	views       *views.Service
	refreshMode views.RefreshMode
	log         *logger.Logger
}

func newMovementEventHandler(v *views.Service, mode views.RefreshMode, log *logger.Logger) *movementEventHandler {
	return &movementEventHandler{
		views:       v,
		refreshMode: mode,
		log:         log.WithComponent("outbox-relay"),
	}
}

func (h *movementEventHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if h.refreshMode != views.RefreshLazy {
		return nil
	}

	switch msg.EventType {
	case ledger.EventMovementAppended:
		var payload ledger.MovementAppendedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", msg.EventType, err)
		}
		return h.views.RefreshProduct(ctx, payload.ProductID)

	case ledger.EventTransferCompleted:
		var payload ledger.TransferCompletedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal %s payload: %w", msg.EventType, err)
		}
		return h.views.RefreshProduct(ctx, payload.ProductID)

	default:
		h.log.Debugw("skipping unknown outbox event", "event_type", msg.EventType)
		return nil
	}
}

// Package intake reconciles the two inbound event streams — commerce
// webhooks and customer replies — into per-customer sessions and queue jobs.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brunoxcamillo/drop-call-app/internal/queue"
	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

// Publisher is the slice of the queue client the intake services need.
type Publisher interface {
	Publish(ctx context.Context, job queue.Job) error
}

// CommerceService consumes order lifecycle webhooks. Handlers are safe to
// re-invoke: the upstream retries on 5xx and redelivers at will.
type CommerceService struct {
	logger *slog.Logger
	store  store.Store
	queue  Publisher
}

func NewCommerceService(logger *slog.Logger, st store.Store, publisher Publisher) *CommerceService {
	return &CommerceService{logger: logger, store: st, queue: publisher}
}

// HandleOrderCreated upserts the order, closes any stale open session for
// the customer so the next reply starts a fresh dialogue, and schedules the
// initial confirmation under a key stable across webhook redeliveries.
func (s *CommerceService) HandleOrderCreated(ctx context.Context, shop store.StoreRecord, payload OrderPayload) error {
	order, err := s.store.UpsertOrder(ctx, payload.toRecord(shop.ID))
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	if order.CustomerPhone != "" {
		if err := s.store.CloseOpenSessions(ctx, shop.ID, order.CustomerPhone); err != nil {
			return fmt.Errorf("close stale sessions: %w", err)
		}
	}

	if err := s.store.UpsertLineItems(ctx, order.ID, payload.lineItemRecords()); err != nil {
		return fmt.Errorf("upsert line items: %w", err)
	}

	job := queue.NewInitialConfirmationJob(uuid.NewString(), queue.InitialConfirmation{
		OrderID: order.ID,
		StoreID: shop.ID,
	})
	if err := s.queue.Publish(ctx, job); err != nil {
		return fmt.Errorf("enqueue initial confirmation: %w", err)
	}

	s.logger.Info("order created",
		slog.String("store", shop.Domain),
		slog.String("external_id", order.ExternalID),
		slog.String("order_id", order.ID))
	return nil
}

// HandleOrderCanceled transitions an existing order to canceled. Orders this
// service never saw are a benign no-op: the upstream sends cancellations for
// everything, not just orders we track.
func (s *CommerceService) HandleOrderCanceled(ctx context.Context, shop store.StoreRecord, externalID string) error {
	order, err := s.store.OrderByExternalID(ctx, shop.ID, externalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("cancellation for unknown order, ignoring",
				slog.String("store", shop.Domain),
				slog.String("external_id", externalID))
			return nil
		}
		return fmt.Errorf("lookup order: %w", err)
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, store.OrderStatusCanceled); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	s.logger.Info("order canceled",
		slog.String("store", shop.Domain),
		slog.String("order_id", order.ID))
	return nil
}

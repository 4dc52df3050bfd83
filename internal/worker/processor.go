// Package worker executes queue jobs: deliver outbound messages, and only
// after full delivery commit the side effects the dialogue decided on.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunoxcamillo/drop-call-app/internal/dialog"
	"github.com/brunoxcamillo/drop-call-app/internal/messaging"
	"github.com/brunoxcamillo/drop-call-app/internal/queue"
	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

const defaultCountryCode = "BR"

// MessageSender delivers one text message to a customer.
type MessageSender interface {
	SendText(ctx context.Context, phone, text string) error
}

// TagSyncer pushes order tags back to the commerce platform.
type TagSyncer interface {
	SyncOrderTags(ctx context.Context, shop store.StoreRecord, order store.OrderRecord) error
}

// Processor handles both job kinds. A job that fails after partial delivery
// is retried whole: the customer may see duplicates, a state transition is
// never silently dropped.
type Processor struct {
	logger  *slog.Logger
	store   store.Store
	gateway MessageSender
	tags    TagSyncer
}

func NewProcessor(logger *slog.Logger, st store.Store, gateway MessageSender, tags TagSyncer) *Processor {
	return &Processor{logger: logger, store: st, gateway: gateway, tags: tags}
}

// Handle dispatches on the job kind. Unknown kinds are poison, not retried.
func (p *Processor) Handle(ctx context.Context, job queue.Job) error {
	switch job.Kind {
	case queue.KindInitialConfirmation:
		return p.handleInitialConfirmation(ctx, *job.InitialConfirmation)
	case queue.KindDialogueDelivery:
		return p.handleDialogueDelivery(ctx, *job.DialogueDelivery)
	default:
		return fmt.Errorf("%w: %q: %w", queue.ErrUnknownJobKind, job.Kind, queue.ErrPoison)
	}
}

func (p *Processor) handleInitialConfirmation(ctx context.Context, payload queue.InitialConfirmation) error {
	order, err := p.store.OrderByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("order %s vanished: %w", payload.OrderID, queue.ErrPoison)
		}
		return fmt.Errorf("load order: %w", err)
	}
	shop, err := p.store.StoreByID(ctx, payload.StoreID)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	items, err := p.store.LineItemsByOrderID(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("load line items: %w", err)
	}

	body := messaging.FormatConfirmation(shop, order, items)
	if err := p.gateway.SendText(ctx, order.CustomerPhone, body); err != nil {
		return fmt.Errorf("deliver confirmation request: %w", err)
	}

	// Status moves only after the customer actually got the message.
	if err := p.store.UpdateOrderStatus(ctx, order.ID, store.OrderStatusPendingConfirmation); err != nil {
		return fmt.Errorf("mark pending confirmation: %w", err)
	}

	p.logger.Info("confirmation request delivered",
		slog.String("order_id", order.ID),
		slog.String("external_id", order.ExternalID))
	return nil
}

func (p *Processor) handleDialogueDelivery(ctx context.Context, payload queue.DialogueDelivery) error {
	order, err := p.store.OrderByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("order %s vanished: %w", payload.OrderID, queue.ErrPoison)
		}
		return fmt.Errorf("load order: %w", err)
	}

	cc := strings.ToUpper(strings.TrimSpace(payload.CountryCode))
	if cc == "" {
		cc = defaultCountryCode
	}

	for _, msg := range payload.Messages {
		text, err := p.renderMessage(ctx, msg, cc)
		if err != nil {
			return err
		}
		if err := p.gateway.SendText(ctx, order.CustomerPhone, text); err != nil {
			return fmt.Errorf("deliver dialogue message: %w", err)
		}
	}

	return p.commitSideEffects(ctx, payload, order)
}

func (p *Processor) renderMessage(ctx context.Context, msg dialog.Message, countryCode string) (string, error) {
	switch msg.Kind {
	case dialog.MessageKindTemplate:
		tmpl, err := p.store.TemplateByKey(ctx, msg.Key, countryCode)
		if err != nil {
			return "", fmt.Errorf("template %q for country %q: %w", msg.Key, countryCode, err)
		}
		return messaging.Render(tmpl.Body, msg.Vars), nil
	case dialog.MessageKindText:
		return msg.Text, nil
	default:
		return "", fmt.Errorf("unknown message kind %q: %w", msg.Kind, queue.ErrPoison)
	}
}

// commitSideEffects applies the status transition the engine decided, then
// syncs tags best-effort. It always reads the current persisted order, so
// applying it twice, or out of order with other jobs, converges.
func (p *Processor) commitSideEffects(ctx context.Context, payload queue.DialogueDelivery, order store.OrderRecord) error {
	var status string
	switch payload.Context[dialog.CtxOrderStatus] {
	case store.OrderStatusConfirmed:
		status = store.OrderStatusConfirmed
	case store.OrderStatusCanceled:
		status = store.OrderStatusCanceled
	case store.OrderStatusAddressChange:
		status = store.OrderStatusAddressChange
	default:
		return nil
	}

	if err := p.store.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		return fmt.Errorf("commit order status: %w", err)
	}
	p.logger.Info("order status committed",
		slog.String("order_id", order.ID),
		slog.String("status", status))

	if status != store.OrderStatusConfirmed && status != store.OrderStatusAddressChange {
		return nil
	}

	shop, err := p.store.StoreByID(ctx, payload.StoreID)
	if err != nil {
		p.logger.Error("tag sync skipped, store lookup failed",
			slog.String("order_id", order.ID), slog.Any("error", err))
		return nil
	}
	synced, err := p.store.OrderByID(ctx, order.ID)
	if err != nil {
		p.logger.Error("tag sync skipped, order reload failed",
			slog.String("order_id", order.ID), slog.Any("error", err))
		return nil
	}
	if err := p.tags.SyncOrderTags(ctx, shop, synced); err != nil {
		// Best-effort: dialogue correctness does not depend on tags.
		p.logger.Error("tag sync failed",
			slog.String("order_id", order.ID), slog.Any("error", err))
	}
	return nil
}

package store

import (
	"context"
	"errors"

	"github.com/brunoxcamillo/drop-call-app/internal/dialog"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence boundary for the whole pipeline. The single-open-
// session invariant and the idempotency of order upserts are enforced here,
// not by the callers.
type Store interface {
	// Store directory.
	StoreByDomain(ctx context.Context, domain string) (StoreRecord, error)
	StoreByID(ctx context.Context, id string) (StoreRecord, error)

	// Orders.
	UpsertOrder(ctx context.Context, rec OrderRecord) (OrderRecord, error)
	UpsertLineItems(ctx context.Context, orderID string, items []LineItemRecord) error
	OrderByID(ctx context.Context, id string) (OrderRecord, error)
	OrderByExternalID(ctx context.Context, storeID, externalID string) (OrderRecord, error)
	LatestOrderByPhone(ctx context.Context, phone string) (OrderRecord, error)
	LineItemsByOrderID(ctx context.Context, orderID string) ([]LineItemRecord, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) error

	// Sessions.
	LoadOrCreateSession(ctx context.Context, storeID, phone, orderID string) (SessionRecord, error)
	SaveSession(ctx context.Context, id string, state dialog.State, sctx map[string]string, history []dialog.Checkpoint) error
	CloseSession(ctx context.Context, id string) error
	CloseOpenSessions(ctx context.Context, storeID, phone string) error

	// Audit ledger.
	AppendEvent(ctx context.Context, rec EventRecord) error
	EventsBySessionID(ctx context.Context, sessionID string) ([]EventRecord, error)

	// Localized templates.
	TemplateByKey(ctx context.Context, key, countryCode string) (TemplateRecord, error)
	UpsertTemplate(ctx context.Context, rec TemplateRecord) error

	Close() error
}

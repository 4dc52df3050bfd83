package store

import (
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/dialog"
)

// Order lifecycle statuses, persisted and visible to the commerce platform.
const (
	OrderStatusPendingContact      = "pending_contact"
	OrderStatusPendingConfirmation = "pending_confirmation"
	OrderStatusInvalidResponse     = "invalid_response"
	OrderStatusConfirmed           = "confirmed"
	OrderStatusCanceled            = "canceled"
	OrderStatusSent                = "sent"
	OrderStatusReturned            = "returned"
	OrderStatusCompleted           = "completed"
	OrderStatusAddressChange       = "address_change"
)

// Conversation event directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
	DirectionSys = "sys"
)

// StoreRecord is one commerce shop this service answers for.
type StoreRecord struct {
	ID               string
	Domain           string
	Name             string
	CountryCode      string
	ConfirmationText string
	AdminAccessToken string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderRecord is the persisted snapshot of a commerce order.
type OrderRecord struct {
	ID         string
	ExternalID string
	AdminGID   string
	StoreID    string

	Number     int64
	Name       string
	Currency   string
	SourceName string

	SubtotalPrice float64
	TotalPrice    float64
	TotalDiscount float64
	TotalShipping float64
	TotalTax      float64

	CustomerEmail     string
	CustomerFirstName string
	CustomerLastName  string
	CustomerPhone     string

	ShippingAddress1 string
	ShippingAddress2 string
	ShippingCity     string
	ShippingCountry  string
	ShippingProvince string

	BillingCity     string
	BillingCountry  string
	BillingProvince string

	Status string

	PlacedAt  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItemRecord is one order line, upserted by its own external id.
type LineItemRecord struct {
	ID         string
	OrderID    string
	ExternalID string
	Title      string
	SKU        string
	VariantID  string
	Vendor     string
	Quantity   int
	Price      float64
	CreatedAt  time.Time
}

// SessionRecord is one conversation for a (store, phone) pair. At most one
// session per pair has IsClosed == false; closed sessions are kept forever.
type SessionRecord struct {
	ID      string
	StoreID string
	Phone   string
	OrderID string

	State   dialog.State
	Context map[string]string
	History []dialog.Checkpoint
	Locale  string

	IsClosed  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventRecord is one append-only audit row for a conversation turn.
type EventRecord struct {
	ID          string
	SessionID   string
	Direction   string
	Payload     []byte
	Intent      dialog.Intent
	StateBefore dialog.State
	StateAfter  dialog.State
	CreatedAt   time.Time
}

// TemplateRecord is a localized outbound message body for a (key, country).
type TemplateRecord struct {
	ID          string
	Key         string
	CountryCode string
	Body        string
}

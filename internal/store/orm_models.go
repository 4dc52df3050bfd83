package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/dialog"
)

type storeRow struct {
	ID               string    `gorm:"primaryKey;size:64"`
	Domain           string    `gorm:"size:191;uniqueIndex;not null"`
	Name             string    `gorm:"size:191"`
	CountryCode      string    `gorm:"size:8;not null"`
	ConfirmationText string    `gorm:"type:text"`
	AdminAccessToken string    `gorm:"size:191"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (storeRow) TableName() string { return "stores" }

func (r storeRow) toRecord() StoreRecord {
	return StoreRecord{
		ID:               r.ID,
		Domain:           r.Domain,
		Name:             r.Name,
		CountryCode:      r.CountryCode,
		ConfirmationText: r.ConfirmationText,
		AdminAccessToken: r.AdminAccessToken,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type orderRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	ExternalID string `gorm:"size:191;uniqueIndex:idx_orders_external_store,priority:1;not null"`
	StoreID    string `gorm:"size:64;uniqueIndex:idx_orders_external_store,priority:2;not null"`
	AdminGID   string `gorm:"size:191"`

	Number     int64  `gorm:"not null"`
	Name       string `gorm:"size:191"`
	Currency   string `gorm:"size:8"`
	SourceName string `gorm:"size:64"`

	SubtotalPrice float64
	TotalPrice    float64
	TotalDiscount float64
	TotalShipping float64
	TotalTax      float64

	CustomerEmail     string `gorm:"size:191"`
	CustomerFirstName string `gorm:"size:191"`
	CustomerLastName  string `gorm:"size:191"`
	CustomerPhone     string `gorm:"size:32;index"`

	ShippingAddress1 string `gorm:"size:255"`
	ShippingAddress2 string `gorm:"size:255"`
	ShippingCity     string `gorm:"size:191"`
	ShippingCountry  string `gorm:"size:191"`
	ShippingProvince string `gorm:"size:32"`

	BillingCity     string `gorm:"size:191"`
	BillingCountry  string `gorm:"size:191"`
	BillingProvince string `gorm:"size:32"`

	Status string `gorm:"size:32;not null"`

	PlacedAt  time.Time
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (orderRow) TableName() string { return "orders" }

func (r orderRow) toRecord() OrderRecord {
	return OrderRecord{
		ID:                r.ID,
		ExternalID:        r.ExternalID,
		AdminGID:          r.AdminGID,
		StoreID:           r.StoreID,
		Number:            r.Number,
		Name:              r.Name,
		Currency:          r.Currency,
		SourceName:        r.SourceName,
		SubtotalPrice:     r.SubtotalPrice,
		TotalPrice:        r.TotalPrice,
		TotalDiscount:     r.TotalDiscount,
		TotalShipping:     r.TotalShipping,
		TotalTax:          r.TotalTax,
		CustomerEmail:     r.CustomerEmail,
		CustomerFirstName: r.CustomerFirstName,
		CustomerLastName:  r.CustomerLastName,
		CustomerPhone:     r.CustomerPhone,
		ShippingAddress1:  r.ShippingAddress1,
		ShippingAddress2:  r.ShippingAddress2,
		ShippingCity:      r.ShippingCity,
		ShippingCountry:   r.ShippingCountry,
		ShippingProvince:  r.ShippingProvince,
		BillingCity:       r.BillingCity,
		BillingCountry:    r.BillingCountry,
		BillingProvince:   r.BillingProvince,
		Status:            r.Status,
		PlacedAt:          r.PlacedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func orderRowFromRecord(rec OrderRecord) orderRow {
	return orderRow{
		ID:                rec.ID,
		ExternalID:        rec.ExternalID,
		AdminGID:          rec.AdminGID,
		StoreID:           rec.StoreID,
		Number:            rec.Number,
		Name:              rec.Name,
		Currency:          rec.Currency,
		SourceName:        rec.SourceName,
		SubtotalPrice:     rec.SubtotalPrice,
		TotalPrice:        rec.TotalPrice,
		TotalDiscount:     rec.TotalDiscount,
		TotalShipping:     rec.TotalShipping,
		TotalTax:          rec.TotalTax,
		CustomerEmail:     rec.CustomerEmail,
		CustomerFirstName: rec.CustomerFirstName,
		CustomerLastName:  rec.CustomerLastName,
		CustomerPhone:     rec.CustomerPhone,
		ShippingAddress1:  rec.ShippingAddress1,
		ShippingAddress2:  rec.ShippingAddress2,
		ShippingCity:      rec.ShippingCity,
		ShippingCountry:   rec.ShippingCountry,
		ShippingProvince:  rec.ShippingProvince,
		BillingCity:       rec.BillingCity,
		BillingCountry:    rec.BillingCountry,
		BillingProvince:   rec.BillingProvince,
		Status:            rec.Status,
		PlacedAt:          rec.PlacedAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

type lineItemRow struct {
	ID         string    `gorm:"primaryKey;size:64"`
	OrderID    string    `gorm:"size:64;index;uniqueIndex:idx_line_items_external_order,priority:2;not null"`
	ExternalID string    `gorm:"size:191;uniqueIndex:idx_line_items_external_order,priority:1;not null"`
	Title      string    `gorm:"size:255"`
	SKU        string    `gorm:"size:191"`
	VariantID  string    `gorm:"size:191"`
	Vendor     string    `gorm:"size:191"`
	Quantity   int       `gorm:"not null"`
	Price      float64
	CreatedAt  time.Time `gorm:"not null"`
}

func (lineItemRow) TableName() string { return "line_items" }

func (r lineItemRow) toRecord() LineItemRecord {
	return LineItemRecord{
		ID:         r.ID,
		OrderID:    r.OrderID,
		ExternalID: r.ExternalID,
		Title:      r.Title,
		SKU:        r.SKU,
		VariantID:  r.VariantID,
		Vendor:     r.Vendor,
		Quantity:   r.Quantity,
		Price:      r.Price,
		CreatedAt:  r.CreatedAt,
	}
}

type sessionRow struct {
	ID      string `gorm:"primaryKey;size:64"`
	StoreID string `gorm:"size:64;index:idx_sessions_store_phone,priority:1;not null"`
	Phone   string `gorm:"size:32;index:idx_sessions_store_phone,priority:2;not null"`
	OrderID string `gorm:"size:64"`

	State       string `gorm:"size:64;not null"`
	ContextJSON string `gorm:"type:text;not null"`
	HistoryJSON string `gorm:"type:text;not null"`
	Locale      string `gorm:"size:16"`

	IsClosed  bool      `gorm:"not null;index:idx_sessions_store_phone,priority:3"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string { return "conversations" }

func (r sessionRow) toRecord() (SessionRecord, error) {
	sctx := map[string]string{}
	if r.ContextJSON != "" {
		if err := json.Unmarshal([]byte(r.ContextJSON), &sctx); err != nil {
			return SessionRecord{}, fmt.Errorf("decode session context: %w", err)
		}
	}
	var history []dialog.Checkpoint
	if r.HistoryJSON != "" {
		if err := json.Unmarshal([]byte(r.HistoryJSON), &history); err != nil {
			return SessionRecord{}, fmt.Errorf("decode session history: %w", err)
		}
	}
	return SessionRecord{
		ID:        r.ID,
		StoreID:   r.StoreID,
		Phone:     r.Phone,
		OrderID:   r.OrderID,
		State:     dialog.State(r.State),
		Context:   sctx,
		History:   history,
		Locale:    r.Locale,
		IsClosed:  r.IsClosed,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func encodeContext(sctx map[string]string) (string, error) {
	if sctx == nil {
		sctx = map[string]string{}
	}
	raw, err := json.Marshal(sctx)
	if err != nil {
		return "", fmt.Errorf("encode session context: %w", err)
	}
	return string(raw), nil
}

func encodeHistory(history []dialog.Checkpoint) (string, error) {
	if history == nil {
		history = []dialog.Checkpoint{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("encode session history: %w", err)
	}
	return string(raw), nil
}

type eventRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	SessionID   string    `gorm:"size:64;index;not null"`
	Direction   string    `gorm:"size:8;not null"`
	Payload     string    `gorm:"type:text"`
	Intent      string    `gorm:"size:32"`
	StateBefore string    `gorm:"size:64"`
	StateAfter  string    `gorm:"size:64"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (eventRow) TableName() string { return "conversation_events" }

func (r eventRow) toRecord() EventRecord {
	return EventRecord{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Direction:   r.Direction,
		Payload:     []byte(r.Payload),
		Intent:      dialog.Intent(r.Intent),
		StateBefore: dialog.State(r.StateBefore),
		StateAfter:  dialog.State(r.StateAfter),
		CreatedAt:   r.CreatedAt,
	}
}

type templateRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Key         string `gorm:"size:64;uniqueIndex:idx_templates_key_country,priority:1;not null"`
	CountryCode string `gorm:"size:8;uniqueIndex:idx_templates_key_country,priority:2;not null"`
	Body        string `gorm:"type:text;not null"`
}

func (templateRow) TableName() string { return "country_messages" }

func (r templateRow) toRecord() TemplateRecord {
	return TemplateRecord{ID: r.ID, Key: r.Key, CountryCode: r.CountryCode, Body: r.Body}
}

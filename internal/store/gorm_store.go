package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/brunoxcamillo/drop-call-app/internal/db"
	"github.com/brunoxcamillo/drop-call-app/internal/dialog"
)

// GormStore persists the whole data model behind a single gorm connection.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &GormStore{db: gormDB}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(
		&storeRow{},
		&orderRow{},
		&lineItemRow{},
		&sessionRow{},
		&eventRow{},
		&templateRow{},
	)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- store directory ---

func (s *GormStore) StoreByDomain(ctx context.Context, domain string) (StoreRecord, error) {
	var row storeRow
	err := s.db.WithContext(ctx).Where("domain = ?", domain).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StoreRecord{}, ErrNotFound
		}
		return StoreRecord{}, fmt.Errorf("store by domain: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) StoreByID(ctx context.Context, id string) (StoreRecord, error) {
	var row storeRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StoreRecord{}, ErrNotFound
		}
		return StoreRecord{}, fmt.Errorf("store by id: %w", err)
	}
	return row.toRecord(), nil
}

// CreateStore registers a shop. Used by provisioning and tests.
func (s *GormStore) CreateStore(ctx context.Context, rec StoreRecord) (StoreRecord, error) {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	row := storeRow{
		ID:               rec.ID,
		Domain:           rec.Domain,
		Name:             rec.Name,
		CountryCode:      rec.CountryCode,
		ConfirmationText: rec.ConfirmationText,
		AdminAccessToken: rec.AdminAccessToken,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return StoreRecord{}, fmt.Errorf("create store: %w", err)
	}
	return rec, nil
}

// --- orders ---

// UpsertOrder is keyed by (external_id, store_id). A redelivered webhook
// updates the snapshot in place; id, status and created_at survive.
func (s *GormStore) UpsertOrder(ctx context.Context, rec OrderRecord) (OrderRecord, error) {
	now := time.Now().UTC()
	var out OrderRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current orderRow
		err := tx.Where("external_id = ? AND store_id = ?", rec.ExternalID, rec.StoreID).
			Take(&current).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup order: %w", err)
			}
			rec.ID = uuid.NewString()
			if rec.Status == "" {
				rec.Status = OrderStatusPendingContact
			}
			rec.CreatedAt = now
			rec.UpdatedAt = now
			row := orderRowFromRecord(rec)
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create order: %w", err)
			}
			out = rec
			return nil
		}

		rec.ID = current.ID
		rec.Status = current.Status
		rec.CreatedAt = current.CreatedAt
		rec.UpdatedAt = now
		row := orderRowFromRecord(rec)
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return OrderRecord{}, err
	}
	return out, nil
}

// UpsertLineItems upserts each line by its external id within the order.
func (s *GormStore) UpsertLineItems(ctx context.Context, orderID string, items []LineItemRecord) error {
	if len(items) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			var current lineItemRow
			err := tx.Where("external_id = ? AND order_id = ?", item.ExternalID, orderID).
				Take(&current).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup line item: %w", err)
			}
			row := lineItemRow{
				ID:         current.ID,
				OrderID:    orderID,
				ExternalID: item.ExternalID,
				Title:      item.Title,
				SKU:        item.SKU,
				VariantID:  item.VariantID,
				Vendor:     item.Vendor,
				Quantity:   item.Quantity,
				Price:      item.Price,
				CreatedAt:  current.CreatedAt,
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				row.ID = uuid.NewString()
				row.CreatedAt = now
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("create line item: %w", err)
				}
				continue
			}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("update line item: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) OrderByID(ctx context.Context, id string) (OrderRecord, error) {
	var row orderRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderRecord{}, ErrNotFound
		}
		return OrderRecord{}, fmt.Errorf("order by id: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) OrderByExternalID(ctx context.Context, storeID, externalID string) (OrderRecord, error) {
	var row orderRow
	err := s.db.WithContext(ctx).
		Where("external_id = ? AND store_id = ?", externalID, storeID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderRecord{}, ErrNotFound
		}
		return OrderRecord{}, fmt.Errorf("order by external id: %w", err)
	}
	return row.toRecord(), nil
}

// LatestOrderByPhone returns the most recently placed order for a phone.
// When a customer has several orders the newest one wins.
func (s *GormStore) LatestOrderByPhone(ctx context.Context, phone string) (OrderRecord, error) {
	var row orderRow
	err := s.db.WithContext(ctx).
		Where("customer_phone = ?", phone).
		Order("placed_at DESC, created_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OrderRecord{}, ErrNotFound
		}
		return OrderRecord{}, fmt.Errorf("order by phone: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) LineItemsByOrderID(ctx context.Context, orderID string) ([]LineItemRecord, error) {
	var rows []lineItemRow
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("line items by order: %w", err)
	}
	out := make([]LineItemRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

func (s *GormStore) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	res := s.db.WithContext(ctx).Model(&orderRow{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- sessions ---

// LoadOrCreateSession returns the open session for (store, phone), stamping
// the latest order id onto it, or creates a fresh one at the start state.
// Closed sessions are never resurrected.
func (s *GormStore) LoadOrCreateSession(ctx context.Context, storeID, phone, orderID string) (SessionRecord, error) {
	now := time.Now().UTC()
	var out SessionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current sessionRow
		err := tx.Where("store_id = ? AND phone = ? AND is_closed = ?", storeID, phone, false).
			Take(&current).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup session: %w", err)
			}
			ctxJSON, err := encodeContext(nil)
			if err != nil {
				return err
			}
			histJSON, err := encodeHistory(nil)
			if err != nil {
				return err
			}
			row := sessionRow{
				ID:          uuid.NewString(),
				StoreID:     storeID,
				Phone:       phone,
				OrderID:     orderID,
				State:       string(dialog.StateStart),
				ContextJSON: ctxJSON,
				HistoryJSON: histJSON,
				IsClosed:    false,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			out, err = row.toRecord()
			return err
		}

		if orderID != "" && current.OrderID != orderID {
			current.OrderID = orderID
			current.UpdatedAt = now
			if err := tx.Save(&current).Error; err != nil {
				return fmt.Errorf("stamp session order: %w", err)
			}
		}
		var convErr error
		out, convErr = current.toRecord()
		return convErr
	})
	if err != nil {
		return SessionRecord{}, err
	}
	return out, nil
}

func (s *GormStore) SaveSession(ctx context.Context, id string, state dialog.State, sctx map[string]string, history []dialog.Checkpoint) error {
	ctxJSON, err := encodeContext(sctx)
	if err != nil {
		return err
	}
	histJSON, err := encodeHistory(history)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":        string(state),
			"context_json": ctxJSON,
			"history_json": histJSON,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("save session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CloseSession(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_closed": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("close session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseOpenSessions marks every open session for (store, phone) closed.
// Closing nothing is fine; a new order just means the next reply starts over.
func (s *GormStore) CloseOpenSessions(ctx context.Context, storeID, phone string) error {
	err := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("store_id = ? AND phone = ? AND is_closed = ?", storeID, phone, false).
		Updates(map[string]any{"is_closed": true, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("close open sessions: %w", err)
	}
	return nil
}

// --- audit ledger ---

func (s *GormStore) AppendEvent(ctx context.Context, rec EventRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := eventRow{
		ID:          rec.ID,
		SessionID:   rec.SessionID,
		Direction:   rec.Direction,
		Payload:     string(rec.Payload),
		Intent:      string(rec.Intent),
		StateBefore: string(rec.StateBefore),
		StateAfter:  string(rec.StateAfter),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *GormStore) EventsBySessionID(ctx context.Context, sessionID string) ([]EventRecord, error) {
	var rows []eventRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("events by session: %w", err)
	}
	out := make([]EventRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

// --- templates ---

func (s *GormStore) TemplateByKey(ctx context.Context, key, countryCode string) (TemplateRecord, error) {
	var row templateRow
	err := s.db.WithContext(ctx).
		Where("key = ? AND country_code = ?", key, countryCode).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TemplateRecord{}, ErrNotFound
		}
		return TemplateRecord{}, fmt.Errorf("template by key: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) UpsertTemplate(ctx context.Context, rec TemplateRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current templateRow
		err := tx.Where("key = ? AND country_code = ?", rec.Key, rec.CountryCode).
			Take(&current).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lookup template: %w", err)
			}
			row := templateRow{
				ID:          uuid.NewString(),
				Key:         rec.Key,
				CountryCode: rec.CountryCode,
				Body:        rec.Body,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create template: %w", err)
			}
			return nil
		}
		current.Body = rec.Body
		if err := tx.Save(&current).Error; err != nil {
			return fmt.Errorf("update template: %w", err)
		}
		return nil
	})
}

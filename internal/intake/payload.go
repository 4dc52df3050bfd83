package intake

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/phone"
	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

// OrderPayload is the commerce webhook body for order events. Monetary
// fields arrive as strings and are normalized on conversion.
type OrderPayload struct {
	ID          json.Number `json:"id"`
	AdminGID    string      `json:"admin_graphql_api_id"`
	OrderNumber int64       `json:"order_number"`
	Name        string      `json:"name"`
	Currency    string      `json:"currency"`
	SourceName  string      `json:"source_name"`
	CreatedAt   time.Time   `json:"created_at"`

	SubtotalPrice  string `json:"subtotal_price"`
	TotalPrice     string `json:"total_price"`
	TotalDiscounts string `json:"total_discounts"`
	TotalTax       string `json:"total_tax"`

	TotalShippingPriceSet struct {
		ShopMoney struct {
			Amount string `json:"amount"`
		} `json:"shop_money"`
	} `json:"total_shipping_price_set"`

	Customer struct {
		ID             json.Number `json:"id"`
		Email          string      `json:"email"`
		FirstName      string      `json:"first_name"`
		LastName       string      `json:"last_name"`
		DefaultAddress struct {
			Phone        string `json:"phone"`
			City         string `json:"city"`
			Country      string `json:"country"`
			ProvinceCode string `json:"province_code"`
		} `json:"default_address"`
	} `json:"customer"`

	BillingAddress struct {
		City         string `json:"city"`
		Country      string `json:"country"`
		ProvinceCode string `json:"province_code"`
	} `json:"billing_address"`

	ShippingAddress struct {
		Address1     string `json:"address1"`
		Address2     string `json:"address2"`
		City         string `json:"city"`
		Country      string `json:"country"`
		ProvinceCode string `json:"province_code"`
	} `json:"shipping_address"`

	LineItems []LineItemPayload `json:"line_items"`
}

type LineItemPayload struct {
	ID        json.Number `json:"id"`
	Title     string      `json:"title"`
	SKU       string      `json:"sku"`
	VariantID json.Number `json:"variant_id"`
	Vendor    string      `json:"vendor"`
	Quantity  int         `json:"quantity"`
	Price     string      `json:"price"`
}

func (p OrderPayload) toRecord(storeID string) store.OrderRecord {
	return store.OrderRecord{
		ExternalID: p.ID.String(),
		AdminGID:   p.AdminGID,
		StoreID:    storeID,

		Number:     p.OrderNumber,
		Name:       p.Name,
		Currency:   p.Currency,
		SourceName: p.SourceName,

		SubtotalPrice: toFloat(p.SubtotalPrice),
		TotalPrice:    toFloat(p.TotalPrice),
		TotalDiscount: toFloat(p.TotalDiscounts),
		TotalShipping: toFloat(p.TotalShippingPriceSet.ShopMoney.Amount),
		TotalTax:      toFloat(p.TotalTax),

		CustomerEmail:     p.Customer.Email,
		CustomerFirstName: p.Customer.FirstName,
		CustomerLastName:  p.Customer.LastName,
		CustomerPhone:     phone.Normalize(p.Customer.DefaultAddress.Phone),

		ShippingAddress1: p.ShippingAddress.Address1,
		ShippingAddress2: p.ShippingAddress.Address2,
		ShippingCity:     p.ShippingAddress.City,
		ShippingCountry:  p.ShippingAddress.Country,
		ShippingProvince: p.ShippingAddress.ProvinceCode,

		BillingCity:     p.BillingAddress.City,
		BillingCountry:  p.BillingAddress.Country,
		BillingProvince: p.BillingAddress.ProvinceCode,

		PlacedAt: p.CreatedAt,
	}
}

func (p OrderPayload) lineItemRecords() []store.LineItemRecord {
	out := make([]store.LineItemRecord, 0, len(p.LineItems))
	for _, item := range p.LineItems {
		out = append(out, store.LineItemRecord{
			ExternalID: item.ID.String(),
			Title:      item.Title,
			SKU:        item.SKU,
			VariantID:  item.VariantID.String(),
			Vendor:     item.Vendor,
			Quantity:   item.Quantity,
			Price:      toFloat(item.Price),
		})
	}
	return out
}

func toFloat(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}

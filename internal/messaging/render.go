package messaging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

var placeholderRE = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render substitutes {{name}} placeholders from vars. Unresolved
// placeholders render as empty string rather than leaking braces.
func Render(body string, vars map[string]string) string {
	return placeholderRE.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		return vars[name]
	})
}

// FormatConfirmation renders the store-configured initial confirmation body
// for an order, including its line items.
func FormatConfirmation(shop store.StoreRecord, order store.OrderRecord, items []store.LineItemRecord) string {
	customerName := strings.TrimSpace(order.CustomerFirstName + " " + order.CustomerLastName)
	address := strings.TrimSpace(order.ShippingAddress1 + " " + order.ShippingAddress2)

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("*%s* (_x%d_)", item.Title, item.Quantity))
	}

	return Render(shop.ConfirmationText, map[string]string{
		"order_number":  fmt.Sprintf("%d", order.Number),
		"customer_name": customerName,
		"address":       address,
		"items":         strings.Join(lines, "\n\n"),
		"store_name":    shop.Name,
		"total_price":   fmt.Sprintf("%.2f", order.TotalPrice),
		"currency":      order.Currency,
	})
}

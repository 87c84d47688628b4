package orders

import (
	"strings"

	"github.com/gehnabox/orders-service/internal/domain"
)

// FilterOrders narrows an already-fetched page with a case-insensitive
// substring match over order number, customer name, and customer email.
// It is purely in-memory and does not interact with pagination: a match
// on a later page will not appear until that page is loaded.
func FilterOrders(orders []domain.Order, query string) []domain.Order {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return orders
	}

	matched := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if strings.Contains(strings.ToLower(o.OrderNumber), query) ||
			strings.Contains(strings.ToLower(o.CustomerName), query) ||
			strings.Contains(strings.ToLower(o.CustomerEmail), query) {
			matched = append(matched, o)
		}
	}
	return matched
}

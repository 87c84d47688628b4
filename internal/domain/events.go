package domain

import "time"

// OrderStatusChangedEvent is published after a status transition commits.
// Consumers must treat it as notification only; the database row is the
// source of truth.
type OrderStatusChangedEvent struct {
	OrderID     int64       `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	FromStatus  OrderStatus `json:"from_status"`
	ToStatus    OrderStatus `json:"to_status"`
	TotalAmount int64       `json:"total_amount"`
	UpdatedBy   int64       `json:"updated_by"`
	Timestamp   time.Time   `json:"timestamp"`
}

package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// AllStatuses lists every valid order status, in lifecycle order. Used for
// validation and for the per-status buckets in admin stats.
var AllStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodOnline
}

// OrderItem is a snapshot of a catalog product at purchase time. TotalPrice
// is fixed at creation and never recalculated from live product data, so
// history stays accurate when the product is later edited or deleted.
type OrderItem struct {
	ID            int64   `json:"id"`
	ProductName   string  `json:"productName"`
	ProductSKU    string  `json:"productSku"`
	ProductImage  string  `json:"productImage,omitempty"`
	MetalType     string  `json:"metalType"`
	Purity        string  `json:"purity"`
	Weight        float64 `json:"weight"`
	Price         int64   `json:"price"`
	DiscountPrice *int64  `json:"discountPrice,omitempty"`
	Quantity      int     `json:"quantity"`
	TotalPrice    int64   `json:"totalPrice"`
}

// UnitPrice is the price one unit actually sold for.
func (i OrderItem) UnitPrice() int64 {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.Price
}

// TrackingEntry records one status change. Entries are append-only and form
// the order's audit trail.
type TrackingEntry struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"-"`
	Status    OrderStatus  `json:"status"`
	Notes     string       `json:"notes,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedBy *UserSummary `json:"updatedBy,omitempty"`
}

// UserSummary is a weak reference to the staff user who performed a
// transition. Only id and name, no ownership.
type UserSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ShippingAddress is captured at order placement and never re-derived from
// the live customer profile.
type ShippingAddress struct {
	Name    string `json:"shippingName"`
	Phone   string `json:"shippingPhone"`
	Email   string `json:"shippingEmail"`
	Address string `json:"shippingAddress"`
	City    string `json:"shippingCity"`
	State   string `json:"shippingState"`
	ZipCode string `json:"shippingZipCode"`
}

type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	CustomerID    int64           `json:"customerId"`
	CustomerName  string          `json:"customerName,omitempty"`
	CustomerEmail string          `json:"customerEmail,omitempty"`
	Subtotal      int64           `json:"subtotal"`
	ShippingCost  int64           `json:"shippingCost"`
	TotalAmount   int64           `json:"totalAmount"`
	Status        OrderStatus     `json:"status"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	PaymentStatus string          `json:"paymentStatus"`
	Shipping      ShippingAddress `json:"shipping"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	Items         []OrderItem     `json:"items"`
	Tracking      []TrackingEntry `json:"tracking"`
}

// OrderStats is the admin dashboard aggregate.
type OrderStats struct {
	TotalOrders      int64 `json:"totalOrders"`
	PendingOrders    int64 `json:"pendingOrders"`
	ConfirmedOrders  int64 `json:"confirmedOrders"`
	ProcessingOrders int64 `json:"processingOrders"`
	ShippedOrders    int64 `json:"shippedOrders"`
	DeliveredOrders  int64 `json:"deliveredOrders"`
	CancelledOrders  int64 `json:"cancelledOrders"`
	TotalRevenue     int64 `json:"totalRevenue"`
}

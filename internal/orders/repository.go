package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gehnabox/orders-service/internal/domain"
)

var ErrNotFound = errors.New("order not found")

// RevenuePolicy decides which orders count toward totalRevenue. The
// back-office dashboard shows revenue as a single number; which statuses
// feed it is a business decision, so it is configurable rather than baked in.
type RevenuePolicy string

const (
	RevenueAll              RevenuePolicy = "all"
	RevenueExcludeCancelled RevenuePolicy = "exclude_cancelled"
)

func ParseRevenuePolicy(s string) (RevenuePolicy, error) {
	switch RevenuePolicy(s) {
	case RevenueAll, RevenueExcludeCancelled:
		return RevenuePolicy(s), nil
	case "":
		return RevenueAll, nil
	}
	return "", fmt.Errorf("unknown revenue policy %q", s)
}

const PageSize = 20

type Repository struct {
	db      *sql.DB
	rules   TransitionRules
	revenue RevenuePolicy
}

func NewRepository(db *sql.DB, rules TransitionRules, revenue RevenuePolicy) *Repository {
	if rules == nil {
		rules = DefaultRules
	}
	if revenue == "" {
		revenue = RevenueAll
	}
	return &Repository{db: db, rules: rules, revenue: revenue}
}

// NewOrderInput is the checkout payload after validation. Totals are
// computed here, not trusted from the caller.
type NewOrderInput struct {
	CustomerID    int64
	Items         []domain.OrderItem
	ShippingCost  int64
	PaymentMethod domain.PaymentMethod
	Shipping      domain.ShippingAddress
	Notes         string
}

// Create inserts the order, its item snapshots, and the implicit initial
// tracking entry in one transaction. The order starts as pending.
func (r *Repository) Create(ctx context.Context, in NewOrderInput) (*domain.Order, error) {
	now := time.Now().UTC()

	var subtotal int64
	for i := range in.Items {
		in.Items[i].TotalPrice = in.Items[i].UnitPrice() * int64(in.Items[i].Quantity)
		subtotal += in.Items[i].TotalPrice
	}
	total := subtotal + in.ShippingCost

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	orderNumber := newOrderNumber(now)

	var orderID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, customer_id, subtotal, shipping_cost, total_amount,
			status, payment_method, payment_status,
			shipping_name, shipping_phone, shipping_email, shipping_address,
			shipping_city, shipping_state, shipping_zip_code,
			notes, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`, orderNumber, in.CustomerID, subtotal, in.ShippingCost, total,
		domain.OrderStatusPending, in.PaymentMethod, "pending",
		in.Shipping.Name, in.Shipping.Phone, in.Shipping.Email, in.Shipping.Address,
		in.Shipping.City, in.Shipping.State, in.Shipping.ZipCode,
		in.Notes, now).Scan(&orderID)
	if err != nil {
		return nil, err
	}

	for _, item := range in.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, product_name, product_sku, product_image,
				metal_type, purity, weight, price, discount_price, quantity, total_price
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, orderID, item.ProductName, item.ProductSKU, item.ProductImage,
			item.MetalType, item.Purity, item.Weight, item.Price,
			item.DiscountPrice, item.Quantity, item.TotalPrice)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_tracking (order_id, status, notes, created_at)
		VALUES ($1, $2, $3, $4)
	`, orderID, domain.OrderStatusPending, "Order placed", now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, orderID)
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

const orderColumns = `
	o.id, o.order_number, o.customer_id, u.name, u.email,
	o.subtotal, o.shipping_cost, o.total_amount,
	o.status, o.payment_method, o.payment_status,
	o.shipping_name, o.shipping_phone, o.shipping_email, o.shipping_address,
	o.shipping_city, o.shipping_state, o.shipping_zip_code,
	o.notes, o.created_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	order := &domain.Order{}
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.CustomerID, &order.CustomerName, &order.CustomerEmail,
		&order.Subtotal, &order.ShippingCost, &order.TotalAmount,
		&order.Status, &order.PaymentMethod, &order.PaymentStatus,
		&order.Shipping.Name, &order.Shipping.Phone, &order.Shipping.Email, &order.Shipping.Address,
		&order.Shipping.City, &order.Shipping.State, &order.Shipping.ZipCode,
		&order.Notes, &order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Items = []domain.OrderItem{}
	order.Tracking = []domain.TrackingEntry{}
	return order, nil
}

// GetByID returns one order with its items and tracking, or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders o
		JOIN users u ON u.id = o.customer_id
		WHERE o.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := r.loadChildren(ctx, map[int64]*domain.Order{order.ID: order}, []int64{order.ID}); err != nil {
		return nil, err
	}

	return order, nil
}

// GetForCustomer returns the order only if it belongs to the customer.
// A missing order and another customer's order are both ErrNotFound, so
// callers cannot probe for existence.
func (r *Repository) GetForCustomer(ctx context.Context, id, customerID int64) (*domain.Order, error) {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return order, nil
}

// ListByCustomer returns all of one customer's orders, newest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+orderColumns+`
		FROM orders o
		JOIN users u ON u.id = o.customer_id
		WHERE o.customer_id = $1
		ORDER BY o.created_at DESC, o.id DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	return r.collectOrders(ctx, rows)
}

// AdminPage is one page of the back-office order list.
type AdminPage struct {
	Orders      []domain.Order `json:"orders"`
	Page        int            `json:"page"`
	TotalPages  int            `json:"totalPages"`
	TotalOrders int64          `json:"totalOrders"`
}

// ListAdmin returns a page of all orders, optionally filtered by status.
// Pages are 1-based with a fixed size of PageSize.
func (r *Repository) ListAdmin(ctx context.Context, status domain.OrderStatus, page int) (*AdminPage, error) {
	if page < 1 {
		page = 1
	}

	var (
		where string
		args  []any
	)
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
		}
		where = "WHERE o.status = $1"
		args = append(args, status)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM orders o "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	totalPages := int((total + PageSize - 1) / PageSize)

	offset := (page - 1) * PageSize
	query := fmt.Sprintf(`
		SELECT`+orderColumns+`
		FROM orders o
		JOIN users u ON u.id = o.customer_id
		%s
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT %d OFFSET $%d
	`, where, PageSize, len(args)+1)
	args = append(args, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders, err := r.collectOrders(ctx, rows)
	if err != nil {
		return nil, err
	}

	return &AdminPage{
		Orders:      orders,
		Page:        page,
		TotalPages:  totalPages,
		TotalOrders: total,
	}, nil
}

// Stats aggregates counts per status and revenue under the configured
// policy in a single scan over the orders table.
func (r *Repository) Stats(ctx context.Context) (*domain.OrderStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM orders
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := &domain.OrderStats{}
	for rows.Next() {
		var (
			status domain.OrderStatus
			count  int64
			amount int64
		)
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return nil, err
		}

		stats.TotalOrders += count
		switch status {
		case domain.OrderStatusPending:
			stats.PendingOrders = count
		case domain.OrderStatusConfirmed:
			stats.ConfirmedOrders = count
		case domain.OrderStatusProcessing:
			stats.ProcessingOrders = count
		case domain.OrderStatusShipped:
			stats.ShippedOrders = count
		case domain.OrderStatusDelivered:
			stats.DeliveredOrders = count
		case domain.OrderStatusCancelled:
			stats.CancelledOrders = count
		}

		if r.revenue == RevenueExcludeCancelled && status == domain.OrderStatusCancelled {
			continue
		}
		stats.TotalRevenue += amount
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// Transition applies one status change: lock the order row, validate
// against the rules, write the new status, and append the tracking entry.
// Status and tracking commit together or not at all. Concurrent commands
// against the same order serialize on the row lock.
func (r *Repository) Transition(ctx context.Context, id int64, to domain.OrderStatus, notes string, actor *domain.UserSummary) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := r.rules.Validate(current, to); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3
	`, to, now, id); err != nil {
		return nil, err
	}

	var actorID *int64
	if actor != nil {
		actorID = &actor.ID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_tracking (order_id, status, notes, created_at, updated_by)
		VALUES ($1, $2, $3, $4, $5)
	`, id, to, notes, now, actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func (r *Repository) collectOrders(ctx context.Context, rows *sql.Rows) ([]domain.Order, error) {
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadChildren(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// loadChildren batches items and tracking for a set of orders. Tracking
// comes back newest-first, which is the only order it is ever shown in.
func (r *Repository) loadChildren(ctx context.Context, orderMap map[int64]*domain.Order, orderIDs []int64) error {
	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, product_name, product_sku, product_image,
		       metal_type, purity, weight, price, discount_price, quantity, total_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var (
			orderID int64
			item    domain.OrderItem
		)
		if err := itemRows.Scan(&orderID, &item.ID, &item.ProductName, &item.ProductSKU, &item.ProductImage,
			&item.MetalType, &item.Purity, &item.Weight, &item.Price, &item.DiscountPrice,
			&item.Quantity, &item.TotalPrice); err != nil {
			return err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return err
	}

	trackRows, err := r.db.QueryContext(ctx, `
		SELECT t.order_id, t.id, t.status, t.notes, t.created_at, t.updated_by, u.name
		FROM order_tracking t
		LEFT JOIN users u ON u.id = t.updated_by
		WHERE t.order_id = ANY($1)
		ORDER BY t.created_at DESC, t.id DESC
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = trackRows.Close() }()

	for trackRows.Next() {
		var (
			orderID   int64
			entry     domain.TrackingEntry
			updatedBy sql.NullInt64
			userName  sql.NullString
		)
		if err := trackRows.Scan(&orderID, &entry.ID, &entry.Status, &entry.Notes,
			&entry.CreatedAt, &updatedBy, &userName); err != nil {
			return err
		}
		entry.OrderID = orderID
		if updatedBy.Valid {
			entry.UpdatedBy = &domain.UserSummary{ID: updatedBy.Int64, Name: userName.String}
		}
		order := orderMap[orderID]
		order.Tracking = append(order.Tracking, entry)
	}
	return trackRows.Err()
}

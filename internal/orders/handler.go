package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gehnabox/orders-service/internal/auth"
	"github.com/gehnabox/orders-service/internal/domain"
	"github.com/gehnabox/orders-service/internal/messaging"
)

// Store is the persistence surface the handlers need. *Repository satisfies
// it; tests substitute a fake.
type Store interface {
	Create(ctx context.Context, in NewOrderInput) (*domain.Order, error)
	GetForCustomer(ctx context.Context, id, customerID int64) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	ListAdmin(ctx context.Context, status domain.OrderStatus, page int) (*AdminPage, error)
	Stats(ctx context.Context) (*domain.OrderStats, error)
	Transition(ctx context.Context, id int64, to domain.OrderStatus, notes string, actor *domain.UserSummary) (*domain.Order, error)
}

type Handler struct {
	store    Store
	producer *messaging.Producer
	logger   *slog.Logger
}

func NewHandler(store Store, producer *messaging.Producer, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		producer: producer,
		logger:   logger,
	}
}

type createOrderItem struct {
	ProductName   string  `json:"productName"`
	ProductSKU    string  `json:"productSku"`
	ProductImage  string  `json:"productImage"`
	MetalType     string  `json:"metalType"`
	Purity        string  `json:"purity"`
	Weight        float64 `json:"weight"`
	Price         int64   `json:"price"`
	DiscountPrice *int64  `json:"discountPrice"`
	Quantity      int     `json:"quantity"`
}

type createOrderRequest struct {
	Items         []createOrderItem      `json:"items"`
	ShippingCost  int64                  `json:"shippingCost"`
	PaymentMethod domain.PaymentMethod   `json:"paymentMethod"`
	Shipping      domain.ShippingAddress `json:"shipping"`
	Notes         string                 `json:"notes"`
}

// HandleCreate is checkout: the order is created as pending with its
// implicit initial tracking entry. Line and order totals are computed
// server-side from the snapshot prices.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "order must contain at least one item")
		return
	}
	if !req.PaymentMethod.Valid() {
		h.writeError(w, http.StatusBadRequest, "payment method must be cod or online")
		return
	}
	if req.ShippingCost < 0 {
		h.writeError(w, http.StatusBadRequest, "shipping cost cannot be negative")
		return
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			h.writeError(w, http.StatusBadRequest, "item quantity must be positive")
			return
		}
		if it.Price < 0 || (it.DiscountPrice != nil && *it.DiscountPrice < 0) {
			h.writeError(w, http.StatusBadRequest, "item price cannot be negative")
			return
		}
		items = append(items, domain.OrderItem{
			ProductName:   it.ProductName,
			ProductSKU:    it.ProductSKU,
			ProductImage:  it.ProductImage,
			MetalType:     it.MetalType,
			Purity:        it.Purity,
			Weight:        it.Weight,
			Price:         it.Price,
			DiscountPrice: it.DiscountPrice,
			Quantity:      it.Quantity,
		})
	}

	order, err := h.store.Create(r.Context(), NewOrderInput{
		CustomerID:    sess.UserID,
		Items:         items,
		ShippingCost:  req.ShippingCost,
		PaymentMethod: req.PaymentMethod,
		Shipping:      req.Shipping,
		Notes:         req.Notes,
	})
	if err != nil {
		h.logger.Error("failed to create order", "error", err, "customer_id", sess.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "customer_id", sess.UserID)
	h.writeJSON(w, http.StatusCreated, order)
}

// HandleMyOrders lists the authenticated customer's own orders.
func (h *Handler) HandleMyOrders(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.store.ListByCustomer(r.Context(), sess.UserID)
	if err != nil {
		h.logger.Error("failed to list customer orders", "error", err, "customer_id", sess.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

// HandleMyOrder returns one of the customer's own orders. An order that
// does not exist and an order owned by someone else produce the same 404.
func (h *Handler) HandleMyOrder(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.store.GetForCustomer(r.Context(), id, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to get customer order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleAdminList returns a page of all orders, optionally status-filtered.
func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = parsed
	}

	status := domain.OrderStatus(r.URL.Query().Get("status"))

	result, err := h.store.ListAdmin(r.Context(), status, page)
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			h.writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to aggregate order stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleAdminGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
	Notes  string             `json:"notes"`
}

// HandleUpdateStatus is the status transition command. All business-rule
// rejections happen here, before any write; the response carries the full
// updated order so callers never need a follow-up fetch.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actor := &domain.UserSummary{ID: sess.UserID, Name: sess.Name}

	order, err := h.store.Transition(r.Context(), id, req.Status, req.Notes, actor)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, ErrUnknownStatus):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrSameStatus), errors.Is(err, ErrTerminalStatus), errors.Is(err, ErrTransitionNotAllowed):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to update order status", "error", err, "order_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if h.producer != nil {
		event := domain.OrderStatusChangedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ToStatus:    order.Status,
			TotalAmount: order.TotalAmount,
			UpdatedBy:   sess.UserID,
		}
		if len(order.Tracking) > 0 {
			event.Timestamp = order.Tracking[0].CreatedAt
		}
		if len(order.Tracking) > 1 {
			event.FromStatus = order.Tracking[1].Status
		}
		if err := h.producer.Publish(r.Context(), order.OrderNumber, event); err != nil {
			// The transition is already committed; the event is best effort.
			h.logger.Error("failed to publish status changed event", "error", err, "order_id", order.ID)
		}
	}

	h.logger.Info("order status updated",
		"order_id", order.ID, "status", order.Status, "updated_by", sess.UserID)
	h.writeJSON(w, http.StatusOK, order)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"message": message})
}

//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gehnabox/orders-service/internal/auth"
	"github.com/gehnabox/orders-service/internal/domain"
	"github.com/gehnabox/orders-service/internal/messaging"
	"github.com/gehnabox/orders-service/internal/orders"
	"github.com/gehnabox/orders-service/internal/users"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedUser(ctx context.Context, t *testing.T, repo *users.Repository, name, email string, role domain.Role) *domain.User {
	t.Helper()
	user, err := repo.Create(ctx, name, email, "secret123", role)
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", email, err)
	}
	return user
}

func placeOrder(ctx context.Context, t *testing.T, repo *orders.Repository, customerID int64, price int64) *domain.Order {
	t.Helper()
	order, err := repo.Create(ctx, orders.NewOrderInput{
		CustomerID: customerID,
		Items: []domain.OrderItem{
			{ProductName: "Gold Ring", ProductSKU: "GR-001", MetalType: "gold", Purity: "22K", Weight: 4.2, Price: price, Quantity: 1},
		},
		PaymentMethod: domain.PaymentMethodCOD,
		Shipping: domain.ShippingAddress{
			Name: "Test Customer", Phone: "9876543210", Email: "test@example.com",
			Address: "12 MG Road", City: "Bengaluru", State: "Karnataka", ZipCode: "560001",
		},
	})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	return order
}

func customerRequest(user *domain.User, method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	sess := &auth.Session{UserID: user.ID, Name: user.Name, Role: user.Role}
	return req.WithContext(auth.ContextWithSession(req.Context(), sess))
}

func TestCheckoutFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	userRepo := users.NewRepository(db)
	customer := seedUser(ctx, t, userRepo, "Priya Sharma", "priya@example.com", domain.RoleCustomer)

	orderRepo := orders.NewRepository(db, nil, "")
	handler := orders.NewHandler(orderRepo, nil, discardLogger())

	reqBody := `{
		"items": [{"productName": "Kundan Jhumka", "productSku": "KJ-104", "metalType": "gold", "purity": "22K", "weight": 8.5, "price": 100000, "quantity": 1}],
		"shippingCost": 500,
		"paymentMethod": "cod",
		"shipping": {"shippingName": "Priya Sharma", "shippingPhone": "9876543210", "shippingEmail": "priya@example.com", "shippingAddress": "12 MG Road", "shippingCity": "Bengaluru", "shippingState": "Karnataka", "shippingZipCode": "560001"}
	}`
	req := customerRequest(customer, http.MethodPost, "/orders", reqBody)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.HandleCreate(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var created domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !strings.HasPrefix(created.OrderNumber, "ORD-") {
		t.Errorf("expected order number with ORD- prefix, got %s", created.OrderNumber)
	}
	if created.Status != domain.OrderStatusPending {
		t.Errorf("expected status pending, got %s", created.Status)
	}
	if created.Subtotal != 100000 {
		t.Errorf("expected subtotal 100000, got %d", created.Subtotal)
	}
	if created.TotalAmount != 100500 {
		t.Errorf("expected total 100500, got %d", created.TotalAmount)
	}
	if len(created.Tracking) != 1 {
		t.Fatalf("expected 1 tracking entry, got %d", len(created.Tracking))
	}
	if created.Tracking[0].Status != domain.OrderStatusPending {
		t.Errorf("expected initial tracking status pending, got %s", created.Tracking[0].Status)
	}
	if created.Tracking[0].UpdatedBy != nil {
		t.Error("initial tracking entry must not carry an actor")
	}

	fetched, err := orderRepo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if fetched.CustomerName != "Priya Sharma" {
		t.Errorf("expected customer name from users row, got %s", fetched.CustomerName)
	}
	if fetched.TotalAmount != created.TotalAmount {
		t.Errorf("DB total mismatch: %d vs %d", fetched.TotalAmount, created.TotalAmount)
	}
}

func TestStatusTransitionFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	userRepo := users.NewRepository(db)
	customer := seedUser(ctx, t, userRepo, "Priya Sharma", "priya@example.com", domain.RoleCustomer)
	staff := seedUser(ctx, t, userRepo, "Anil Kumar", "anil@gehnabox.example", domain.RoleStaff)

	orderRepo := orders.NewRepository(db, nil, "")
	handler := orders.NewHandler(orderRepo, nil, discardLogger())

	order := placeOrder(ctx, t, orderRepo, customer.ID, 100000)

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /orders/admin/{id}/status", handler.HandleUpdateStatus)

	send := func(body string) *httptest.ResponseRecorder {
		req := customerRequest(staff, http.MethodPut, "/orders/admin/"+itoa(order.ID)+"/status", body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := send(`{"status": "confirmed", "notes": "Payment verified"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var updated domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected status confirmed, got %s", updated.Status)
	}
	if updated.TotalAmount != order.TotalAmount {
		t.Errorf("transition must not touch totals: %d vs %d", updated.TotalAmount, order.TotalAmount)
	}
	if len(updated.Tracking) != 2 {
		t.Fatalf("expected 2 tracking entries, got %d", len(updated.Tracking))
	}
	newest := updated.Tracking[0]
	if newest.Status != domain.OrderStatusConfirmed {
		t.Errorf("newest tracking entry must mirror the order status, got %s", newest.Status)
	}
	if newest.Notes != "Payment verified" {
		t.Errorf("expected notes to be recorded, got %q", newest.Notes)
	}
	if newest.UpdatedBy == nil || newest.UpdatedBy.ID != staff.ID || newest.UpdatedBy.Name != "Anil Kumar" {
		t.Errorf("expected tracking entry attributed to the staff actor, got %+v", newest.UpdatedBy)
	}

	// Repeating the same status is rejected and nothing is appended.
	rec = send(`{"status": "confirmed"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d for no-op transition, got %d", http.StatusConflict, rec.Code)
	}
	after, err := orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to fetch order: %v", err)
	}
	if len(after.Tracking) != 2 {
		t.Errorf("rejected transition must not append tracking, got %d entries", len(after.Tracking))
	}

	rec = send(`{"status": "delivered", "notes": "Left with neighbour"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	// Delivered is terminal.
	rec = send(`{"status": "shipped"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d for terminal order, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}

	rec = send(`{"status": "misplaced"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for unknown status, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestCustomerScoping(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	userRepo := users.NewRepository(db)
	priya := seedUser(ctx, t, userRepo, "Priya Sharma", "priya@example.com", domain.RoleCustomer)
	rahul := seedUser(ctx, t, userRepo, "Rahul Verma", "rahul@example.com", domain.RoleCustomer)

	orderRepo := orders.NewRepository(db, nil, "")
	handler := orders.NewHandler(orderRepo, nil, discardLogger())

	priyaOrder := placeOrder(ctx, t, orderRepo, priya.ID, 1000)
	placeOrder(ctx, t, orderRepo, rahul.ID, 2000)

	req := customerRequest(priya, http.MethodGet, "/orders/my-orders", "")
	rec := httptest.NewRecorder()
	handler.HandleMyOrders(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var mine []domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&mine); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 order for priya, got %d", len(mine))
	}
	if mine[0].ID != priyaOrder.ID {
		t.Errorf("expected priya's order, got id %d", mine[0].ID)
	}

	// Another customer's order and a missing order are indistinguishable.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders/my-orders/{id}", handler.HandleMyOrder)

	if _, err := orderRepo.GetForCustomer(ctx, priyaOrder.ID, rahul.ID); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign order, got %v", err)
	}

	foreignReq := customerRequest(rahul, http.MethodGet, "/orders/my-orders/"+itoa(priyaOrder.ID), "")
	foreignRec := httptest.NewRecorder()
	mux.ServeHTTP(foreignRec, foreignReq)

	missingReq := customerRequest(rahul, http.MethodGet, "/orders/my-orders/999999", "")
	missingRec := httptest.NewRecorder()
	mux.ServeHTTP(missingRec, missingReq)

	if foreignRec.Code != http.StatusNotFound || missingRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for both foreign and missing orders, got %d and %d", foreignRec.Code, missingRec.Code)
	}
	if foreignRec.Body.String() != missingRec.Body.String() {
		t.Errorf("foreign and missing orders must be indistinguishable: %s vs %s",
			foreignRec.Body.String(), missingRec.Body.String())
	}
}

func TestAdminListAndStats(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	userRepo := users.NewRepository(db)
	customer := seedUser(ctx, t, userRepo, "Priya Sharma", "priya@example.com", domain.RoleCustomer)
	admin := seedUser(ctx, t, userRepo, "Meera Nair", "meera@gehnabox.example", domain.RoleAdmin)

	orderRepo := orders.NewRepository(db, nil, "")

	placeOrder(ctx, t, orderRepo, customer.ID, 1000)
	o2 := placeOrder(ctx, t, orderRepo, customer.ID, 2000)
	o3 := placeOrder(ctx, t, orderRepo, customer.ID, 3000)

	actor := &domain.UserSummary{ID: admin.ID, Name: admin.Name}
	if _, err := orderRepo.Transition(ctx, o2.ID, domain.OrderStatusConfirmed, "", actor); err != nil {
		t.Fatalf("failed to confirm order: %v", err)
	}
	if _, err := orderRepo.Transition(ctx, o3.ID, domain.OrderStatusCancelled, "Customer request", actor); err != nil {
		t.Fatalf("failed to cancel order: %v", err)
	}

	page, err := orderRepo.ListAdmin(ctx, "", 1)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if page.TotalOrders != 3 || len(page.Orders) != 3 {
		t.Fatalf("expected 3 orders, got total %d with %d on page", page.TotalOrders, len(page.Orders))
	}
	if page.TotalPages != 1 || page.Page != 1 {
		t.Errorf("expected page 1 of 1, got page %d of %d", page.Page, page.TotalPages)
	}
	// Newest first.
	if page.Orders[0].ID != o3.ID {
		t.Errorf("expected newest order first, got id %d", page.Orders[0].ID)
	}

	filtered, err := orderRepo.ListAdmin(ctx, domain.OrderStatusConfirmed, 1)
	if err != nil {
		t.Fatalf("failed to filter orders: %v", err)
	}
	if filtered.TotalOrders != 1 || len(filtered.Orders) != 1 || filtered.Orders[0].ID != o2.ID {
		t.Fatalf("expected only the confirmed order, got %+v", filtered)
	}

	// Revenue counts every order under the default policy.
	stats, err := orderRepo.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to aggregate stats: %v", err)
	}
	if stats.TotalOrders != 3 {
		t.Errorf("expected 3 total orders, got %d", stats.TotalOrders)
	}
	if stats.PendingOrders != 1 || stats.ConfirmedOrders != 1 || stats.CancelledOrders != 1 {
		t.Errorf("unexpected status counts: %+v", stats)
	}
	if stats.TotalRevenue != 6000 {
		t.Errorf("expected revenue 6000 under the default policy, got %d", stats.TotalRevenue)
	}

	strictRepo := orders.NewRepository(db, nil, orders.RevenueExcludeCancelled)
	strictStats, err := strictRepo.Stats(ctx)
	if err != nil {
		t.Fatalf("failed to aggregate stats: %v", err)
	}
	if strictStats.TotalRevenue != 3000 {
		t.Errorf("expected revenue 3000 excluding cancelled, got %d", strictStats.TotalRevenue)
	}
	if strictStats.TotalOrders != 3 {
		t.Errorf("revenue policy must not change order counts, got %d", strictStats.TotalOrders)
	}
}

func TestLoginFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	userRepo := users.NewRepository(db)
	seedUser(ctx, t, userRepo, "Priya Sharma", "priya@example.com", domain.RoleCustomer)

	tokens := auth.NewTokenService("integration-secret", 0)
	handler := users.NewHandler(userRepo, tokens, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email": "priya@example.com", "password": "secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.HandleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected session cookie to be set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	claims, err := tokens.Validate(cookie.Value)
	if err != nil {
		t.Fatalf("issued token failed validation: %v", err)
	}
	if claims.Role != domain.RoleCustomer {
		t.Errorf("expected customer role in claims, got %s", claims.Role)
	}

	// Wrong password gets the same message as a missing account.
	badReq := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email": "priya@example.com", "password": "wrong"}`))
	badRec := httptest.NewRecorder()
	handler.HandleLogin(badRec, badReq)

	if badRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, badRec.Code)
	}
}

func TestStatusEventRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderStatusChanged)
	defer func() { _ = producer.Close() }()

	event := domain.OrderStatusChangedEvent{
		OrderID:     1,
		OrderNumber: "ORD-20250810-A1B2C3D4",
		FromStatus:  domain.OrderStatusPending,
		ToStatus:    domain.OrderStatusConfirmed,
		TotalAmount: 100500,
		UpdatedBy:   42,
		Timestamp:   time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.OrderNumber, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderStatusChanged, "test-analytics",
		discardLogger(), messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	received := make(chan domain.OrderStatusChangedEvent, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		_ = consumer.Consume(consumeCtx, func(ctx context.Context, payload []byte) error {
			var got domain.OrderStatusChangedEvent
			if err := json.Unmarshal(payload, &got); err != nil {
				return err
			}
			received <- got
			return nil
		})
	}()

	select {
	case got := <-received:
		if got.OrderNumber != event.OrderNumber {
			t.Errorf("expected order number %s, got %s", event.OrderNumber, got.OrderNumber)
		}
		if got.ToStatus != domain.OrderStatusConfirmed {
			t.Errorf("expected to_status confirmed, got %s", got.ToStatus)
		}
		if got.TotalAmount != 100500 {
			t.Errorf("expected total 100500, got %d", got.TotalAmount)
		}
	case <-time.After(90 * time.Second):
		t.Fatal("timed out waiting for the event")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

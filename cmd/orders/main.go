package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/gehnabox/orders-service/internal/auth"
	"github.com/gehnabox/orders-service/internal/domain"
	"github.com/gehnabox/orders-service/internal/messaging"
	"github.com/gehnabox/orders-service/internal/orders"
	"github.com/gehnabox/orders-service/internal/telemetry"
	"github.com/gehnabox/orders-service/internal/users"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(15 * time.Second)); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		logger.Error("SESSION_SECRET environment variable is required")
		os.Exit(1)
	}

	revenuePolicy, err := orders.ParseRevenuePolicy(os.Getenv("REVENUE_POLICY"))
	if err != nil {
		logger.Error("invalid revenue policy", "error", err)
		os.Exit(1)
	}

	var producer *messaging.Producer
	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		producer = messaging.NewProducer(brokers, messaging.TopicOrderStatusChanged)
		defer func() { _ = producer.Close() }()
	}

	tokens := auth.NewTokenService(sessionSecret, 24*time.Hour)
	sessions := auth.NewMiddleware(tokens, logger)

	orderRepo := orders.NewRepository(db, orders.DefaultRules, revenuePolicy)
	orderHandler := orders.NewHandler(orderRepo, producer, logger)

	userRepo := users.NewRepository(db)
	userHandler := users.NewHandler(userRepo, tokens, logger)

	customer := sessions.Require(domain.RoleCustomer)
	staff := sessions.Require(domain.RoleAdmin, domain.RoleStaff)
	anyRole := sessions.Require()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", route(userHandler.HandleLogin))
	mux.HandleFunc("POST /auth/logout", route(userHandler.HandleLogout))
	mux.HandleFunc("GET /auth/me", route(anyRole(userHandler.HandleMe)))

	mux.HandleFunc("POST /orders", route(customer(orderHandler.HandleCreate)))
	mux.HandleFunc("GET /orders/my-orders", route(customer(orderHandler.HandleMyOrders)))
	mux.HandleFunc("GET /orders/my-orders/{id}", route(customer(orderHandler.HandleMyOrder)))

	mux.HandleFunc("GET /orders/admin/all", route(staff(orderHandler.HandleAdminList)))
	mux.HandleFunc("GET /orders/admin/stats", route(staff(orderHandler.HandleAdminStats)))
	mux.HandleFunc("GET /orders/admin/{id}", route(staff(orderHandler.HandleAdminGet)))
	mux.HandleFunc("PUT /orders/admin/{id}/status", route(staff(orderHandler.HandleUpdateStatus)))

	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "orders",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", port, "revenue_policy", string(revenuePolicy))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func route(h http.HandlerFunc) http.HandlerFunc {
	return telemetry.WithHTTPRoute(h)
}

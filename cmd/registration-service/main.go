package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-registration/internal/auth"
	"ms-registration/internal/booking"
	"ms-registration/internal/booking/api"
	booking_db "ms-registration/internal/booking/db"
	bookinglock "ms-registration/internal/booking/redis"
	"ms-registration/internal/config"
	"ms-registration/internal/database/migrations"
	events_db "ms-registration/internal/events/db"
	"ms-registration/internal/listener"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/mq"
	"ms-registration/internal/notifier"
	"ms-registration/internal/tickets"
	tickets_db "ms-registration/internal/tickets/db"
	"ms-registration/internal/tickets/ticket_api"
	"ms-registration/internal/upstream"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Registration Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.Options{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		})
		if err := runner.MigrateUp(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
		if version, _, err := runner.Version(); err == nil {
			logger.Info("DATABASE", fmt.Sprintf("Schema at version %d", version))
		}
		_ = runner.Close()
	}

	broker, err := mq.Dial(cfg.AMQP.URL)
	if err != nil {
		logger.Fatal("BROKER", fmt.Sprintf("Failed to connect to broker: %v", err))
	}
	defer broker.Close()
	if err := broker.DeclareTopicExchange(cfg.AMQP.NotificationExchange); err != nil {
		logger.Fatal("BROKER", fmt.Sprintf("Failed to declare exchange: %v", err))
	}
	if err := broker.DeclareTopicExchange(cfg.AMQP.EventExchange); err != nil {
		logger.Fatal("BROKER", fmt.Sprintf("Failed to declare exchange: %v", err))
	}
	logger.Info("BROKER", "✅ Broker connection and exchanges ready")

	notify := notifier.New(broker, cfg.AMQP.NotificationExchange)
	catalogClient := upstream.NewClient(cfg.Upstream.BaseURL, &http.Client{Timeout: cfg.Upstream.Timeout})

	bookingDB := &booking_db.DB{Bun: bunDB}
	replicaDB := &events_db.DB{Bun: bunDB}
	ticketDB := &tickets_db.DB{Bun: bunDB}
	eventLock := bookinglock.NewLock(redisClient, cfg.Redis.LockTTL, cfg.Redis.LockWait)

	ticketService := tickets.NewTicketService(
		ticketDB,
		bookingDB,
		replicaDB,
		catalogClient,
		notify,
		logger,
		cfg.Tickets.GraceWindow,
		cfg.Tickets.FallbackWindow,
		cfg.Tickets.ScanCodeAttempts,
	)

	bookingService := booking.NewBookingService(
		bookingDB,
		replicaDB,
		eventLock,
		notify,
		ticketService,
		logger,
	)

	handler := &api.Handler{
		BookingService: bookingService,
		Logger:         logger,
	}
	ticketHandler := &ticket_api.Handler{
		TicketService: ticketService,
		Logger:        logger,
	}

	logger.Info("LISTENER", "Subscribing to event-catalog notifications")
	deliveries, err := broker.Subscribe(ctx, cfg.AMQP.EventExchange, cfg.AMQP.EventQueue,
		[]string{models.RouteEventPublished, models.RouteEventCancelled}, 1)
	if err != nil {
		logger.Fatal("LISTENER", fmt.Sprintf("Failed to subscribe: %v", err))
	}
	catalogListener := listener.New(replicaDB, bookingService, logger)
	go catalogListener.Run(ctx, deliveries)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	r.Get("/api/events/{eventId}/availability", handler.GetAvailability)
	logger.Info("ROUTER", "Public availability endpoint registered at /api/events/{eventId}/availability")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		logger.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/bookings", func(r chi.Router) {
				r.Post("/", handler.CreateBooking)
				r.Get("/", handler.ListMyBookings)
				r.Delete("/{bookingId}", handler.CancelBooking)
			})
			logger.Info("ROUTER", "Booking routes registered under /api/bookings")

			r.Get("/events/{eventId}/bookings", handler.ListEventBookings)

			r.Route("/tickets", func(r chi.Router) {
				r.Get("/{ticketId}", ticketHandler.ViewTicket)
				r.Post("/{ticketId}/revoke", ticketHandler.RevokeTicket)
				r.Post("/scan", ticketHandler.ScanTicket)
			})
			logger.Info("ROUTER", "Ticket routes registered under /api/tickets")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Registration Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Registration Service shutdown complete")
	}
}

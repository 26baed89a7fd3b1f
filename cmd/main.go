package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/evswap/swap-station/internal/auth"
	"github.com/evswap/swap-station/internal/booking"
	"github.com/evswap/swap-station/internal/cabinet"
	"github.com/evswap/swap-station/internal/codes"
	"github.com/evswap/swap-station/internal/db"
	"github.com/evswap/swap-station/internal/handlers"
	"github.com/evswap/swap-station/internal/inventory"
	"github.com/evswap/swap-station/internal/middleware"
	"github.com/evswap/swap-station/internal/models"
	"github.com/evswap/swap-station/internal/swap"
)

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.WithField(key, v).Warn("invalid duration, using default")
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.WithField(key, v).Warn("invalid number, using default")
	}
	return def
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}
	log.SetFormatter(&log.JSONFormatter{})

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "swapstation"
	}
	database := client.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		cancel()
		log.WithError(err).Fatal("failed to create indexes")
	}
	cancel()
	log.Info("connected to MongoDB")

	stations := &db.MongoCollection{Collection: database.Collection("stations")}
	batteries := &db.MongoCollection{Collection: database.Collection("batteries")}
	bookings := &db.MongoCollection{Collection: database.Collection("bookings")}
	codeCol := &db.MongoCollection{Collection: database.Collection("confirmation_codes")}
	swapTxs := &db.MongoCollection{Collection: database.Collection("swap_transactions")}
	changes := &db.MongoCollection{Collection: database.Collection("inventory_changes")}

	inv := inventory.NewStore(stations, batteries, changes)
	registry := codes.NewRegistry(codeCol, getenvDuration("CODE_TTL", 3*time.Hour))
	lifecycle := booking.NewManager(bookings, inv, registry, getenvDuration("BOOKING_TTL", 3*time.Hour))
	engine := swap.NewEngine(inv, registry, lifecycle, swapTxs, getenvFloat("SOH_RETIRE_THRESHOLD", 70))

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("failed to create auth service")
	}
	authMw := middleware.NewAuthMiddleware(authService)
	rateMw := middleware.NewRateLimitMiddleware()

	bookingHandler := handlers.NewBookingHandler(lifecycle)
	swapHandler := handlers.NewSwapHandler(engine)
	batteryHandler := handlers.NewBatteryHandler(inv)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/booking", bookingHandler.Create)
	mux.HandleFunc("GET /api/booking/my-bookings", bookingHandler.MyBookings)
	mux.HandleFunc("GET /api/booking/my-bookings/{id}", bookingHandler.MyBooking)
	mux.HandleFunc("PATCH /api/booking/my-bookings/{id}/cancel", bookingHandler.Cancel)
	mux.Handle("PATCH /api/booking/{id}/confirm",
		authMw.RequireRole(models.RoleStaff)(http.HandlerFunc(bookingHandler.Confirm)))
	mux.HandleFunc("GET /api/swap-transaction/old-battery", swapHandler.OldBattery)
	mux.HandleFunc("GET /api/swap-transaction/new-battery", swapHandler.NewBattery)
	mux.HandleFunc("POST /api/swap-transaction/swap-by-code", swapHandler.SwapByCode)
	mux.HandleFunc("GET /api/swap-transaction/my", swapHandler.MyTransactions)
	mux.HandleFunc("GET /api/battery/{code}", batteryHandler.Get)

	handler := rateMw.RateLimit(300, 60)(authMw.Authenticate(mux))

	// Background expiry sweep. Failures are logged and retried next cycle.
	sweepEvery := getenvDuration("SWEEP_INTERVAL", 5*time.Minute)
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for range ticker.C {
			sweepCtx, sweepCancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := lifecycle.ExpireStale(sweepCtx, time.Now().UTC()); err != nil {
				log.WithError(err).Error("booking expiry sweep failed")
			}
			sweepCancel()
		}
	}()

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		listener := cabinet.NewListener(broker, inv)
		if err := listener.Start(); err != nil {
			log.WithError(err).Error("cabinet listener unavailable, continuing without it")
		} else {
			defer listener.Stop()
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithField("port", port).Info("HTTP server listening")
	log.Fatal(http.ListenAndServe(":"+port, handler))
}

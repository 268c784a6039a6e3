package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridepay/internal/app"
	"ridepay/internal/config"
	"ridepay/internal/handler"
	"ridepay/internal/middleware"
	"ridepay/internal/mpesa"
	internalRedis "ridepay/internal/redis"
	"ridepay/internal/repository"
	"ridepay/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	logger := app.NewLogger(cfg.Log)

	if missing := cfg.MissingMpesaSettings(); len(missing) > 0 {
		logger.WithField("missing", missing).Warn("M-Pesa settings incomplete, gateway calls will fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.WithError(err).Error("failed to initialize New Relic")
		} else {
			logger.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	// Initialize database when bookings live in Postgres.
	var db *sql.DB
	if cfg.Store.Backend == "postgres" {
		db, err = app.NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to database")
		}
		defer db.Close()
		logger.Info("Connected to PostgreSQL")
	}

	// Initialize Redis with New Relic instrumentation.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = app.NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisClient.Close()
		logger.Info("Connected to Redis")
	}

	// Wire dependencies.
	server, err := wireServer(db, redisClient, nrApp, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to wire server")
	}

	// Start server in goroutine.
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
// redisClient may be nil, in which case locking, token caching, attempt records and
// idempotency are disabled.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, logger *logrus.Logger) (*http.Server, error) {
	// Initialize the booking store.
	store, err := app.NewBookingStore(cfg.Store, db)
	if err != nil {
		return nil, err
	}

	clientOpts := []mpesa.Option{mpesa.WithLogger(logger.WithField("component", "mpesa"))}

	// Initialize Redis stores.
	var (
		lockStore        internalRedis.LockStoreInterface
		idempotencyStore middleware.ResponseStore
		attemptStore     *internalRedis.AttemptStore
	)
	if redisClient != nil {
		lockStore = internalRedis.NewLockStore(redisClient)
		idempotencyStore = internalRedis.NewIdempotencyStore(redisClient)
		attemptStore = internalRedis.NewAttemptStore(redisClient)
		clientOpts = append(clientOpts, mpesa.WithTokenCache(internalRedis.NewTokenCache(redisClient)))
	}

	// Initialize the gateway client.
	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:          cfg.Mpesa.BaseURL,
		ConsumerKey:      cfg.Mpesa.ConsumerKey,
		ConsumerSecret:   cfg.Mpesa.ConsumerSecret,
		ShortCode:        cfg.Mpesa.ShortCode,
		Passkey:          cfg.Mpesa.Passkey,
		CallbackURL:      cfg.Mpesa.CallbackURL,
		AccountReference: cfg.Mpesa.AccountReference,
		TransactionDesc:  cfg.Mpesa.TransactionDesc,
		Timeout:          cfg.Mpesa.HTTPTimeout,
		Location:         cfg.Mpesa.Location,
	}, clientOpts...)

	// Initialize services.
	ledger := service.NewLedger(store, lockStore, logger.WithField("component", "ledger"))
	notificationService := service.NewNotificationService(logger.WithField("component", "notification"))
	recorder := service.NewNewRelicRecorder(nrApp)

	var attempts repository.AttemptRepository
	if attemptStore != nil {
		attempts = attemptStore
	}
	paymentService := service.NewPaymentService(gateway, ledger, attempts, notificationService, recorder, logger.WithField("component", "payment"))
	bookingService := service.NewBookingService(ledger, paymentService, logger.WithField("component", "booking"))

	// Initialize handlers.
	mpesaHandler := handler.NewMpesaHandler(paymentService, logger)
	bookingHandler := handler.NewBookingHandler(bookingService)

	callbackAuth, err := middleware.CallbackAuth(middleware.CallbackAuthConfig{
		Token:        cfg.Mpesa.CallbackToken,
		AllowedCIDRs: cfg.Mpesa.CallbackAllowedCIDRs,
	}, logger.WithField("component", "callback_auth"))
	if err != nil {
		return nil, err
	}

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		MpesaHandler:     mpesaHandler,
		BookingHandler:   bookingHandler,
		CallbackAuth:     callbackAuth,
		IdempotencyStore: idempotencyStore,
		CORSOrigins:      cfg.Server.CORSOrigins,
		NewRelicApp:      nrApp,
		Logger:           logger,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}

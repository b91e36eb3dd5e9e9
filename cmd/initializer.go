package main

import (
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"firebase.google.com/go/messaging"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"rpchubBack/internal/config"
	"rpchubBack/internal/handlers"
	"rpchubBack/internal/models"
	"rpchubBack/internal/repositories"
	"rpchubBack/internal/services"
)

type application struct {
	errorLog *log.Logger
	infoLog  *log.Logger
	logger   *slog.Logger

	db            *sql.DB
	jwtSigningKey string

	paymentRepo      *repositories.PaymentRepository
	subscriptionRepo *repositories.SubscriptionRepository

	paymentService      *services.PaymentService
	subscriptionService *services.SubscriptionService

	paymentHandler      *handlers.PaymentHandler
	webhookHandler      *handlers.WebhookHandler
	subscriptionHandler *handlers.SubscriptionHandler
}

func initializeApp(cfg config.Config, db *sql.DB, rdb *redis.Client, fcm *messaging.Client, errorLog, infoLog *log.Logger, logger *slog.Logger) *application {
	// Repositories
	paymentRepo := repositories.NewPaymentRepository(db)
	webhookRepo := repositories.NewWebhookEventRepository(db)
	historyRepo := repositories.NewPaymentHistoryRepository(db)
	subscriptionRepo := repositories.NewSubscriptionRepository(db)
	userRepo := repositories.NewUserRepository(db)

	// Provider adapters. Каждый включается только при полном наборе
	// credentials — частично сконфигурированный провайдер опаснее
	// отсутствующего.
	adapters := make(map[models.PaymentProvider]services.ProviderAdapter)

	if cfg.Payments.Stripe.SecretKey != "" {
		stripeSvc, err := services.NewStripeService(services.StripeConfig{
			SecretKey:     cfg.Payments.Stripe.SecretKey,
			WebhookSecret: cfg.Payments.Stripe.WebhookSecret,
			SuccessURL:    cfg.Payments.Stripe.SuccessURL,
			CancelURL:     cfg.Payments.Stripe.CancelURL,
			Logger:        logger,
		})
		if err != nil {
			errorLog.Printf("stripe disabled: %v", err)
		} else {
			adapters[models.ProviderStripe] = stripeSvc
		}
	}

	if cfg.Payments.Coinpay.APIKey != "" {
		coinpaySvc, err := services.NewCoinpayService(services.CoinpayConfig{
			APIKey:      cfg.Payments.Coinpay.APIKey,
			IPNSecret:   cfg.Payments.Coinpay.IPNSecret,
			BaseURL:     cfg.Payments.Coinpay.BaseURL,
			CallbackURL: cfg.Payments.Coinpay.CallbackURL,
			SuccessURL:  cfg.Payments.Coinpay.SuccessURL,
			CancelURL:   cfg.Payments.Coinpay.CancelURL,
			Logger:      logger,
		})
		if err != nil {
			errorLog.Printf("coinpay disabled: %v", err)
		} else {
			adapters[models.ProviderCoinpay] = coinpaySvc
		}
	}

	if cfg.Payments.Airbapay.User != "" {
		airbapaySvc, err := services.NewAirbapayService(services.AirbapayConfig{
			Username:         cfg.Payments.Airbapay.User,
			Password:         cfg.Payments.Airbapay.Password,
			TerminalID:       cfg.Payments.Airbapay.TerminalID,
			BaseURL:          cfg.Payments.Airbapay.BaseURL,
			SignPublicKeyPEM: cfg.Payments.Airbapay.SignPublicKey,
			SuccessBackURL:   cfg.Payments.Airbapay.SuccessURL,
			FailureBackURL:   cfg.Payments.Airbapay.FailureURL,
			CallbackURL:      cfg.Payments.Airbapay.CallbackURL,
			Logger:           logger,
		})
		if err != nil {
			errorLog.Printf("airbapay disabled: %v", err)
		} else {
			adapters[models.ProviderAirbapay] = airbapaySvc
		}
	}

	// Services
	subscriptionService := &services.SubscriptionService{
		Repo:        subscriptionRepo,
		PaymentRepo: paymentRepo,
		Logger:      logger,
	}

	var expiry time.Duration
	if cfg.Payments.ExpiryHours > 0 {
		expiry = time.Duration(cfg.Payments.ExpiryHours) * time.Hour
	}

	paymentService := &services.PaymentService{
		DB:           db,
		Adapters:     adapters,
		PaymentRepo:  paymentRepo,
		WebhookRepo:  webhookRepo,
		HistoryRepo:  historyRepo,
		UserRepo:     userRepo,
		Activator:    subscriptionService,
		Cache:        services.NewWebhookCache(rdb),
		Notifier:     services.NewNotificationService(fcm, db, logger),
		ExpiryWindow: expiry,
		Logger:       logger,
	}

	// Handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	webhookHandler := handlers.NewWebhookHandler(paymentService, logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)

	return &application{
		errorLog:            errorLog,
		infoLog:             infoLog,
		logger:              logger,
		db:                  db,
		jwtSigningKey:       cfg.JWT.SigningKey,
		paymentRepo:         paymentRepo,
		subscriptionRepo:    subscriptionRepo,
		paymentService:      paymentService,
		subscriptionService: subscriptionService,
		paymentHandler:      paymentHandler,
		webhookHandler:      webhookHandler,
		subscriptionHandler: subscriptionHandler,
	}
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Printf("Failed to open DB: %v", err)
		return nil, err
	}
	if err = db.Ping(); err != nil {
		log.Printf("Failed to ping DB: %v", err)
		return nil, err
	}
	db.SetMaxIdleConns(35)
	log.Println("Successfully connected to database")
	return db, nil
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

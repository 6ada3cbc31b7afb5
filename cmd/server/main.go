package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lumenbank/backend/internal/config"
	"github.com/lumenbank/backend/internal/database"
	"github.com/lumenbank/backend/internal/handlers"
	mW "github.com/lumenbank/backend/internal/middleware"
	"github.com/lumenbank/backend/internal/services"
	"github.com/lumenbank/backend/internal/storage"
	"github.com/spf13/viper"
)

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	viper.BindEnv("paylink.secret", "PAYLINK_SECRET")
	viper.BindEnv("paylink.base_url", "PAYLINK_BASE_URL")
	viper.BindEnv("paylink.max_age", "PAYLINK_MAX_AGE")

	viper.BindEnv("account.opening_balance", "ACCOUNT_OPENING_BALANCE")
	viper.BindEnv("storage.driver", "STORAGE_DRIVER")
	viper.BindEnv("storage.snapshot_path", "STORAGE_SNAPSHOT_PATH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	paylinkCfg := config.LoadPaylinkConfig()
	storageCfg := config.LoadStorageConfig()
	accountCfg := config.LoadAccountConfig()

	if paylinkCfg.Secret == "" {
		log.Fatal("paylink.secret is required (PAYLINK_SECRET)")
	}

	// Persistence: Postgres for real deployments, the JSON snapshot store
	// for single-node and development setups.
	var (
		ledger   services.Ledger
		invoices services.Invoices
	)
	switch storageCfg.Driver {
	case "json":
		store, err := storage.NewJSONStore(storageCfg.SnapshotPath)
		if err != nil {
			log.Fatalf("Failed to open JSON store: %v", err)
		}
		ledger = store
		invoices = store
		log.Printf("Using JSON snapshot store at %s", storageCfg.SnapshotPath)
	default:
		db := database.InitDatabase()
		defer db.Close()
		ledgerSvc := services.NewLedgerService(db)
		ledger = ledgerSvc
		invoices = services.NewInvoiceService(db, ledgerSvc)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	paylinkService := services.NewPaylinkService(
		[]byte(paylinkCfg.Secret), paylinkCfg.BaseURL, paylinkCfg.MaxAge,
		redisClient, invoices)
	statementService := services.NewStatementService(ledger)
	qrService := services.NewQRService()
	authService := services.NewAuthService(ledger, redisClient, accountCfg.OpeningBalance)

	accountHandler := handlers.NewAccountHandler(ledger, statementService)
	transferHandler := handlers.NewTransferHandler(ledger)
	invoiceHandler := handlers.NewInvoiceHandler(invoices, paylinkService, qrService)
	paylinkHandler := handlers.NewPaylinkHandler(ledger, invoices, paylinkService, qrService)
	qrHandler := handlers.NewQRHandler(qrService)

	mW.InitAuthMiddleware(redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Static assets for the hosted payment page
	r.Handle("/static/*", http.StripPrefix("/static/",
		mW.StaticFileServer("./static")))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.Me)

			r.Get("/accounts/balance", accountHandler.GetBalance)
			r.Post("/accounts/deposit", accountHandler.Deposit)
			r.Post("/accounts/withdraw", accountHandler.Withdraw)

			r.Post("/transfers", transferHandler.Create)
			r.Get("/transactions", accountHandler.Transactions)
			r.Get("/statement.csv", accountHandler.Statement)

			r.Post("/invoices", invoiceHandler.Create)
			r.Get("/invoices", invoiceHandler.List)
			r.Get("/invoices/{invoiceID}", invoiceHandler.Get)
			r.Post("/invoices/{invoiceID}/pay", invoiceHandler.Pay)
			r.Post("/invoices/{invoiceID}/cancel", invoiceHandler.Cancel)

			r.Post("/paylinks", paylinkHandler.Create)
			r.Post("/paylinks/preview", paylinkHandler.Preview)
			r.Post("/paylinks/pay", paylinkHandler.Pay)

			r.Post("/qr/generate", qrHandler.Generate)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/webprogramming/estate/backend/cache"
	"github.com/webprogramming/estate/backend/config"
	"github.com/webprogramming/estate/backend/controllers"
	"github.com/webprogramming/estate/backend/metrics"
	"github.com/webprogramming/estate/backend/middleware"
	"github.com/webprogramming/estate/backend/routes"
	"github.com/webprogramming/estate/backend/store"
	"github.com/webprogramming/estate/backend/utils"
)

func loadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
}

func main() {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := utils.NewLogger(os.Stdout, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	client, err := config.ConnectDB(ctx, cfg.MongoURI, logger)
	if err != nil {
		return err
	}
	defer config.CloseDBConnection(client, logger)

	db := client.Database(cfg.Database)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	var phones store.PhoneCipher
	if cfg.EncryptionKey != "" {
		cipher, err := utils.NewFieldCipher(cfg.EncryptionKey)
		if err != nil {
			return err
		}
		phones = cipher
	} else {
		logger.Warn("ENCRYPTION_KEY not set, phone numbers are stored in plain text")
	}

	var listingCache cache.ListingCache = cache.Nop{}
	if cfg.CacheEnabled() {
		redisClient, err := config.ConnectRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		listingCache = cache.NewRedisListingCache(redisClient, cfg.CacheTTL, phones, logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	tokens := utils.NewTokenManager(cfg.JWTSecret)
	env := &controllers.Env{
		Users:         store.NewMongoUserStore(db),
		Listings:      store.NewMongoListingStore(db, phones),
		Cache:         listingCache,
		Tokens:        tokens,
		Metrics:       collector,
		Logger:        logger,
		SecureCookies: cfg.IsProduction(),
	}

	authLimiter := middleware.NewIPRateLimiter(cfg.AuthRatePerMin, 5*time.Minute, logger)
	defer authLimiter.Stop()

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	routes.Routes(router, env, tokens, authLimiter)

	corsOptions := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           corsOptions.Handler(router),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server running", "addr", server.Addr, "env", cfg.Environment, "cache", cfg.CacheEnabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down server", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}

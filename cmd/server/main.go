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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/nmarkou/eshop/internal/checkout"
	"github.com/nmarkou/eshop/internal/config"
	"github.com/nmarkou/eshop/internal/courier"
	"github.com/nmarkou/eshop/internal/es"
	"github.com/nmarkou/eshop/internal/handlers"
	"github.com/nmarkou/eshop/internal/logging"
	"github.com/nmarkou/eshop/internal/mykafka"
	"github.com/nmarkou/eshop/internal/payment"
	"github.com/nmarkou/eshop/internal/service/token"
	"github.com/nmarkou/eshop/internal/session"
	"github.com/nmarkou/eshop/internal/settings"
	httpserver "github.com/nmarkou/eshop/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)
	slog.SetDefault(logger)

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}
	if err := settings.Seed(db); err != nil {
		log.Fatalf("settings seed error: %v", err)
	}
	resolver := settings.NewResolver(db)

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	prod, err := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	if err != nil {
		logger.Warn("kafka disabled", "error", err)
		prod = nil
	}

	esClient, err := es.NewClient(configuration)
	if err != nil {
		logger.Warn("search disabled", "error", err)
		esClient = nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     configuration.REDIS_ADDR,
		Password: configuration.REDIS_PASSWORD,
	})
	sessions := session.NewRedisStore(redisClient)

	gateway := &payment.VivaGateway{
		ClientID:     configuration.VIVA_CLIENT_ID,
		ClientSecret: configuration.VIVA_CLIENT_SECRET,
		SourceCode:   configuration.VIVA_SOURCE_CODE,
	}

	checkoutSvc := &checkout.Service{
		DB:      db,
		Gateway: gateway,
		Log:     logger,
		BaseURL: configuration.PUBLIC_BASE_URL,
	}

	couriers := map[string]courier.Courier{
		"acs": &courier.ACS{
			APIKey:          configuration.ACS_API_KEY,
			CompanyID:       configuration.ACS_COMPANY_ID,
			CompanyPassword: configuration.ACS_COMPANY_PASSWORD,
			UserID:          configuration.ACS_USER_ID,
			UserPassword:    configuration.ACS_USER_PASSWORD,
			Origin:          "Athens, Greece",
		},
		"geniki": &courier.Geniki{
			Username:       configuration.GENIKI_USERNAME,
			Password:       configuration.GENIKI_PASSWORD,
			ApplicationKey: configuration.GENIKI_APPLICATION_KEY,
		},
	}

	authHandler := &handlers.AuthHandler{
		DB:            db,
		JWTSecret:     jwtSecret,
		RefreshSecret: refreshSecret,
		Producer:      prod,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := logging.IntoContext(c.Request().Context(), logger)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})

	deps := httpserver.Deps{
		DB:          db,
		AuthHandler: authHandler,
		GoogleHandler: &handlers.GoogleHandler{
			Auth: authHandler,
			OAuth: &oauth2.Config{
				ClientID:     configuration.GOOGLE_CLIENT_ID,
				ClientSecret: configuration.GOOGLE_CLIENT_SECRET,
				RedirectURL:  configuration.GOOGLE_REDIRECT_URL,
				Scopes:       []string{"openid", "email", "profile"},
				Endpoint:     google.Endpoint,
			},
		},
		ProductHandler: &handlers.ProductHandler{DB: db, Producer: prod, ES: esClient, Index: "product"},
		CartHandler:    &handlers.CartHandler{DB: db, Sessions: sessions, Producer: prod, JWTSecret: jwtSecret},
		PaymentHandler: &handlers.PaymentHandler{
			DB:        db,
			Checkout:  checkoutSvc,
			Sessions:  sessions,
			Settings:  resolver,
			Producer:  prod,
			JWTSecret: jwtSecret,
		},
		OrderHandler:    &handlers.OrderHandler{DB: db, JWTSecret: jwtSecret},
		DeliveryHandler: &handlers.DeliveryHandler{DB: db, Sessions: sessions, Couriers: couriers, JWTSecret: jwtSecret},
		SearchHandler:   &handlers.SearchHandler{ES: esClient, Index: "product"},
		ServiceHandler:  &token.TokenService{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret},
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := prod.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/otpchat/internal/api"
	"github.com/wuwenbin0122/otpchat/internal/auth"
	"github.com/wuwenbin0122/otpchat/internal/chat"
	"github.com/wuwenbin0122/otpchat/internal/db"
	"github.com/wuwenbin0122/otpchat/internal/mail"
	"github.com/wuwenbin0122/otpchat/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	store, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("store: failed to open", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("store: close error", zap.Error(err))
		}
	}()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("store: ensure schema", zap.Error(err))
	}

	mailer, err := mail.New(cfg.Mail, logger)
	if err != nil {
		logger.Fatal("mail: failed to initialise", zap.Error(err))
	}

	authService, err := auth.NewService(auth.Options{
		ActivationSecret: cfg.Auth.ActivationSecret,
		SessionSecret:    cfg.Auth.SessionSecret,
		VerifyTTL:        cfg.Auth.VerifyTokenTTL,
		SessionTTL:       cfg.Auth.SessionTokenTTL,
		Subject:          cfg.Mail.Subject,
	}, store, mailer, logger)
	if err != nil {
		logger.Fatal("auth: failed to initialise", zap.Error(err))
	}

	chatService := chat.NewService(store, logger)

	router := setupRouter(cfg, logger, api.NewHandler(authService, chatService, store, logger))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server crashed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}

func setupRouter(cfg *utils.Config, logger *zap.Logger, handler *api.Handler) *gin.Engine {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger), api.CORS(cfg.CORSOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	handler.RegisterRoutes(router)

	return router
}

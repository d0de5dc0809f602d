package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lukaiqi/educhat/internal/api"
	"github.com/lukaiqi/educhat/internal/auth"
	"github.com/lukaiqi/educhat/internal/chat"
	"github.com/lukaiqi/educhat/internal/db"
	"github.com/lukaiqi/educhat/internal/llm"
	"github.com/lukaiqi/educhat/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		sugar.Fatalw("postgres connect failed", "error", err)
	}
	defer postgres.Close()

	if err := postgres.Ping(ctx); err != nil {
		sugar.Fatalw("postgres ping failed", "error", err)
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		sugar.Fatalw("postgres ensure schema failed", "error", err)
	}

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		sugar.Fatalw("mongo connect failed", "error", err)
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			sugar.Warnw("mongo close failed", "error", err)
		}
	}()

	if err := mongoStore.EnsureCollections(ctx); err != nil {
		sugar.Fatalw("mongo ensure collections failed", "error", err)
	}

	users := db.NewUsers(postgres)

	authService, err := auth.NewService(cfg.JWTSecret, 7*24*time.Hour, users)
	if err != nil {
		sugar.Fatalw("auth service init failed", "error", err)
	}

	conversations := chat.NewMongoStore(mongoStore)
	gateway := llm.NewClient(cfg.OpenAI, sugar)
	pipeline := chat.NewPipeline(conversations, gateway, cfg.OpenAI.RequestTimeout, sugar)

	router := setupRouter(authService, users, conversations, pipeline, sugar)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server crashed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("graceful shutdown failed", "error", err)
	}

	sugar.Info("server stopped cleanly")
}

func setupRouter(authService *auth.Service, users api.UserDirectory, store chat.ConversationStore, pipeline *chat.Pipeline, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(authService, users, store, pipeline, logger).RegisterRoutes(router)

	return router
}

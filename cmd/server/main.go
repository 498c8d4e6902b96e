package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"go-channel-chat/internal/channel"
	"go-channel-chat/internal/config"
	"go-channel-chat/internal/db"
	"go-channel-chat/internal/logger"
	"go-channel-chat/internal/message"
	myMiddleware "go-channel-chat/internal/middleware"
	"go-channel-chat/internal/realtime"
	"go-channel-chat/internal/user"
)

func main() {
	log := logger.New()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	// Platform layer
	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	log.Info("connected to postgres")

	if err := database.AutoMigrate(); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("database schema initialized")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	log.Info("connected to redis")

	// User feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// Channel feature
	channelRepo := channel.NewRepository(database.Conn)
	members := channel.NewMembers(channelRepo, rdb, log)
	channelHandler := channel.NewHandler(channelRepo, members)

	// Message feature
	messageRepo := message.NewRepository(database.Conn)
	historyService := message.NewHistoryService(messageRepo, members)
	sendService := message.NewSendService(messageRepo, members)
	messageHandler := message.NewHandler(historyService, sendService)

	// Realtime core
	hub := realtime.NewHub()
	presence := realtime.NewRegistry()
	rooms := realtime.NewRoomSet(log)
	router := realtime.NewRouter(hub, presence, rooms, userService, log)
	wsHandler := realtime.NewHandler(router, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// Public routes
	r.Post("/api/auth/register", userHandler.Register)
	r.Post("/api/auth/login", userHandler.Login)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/ws", wsHandler.ServeWs)

		r.Post("/api/channels", channelHandler.Create)
		r.Get("/api/channels", channelHandler.ListMine)
		r.Post("/api/channels/{channelID}/join", channelHandler.Join)
		r.Post("/api/channels/{channelID}/leave", channelHandler.Leave)

		r.Get("/api/messages/{channelID}", messageHandler.GetHistory)
		r.Post("/api/messages/{channelID}", messageHandler.PostMessage)
	})

	log.Info("server starting", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

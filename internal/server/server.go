package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Vinith467/realtime-tracking/internal/auth"
	"github.com/Vinith467/realtime-tracking/internal/config"
	"github.com/Vinith467/realtime-tracking/internal/liveview"
	"github.com/Vinith467/realtime-tracking/internal/store"
	"github.com/Vinith467/realtime-tracking/internal/stream"
	"github.com/Vinith467/realtime-tracking/internal/tracking"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	Store  store.Store
	Redis  *redis.Client
	Stream *stream.Hub
	Live   *liveview.Manager
	Log    zerolog.Logger
}

func NewServer(cfg config.Config, st store.Store, redisClient *redis.Client, log zerolog.Logger) (*Server, error) {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	hub := stream.NewHub(redisClient, log)

	s := &Server{
		App:    app,
		Cfg:    cfg,
		Store:  st,
		Redis:  redisClient,
		Stream: hub,
		Live:   liveview.NewManager(st, hub.Broadcast, log),
		Log:    log,
	}

	if err := registerRoutes(s); err != nil {
		return nil, err
	}
	return s, nil
}

func registerRoutes(s *Server) error {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authSvc, err := auth.NewService(s.Cfg.JWTSecret, s.Cfg.OperatorUser, s.Cfg.OperatorPassword)
	if err != nil {
		return err
	}
	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), authSvc)
	tracking.RegisterRoutes(s.App.Group("/api"), tracking.NewService(s.Store, s.Log), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.Live)
	return nil
}

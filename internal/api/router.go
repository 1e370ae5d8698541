package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

type RouterDeps struct {
	Handler   *Handler
	WS        *ws.Server
	Validator *auth.Validator
	Limiter   *RateLimiter // optional
	Logger    *zap.Logger
}

func NewApp(d RouterDeps) *fiber.App {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(RequestLogger(d.Logger))

	h := d.Handler
	app.Get("/v1/health", h.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authed := []fiber.Handler{JWTAuth(d.Validator)}
	if d.Limiter != nil {
		authed = append(authed, d.Limiter.ByUser())
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", append(authed, websocket.New(d.WS.Handler()))...)

	v1 := app.Group("/v1", authed...)
	v1.Get("/presence/:user_id", h.Presence)
	v1.Get("/conversations/:peer/pins", h.DirectPins)
	v1.Get("/conversations/:peer/messages", h.DirectHistory)
	v1.Get("/groups/:group_id/pins", h.GroupPins)
	v1.Get("/groups/:group_id/messages", h.GroupHistory)
	v1.Post("/calls/:id/finalize", h.FinalizeCall)

	return app
}

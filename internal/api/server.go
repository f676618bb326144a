package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"github.com/vanchien08/thunderchat/internal/metrics"
	"github.com/vanchien08/thunderchat/internal/ws"
)

// NewServer builds the fiber app with the RPC surface, the metrics
// endpoint and the websocket upgrade route.
func NewServer(h *Handler, wsrv *ws.Server) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	rpc := app.Group("/rpc")

	rpc.Post("/messages", h.CreateMessage)
	rpc.Patch("/messages/:id/status", h.UpdateMessageStatus)
	rpc.Get("/messages", h.GetNewerMessages)
	rpc.Get("/groups/:id/members/:uid", h.FindMemberInGroupChat)
	rpc.Post("/pins/toggle", h.TogglePin)
	rpc.Get("/pins", h.ListPins)
	rpc.Post("/notifications/user/:id", h.SendNotificationToUser)
	rpc.Post("/notifications/endpoints", h.RegisterPushEndpoint)
	rpc.Post("/index/sync", h.SyncDataToIndex)

	app.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsrv.Handler()))

	return app
}

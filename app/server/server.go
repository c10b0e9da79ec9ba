package server

import (
	"context"
	"log/slog"

	"souqlive/app/client/memstore"
	"souqlive/app/config"
	"souqlive/app/model"
	"souqlive/app/service/lifecycle"
	"souqlive/app/service/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"
)

// Service is the thin ingress boundary: it accepts thread_id + raw turn
// text and exposes rehydration for reconnecting clients. Transport
// proper (websockets, auth) lives outside this backend.
type Service struct {
	cfg          *config.Config
	app          *fiber.App
	queueSvc     *queue.Service
	lifecycleSvc *lifecycle.Service
	memClient    *memstore.Client
}

type turnRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

func New(di *do.Injector) (*Service, error) {
	s := &Service{
		cfg:          do.MustInvoke[*config.Config](di),
		queueSvc:     do.MustInvoke[*queue.Service](di),
		lifecycleSvc: do.MustInvoke[*lifecycle.Service](di),
		memClient:    do.MustInvoke[*memstore.Client](di),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s.app.Post("/api/turn", s.handleTurn)
	s.app.Get("/api/threads/:id", s.handleThreadInfo)
	s.app.Get("/api/threads/:id/context", s.handleContext)
	s.app.Post("/api/threads/:id/reconnect", s.handleReconnect)
	s.app.Get("/healthz", s.handleHealth)

	return s, nil
}

func (s *Service) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	if err := s.app.Listen(s.cfg.Server.Listen); err != nil {
		slog.Error("Server stopped", "error", err, "telegram", true)
	}
}

// handleTurn enqueues the turn and returns immediately; the engine's
// workers pick it up, so a slow backend never blocks the transport.
func (s *Service) handleTurn(c *fiber.Ctx) error {
	var req turnRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if req.ThreadID == "" || req.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "thread_id and text are required")
	}

	s.queueSvc.Add(req.ThreadID, model.RoleUser, req.Text)

	info, _ := s.lifecycleSvc.ThreadInfo(req.ThreadID)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"queued": true,
		"thread": info,
	})
}

func (s *Service) handleThreadInfo(c *fiber.Ctx) error {
	info, known := s.lifecycleSvc.ThreadInfo(c.Params("id"))

	return c.JSON(fiber.Map{
		"thread":    info,
		"in_memory": known,
	})
}

func (s *Service) handleContext(c *fiber.Ctx) error {
	result := s.lifecycleSvc.FusedContext(c.Context(), c.Params("id"))

	return c.JSON(fiber.Map{
		"context": result.Text,
		"report":  result.Report,
	})
}

func (s *Service) handleReconnect(c *fiber.Ctx) error {
	info := s.lifecycleSvc.Rehydrate(c.Context(), c.Params("id"))

	return c.JSON(fiber.Map{
		"thread": info,
	})
}

func (s *Service) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"memory_breaker": s.memClient.BreakerState(),
	})
}

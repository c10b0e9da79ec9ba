package engine

import (
	"context"
	"log/slog"
	"time"

	"souqlive/app/config"
	"souqlive/app/model"
	"souqlive/app/service/lifecycle"
	"souqlive/app/service/queue"
	"souqlive/app/service/reply"

	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const workerCount = 8

// Service pumps turns from the inbound queue through the lifecycle
// manager and the downstream agent. Worker goroutines run threads in
// parallel; ordering within a thread is enforced by the lifecycle.
type Service struct {
	cfg          *config.Config
	lifecycleSvc *lifecycle.Service
	queueSvc     *queue.Service
	responder    reply.Responder
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:          do.MustInvoke[*config.Config](di),
		lifecycleSvc: do.MustInvoke[*lifecycle.Service](di),
		queueSvc:     do.MustInvoke[*queue.Service](di),
		responder:    do.MustInvoke[*reply.Service](di),
	}, nil
}

func (s *Service) Run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)

	for range workerCount {
		g.Go(func() error {
			return s.runWorker(ctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("Engine stopped", "error", err, "telegram", true)
	}
}

func (s *Service) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-s.queueSvc.Channel():
			if !ok {
				return context.Canceled
			}

			start := time.Now()
			agentReply, err := s.HandleTurn(ctx, msg)
			if err != nil {
				slog.Warn("HandleTurn error", "thread_id", msg.ThreadID, "error", err)
				continue
			}

			slog.Info("Processed turn",
				"thread_id", msg.ThreadID,
				"role", msg.Role,
				"replied", agentReply != nil,
				"duration", time.Since(start))
		}
	}
}

// HandleTurn ingests one turn and, for user turns, asks the downstream
// agent for a reply. A responder failure degrades to "no reply" and
// never fails the turn itself.
func (s *Service) HandleTurn(ctx context.Context, msg queue.TurnMessage) (*reply.AgentReply, error) {
	result := s.lifecycleSvc.ProcessTurn(ctx, msg.ThreadID, msg.Role, msg.Text, "", "")

	if msg.Role != model.RoleUser {
		return nil, nil
	}

	agentReply, err := s.responder.Respond(ctx, reply.Request{
		ThreadID:      msg.ThreadID,
		Message:       msg.Text,
		FusedContext:  result.Context.Text,
		ActiveDomain:  result.ActiveDomain,
		CurrentIntent: result.CurrentIntent,
	})
	if err != nil {
		slog.Warn("Responder failed, skipping reply", "thread_id", msg.ThreadID, "error", err)
		return nil, nil
	}

	s.lifecycleSvc.UpdateRouting(msg.ThreadID, agentReply.ActiveDomain, agentReply.CurrentIntent)

	// Archive the assistant's own turn through the same path.
	s.lifecycleSvc.ProcessTurn(ctx, msg.ThreadID, model.RoleAssistant, agentReply.Response,
		agentReply.ActiveDomain, agentReply.CurrentIntent)

	return agentReply, nil
}

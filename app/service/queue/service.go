package queue

import (
	"log/slog"

	"souqlive/app/model"

	"github.com/samber/do"
)

const bufferSize = 256

var _ do.Shutdownable = (*Service)(nil)

// Service is the inbound turn queue between the transport layer and the
// engine. Overflow drops the turn with a warning rather than blocking
// the transport.
type Service struct {
	queue chan TurnMessage
}

type TurnMessage struct {
	ThreadID string
	Role     model.Role
	Text     string
}

func New(_ *do.Injector) (*Service, error) {
	return &Service{
		queue: make(chan TurnMessage, bufferSize),
	}, nil
}

func (s *Service) Add(threadID string, role model.Role, text string) {
	defer func() {
		if r := recover(); r != nil {

		}
	}()

	select {
	case s.queue <- TurnMessage{threadID, role, text}:
	default:
		slog.Warn("turn queue is full", "thread_id", threadID)
	}
}

func (s *Service) Channel() <-chan TurnMessage {
	return s.queue
}

func (s *Service) Shutdown() error {
	close(s.queue)

	return nil
}

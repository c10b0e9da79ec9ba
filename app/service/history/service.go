package history

import (
	"sync"

	"souqlive/app/model"

	"github.com/samber/do"
)

// Service holds the in-process turn buffers, one per thread. Buffers
// grow between summarization triggers only; the lifecycle manager must
// truncate after every trigger to keep them bounded.
type Service struct {
	mu      sync.RWMutex
	buffers map[string][]model.Turn
}

func New(_ *do.Injector) (*Service, error) {
	return &Service{
		buffers: map[string][]model.Turn{},
	}, nil
}

func (s *Service) Append(threadID string, turn model.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffers[threadID] = append(s.buffers[threadID], turn)
}

// Recent returns the most recent maxTurns turns in chronological order.
// An unknown thread is treated as empty.
func (s *Service) Recent(threadID string, maxTurns int) []model.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[threadID]
	if maxTurns > 0 && len(buf) > maxTurns {
		buf = buf[len(buf)-maxTurns:]
	}

	out := make([]model.Turn, len(buf))
	copy(out, buf)
	return out
}

// All returns every buffered turn for the thread in order.
func (s *Service) All(threadID string) []model.Turn {
	return s.Recent(threadID, 0)
}

func (s *Service) Len(threadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.buffers[threadID])
}

// Truncate drops all but the last keepLast turns, called after a rolling
// summary has archived the older ones.
func (s *Service) Truncate(threadID string, keepLast int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[threadID]
	if keepLast <= 0 {
		delete(s.buffers, threadID)
		return
	}
	if len(buf) <= keepLast {
		return
	}

	kept := make([]model.Turn, keepLast)
	copy(kept, buf[len(buf)-keepLast:])
	s.buffers[threadID] = kept
}

// Drop releases the whole buffer, used when a thread is evicted.
func (s *Service) Drop(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buffers, threadID)
}

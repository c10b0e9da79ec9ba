package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"souqlive/app/client/memstore"
	"souqlive/app/config"
	"souqlive/app/model"
	"souqlive/app/service/extract"
	"souqlive/app/service/fusion"
	"souqlive/app/service/history"
	"souqlive/app/service/snapshot"
	"souqlive/app/service/summarize"

	"github.com/robfig/cron/v3"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Service)(nil)

// Service owns the per-thread conversation state machine: it ingests
// turns, fires rolling summarization every N turns, fuses the context
// handed to the downstream agent, persists snapshots and rotates stale
// threads out of memory. Each thread runs as its own mailbox actor.
type Service struct {
	cfg          *config.Config
	historySvc   *history.Service
	summarizeSvc *summarize.Service
	fusionSvc    *fusion.Service
	snapshotSvc  *snapshot.Service
	memClient    *memstore.Client

	mu      sync.RWMutex
	threads map[string]*thread

	now  func() time.Time
	cron *cron.Cron
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:          do.MustInvoke[*config.Config](di),
		historySvc:   do.MustInvoke[*history.Service](di),
		summarizeSvc: do.MustInvoke[*summarize.Service](di),
		fusionSvc:    do.MustInvoke[*fusion.Service](di),
		snapshotSvc:  do.MustInvoke[*snapshot.Service](di),
		memClient:    do.MustInvoke[*memstore.Client](di),
		threads:      map[string]*thread{},
		now:          time.Now,
	}, nil
}

// ProcessTurn ingests one turn and returns the fused context for the
// downstream agent. It never fails the turn: every degraded path still
// yields a usable (possibly empty) context.
func (s *Service) ProcessTurn(ctx context.Context, threadID string, role model.Role, text, domain, intent string) TurnResult {
	var result TurnResult

	s.post(ctx, threadID, func(th *thread) {
		result = s.runTurn(ctx, th, role, text, domain, intent)
	})

	return result
}

func (s *Service) runTurn(ctx context.Context, th *thread, role model.Role, text, domain, intent string) (result TurnResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Turn processing panicked, continuing with empty context",
				"thread_id", th.id,
				"panic", r,
				"telegram", true)
			result = TurnResult{}
		}
	}()

	turn := model.Turn{
		Role:      role,
		Content:   text,
		Domain:    domain,
		CreatedAt: s.now(),
	}
	if turn.Domain == "" {
		turn.Domain = th.activeDomain
	}

	s.historySvc.Append(th.id, turn)
	th.turnCount++
	th.lastActivity = s.now()

	// Routing is decided elsewhere; the lifecycle only preserves the
	// last known assignment.
	if domain != "" {
		th.activeDomain = domain
	}
	if intent != "" {
		th.currentIntent = intent
	}

	if role == model.RoleUser {
		th.facts.Merge(extract.Extract(text))
	}

	s.memClient.Write(ctx, th.id, turn)

	summarized := false
	if th.turnCount%s.cfg.Conversation.SummarizeIntervalTurns == 0 {
		summarized = s.rollSummary(th)
	}

	fused := s.fusionSvc.Fuse(ctx, th.id, th.facts, s.currentSummary(th))

	s.persist(ctx, th)

	return TurnResult{
		Context:       fused,
		ActiveDomain:  th.activeDomain,
		CurrentIntent: th.currentIntent,
		TurnCount:     th.turnCount,
		Summarized:    summarized,
	}
}

// UpdateRouting stores the router's domain/intent suggestion after a
// response, so both survive summarization and rehydration.
func (s *Service) UpdateRouting(threadID, domain, intent string) {
	s.mu.RLock()
	th := s.threads[threadID]
	s.mu.RUnlock()

	if th == nil {
		return
	}

	th.post(func() {
		if domain != "" {
			th.activeDomain = domain
		}
		if intent != "" {
			th.currentIntent = intent
		}
	})
}

// rollSummary archives the buffered window into a new rolling summary
// and truncates the buffer. On summarizer failure the buffer is left
// intact so the raw turns keep serving fusion until the next trigger.
func (s *Service) rollSummary(th *thread) bool {
	turns := s.historySvc.All(th.id)
	if len(turns) == 0 {
		return false
	}

	text := s.summarizeSvc.Summarize(turns, s.cfg.Conversation.MaxSummarySentences)
	if text == "" {
		slog.Warn("Summarization produced no output, keeping raw buffer", "thread_id", th.id)
		return false
	}

	th.summaries = append(th.summaries, model.RollingSummary{
		Text:      text,
		FromTurn:  th.turnCount - len(turns) + 1,
		ToTurn:    th.turnCount,
		CreatedAt: s.now(),
	})

	s.historySvc.Truncate(th.id, s.cfg.Conversation.KeepRecentTurns)

	slog.Debug("Rolled summary",
		"thread_id", th.id,
		"from_turn", th.turnCount-len(turns)+1,
		"to_turn", th.turnCount,
		"chars", len(text))

	return true
}

// currentSummary is the newest summaries joined oldest-first, bounded by
// the summary character cap so fusion never sees unbounded text. The
// budget counts runes, matching the summarizer's own cap.
func (s *Service) currentSummary(th *thread) string {
	budget := s.cfg.Conversation.MaxSummaryChars

	var parts []string
	total := 0
	for i := len(th.summaries) - 1; i >= 0; i-- {
		text := th.summaries[i].Text
		if total+utf8.RuneCountInString(text) > budget {
			break
		}
		parts = append([]string{text}, parts...)
		total += utf8.RuneCountInString(text)
	}

	if len(parts) == 0 && len(th.summaries) > 0 {
		last := th.summaries[len(th.summaries)-1].Text
		runes := []rune(last)
		if len(runes) > budget {
			runes = runes[:budget]
		}
		return string(runes)
	}

	return strings.Join(parts, " ")
}

// post runs job on the thread's runner goroutine, re-acquiring when the
// thread is evicted between lookup and delivery so work is never lost.
func (s *Service) post(ctx context.Context, threadID string, job func(th *thread)) {
	for {
		th := s.acquire(ctx, threadID)
		if th.post(func() { job(th) }) {
			return
		}
	}
}

// acquire returns the in-memory thread, rehydrating it from the latest
// snapshot when it is unknown (first turn, reconnect, or post-eviction).
func (s *Service) acquire(ctx context.Context, threadID string) *thread {
	s.mu.RLock()
	th := s.threads[threadID]
	s.mu.RUnlock()

	if th != nil {
		return th
	}

	snap, found, err := s.snapshotSvc.Rehydrate(ctx, threadID)
	if err != nil {
		slog.Warn("Rehydration failed, starting fresh", "thread_id", threadID, "error", err)
	} else if found {
		slog.Info("Rehydrated thread from snapshot",
			"thread_id", threadID,
			"turn_count", snap.TurnCount,
			"active_domain", snap.ActiveDomain)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// lost the race, another turn created it meanwhile
	if existing := s.threads[threadID]; existing != nil {
		return existing
	}

	th = &thread{
		id:            threadID,
		mailbox:       make(chan mail, mailboxSize),
		done:          make(chan struct{}),
		turnCount:     snap.TurnCount,
		activeDomain:  snap.ActiveDomain,
		currentIntent: snap.CurrentIntent,
		facts:         snap.Facts,
		lastActivity:  s.now(),
	}
	if snap.SummaryText != "" {
		th.summaries = append(th.summaries, model.RollingSummary{
			Text:      snap.SummaryText,
			ToTurn:    snap.TurnCount,
			CreatedAt: snap.SavedAt,
		})
	}

	s.threads[threadID] = th
	go th.run()

	return th
}

// Rehydrate loads (or confirms) a thread's durable state, used by the
// transport layer on reconnect.
func (s *Service) Rehydrate(ctx context.Context, threadID string) ThreadInfo {
	var info ThreadInfo

	s.post(ctx, threadID, func(th *thread) {
		info = s.infoFor(th)
	})

	return info
}

// FusedContext recomputes the current fused context without ingesting a
// turn, used by the debug endpoint. Idempotent.
func (s *Service) FusedContext(ctx context.Context, threadID string) fusion.Result {
	var result fusion.Result

	s.post(ctx, threadID, func(th *thread) {
		result = s.fusionSvc.Fuse(ctx, th.id, th.facts, s.currentSummary(th))
	})

	return result
}

func (s *Service) ThreadInfo(threadID string) (ThreadInfo, bool) {
	s.mu.RLock()
	th := s.threads[threadID]
	s.mu.RUnlock()

	if th == nil {
		return ThreadInfo{ThreadID: threadID, State: StateEvicted}, false
	}

	var info ThreadInfo
	if !th.post(func() { info = s.infoFor(th) }) {
		return ThreadInfo{ThreadID: threadID, State: StateEvicted}, false
	}

	return info, true
}

func (s *Service) infoFor(th *thread) ThreadInfo {
	state := StateActive
	if s.now().Sub(th.lastActivity) > s.cfg.Conversation.InactivityTimeout() {
		state = StateIdle
	}

	return ThreadInfo{
		ThreadID:      th.id,
		State:         state,
		TurnCount:     th.turnCount,
		ActiveDomain:  th.activeDomain,
		CurrentIntent: th.currentIntent,
		LastActivity:  th.lastActivity,
	}
}

func (s *Service) persist(ctx context.Context, th *thread) {
	snap := model.Snapshot{
		ThreadID:      th.id,
		ActiveDomain:  th.activeDomain,
		CurrentIntent: th.currentIntent,
		SummaryText:   s.currentSummary(th),
		Facts:         th.facts,
		TurnCount:     th.turnCount,
	}

	// Best-effort: a failed write is retried at the next natural
	// persistence point, which is the next turn or the eviction scan.
	if err := s.snapshotSvc.Persist(ctx, snap); err != nil {
		slog.Warn("Snapshot persist failed, will retry on next turn", "thread_id", th.id, "error", err)
	}
}

// RunRotation runs the periodic eviction scan until the context is done.
func (s *Service) RunRotation(ctx context.Context) {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.cfg.Conversation.RotationScanSpec, func() {
		s.ScanOnce(context.Background())
	}); err != nil {
		slog.Error("Failed to schedule rotation scan", "error", err, "telegram", true)
		return
	}

	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// ScanOnce evicts every thread past the inactivity timeout, persisting a
// final snapshot before releasing its memory. The eviction decision runs
// on the thread's own runner, so it is ordered against in-flight turns:
// anything queued behind it is bounced back and lands on a fresh thread
// rehydrated from the snapshot just written.
func (s *Service) ScanOnce(ctx context.Context) {
	ttl := s.cfg.Conversation.InactivityTimeout()

	s.mu.RLock()
	candidates := make([]*thread, 0, len(s.threads))
	for _, th := range s.threads {
		candidates = append(candidates, th)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, th := range candidates {
		stale := false
		turnCount := 0
		th.post(func() {
			if s.now().Sub(th.lastActivity) <= ttl {
				return
			}

			s.persist(ctx, th)
			s.historySvc.Drop(th.id)
			turnCount = th.turnCount
			th.closing = true
			stale = true
		})
		if !stale {
			continue
		}

		s.mu.Lock()
		if s.threads[th.id] == th {
			delete(s.threads, th.id)
		}
		s.mu.Unlock()
		th.close()

		evicted++
		slog.Info("Evicted inactive thread", "thread_id", th.id, "turn_count", turnCount)
	}

	if evicted > 0 {
		slog.Debug("Rotation scan finished", "evicted", evicted)
	}
}

// Shutdown persists a final snapshot for every live thread and stops
// their runners.
func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	threads := make([]*thread, 0, len(s.threads))
	for _, th := range s.threads {
		threads = append(threads, th)
	}
	s.threads = map[string]*thread{}
	s.mu.Unlock()

	for _, th := range threads {
		th.post(func() {
			s.persist(ctx, th)
		})
		th.close()
	}

	return nil
}
